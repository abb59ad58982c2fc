package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a list of strings stored in the database as a single JSON
// array column. It backs task dependency lists and node labels.
type StringList []string

func (m *StringList) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	str, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type: %[1]T (%[1]v)", src)
	}
	err := json.Unmarshal([]byte(str), m)
	if err != nil {
		return fmt.Errorf("error unmarshalling from JSON: %w", err)
	}
	return nil
}

func (m StringList) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling to JSON: %w", err)
	}
	return string(buf), nil
}

// Contains returns true if value is an element of the list.
func (m StringList) Contains(value string) bool {
	for _, entry := range m {
		if entry == value {
			return true
		}
	}
	return false
}

// Copy returns a new list with the same elements. Mutating the copy does not
// affect the original.
func (m StringList) Copy() StringList {
	if m == nil {
		return nil
	}
	out := make(StringList, len(m))
	copy(out, m)
	return out
}
