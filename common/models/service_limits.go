package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ServiceLimits records the maximum number of tasks a node is willing to run
// concurrently, keyed by service name. A missing key means the node declares
// no limit for that service. Stored in the database as a single JSON object
// column so the dispatcher can sum limits per service inside a query.
type ServiceLimits map[string]int

func (m *ServiceLimits) Scan(src interface{}) error {
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

func (m ServiceLimits) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling to JSON: %w", err)
	}
	return string(buf), nil
}

// Copy returns a new map with the same entries. Mutating the copy does not
// affect the original.
func (m ServiceLimits) Copy() ServiceLimits {
	if m == nil {
		return nil
	}
	out := make(ServiceLimits, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m ServiceLimits) Validate() error {
	for service, limit := range m {
		if err := ResourceName(service).Validate(); err != nil {
			return fmt.Errorf("error validating service name %q: %w", service, err)
		}
		if limit < 0 {
			return fmt.Errorf("error limit for service %q must not be negative", service)
		}
	}
	return nil
}
