package models

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/accella/accella/common/util"
)

const resourceNameMaxLength = 100
const ResourceNameRegexStr = "^[a-zA-Z0-9_-]{1,100}$"

var ResourceNameRegex = regexp.MustCompile(ResourceNameRegexStr)

// ResourceName is a human-specified identifier of a resource such as a
// workflow, a task key within a workflow, a service name or a node name.
// ResourceName must conform to length and character set requirements (see
// resourceNameMaxLength and ResourceNameRegex). ResourceName is unique
// within a parent collection e.g. a task key must be unique within the
// workflow it belongs to.
type ResourceName string

func (s ResourceName) String() string {
	return string(s)
}

func (s *ResourceName) Scan(src interface{}) error {
	if src == nil {
		*s = ""
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("error expected string: %#v", src)
	}
	*s = ResourceName(t)
	return nil
}

func (s ResourceName) Value() (driver.Value, error) {
	return string(s), nil
}

func (s ResourceName) Valid() bool {
	return s.Validate() == nil
}

func (s ResourceName) Validate() error {
	if s == "" {
		return errors.New("error name must be set")
	}
	if len(s) > resourceNameMaxLength {
		return fmt.Errorf("error name must not exceed %d characters", resourceNameMaxLength)
	}
	if !ResourceNameRegex.MatchString(s.String()) {
		return fmt.Errorf("error name must only contain alphanumeric, dash or underscore characters: '%s'", s)
	}
	return nil
}

const (
	replacementChar = "-"
	allowedChars    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"
	prefixLen       = 10
)

// NormalizeResourceName converts an arbitrary string, such as a hostname,
// into a valid resource name by replacing disallowed characters. Strings
// longer than the maximum name length are truncated behind a random prefix
// so two long names differing only in their tails do not normalize to the
// same name.
func NormalizeResourceName(str string) string {
	if len(str) > resourceNameMaxLength {
		prefix := util.RandAlphaString(prefixLen)
		str = prefix + str[:resourceNameMaxLength-prefixLen]
	}
	var out string
	for _, s := range str {
		if !strings.Contains(allowedChars, string(s)) {
			out += replacementChar
		} else {
			out += string(s)
		}
	}
	return out
}
