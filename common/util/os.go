package util

import (
	"strings"
)

// FilterOSArgs returns a copy of args with the value of every flag not on the
// whitelist masked, making the command line safe to log. Both the
// "--flag value" and "--flag=value" forms are handled.
func FilterOSArgs(args []string, whitelist []string) []string {
	whitelisted := make(map[string]struct{}, len(whitelist))
	for _, name := range whitelist {
		whitelisted[name] = struct{}{}
	}

	sanitized := make([]string, len(args))
	maskNext := false
	for i, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			if maskNext {
				arg = mask(arg)
				maskNext = false
			}
			sanitized[i] = arg
			continue
		}
		name := strings.TrimPrefix(strings.ToLower(arg), "--")
		if eq := strings.IndexByte(name, '='); eq != -1 {
			if _, ok := whitelisted[name[:eq]]; !ok {
				arg = arg[:len("--")+eq+1] + mask(arg[len("--")+eq+1:])
			}
			sanitized[i] = arg
			continue
		}
		_, ok := whitelisted[name]
		maskNext = !ok
		sanitized[i] = arg
	}
	return sanitized
}

func mask(value string) string {
	return strings.Repeat("*", len(value))
}
