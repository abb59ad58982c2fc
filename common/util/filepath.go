package util

import (
	"net/url"
	"path/filepath"
	"strings"
)

// EscapeFileName escapes each part of the input path so it is safe to use as
// a filesystem path. The returned path is cleaned and separated with
// filepath.Separator regardless of the separator used in the input.
func EscapeFileName(path string) string {
	var (
		encoded string
		parts   = strings.Split(filepath.Clean(path), string(filepath.Separator))
	)
	for _, part := range parts {
		enc := url.QueryEscape(part)
		if encoded == "" {
			encoded = enc
		} else {
			encoded = filepath.Join(encoded, enc)
		}
	}
	return encoded
}
