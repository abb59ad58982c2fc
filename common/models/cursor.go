package models

import (
	"encoding/base64"
	"encoding/json"
)

const (
	CursorDirectionPrev CursorDirection = "p"
	CursorDirectionNext CursorDirection = "n"
)

// Cursor points at the pages either side of the page it was returned with.
// A nil Prev or Next means no page exists in that direction.
type Cursor struct {
	Prev *DirectionalCursor
	Next *DirectionalCursor
}

type CursorDirection string

// DirectionalCursor marks a position in a result set together with the
// direction to move in. Encoded opaquely before leaving the engine.
type DirectionalCursor struct {
	Direction CursorDirection `json:"d"`
	Marker    string          `json:"m"`
}

func (m *DirectionalCursor) Decode(str string) error {
	if str == "" {
		return nil
	}
	buf, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, m)
}

func (m *DirectionalCursor) Encode() (string, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
