// Package document defines the saved document payload shared by storage,
// export and the live editor.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"inkwell/api/internal/generation"
	"inkwell/api/internal/section"
)

// ErrInvalidContent is returned when a payload is not a JSON object.
var ErrInvalidContent = errors.New("document content must be a JSON object")

// Content is the JSON body saved for a document.
type Content struct {
	Title    string               `json:"title"`
	Sections []section.Section    `json:"sections"`
	Metadata *generation.Metadata `json:"metadata,omitempty"`
}

// Parse decodes raw into Content. Unknown fields are tolerated so older
// clients keep working.
func Parse(raw []byte) (Content, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return Content{}, ErrInvalidContent
	}
	var c Content
	if err := json.Unmarshal([]byte(trimmed), &c); err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	if c.Sections == nil {
		c.Sections = []section.Section{}
	}
	return c, nil
}

// Text is the document body with sections joined by blank lines.
func (c Content) Text() string {
	return section.Join(c.Sections)
}

// BodyText is the searchable plain text: the title followed by the body.
func (c Content) BodyText() string {
	body := c.Text()
	if c.Title == "" {
		return body
	}
	if body == "" {
		return c.Title
	}
	return c.Title + "\n\n" + body
}

// Encode returns the canonical JSON encoding.
func (c Content) Encode() ([]byte, error) {
	if c.Sections == nil {
		c.Sections = []section.Section{}
	}
	return json.Marshal(c)
}
