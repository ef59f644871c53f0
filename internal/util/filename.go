package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

// ErrInvalidFilename is returned for names that could escape a directory or
// are otherwise unusable as a document name.
var ErrInvalidFilename = errors.New("invalid filename")

const maxFilenameLen = 200

// CleanFilename validates a user supplied document name and appends the
// .json extension when missing.
func CleanFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxFilenameLen {
		return "", ErrInvalidFilename
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", ErrInvalidFilename
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrInvalidFilename
		}
	}
	if path.Ext(name) != ".json" {
		name += ".json"
	}
	return name, nil
}
