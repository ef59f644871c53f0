package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	IsActive              bool
	IsSuperuser           bool
	IsVerified            bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	Preferences           string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Role is the authorization role derived from the superuser flag.
func (u User) Role() string {
	if u.IsSuperuser {
		return "superuser"
	}
	return "user"
}

// Document is a saved editor document. Content holds the serialized
// {"title","sections"} payload; BodyText is its plain text for search.
type Document struct {
	ID        int64
	UserID    string
	Filename  string
	Title     string
	Content   string
	BodyText  string
	Size      int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Snapshot struct {
	ID         int64
	DocumentID int64
	Filename   string
	Name       string
	Content    string
	Size       int
	CreatedAt  time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
