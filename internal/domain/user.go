// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

// Language is a BCP 47-ish language tag as supplied by the client,
// e.g. "it" or "en-US". The server never parses it beyond equality.
type Language string

type User struct {
	Name     string   `json:"name"`
	Language Language `json:"language"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(name string, lang Language) (*User, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &User{Name: name, Language: lang}, nil
}
