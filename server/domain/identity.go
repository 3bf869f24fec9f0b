package domain

import (
	"regexp"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

const MaxNameLength = 32

var wordPattern = regexp.MustCompile(`^\w+$`)

// Identity is what an identity token carries: a connection id and the name
// that was set when the token was issued.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func NewIdentity(id, name string) Identity {
	return Identity{ID: id, Name: name}
}

func (i Identity) IsValid() bool {
	return i.ID != "" && ValidateName(i.Name) == nil
}

// NewID returns a fresh, lexically sortable connection id.
func NewID() string {
	return ulid.Make().String()
}

func ValidateName(name string) error {
	if name == "" {
		return Errorf(ErrInvalidName, "Name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return Errorf(ErrInvalidName, "That name is too long")
	}
	if !wordPattern.MatchString(name) {
		return Errorf(ErrInvalidName, "Names may only contain letters, numbers, and underscores")
	}
	return nil
}
