package domain

import (
	"time"
	"unicode/utf8"
)

const (
	MaxTopicLength    = 140
	MaxRoomLength     = 64
	DefaultLeaseTTL   = 60 * time.Second
	DefaultAttendance = 5 * time.Second
)

// RoomInfo is the ledger-resident state of a room. A zero Owner means the
// lease has expired or the room was never claimed.
type RoomInfo struct {
	Key    string
	Owner  string
	Topic  string
	Expiry time.Time
}

func (r RoomInfo) IsOwned() bool {
	return r.Owner != ""
}

func (r RoomInfo) IsOwnedBy(id string) bool {
	return r.IsOwned() && r.Owner == id
}

func ValidateRoom(key string) error {
	if key == "" {
		return Errorf(ErrInvalidRoom, "You need to specify which room you'd like to join")
	}
	if utf8.RuneCountInString(key) > MaxRoomLength || !wordPattern.MatchString(key) {
		return Errorf(ErrInvalidRoom, "That's not a valid room")
	}
	return nil
}

func ValidateTopic(topic string) error {
	if utf8.RuneCountInString(topic) > MaxTopicLength {
		return Errorf(ErrTopicTooLong, "Topics may not exceed %d characters in length", MaxTopicLength)
	}
	return nil
}

// Delivery is one message received from the bus.
type Delivery struct {
	Room    string
	Message string
	Origin  string
}
