package domain

import "strings"

// Server to client keywords.
const (
	KeywordID       = "ID"
	KeywordName     = "NAME"
	KeywordToken    = "TOKEN"
	KeywordRoom     = "ROOM"
	KeywordTopic    = "TOPIC"
	KeywordJoined   = "JOINED"
	KeywordLeft     = "LEFT"
	KeywordSetName  = "SETNAME"
	KeywordMigrated = "MIGRATED"
	KeywordChat     = "CHAT"
	KeywordQR       = "QR"
	KeywordSuccess  = "SUCCESS"
	KeywordWarning  = "WARNING"
	KeywordError    = "ERROR"
	KeywordPong     = "PONG"
)

func notify(keyword string, parts ...string) string {
	if len(parts) == 0 {
		return keyword
	}
	return keyword + " " + strings.Join(parts, " ")
}

func IDMessage(id string) string {
	return notify(KeywordID, id)
}

func NameMessage(name string) string {
	return notify(KeywordName, name)
}

// TokenMessage with an empty token tells the client to forget its token.
func TokenMessage(token string) string {
	if token == "" {
		return KeywordToken
	}
	return notify(KeywordToken, token)
}

// RoomMessage with an empty key tells the client it is in no room.
func RoomMessage(room string) string {
	if room == "" {
		return KeywordRoom
	}
	return notify(KeywordRoom, room)
}

func TopicMessage(topic string) string {
	return notify(KeywordTopic, Quote(topic))
}

func JoinedMessage(id, name string) string {
	return notify(KeywordJoined, id, Quote(name))
}

func LeftMessage(id, name string) string {
	return notify(KeywordLeft, id, Quote(name))
}

func SetNameMessage(id, oldName, newName string) string {
	return notify(KeywordSetName, id, Quote(oldName), Quote(newName))
}

func MigratedMessage(oldID, oldName, newID, newName string) string {
	return notify(KeywordMigrated, oldID, Quote(oldName), newID, Quote(newName))
}

func ChatMessage(senderID, senderName, text string) string {
	return notify(KeywordChat, senderID, Quote(senderName), Quote(text))
}

func QRMessage(url string) string {
	return notify(KeywordQR, url)
}

func SuccessMessage(text string) string {
	return notify(KeywordSuccess, Quote(text))
}

func WarningMessage(text string) string {
	return notify(KeywordWarning, Quote(text))
}

func ErrorMessage(text string) string {
	return notify(KeywordError, Quote(text))
}

func PongMessage() string {
	return KeywordPong
}
