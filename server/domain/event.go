package domain

import "time"

type EventKind int

const (
	EventOpen EventKind = iota
	EventText
	EventBinary
	EventPing
	EventPong
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventText:
		return "text"
	case EventBinary:
		return "binary"
	case EventPing:
		return "ping"
	case EventPong:
		return "pong"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is one notification raised by a Transport.
type Event struct {
	Kind      EventKind
	Text      string
	Data      []byte
	Code      int
	Reason    string
	Timestamp time.Time
}

func NewOpenEvent() Event {
	return Event{Kind: EventOpen, Timestamp: time.Now()}
}

func NewTextEvent(text string) Event {
	return Event{Kind: EventText, Text: text, Timestamp: time.Now()}
}

func NewBinaryEvent(data []byte) Event {
	return Event{Kind: EventBinary, Data: data, Timestamp: time.Now()}
}

func NewPingEvent(data []byte) Event {
	return Event{Kind: EventPing, Data: data, Timestamp: time.Now()}
}

func NewPongEvent(data []byte) Event {
	return Event{Kind: EventPong, Data: data, Timestamp: time.Now()}
}

func NewCloseEvent(code int, reason string) Event {
	return Event{Kind: EventClose, Code: code, Reason: reason, Timestamp: time.Now()}
}

func (e Event) String() string {
	switch e.Kind {
	case EventText:
		return e.Kind.String() + ": " + e.Text
	case EventClose:
		return e.Kind.String() + ": " + e.Reason
	default:
		return e.Kind.String()
	}
}
