package repository

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// envelope is what travels on the bus: the message plus the node that sent it.
type envelope struct {
	Origin  string
	Message string
	SentAt  time.Time
}

func (e envelope) marshal() ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"origin":  e.Origin,
		"message": e.Message,
		"sent_at": e.SentAt.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("error building envelope: %w", err)
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling envelope: %w", err)
	}
	return b, nil
}

func unmarshalEnvelope(b []byte) (envelope, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return envelope{}, fmt.Errorf("error unmarshaling envelope: %w", err)
	}
	fields := s.GetFields()
	msg, ok := fields["message"]
	if !ok {
		return envelope{}, fmt.Errorf("envelope has no message")
	}
	return envelope{
		Origin:  fields["origin"].GetStringValue(),
		Message: msg.GetStringValue(),
		SentAt:  time.UnixMilli(int64(fields["sent_at"].GetNumberValue())),
	}, nil
}
