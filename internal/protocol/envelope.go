package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a request or response on the wire.
type Kind string

const (
	KindLogin        Kind = "LOGIN"
	KindRegister     Kind = "REGISTER"
	KindSendChat     Kind = "SEND_CHAT"
	KindAddSchedule  Kind = "ADD_SCHEDULE"
	KindCreateGroup  Kind = "CREATE_GROUP"
	KindGetUserData  Kind = "GET_USER_DATA"
	KindLoginSuccess Kind = "LOGIN_SUCCESS"
	KindLoginFailed  Kind = "LOGIN_FAILED"
	KindRegisterOK   Kind = "REGISTER_SUCCESS"
	KindRegisterFail Kind = "REGISTER_FAILED"
	KindUserData     Kind = "USER_DATA"
	KindChatMessage  Kind = "CHAT_MESSAGE"
	KindError        Kind = "ERROR"
	KindShutdown     Kind = "SERVER_SHUTDOWN"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrUnknownKind       = errors.New("unknown message type")
)

// Envelope is one JSON object per line in both directions.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses a single line into an Envelope. The payload is left raw.
func Decode(line []byte) (Envelope, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty line", ErrMalformedEnvelope)
	}
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return env, nil
}

// Encode renders kind and payload as one line, without the trailing newline.
// A nil payload is sent as "data":null.
func Encode(kind Kind, payload any) ([]byte, error) {
	env := Envelope{Type: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// HasPayload reports whether data carries something other than null.
func (e Envelope) HasPayload() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
