package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxFrameSize is the hard cap on a single text frame. Oversize frames are a
// protocol violation and close the transport.
const MaxFrameSize = 16 * 1024

var (
	ErrFrameTooLarge = errors.New("proto: frame exceeds size limit")
	ErrMalformed     = errors.New("proto: malformed frame")
	ErrUnknownType   = errors.New("proto: unknown message type")
)

type envelope struct {
	Type string `json:"type"`
}

// Decode parses an inbound frame into its typed message. Unknown tags return
// ErrUnknownType so the session can answer with a typed error without
// closing; size and framing violations return errors the session must treat
// as fatal.
func Decode(data []byte) (any, error) {
	if len(data) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeHello:
		return decodeAs[Hello](data)
	case TypePing:
		return decodeAs[Ping](data)
	case TypeJoinLobby:
		return decodeAs[JoinLobby](data)
	case TypeRequestRefund:
		return decodeAs[RequestRefund](data)
	case TypeInput:
		msg, err := decodeAs[Input](data)
		if err != nil {
			return nil, err
		}
		if msg.DirX < -1 || msg.DirX > 1 || msg.DirY < -1 || msg.DirY > 1 {
			return nil, fmt.Errorf("%w: direction out of range", ErrMalformed)
		}
		return msg, nil
	case "":
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T any](data []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// Encode marshals an outbound message. Outbound payloads are built by this
// package's constructors, so a marshal failure is a programming error the
// caller logs and drops.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
