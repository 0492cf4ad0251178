// Package message defines the JSON frames of the subscribe channel and of
// the cross-process notification bus. One frame is one websocket text
// message; there is no framing beyond the transport's message boundaries.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/rtconf/rtconf/internal/rtcerr"
)

// Server → client message types.
const (
	TypeNoChange = "nochange"
	TypeChanged  = "changed"
)

// TypePull is the message_type clients put in pull frames. The underscore
// spelling differs from the server's TypeNoChange and is part of the wire
// contract.
const TypePull = "no_change"

// Push frame response modes. Notify means the client stays passive; reply
// asks the client to acknowledge with its next pull.
const (
	ModeNotify = "notify"
	ModeReply  = "reply"
)

// Bus callback functions.
const (
	FuncConfigChanged    = "callback_config_changed"
	FuncAddConnection    = "callback_add_connection"
	FuncRemoveConnection = "callback_remove_connection"
)

// Over is the raw bus payload that stops subscriber loops on shutdown.
const Over = "over"

// DefaultEnv is assumed when a pull frame omits env.
const DefaultEnv = "default"

// Pull is the client → server frame requesting the current view.
type Pull struct {
	MessageType string         `json:"message_type"`
	ConfigName  string         `json:"config_name"`
	HashCode    string         `json:"hash_code"`
	Context     map[string]any `json:"context"`
	Env         string         `json:"env"`
}

// Push is the server → client frame carrying the resolved view (changed) or
// an empty data map (nochange).
type Push struct {
	MessageType  string         `json:"message_type"`
	ConfigName   string         `json:"config_name"`
	HashCode     string         `json:"hash_code"`
	Data         map[string]any `json:"data"`
	Env          string         `json:"env"`
	ResponseMode string         `json:"response_mode"`
}

// ErrorFrame is the server → client frame for domain errors.
type ErrorFrame struct {
	Code     int    `json:"code"`
	ErrorMsg string `json:"error_msg"`
}

// BusFrame is the self-describing cross-process event: func names a push
// engine callback, args and kwargs are its arguments.
type BusFrame struct {
	Func   string         `json:"func"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// DecodePull parses a pull frame, defaulting env when absent.
func DecodePull(data []byte) (Pull, error) {
	var p Pull
	if err := json.Unmarshal(data, &p); err != nil {
		return Pull{}, fmt.Errorf("message: decode pull frame: %w", err)
	}
	if p.Env == "" {
		p.Env = DefaultEnv
	}
	if p.Context == nil {
		p.Context = map[string]any{}
	}
	return p, nil
}

// Encode serialises the pull frame.
func (p Pull) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("message: encode pull frame: %w", err)
	}
	return data, nil
}

// Encode serialises the push frame. Data is never null on the wire.
func (p Push) Encode() ([]byte, error) {
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("message: encode push frame: %w", err)
	}
	return data, nil
}

// Encode serialises the error frame.
func (e ErrorFrame) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("message: encode error frame: %w", err)
	}
	return data, nil
}

// FromError maps a domain error onto an error frame. Errors outside the
// domain taxonomy are wrapped as connection faults.
func FromError(err error) ErrorFrame {
	if e, ok := rtcerr.AsError(err); ok {
		return ErrorFrame{Code: e.Code, ErrorMsg: e.Msg}
	}
	c := rtcerr.Connect(err)
	return ErrorFrame{Code: c.Code, ErrorMsg: c.Msg}
}

// Downstream is one decoded server → client frame: exactly one of Push or
// Err is set.
type Downstream struct {
	Push *Push
	Err  *ErrorFrame
}

// DecodeDownstream classifies a server frame by the presence of
// message_type: frames without it are error frames.
func DecodeDownstream(data []byte) (Downstream, error) {
	var probe struct {
		MessageType *string `json:"message_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Downstream{}, fmt.Errorf("message: decode server frame: %w", err)
	}
	if probe.MessageType == nil {
		var e ErrorFrame
		if err := json.Unmarshal(data, &e); err != nil {
			return Downstream{}, fmt.Errorf("message: decode error frame: %w", err)
		}
		return Downstream{Err: &e}, nil
	}
	var p Push
	if err := json.Unmarshal(data, &p); err != nil {
		return Downstream{}, fmt.Errorf("message: decode push frame: %w", err)
	}
	return Downstream{Push: &p}, nil
}

// NewBusFrame builds a bus frame with positional args.
func NewBusFrame(fn string, args ...any) BusFrame {
	if args == nil {
		args = []any{}
	}
	return BusFrame{Func: fn, Args: args, Kwargs: map[string]any{}}
}

// Encode serialises the bus frame.
func (b BusFrame) Encode() ([]byte, error) {
	if b.Args == nil {
		b.Args = []any{}
	}
	if b.Kwargs == nil {
		b.Kwargs = map[string]any{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("message: encode bus frame: %w", err)
	}
	return data, nil
}

// DecodeBusFrame parses a bus payload.
func DecodeBusFrame(data []byte) (BusFrame, error) {
	var b BusFrame
	if err := json.Unmarshal(data, &b); err != nil {
		return BusFrame{}, fmt.Errorf("message: decode bus frame: %w", err)
	}
	if b.Func == "" {
		return BusFrame{}, fmt.Errorf("message: bus frame without func")
	}
	return b, nil
}

// StringArg extracts args[i] as a string.
func (b BusFrame) StringArg(i int) (string, error) {
	if i >= len(b.Args) {
		return "", fmt.Errorf("message: bus frame %s: missing arg %d", b.Func, i)
	}
	s, ok := b.Args[i].(string)
	if !ok {
		return "", fmt.Errorf("message: bus frame %s: arg %d is not a string", b.Func, i)
	}
	return s, nil
}

// MapArg extracts args[i] as a JSON object.
func (b BusFrame) MapArg(i int) (map[string]any, error) {
	if i >= len(b.Args) {
		return nil, fmt.Errorf("message: bus frame %s: missing arg %d", b.Func, i)
	}
	m, ok := b.Args[i].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("message: bus frame %s: arg %d is not an object", b.Func, i)
	}
	return m, nil
}
