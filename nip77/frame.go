// Package nip77 implements the JSON envelopes that carry negentropy messages over a
// Nostr relay connection.
package nip77

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformedFrame is returned when a frame can't be parsed.
	ErrMalformedFrame = errors.New("nip77: malformed frame")
	// ErrUnsupportedFrame is returned for the frame types that are not handled here.
	ErrUnsupportedFrame = errors.New("nip77: unsupported frame type")
)

// MaxSubscriptionIDLen is the maximum length of a subscription id.
const MaxSubscriptionIDLen = 64

// FrameType is the label in the first element of a frame.
type FrameType string

const (
	TypeNegOpen  FrameType = "NEG-OPEN"
	TypeNegMsg   FrameType = "NEG-MSG"
	TypeNegClose FrameType = "NEG-CLOSE"
	TypeNegErr   FrameType = "NEG-ERR"
	TypeNotice   FrameType = "NOTICE"
	TypeClosed   FrameType = "CLOSED"
)

// Frame is a single relay protocol frame.
//
//	["NEG-OPEN", <subscription id>, <filter>, <hex message>]
//	["NEG-MSG", <subscription id>, <hex message>]
//	["NEG-CLOSE", <subscription id>]
//	["NEG-ERR", <subscription id>, <reason>]
//	["NOTICE", <reason>]
//	["CLOSED", <subscription id>, <reason>]
type Frame struct {
	Type           FrameType
	SubscriptionID string
	Filter         *Filter
	Payload        string
	Reason         string
}

// Open returns a NEG-OPEN frame.
func Open(subID string, filter Filter, payload string) Frame {
	return Frame{Type: TypeNegOpen, SubscriptionID: subID, Filter: &filter, Payload: payload}
}

// Msg returns a NEG-MSG frame.
func Msg(subID, payload string) Frame {
	return Frame{Type: TypeNegMsg, SubscriptionID: subID, Payload: payload}
}

// Close returns a NEG-CLOSE frame.
func Close(subID string) Frame {
	return Frame{Type: TypeNegClose, SubscriptionID: subID}
}

// Err returns a NEG-ERR frame.
func Err(subID, reason string) Frame {
	return Frame{Type: TypeNegErr, SubscriptionID: subID, Reason: reason}
}

// Notice returns a NOTICE frame.
func Notice(reason string) Frame {
	return Frame{Type: TypeNotice, Reason: reason}
}

// Closed returns a CLOSED frame.
func Closed(subID, reason string) Frame {
	return Frame{Type: TypeClosed, SubscriptionID: subID, Reason: reason}
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	b, err := f.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<bad frame %s: %v>", f.Type, err)
	}
	return string(b)
}

// MarshalJSON implements json.Marshaler.
func (f Frame) MarshalJSON() ([]byte, error) {
	var v []any
	switch f.Type {
	case TypeNegOpen:
		if f.Filter == nil {
			return nil, fmt.Errorf("%w: NEG-OPEN without a filter", ErrMalformedFrame)
		}
		v = []any{f.Type, f.SubscriptionID, f.Filter, f.Payload}
	case TypeNegMsg:
		v = []any{f.Type, f.SubscriptionID, f.Payload}
	case TypeNegClose:
		v = []any{f.Type, f.SubscriptionID}
	case TypeNegErr, TypeClosed:
		v = []any{f.Type, f.SubscriptionID, f.Reason}
	case TypeNotice:
		v = []any{f.Type, f.Reason}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFrame, f.Type)
	}
	return json.Marshal(v)
}

var frameLengths = map[FrameType]int{
	TypeNegOpen:  4,
	TypeNegMsg:   3,
	TypeNegClose: 2,
	TypeNegErr:   3,
	TypeNotice:   2,
	TypeClosed:   3,
}

// PeekType returns the type of the frame without parsing the rest of it.
func PeekType(data []byte) FrameType {
	return FrameType(gjson.GetBytes(data, "0").Str)
}

// ParseFrame parses a frame received from the peer.
// Frames with a well-formed array layout but an unknown type fail with
// ErrUnsupportedFrame, and everything else that can't be parsed fails with
// ErrMalformedFrame.
func ParseFrame(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return Frame{}, fmt.Errorf("%w: invalid JSON", ErrMalformedFrame)
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return Frame{}, fmt.Errorf("%w: not an array", ErrMalformedFrame)
	}
	elems := parsed.Array()
	if len(elems) == 0 || elems[0].Type != gjson.String {
		return Frame{}, fmt.Errorf("%w: missing frame type", ErrMalformedFrame)
	}
	f := Frame{Type: FrameType(elems[0].Str)}
	n, found := frameLengths[f.Type]
	if !found {
		return f, fmt.Errorf("%w: %q", ErrUnsupportedFrame, f.Type)
	}
	if len(elems) != n {
		return f, fmt.Errorf("%w: %s: expected %d elements, got %d",
			ErrMalformedFrame, f.Type, n, len(elems))
	}
	for _, e := range elems[1:] {
		if e.Type != gjson.String && !e.IsObject() {
			return f, fmt.Errorf("%w: %s: unexpected element %s", ErrMalformedFrame, f.Type, e.Raw)
		}
	}
	if f.Type == TypeNotice {
		if elems[1].Type != gjson.String {
			return f, fmt.Errorf("%w: NOTICE: reason is not a string", ErrMalformedFrame)
		}
		f.Reason = elems[1].Str
		return f, nil
	}
	if elems[1].Type != gjson.String {
		return f, fmt.Errorf("%w: %s: subscription id is not a string", ErrMalformedFrame, f.Type)
	}
	f.SubscriptionID = elems[1].Str
	if f.SubscriptionID == "" || len(f.SubscriptionID) > MaxSubscriptionIDLen {
		return f, fmt.Errorf("%w: %s: bad subscription id length %d",
			ErrMalformedFrame, f.Type, len(f.SubscriptionID))
	}
	switch f.Type {
	case TypeNegOpen:
		if !elems[2].IsObject() {
			return f, fmt.Errorf("%w: NEG-OPEN: filter is not an object", ErrMalformedFrame)
		}
		var filter Filter
		if err := json.Unmarshal([]byte(elems[2].Raw), &filter); err != nil {
			return f, fmt.Errorf("%w: NEG-OPEN: bad filter: %w", ErrMalformedFrame, err)
		}
		if err := filter.Validate(); err != nil {
			return f, err
		}
		f.Filter = &filter
		if elems[3].Type != gjson.String {
			return f, fmt.Errorf("%w: NEG-OPEN: message is not a string", ErrMalformedFrame)
		}
		f.Payload = elems[3].Str
	case TypeNegMsg:
		if elems[2].Type != gjson.String {
			return f, fmt.Errorf("%w: NEG-MSG: message is not a string", ErrMalformedFrame)
		}
		f.Payload = elems[2].Str
	case TypeNegErr, TypeClosed:
		if elems[2].Type != gjson.String {
			return f, fmt.Errorf("%w: %s: reason is not a string", ErrMalformedFrame, f.Type)
		}
		f.Reason = elems[2].Str
	}
	return f, nil
}
