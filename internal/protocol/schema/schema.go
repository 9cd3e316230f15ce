package schema

import (
	"fmt"

	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/rs/zerolog/log"
)

// Container is the top-level value a request payload must hold.
type Container uint8

const (
	AnyValue Container = iota
	ArrayValue
	MapValue
)

func (c Container) String() string {
	switch c {
	case ArrayValue:
		return "array"
	case MapValue:
		return "map"
	}
	return "any"
}

// Requirement describes a request payload: the top-level container and
// the kinds of its leading array items. Exact forbids items past Items.
type Requirement struct {
	Container Container
	Items     []qpack.Kind
	Exact     bool
}

type ValidationError struct {
	MessageType protocol.MsgType
	Item        int
	Reason      string
}

func (e ValidationError) Error() string {
	name := protocol.RequestName(e.MessageType)
	if e.Item == 0 {
		return fmt.Sprintf("schema: message_type=%s: %s", name, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%s item=%d: %s", name, e.Item, e.Reason)
}

// Unwrap lets callers match protocol.ErrUnknownType or
// protocol.ErrInvalidPayload with errors.Is.
func (e ValidationError) Unwrap() error {
	if e.Reason == reasonUnknownType {
		return protocol.ErrUnknownType
	}
	return protocol.ErrInvalidPayload
}

const reasonUnknownType = "unknown message type"

var requirements = map[protocol.MsgType]Requirement{
	// [user, password, database]
	protocol.ReqAuth: {
		Container: ArrayValue,
		Items:     []qpack.Kind{qpack.KindRaw, qpack.KindRaw, qpack.KindRaw},
		Exact:     true,
	},
	// [query, ...options]
	protocol.ReqQuery: {
		Container: ArrayValue,
		Items:     []qpack.Kind{qpack.KindRaw},
	},
	// {series: points, ...}
	protocol.ReqInsert: {Container: MapValue},
	protocol.ReqPing:   {Container: AnyValue},
	protocol.ReqInfo:   {Container: AnyValue},
}

// Lookup returns the payload requirement registered for a request type.
func Lookup(tp protocol.MsgType) (Requirement, bool) {
	req, ok := requirements[tp]
	return req, ok
}

// Validate checks a request payload against the requirement of its
// message type. Map keys and array items past the required ones are not
// inspected.
func Validate(tp protocol.MsgType, payload []byte) error {
	log.Debug().Str("message_type", protocol.RequestName(tp)).Int("payload_bytes", len(payload)).Msg("schema.Validate")
	req, ok := requirements[tp]
	if !ok {
		log.Error().Uint8("message_type", uint8(tp)).Msg("schema.Validate unknown message type")
		return ValidationError{MessageType: tp, Reason: reasonUnknownType}
	}
	if req.Container == AnyValue {
		return nil
	}
	if err := validateShape(tp, req, payload); err != nil {
		log.Error().Err(err).Msg("schema.Validate rejected payload")
		return err
	}
	return nil
}

func validateShape(tp protocol.MsgType, req Requirement, payload []byte) error {
	whole := qpack.NewUnpacker(payload)
	k, err := whole.Skip()
	if err != nil {
		return ValidationError{MessageType: tp, Reason: err.Error()}
	}
	if k == qpack.KindEnd {
		return ValidationError{MessageType: tp, Reason: "missing payload"}
	}
	if whole.Remaining() > 0 {
		return ValidationError{MessageType: tp, Reason: "trailing data after payload"}
	}

	switch req.Container {
	case MapValue:
		if !qpack.IsMap(k) {
			return ValidationError{MessageType: tp, Reason: fmt.Sprintf("expected map, got %s", k)}
		}
		return nil
	case ArrayValue:
		if !qpack.IsArray(k) {
			return ValidationError{MessageType: tp, Reason: fmt.Sprintf("expected array, got %s", k)}
		}
	}

	n, fixed := k.FixedSize()
	if fixed && n < len(req.Items) {
		return ValidationError{MessageType: tp, Item: n + 1, Reason: "missing required item"}
	}
	if fixed && req.Exact && n > len(req.Items) {
		return ValidationError{MessageType: tp, Item: len(req.Items) + 1, Reason: "unexpected item"}
	}

	u := qpack.NewUnpacker(payload)
	u.Next()
	for i, want := range req.Items {
		got, err := u.Skip()
		if err != nil {
			return ValidationError{MessageType: tp, Item: i + 1, Reason: err.Error()}
		}
		if got == qpack.KindEnd || got == qpack.KindArrayClose {
			return ValidationError{MessageType: tp, Item: i + 1, Reason: "missing required item"}
		}
		if got != want {
			return ValidationError{
				MessageType: tp,
				Item:        i + 1,
				Reason:      fmt.Sprintf("type mismatch got=%s want=%s", got, want),
			}
		}
	}
	if !fixed && req.Exact {
		if next := u.Next(); next != qpack.KindArrayClose && next != qpack.KindEnd {
			return ValidationError{MessageType: tp, Item: len(req.Items) + 1, Reason: "unexpected item"}
		}
	}
	return nil
}
