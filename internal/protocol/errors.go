package protocol

import "errors"

var (
	ErrUnknownType    = errors.New("protocol: unknown message type")
	ErrInvalidPayload = errors.New("protocol: invalid payload")
)
