// Package platform connects a gate.Gate to the native Android activity.
//
// Go and native code talk over named channels. Method channels carry
// request/response calls in both directions; event channels carry streams from
// native to Go. Payloads are JSON encoded.
//
//	storagegate/permissions  Go -> native: sdkVersion, checkSelfPermission,
//	                         showDialog, requestPermissions
//	storagegate/activity     native -> Go: onCreate, onRequestPermissionsResult
//	storagegate/dialog       native -> Go events: {code, action}
package platform

import (
	"encoding/json"
	"errors"
)

// Channel names.
const (
	PermissionsChannel = "storagegate/permissions"
	ActivityChannel    = "storagegate/activity"
	DialogChannel      = "storagegate/dialog"
)

// MessageCodec encodes and decodes messages for platform channel communication.
type MessageCodec interface {
	// Encode converts a Go value to bytes for transmission to native code.
	Encode(value any) ([]byte, error)

	// Decode converts bytes received from native code to a Go value.
	Decode(data []byte) (any, error)
}

// JsonCodec implements MessageCodec using JSON encoding.
type JsonCodec struct{}

// Encode serializes the value to JSON bytes.
func (c JsonCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode deserializes JSON bytes to a Go value. Empty input decodes to nil.
func (c JsonCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DefaultCodec is the codec used by platform channels.
var DefaultCodec MessageCodec = JsonCodec{}

// Standard errors for platform channel operations.
var (
	// ErrChannelNotFound indicates the requested platform channel does not exist.
	ErrChannelNotFound = errors.New("platform channel not found")

	// ErrMethodNotFound indicates the method is not implemented on the receiving side.
	ErrMethodNotFound = errors.New("method not implemented")

	// ErrInvalidArguments indicates the arguments passed to the method were invalid.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrPlatformUnavailable indicates no native bridge is connected.
	ErrPlatformUnavailable = errors.New("platform feature unavailable")
)

// ChannelError represents an error returned from native code.
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewChannelError creates a new ChannelError with the given code and message.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}
