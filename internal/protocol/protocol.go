// Package protocol defines the JSON envelope spoken between the device and
// the server.
//
// Inbound text frames carry a tagged device message ("hello" or "event");
// anything else is accepted and merely logged by the caller. Outbound
// messages are reaction responses of type "llm". The protocol has no error
// channel by design: degraded operation is expressed as a suppressed
// response or a neutral label, never as an error payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound device message types.
const (
	// TypeHello is the device handshake, carrying a firmware version.
	TypeHello = "hello"

	// TypeEvent is a device-side event notification (key/value).
	TypeEvent = "event"
)

// TypeLLM tags every outbound reaction response.
const TypeLLM = "llm"

// Ping is the literal substring in a text frame that requests a [Pong]
// reply. The check is independent of JSON decoding: even a well-formed
// device message containing the substring gets a pong.
const Ping = "ping"

// Pong is the literal, non-JSON text reply to a ping.
const Pong = "pong"

// ErrUnknownType is returned by [DecodeDeviceMessage] for well-formed JSON
// whose type tag is not a known device message type.
var ErrUnknownType = errors.New("protocol: unknown device message type")

// DeviceMessage is a decoded inbound text frame. Which fields are
// meaningful depends on Type: a hello carries Version, an event carries
// Key and Value.
type DeviceMessage struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	Key     string `json:"key,omitempty"`
	Value   string `json:"value,omitempty"`
}

// DecodeDeviceMessage parses an inbound text payload into a tagged
// [DeviceMessage]. Non-JSON payloads and unknown type tags return an
// error; callers treat both as raw text to log, not as a fault.
func DecodeDeviceMessage(payload []byte) (DeviceMessage, error) {
	var m DeviceMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return DeviceMessage{}, fmt.Errorf("protocol: decode device message: %w", err)
	}
	switch m.Type {
	case TypeHello, TypeEvent:
		return m, nil
	default:
		return DeviceMessage{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// IsPing reports whether a raw text payload contains the ping substring.
func IsPing(payload []byte) bool {
	return strings.Contains(string(payload), Ping)
}

// ServerResponse is an outbound reaction message.
type ServerResponse struct {
	Type    string `json:"type"`
	Emotion string `json:"emotion"`

	// Text is omitted from the wire form when empty.
	Text string `json:"text,omitempty"`
}

// InitialResponse is the message sent once on connection open, before any
// audio arrives.
func InitialResponse() ServerResponse {
	return ServerResponse{
		Type:    TypeLLM,
		Emotion: "calm",
		Text:    "Connected & Ready",
	}
}

// SpeechResult builds the response for one accepted utterance.
func SpeechResult(text, emotion string) ServerResponse {
	return ServerResponse{
		Type:    TypeLLM,
		Emotion: emotion,
		Text:    text,
	}
}

// Encode serialises the response to its JSON wire form.
func (r ServerResponse) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode response: %w", err)
	}
	return b, nil
}
