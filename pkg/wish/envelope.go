package wish

import (
	"encoding/json"
	"fmt"
)

// Channel names the kind of a websocket frame.
type Channel string

const (
	ChannelAllWishes       Channel = "all-wishes"
	ChannelNewWish         Channel = "new-wish"
	ChannelWishDeleted     Channel = "wish-deleted"
	ChannelAllCleared      Channel = "all-cleared"
	ChannelSpotlight       Channel = "spotlight"
	ChannelSpotlightOff    Channel = "spotlight-off"
	ChannelThemeChange     Channel = "theme-change"
	ChannelRequestSnapshot Channel = "request-snapshot"
)

// Envelope is the frame written on the websocket in both directions.
type Envelope struct {
	Type    Channel         `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Deleted struct {
	ID string `json:"id"`
}

type Theme struct {
	Theme string `json:"theme"`
}

// NewEnvelope marshals payload into an envelope of the given channel. A nil
// payload produces an envelope without one.
func NewEnvelope(channel Channel, payload any) (Envelope, error) {
	env := Envelope{Type: channel}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", channel, err)
	}
	env.Payload = raw
	return env, nil
}

// Encode returns the wire form of an envelope.
func Encode(channel Channel, payload any) ([]byte, error) {
	env, err := NewEnvelope(channel, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a frame. Unknown channels are not an error here; the caller
// decides whether to ignore them.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope has no type")
	}
	return env, nil
}

// Into unmarshals the payload into target.
func (e Envelope) Into(target any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s envelope has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
