// Package server defines the wire protocol of the relay: a closed set of
// kind-tagged JSON envelopes, one per WebSocket text frame.
package server

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind tags an envelope with its protocol variant.
type Kind string

// Client to server kinds.
const (
	KindJoin        Kind = "join"
	KindChat        Kind = "chat"
	KindListRequest Kind = "list_request"
	KindKick        Kind = "kick"
	KindQuit        Kind = "quit"
)

// Server to client kinds. KindChat and KindKick travel both ways.
const (
	KindWelcome      Kind = "welcome"
	KindListResponse Kind = "list_response"
	KindExit         Kind = "exit"
	KindDenied       Kind = "denied"
)

// PublicRecipient is the sentinel recipient of a public chat. An empty
// recipient means the same thing.
const PublicRecipient = "Everyone"

// Envelope is the single wire message shape. Kind decides which of the
// remaining fields are meaningful; everything else stays zero and is elided
// from the JSON. Envelopes are value objects, never mutated after decoding.
type Envelope struct {
	Kind      Kind     `json:"kind"`
	Name      string   `json:"name,omitempty"`      // join, welcome, exit
	Sender    string   `json:"sender,omitempty"`    // chat
	Recipient string   `json:"recipient,omitempty"` // chat; empty or "Everyone" means public
	Text      string   `json:"text,omitempty"`      // chat
	Target    string   `json:"target,omitempty"`    // kick
	Issuer    string   `json:"issuer,omitempty"`    // kick, server to client
	Users     []string `json:"users,omitempty"`     // list_response
}

// Public reports whether a chat envelope addresses the whole room.
func (e Envelope) Public() bool {
	return e.Recipient == "" || e.Recipient == PublicRecipient
}

var validate = validator.New()

type joinFields struct {
	Name string `validate:"required,max=32"`
}

type chatFields struct {
	Text string `validate:"required"`
}

type kickFields struct {
	Target string `validate:"required,max=32"`
}

// ValidateInbound checks a client envelope against the protocol. It returns
// ErrUnknownKind for kinds a client may not send, and a validation error when
// the fields the kind requires are missing or oversized.
func ValidateInbound(e Envelope) error {
	switch e.Kind {
	case KindJoin:
		return validate.Struct(joinFields{Name: e.Name})
	case KindChat:
		return validate.Struct(chatFields{Text: e.Text})
	case KindKick:
		return validate.Struct(kickFields{Target: e.Target})
	case KindListRequest, KindQuit:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
}

// DecodeEnvelope parses one framed message into an Envelope and validates it.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if err := ValidateInbound(e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// Constructors for the server-originated envelopes keep the kind and field
// pairing in one place.

func NewWelcome(name string) Envelope {
	return Envelope{Kind: KindWelcome, Name: name}
}

func NewExit(name string) Envelope {
	return Envelope{Kind: KindExit, Name: name}
}

func NewChat(sender, recipient, text string) Envelope {
	return Envelope{Kind: KindChat, Sender: sender, Recipient: recipient, Text: text}
}

func NewListResponse(users []string) Envelope {
	return Envelope{Kind: KindListResponse, Users: users}
}

func NewKickNotice(target, issuer string) Envelope {
	return Envelope{Kind: KindKick, Target: target, Issuer: issuer}
}

func NewDenied() Envelope {
	return Envelope{Kind: KindDenied}
}
