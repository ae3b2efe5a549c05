// Package api defines the wire contract between the relay and its clients.
//
// Every message is a JSON-encoded envelope of the following structure:
//
//	c - (required) a logical channel which routes the payload;
//	p - (optional) channel-specific payload.
//
// The signal channel payloads carry a second discriminator in their
// type field, so an envelope is unwrapped in two passes: first the
// channel, then the payload type. Payloads with an unknown channel or
// type are dropped by the receiving side.
//
// Example:
//
//	{"c":"/signal","p":{"type":"join","sessionId":"abc123","role":"student"}}
package api

import "github.com/goccy/go-json"

type Channel string

const (
	Signal Channel = "/signal"
	Board  Channel = "/board"
	Avatar Channel = "/avatar"
	Audio  Channel = "/audio"
)

func (c Channel) Known() bool {
	switch c {
	case Signal, Board, Avatar, Audio:
		return true
	}
	return false
}

type In struct {
	Channel Channel         `json:"c"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

type Out struct {
	Channel Channel `json:"c"`
	Payload any     `json:"p,omitempty"`
}

func Wrap(ch Channel, payload any) Out { return Out{Channel: ch, Payload: payload} }

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Known() bool { return r == RoleTeacher || r == RoleStudent }

// Recipient is a coarse addressing class, distinct from an explicit
// target connection id.
type Recipient string

const (
	ToTeacher  Recipient = "teacher"
	ToStudents Recipient = "students"
	ToAll      Recipient = "all"
)

// Addressing selects the delivery mode of a relayed message. An explicit
// target always wins over the recipient class.
type Addressing struct {
	Recipient      Recipient `json:"recipient,omitempty"`
	TargetSocketId string    `json:"targetSocketId,omitempty"`
}
