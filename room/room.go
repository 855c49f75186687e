// Package room is the realtime voice session transport: data packets,
// participant metadata, transcription segments, RPC and session attributes.
package room

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotConnected     = errors.New("room is not connected")
	ErrMethodRegistered = errors.New("rpc method already registered")
	ErrMethodNotFound   = errors.New("rpc method not supported")
)

type ParticipantKind string

const (
	KindStandard ParticipantKind = "standard"
	KindAgent    ParticipantKind = "agent"
)

type Participant struct {
	Identity string          `json:"identity"`
	Name     string          `json:"name,omitempty"`
	Kind     ParticipantKind `json:"kind,omitempty"`
	Metadata string          `json:"metadata,omitempty"`
}

// IsAgent reports whether the participant is the remote conversational agent.
func (p Participant) IsAgent() bool {
	return p.Kind == KindAgent || strings.HasPrefix(strings.ToLower(p.Identity), "agent")
}

// DataPacket is one data channel message. Sender is nil for server messages.
type DataPacket struct {
	Payload []byte       `json:"payload"`
	Topic   string       `json:"topic,omitempty"`
	Sender  *Participant `json:"sender,omitempty"`
}

type TranscriptionSegment struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// RPCInvocation is an incoming request from a remote participant.
type RPCInvocation struct {
	RequestID       string
	CallerIdentity  string
	Payload         string
	ResponseTimeout time.Duration
}

// RPCHandler answers an invocation with a response payload.
type RPCHandler func(ctx context.Context, inv RPCInvocation) (string, error)

// Callbacks receive room events on the room's read goroutine, one at a time.
type Callbacks struct {
	OnData            func(packet DataPacket)
	OnMetadataChanged func(p Participant, metadata string)
	OnTranscription   func(p Participant, segments []TranscriptionSegment)
	OnReconnected     func()
	// OnDisconnected fires when the room is lost for good. It is not called
	// for an explicit Disconnect.
	OnDisconnected func(err error)
}

// Room is the session object the voice core consumes.
type Room interface {
	Name() string
	LocalIdentity() string
	RegisterRPCMethod(method string, handler RPCHandler) error
	UnregisterRPCMethod(method string)
	SetAttributes(ctx context.Context, attrs map[string]string) error
	PublishData(ctx context.Context, payload []byte, topic string) error
	Disconnect()
}
