// Package roomtest provides an in-memory Room for tests.
package roomtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Perceptus-Labs/voicenav-go-sdk/room"
)

// Published is one PublishData call.
type Published struct {
	Payload []byte
	Topic   string
}

type Room struct {
	mu sync.Mutex

	RoomName string
	Identity string

	methods       map[string]room.RPCHandler
	registrations map[string]int
	attrs         map[string]string
	attrUpdates   int
	published     []Published
	disconnected  bool

	// SetAttributesErr is returned by SetAttributes when set.
	SetAttributesErr error
}

var _ room.Room = (*Room)(nil)

func New(name, identity string) *Room {
	return &Room{
		RoomName:      name,
		Identity:      identity,
		methods:       make(map[string]room.RPCHandler),
		registrations: make(map[string]int),
		attrs:         make(map[string]string),
	}
}

func (r *Room) Name() string          { return r.RoomName }
func (r *Room) LocalIdentity() string { return r.Identity }

func (r *Room) RegisterRPCMethod(method string, handler room.RPCHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.methods[method]; ok {
		return fmt.Errorf("%s: %w", method, room.ErrMethodRegistered)
	}
	r.methods[method] = handler
	r.registrations[method]++
	return nil
}

func (r *Room) UnregisterRPCMethod(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.methods, method)
}

func (r *Room) SetAttributes(ctx context.Context, attrs map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.SetAttributesErr != nil {
		return r.SetAttributesErr
	}
	for k, v := range attrs {
		r.attrs[k] = v
	}
	r.attrUpdates++
	return nil
}

func (r *Room) PublishData(ctx context.Context, payload []byte, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, Published{Payload: payload, Topic: topic})
	return nil
}

func (r *Room) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = true
}

// Call invokes a registered method the way a remote agent would.
func (r *Room) Call(ctx context.Context, method, payload string) (string, error) {
	r.mu.Lock()
	handler, ok := r.methods[method]
	r.mu.Unlock()

	if !ok {
		return "", room.ErrMethodNotFound
	}
	return handler(ctx, room.RPCInvocation{RequestID: "req-1", CallerIdentity: "agent-1", Payload: payload})
}

// Clear drops all registered methods, as a server does on reconnect.
func (r *Room) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = make(map[string]room.RPCHandler)
}

func (r *Room) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.methods))
	for m := range r.methods {
		out = append(out, m)
	}
	return out
}

// Registrations counts how often a method was registered.
func (r *Room) Registrations(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registrations[method]
}

func (r *Room) Attributes() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// AttributeUpdates counts successful SetAttributes calls.
func (r *Room) AttributeUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attrUpdates
}

func (r *Room) Published() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Published, len(r.published))
	copy(out, r.published)
	return out
}

func (r *Room) Disconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}
