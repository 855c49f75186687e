// Package commands holds the named, zero-argument actions the voice agent can
// invoke: navigation, history, sidebar control, sign-out and introspection.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command performs one user-visible side effect and returns an outcome
// message. Expected failures are returned as Fail(...).
type Command func(ctx context.Context) (string, error)

// Outcome is what the host runtime receives for a command call.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FailureError is an expected, user-explainable failure.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string { return e.Message }

// Fail builds an expected failure carrying a human-readable message.
func Fail(format string, args ...any) error {
	return &FailureError{Message: fmt.Sprintf(format, args...)}
}

// Registry maps command names to actions.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	notifier page.Notifier
	messages Messages
	logger   *zap.Logger
}

func NewRegistry(notifier page.Notifier, messages Messages, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.L()
	}
	return &Registry{
		commands: make(map[string]Command),
		notifier: notifier,
		messages: messages,
		logger:   logger,
	}
}

// Register installs or replaces a command.
func (r *Registry) Register(name string, cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = cmd
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, name)
}

func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a command by name. It never panics and never returns an error:
// every failure is logged, surfaced as a toast and reported in the Outcome.
func (r *Registry) Invoke(ctx context.Context, name string) (out Outcome) {
	cmd, ok := r.Lookup(name)
	if !ok {
		msg := r.messages.T(MsgUnknownCommand, name)
		r.logger.Warn("Command lookup failed", zap.String("command", name), zap.Error(ErrUnknownCommand))
		r.notify(msg, models.NotifyError)
		return Outcome{Success: false, Message: msg}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Command panicked", zap.String("command", name), zap.Any("panic", rec))
			out = r.genericFailure()
		}
	}()

	msg, err := cmd(ctx)
	if err != nil {
		var failure *FailureError
		if errors.As(err, &failure) {
			r.logger.Info("Command could not complete", zap.String("command", name), zap.String("reason", failure.Message))
			r.notify(failure.Message, models.NotifyError)
			return Outcome{Success: false, Message: failure.Message}
		}
		r.logger.Error("Command failed", zap.String("command", name), zap.Error(err))
		return r.genericFailure()
	}

	r.logger.Debug("Command executed", zap.String("command", name), zap.String("outcome", msg))
	return Outcome{Success: true, Message: msg}
}

func (r *Registry) genericFailure() Outcome {
	msg := r.messages.T(MsgCommandFailed)
	r.notify(msg, models.NotifyError)
	return Outcome{Success: false, Message: msg}
}

func (r *Registry) notify(message, kind string) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(models.Notification{Message: message, Kind: kind})
}
