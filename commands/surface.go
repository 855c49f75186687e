package commands

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	// NamespacePrimary is where the host runtime looks commands up.
	NamespacePrimary = "voiceCommands"
	// NamespaceLegacy carries camelCase aliases for older agent widgets.
	NamespaceLegacy = "navigationTools"
)

// Surface resolves name strings coming from the host voice runtime to
// registry commands. It is the only place names are resolved.
type Surface struct {
	mu      sync.RWMutex
	primary *Registry
	// legacy outlives Unmount so older widgets keep working.
	legacy   *Registry
	aliases  map[string]string
	messages Messages
	logger   *zap.Logger
}

func NewSurface(messages Messages, logger *zap.Logger) *Surface {
	if logger == nil {
		logger = zap.L()
	}
	return &Surface{
		aliases:  make(map[string]string),
		messages: messages,
		logger:   logger,
	}
}

// Mount exposes every registered command in the primary and legacy
// namespaces. Mounting again rebuilds both from scratch.
func (s *Surface) Mount(reg *Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.primary = reg
	s.legacy = reg
	s.aliases = make(map[string]string)
	for _, name := range reg.Names() {
		s.aliases[LegacyAlias(name)] = name
	}
	s.logger.Info("Command surface mounted", zap.Int("commands", len(s.aliases)))
}

// Unmount removes the primary namespace. Legacy aliases stay in place.
func (s *Surface) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary = nil
	s.logger.Info("Command surface unmounted; legacy aliases kept")
}

func (s *Surface) Mounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primary != nil
}

// Names lists every callable qualified name.
func (s *Surface) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	if s.primary != nil {
		for _, name := range s.primary.Names() {
			names = append(names, NamespacePrimary+"."+name)
		}
	}
	for alias := range s.aliases {
		names = append(names, NamespaceLegacy+"."+alias)
	}
	sort.Strings(names)
	return names
}

// Call resolves "name", "voiceCommands.name", "navigationTools.alias" or a
// bare legacy alias and invokes the command. It never fails.
func (s *Surface) Call(ctx context.Context, qualified string) Outcome {
	ns, name := splitQualified(strings.TrimSpace(qualified))

	s.mu.RLock()
	primary, legacy := s.primary, s.legacy
	target, isAlias := s.aliases[name]
	s.mu.RUnlock()

	switch {
	case ns != NamespaceLegacy && primary != nil:
		if _, ok := primary.Lookup(name); ok {
			return primary.Invoke(ctx, name)
		}
		if isAlias {
			return primary.Invoke(ctx, target)
		}
		return primary.Invoke(ctx, name)
	case ns != NamespacePrimary && legacy != nil && isAlias:
		return legacy.Invoke(ctx, target)
	}

	s.logger.Warn("Command called on unmounted surface", zap.String("name", qualified))
	return Outcome{Success: false, Message: s.messages.T(MsgUnknownCommand, qualified)}
}

func splitQualified(q string) (string, string) {
	if i := strings.IndexByte(q, '.'); i >= 0 {
		return q[:i], q[i+1:]
	}
	return "", q
}

// LegacyAlias converts snake_case command names to the camelCase form older
// widgets call, e.g. open_dashboard -> openDashboard.
func LegacyAlias(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}
