// Package transcript turns raw session events into conversational turns.
// Navigation intents are split off before anything reaches the transcript,
// and turns are committed by a deferred flush so the event handler that
// classified them returns immediately.
package transcript

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/events"
	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/room"
	"github.com/Perceptus-Labs/voicenav-go-sdk/sched"
)

const (
	DefaultFlushDelay     = 5 * time.Millisecond
	DefaultMaxProseLength = 4000
	storeTimeout          = 5 * time.Second
)

type Config struct {
	FlushDelay     time.Duration
	MaxProseLength int
	// LocalIdentity is the user's participant identity, used to attribute
	// transcription segments.
	LocalIdentity string
	Scheduler     sched.Scheduler
}

type Pipeline struct {
	store      Store
	navigation *events.Bus[models.NavigationIntent]
	cfg        Config
	logger     *zap.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	queue  []models.ConversationMessage
	closed bool

	flushMu sync.Mutex
	flusher *sched.Debouncer
}

// New builds a pipeline appending to store. navigation may be nil, in which
// case navigation-topic packets are only discarded.
func New(store Store, navigation *events.Bus[models.NavigationIntent], cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.L()
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = DefaultFlushDelay
	}
	if cfg.MaxProseLength <= 0 {
		cfg.MaxProseLength = DefaultMaxProseLength
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = sched.Real()
	}
	return &Pipeline{
		store:      store,
		navigation: navigation,
		cfg:        cfg,
		logger:     logger,
		seen:       make(map[string]struct{}),
		flusher:    sched.NewDebouncer(cfg.Scheduler, cfg.FlushDelay),
	}
}

// SetLocalIdentity updates the identity used for transcription attribution.
func (p *Pipeline) SetLocalIdentity(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.LocalIdentity = identity
}

// HandleData classifies one data channel packet. Every step short-circuits.
func (p *Pipeline) HandleData(packet room.DataPacket) models.Classification {
	if packet.Topic == models.TopicNavigation {
		p.forwardNavigation(packet.Payload)
		return models.ClassNavigation
	}

	fromAgent := packet.Sender != nil && packet.Sender.IsAgent()
	if !fromAgent && packet.Topic != models.TopicAgentResponse {
		return models.ClassUnrecognized
	}

	if !utf8.Valid(packet.Payload) {
		p.logger.Debug("Discarding non-UTF8 payload", zap.Int("bytes", len(packet.Payload)))
		return models.ClassUnrecognized
	}
	return p.classify(string(packet.Payload))
}

// HandleMetadata applies the data channel rules to a metadata change.
func (p *Pipeline) HandleMetadata(participant room.Participant, metadata string) models.Classification {
	if !participant.IsAgent() {
		return models.ClassUnrecognized
	}
	return p.classify(metadata)
}

// HandleTranscription queues final segments. The local participant's
// segments become user turns; the agent's follow the assistant path.
func (p *Pipeline) HandleTranscription(participant room.Participant, segments []room.TranscriptionSegment) {
	p.mu.Lock()
	local := p.cfg.LocalIdentity
	p.mu.Unlock()

	for _, seg := range segments {
		if !seg.Final {
			continue
		}
		switch {
		case participant.Identity == local:
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			// only segment ids are deduplicated; a user may repeat themselves
			if seg.ID != "" && !p.mark("segment:"+seg.ID) {
				continue
			}
			p.push(models.RoleUser, text)
		case participant.IsAgent():
			p.classify(seg.Text)
		}
	}
}

// AddUserMessage queues direct user input.
func (p *Pipeline) AddUserMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p.push(models.RoleUser, text)
}

func (p *Pipeline) classify(raw string) models.Classification {
	text := strings.TrimSpace(raw)
	if text == "" {
		return models.ClassUnrecognized
	}

	if class, handled := p.splitMarker(text); handled {
		return class
	}

	if !p.mark(DedupKey(text)) {
		return models.ClassDuplicate
	}

	if looksJSON(text) {
		payload, ok := inspectJSON(text)
		if ok {
			return p.classifyJSON(payload)
		}
		// malformed objects and arrays are dropped; quoted speech falls through
		if !strings.HasPrefix(text, `"`) {
			p.logger.Debug("Discarding malformed JSON payload", zap.Int("bytes", len(text)))
			return models.ClassUnrecognized
		}
	}

	if utf8.RuneCountInString(text) > p.cfg.MaxProseLength {
		return models.ClassUnrecognized
	}
	p.push(models.RoleAssistant, text)
	return models.ClassConversational
}

// splitMarker discards the navigation portion of text and queues any spoken
// remainder.
func (p *Pipeline) splitMarker(text string) (models.Classification, bool) {
	path, remainder, ok := SplitNavigation(text)
	if !ok {
		return "", false
	}
	p.logger.Debug("Discarding navigation marker", zap.String("pathname", path))
	if remainder == "" {
		return models.ClassNavigation, true
	}
	return p.queueChecked(remainder), true
}

func (p *Pipeline) classifyJSON(payload jsonPayload) models.Classification {
	if payload.navigation {
		return models.ClassNavigation
	}
	if !payload.hasText {
		return models.ClassUnrecognized
	}

	text := strings.TrimSpace(payload.text)
	if class, handled := p.splitMarker(text); handled {
		return class
	}
	return p.queueChecked(text)
}

func (p *Pipeline) queueChecked(text string) models.Classification {
	if utf8.RuneCountInString(text) > p.cfg.MaxProseLength {
		return models.ClassUnrecognized
	}
	if !p.mark(DedupKey(text)) {
		return models.ClassDuplicate
	}
	p.push(models.RoleAssistant, text)
	return models.ClassConversational
}

func (p *Pipeline) forwardNavigation(payload []byte) {
	if p.navigation == nil || !utf8.Valid(payload) {
		return
	}
	path, ok := navigationTarget(strings.TrimSpace(string(payload)))
	if !ok {
		return
	}
	p.navigation.Publish(models.NavigationIntent{Pathname: path, Source: models.TopicNavigation})
}

// mark records key and reports whether it was new.
func (p *Pipeline) mark(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}
	return true
}

func (p *Pipeline) push(role models.Role, content string) {
	msg := models.ConversationMessage{Role: role, Content: content, Timestamp: p.cfg.Scheduler.Now().UTC()}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, msg)
	p.mu.Unlock()

	p.flusher.Trigger(p.Flush)
}

// Pending returns the number of queued turns not yet in the store.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Flush commits queued turns to the store in arrival order.
func (p *Pipeline) Flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	for _, msg := range batch {
		if err := p.store.AddMessage(ctx, msg); err != nil {
			p.logger.Error("Failed to append transcript message", zap.String("role", string(msg.Role)), zap.Error(err))
		}
	}
	p.logger.Debug("Flushed transcript batch", zap.Int("messages", len(batch)))
}

// Close flushes outstanding turns, cancels the pending flush and forgets the
// dedup history. The store is left untouched.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.flusher.Cancel()
	p.Flush()

	p.mu.Lock()
	p.seen = make(map[string]struct{})
	p.queue = nil
	p.mu.Unlock()
}
