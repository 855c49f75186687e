package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/animation"
	"github.com/Perceptus-Labs/voicenav-go-sdk/bridge"
	"github.com/Perceptus-Labs/voicenav-go-sdk/commands"
	"github.com/Perceptus-Labs/voicenav-go-sdk/config"
	"github.com/Perceptus-Labs/voicenav-go-sdk/events"
	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page"
	"github.com/Perceptus-Labs/voicenav-go-sdk/room"
	"github.com/Perceptus-Labs/voicenav-go-sdk/sched"
	"github.com/Perceptus-Labs/voicenav-go-sdk/transcript"
	"github.com/Perceptus-Labs/voicenav-go-sdk/utils"
)

// TopicSessionEvents carries session status messages to the agent.
const TopicSessionEvents = "voicenav-session"

var (
	ErrSessionActive  = errors.New("voice session already started")
	ErrSessionStopped = errors.New("voice session stopped")
	ErrNoArchive      = errors.New("transcript archive not configured")
	ErrAudioDisabled  = errors.New("speech to text not configured")
)

// Host is the page the session drives.
type Host interface {
	page.Inspector
	page.Navigator
	page.Notifier
}

// TokenSource returns credentials for joining a voice room.
type TokenSource interface {
	Fetch(ctx context.Context, name string) (models.Credentials, error)
}

type Archive interface {
	Save(ctx context.Context, roomName string, msgs []models.ConversationMessage) (string, error)
}

// RoomDialer joins the room described by creds.
type RoomDialer func(ctx context.Context, creds models.Credentials, callbacks room.Callbacks, logger *zap.Logger) (room.Room, error)

// DialRoom connects over the websocket room transport.
func DialRoom(ctx context.Context, creds models.Credentials, callbacks room.Callbacks, logger *zap.Logger) (room.Room, error) {
	cfg := room.DefaultConfig()
	cfg.URL = creds.URL
	cfg.Token = creds.Token
	r, err := room.Connect(ctx, cfg, callbacks, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type SessionConfig struct {
	Host    Host
	Sidebar page.Sidebar
	Auth    page.AuthProvider
	// Guard may veto agent navigation.
	Guard page.Guard

	Tokens  TokenSource
	Dial    RoomDialer
	Store   transcript.Store
	Archive Archive

	Routes      []models.Route
	Locale      string
	DisplayName string

	Bridge     bridge.Config
	Transcript transcript.Config
	Scheduler  sched.Scheduler
	Renderer   animation.Renderer

	// Deepgram enables ProcessAudio when set.
	Deepgram *utils.DeepgramConfig
}

// NewSessionConfig fills the locale, route table, timing and speech to text
// settings from the loaded configuration. Host capabilities are left to the caller.
func NewSessionConfig(c *config.Config) SessionConfig {
	sc := SessionConfig{
		Routes: c.Routes,
		Locale: c.Locale,
		Bridge: bridge.Config{
			ClickDelay:  c.ClickDelay,
			SettleDelay: c.ScanSettleDelay,
		},
		Transcript: transcript.Config{
			FlushDelay: c.FlushDelay,
		},
	}
	if c.DeepgramAPIKey != "" {
		dg := utils.DefaultDeepgramConfig()
		dg.APIKey = c.DeepgramAPIKey
		dg.Language = c.STTLanguage
		sc.Deepgram = &dg
	}
	return sc
}

type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// VoiceSession wires one dashboard page to one voice room.
type VoiceSession struct {
	ID     string
	Logger *zap.Logger

	cfg      SessionConfig
	messages commands.Messages

	Hub        *events.Hub
	Registry   *commands.Registry
	Surface    *commands.Surface
	Pipeline   *transcript.Pipeline
	Bridge     *bridge.Bridge
	Animations *animation.Tracker

	NavigationHandler *NavigationHandler
	AudioHandler      *AudioHandler

	mu        sync.Mutex
	state     models.SessionState
	room      room.Room
	creds     models.Credentials
	lastErr   string
	startTime time.Time
	cleanups  []func()

	defaultsOnce sync.Once
}

func NewVoiceSession(cfg SessionConfig) *VoiceSession {
	id := uuid.New().String()

	// Create a logger with session ID context
	logger := zap.L().With(zap.String("session_id", id))

	if cfg.Dial == nil {
		cfg.Dial = DialRoom
	}
	if cfg.Store == nil {
		cfg.Store = transcript.NewMemoryStore()
	}
	if cfg.Routes == nil {
		cfg.Routes = commands.DefaultRoutes
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = sched.Real()
	}
	if cfg.Bridge.Scheduler == nil {
		cfg.Bridge.Scheduler = cfg.Scheduler
	}
	if cfg.Transcript.Scheduler == nil {
		cfg.Transcript.Scheduler = cfg.Scheduler
	}

	messages := commands.NewMessages(cfg.Locale)
	hub := events.NewHub(logger)
	surface := commands.NewSurface(messages, logger)

	return &VoiceSession{
		ID:         id,
		Logger:     logger,
		cfg:        cfg,
		messages:   messages,
		Hub:        hub,
		Registry:   commands.NewRegistry(cfg.Host, messages, logger),
		Surface:    surface,
		Pipeline:   transcript.New(cfg.Store, hub.Navigation, cfg.Transcript, logger),
		Bridge:     bridge.New(cfg.Host, hub, surface, cfg.Bridge, logger),
		Animations: animation.NewTracker(cfg.Scheduler, cfg.Renderer, logger),
		state:      models.SessionIdle,
	}
}

// Start joins the voice room and mounts every session capability. A
// failure is shown once and returned; there is no automatic retry. Starting
// again after a lost connection first unmounts what the old room left behind.
func (vs *VoiceSession) Start(ctx context.Context) error {
	vs.mu.Lock()
	switch vs.state {
	case models.SessionConnecting, models.SessionConnected:
		vs.mu.Unlock()
		return ErrSessionActive
	case models.SessionStopped:
		vs.mu.Unlock()
		return ErrSessionStopped
	}
	stale := vs.cleanups
	staleRoom := vs.room
	vs.cleanups = nil
	vs.room = nil
	vs.NavigationHandler = nil
	vs.AudioHandler = nil
	vs.state = models.SessionConnecting
	vs.lastErr = ""
	vs.mu.Unlock()

	if len(stale) > 0 || staleRoom != nil {
		vs.Logger.Info("Unmounting previous room before reopening")
		unwind(stale)
		if staleRoom != nil {
			staleRoom.Disconnect()
		}
	}

	vs.Logger.Info("Starting voice session")

	creds, err := vs.cfg.Tokens.Fetch(ctx, vs.cfg.DisplayName)
	if err != nil {
		return vs.fail(fmt.Errorf("failed to fetch room credentials: %w", err))
	}

	r, err := vs.cfg.Dial(ctx, creds, vs.callbacks(), vs.Logger)
	if err != nil {
		return vs.fail(fmt.Errorf("failed to connect to room: %w", err))
	}

	vs.Pipeline.SetLocalIdentity(r.LocalIdentity())
	if err := vs.Bridge.Register(r); err != nil {
		r.Disconnect()
		return vs.fail(err)
	}

	// commands outlive a reconnect so one-shot commands stay spent
	vs.defaultsOnce.Do(func() {
		commands.RegisterDefaults(vs.Registry, commands.Deps{
			Navigator: vs.cfg.Host,
			Sidebar:   vs.cfg.Sidebar,
			Notifier:  vs.cfg.Host,
			Auth:      vs.cfg.Auth,
			Inspector: vs.cfg.Host,
			Routes:    vs.cfg.Routes,
			Messages:  vs.messages,
		})
	})
	vs.Surface.Mount(vs.Registry)

	navigationHandler := InitNavigationHandler(vs)
	detachAnimations := vs.Animations.Attach(vs.Hub.Clicks)
	cleanups := []func(){
		vs.Bridge.Close,
		vs.Surface.Unmount,
		navigationHandler.Close,
		detachAnimations,
		vs.Animations.Close,
	}

	var audioHandler *AudioHandler
	if vs.cfg.Deepgram != nil {
		audioHandler, err = InitAudioHandler(vs, *vs.cfg.Deepgram)
		if err != nil {
			vs.Logger.Warn("Speech to text unavailable", zap.Error(err))
			audioHandler = nil
		} else {
			cleanups = append(cleanups, audioHandler.Close)
		}
	}

	vs.mu.Lock()
	if vs.state != models.SessionConnecting {
		// Stop ran while we were joining
		vs.mu.Unlock()
		unwind(cleanups)
		r.Disconnect()
		return ErrSessionStopped
	}
	vs.room = r
	vs.creds = creds
	vs.startTime = time.Now()
	vs.NavigationHandler = navigationHandler
	vs.AudioHandler = audioHandler
	vs.cleanups = cleanups
	vs.state = models.SessionConnected
	vs.mu.Unlock()

	// publish the first snapshot once the page settles
	vs.Bridge.RouteChanged()

	vs.Logger.Info("Voice session connected",
		zap.String("room", r.Name()),
		zap.String("identity", r.LocalIdentity()))
	vs.sendSessionEvent("session_started", map[string]interface{}{
		"session_id": vs.ID,
		"pathname":   vs.cfg.Host.Location().Pathname,
	})
	return nil
}

// unwind runs cleanups in reverse mount order.
func unwind(cleanups []func()) {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func (vs *VoiceSession) callbacks() room.Callbacks {
	return room.Callbacks{
		OnData: func(packet room.DataPacket) {
			vs.Pipeline.HandleData(packet)
		},
		OnMetadataChanged: func(p room.Participant, metadata string) {
			vs.Pipeline.HandleMetadata(p, metadata)
		},
		OnTranscription: func(p room.Participant, segments []room.TranscriptionSegment) {
			vs.Pipeline.HandleTranscription(p, segments)
		},
		OnReconnected: func() {
			vs.Logger.Info("Room reconnected, re-registering RPC methods")
			vs.Bridge.Reconnected()
		},
		OnDisconnected: vs.handleDisconnected,
	}
}

func (vs *VoiceSession) handleDisconnected(err error) {
	vs.mu.Lock()
	if vs.state != models.SessionConnected {
		vs.mu.Unlock()
		return
	}
	vs.state = models.SessionError
	if err != nil {
		vs.lastErr = err.Error()
	}
	vs.mu.Unlock()

	vs.Logger.Error("Voice room lost", zap.Error(err))
	vs.cfg.Host.ShowError(vs.messages.T(commands.MsgConnectionLost))
}

func (vs *VoiceSession) fail(err error) error {
	vs.mu.Lock()
	if vs.state == models.SessionStopped {
		vs.mu.Unlock()
		return ErrSessionStopped
	}
	vs.state = models.SessionError
	vs.lastErr = err.Error()
	vs.mu.Unlock()

	vs.Logger.Error("Voice session failed to start", zap.Error(err))
	vs.cfg.Host.ShowError(vs.messages.T(commands.MsgConnectFailed, err.Error()))
	return err
}

// Stop unmounts everything in reverse order and leaves the room. The
// transcript is flushed and kept.
func (vs *VoiceSession) Stop() {
	vs.mu.Lock()
	if vs.state == models.SessionStopped {
		vs.mu.Unlock()
		return
	}
	vs.Logger.Info("Stopping session")
	vs.state = models.SessionStopped
	cleanups := vs.cleanups
	vs.cleanups = nil
	r := vs.room
	vs.mu.Unlock()

	unwind(cleanups)
	vs.Pipeline.Close()

	if r != nil {
		vs.sendSessionEvent("stop_confirmation", map[string]interface{}{
			"session_id": vs.ID,
			"message":    "Session stopped successfully",
		})
		r.Disconnect()
	}
}

// RouteChanged is called by the host after any route change, including ones
// the user made by hand, so the agent sees the new page.
func (vs *VoiceSession) RouteChanged() {
	if vs.currentRoom() == nil {
		return
	}
	vs.Bridge.RouteChanged()
}

func (vs *VoiceSession) Close() {
	vs.Stop()
}

// Info returns a snapshot of the session state.
func (vs *VoiceSession) Info() models.SessionInfo {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	info := models.SessionInfo{
		ID:        vs.ID,
		RoomName:  vs.creds.RoomName,
		State:     vs.state,
		Error:     vs.lastErr,
		StartTime: vs.startTime,
	}
	if vs.room != nil {
		info.RoomName = vs.room.Name()
		info.Identity = vs.room.LocalIdentity()
	}
	return info
}

func (vs *VoiceSession) Transcript(ctx context.Context) ([]models.ConversationMessage, error) {
	vs.Pipeline.Flush()
	return vs.cfg.Store.Messages(ctx)
}

// ClearTranscript empties the stored conversation.
func (vs *VoiceSession) ClearTranscript(ctx context.Context) error {
	vs.Pipeline.Flush()
	if err := vs.cfg.Store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	vs.Logger.Info("Transcript cleared")
	return nil
}

// SaveTranscript archives the conversation, then clears it. The archive
// id is returned.
func (vs *VoiceSession) SaveTranscript(ctx context.Context) (string, error) {
	if vs.cfg.Archive == nil {
		return "", ErrNoArchive
	}

	msgs, err := vs.Transcript(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}

	roomName := vs.Info().RoomName
	id, err := vs.cfg.Archive.Save(ctx, roomName, msgs)
	if err != nil {
		return "", fmt.Errorf("failed to archive transcript: %w", err)
	}
	if err := vs.ClearTranscript(ctx); err != nil {
		return id, err
	}

	vs.Logger.Info("Transcript archived", zap.String("archive_id", id), zap.Int("messages", len(msgs)))
	return id, nil
}

// ProcessAudio forwards a microphone frame to speech to text.
func (vs *VoiceSession) ProcessAudio(frame []byte) error {
	vs.mu.Lock()
	audioHandler := vs.AudioHandler
	vs.mu.Unlock()

	if audioHandler == nil {
		return ErrAudioDisabled
	}
	return audioHandler.ProcessAudioData(frame)
}

func (vs *VoiceSession) currentRoom() room.Room {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.room
}

func (vs *VoiceSession) sendSessionEvent(msgType string, data interface{}) {
	r := vs.currentRoom()
	if r == nil {
		return
	}

	msg := WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		vs.Logger.Error("Failed to marshal session event", zap.Error(err), zap.String("type", msgType))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.PublishData(ctx, payload, TopicSessionEvents); err != nil {
		vs.Logger.Error("Failed to send session event", zap.Error(err), zap.String("type", msgType))
	}
}
