package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/bridge"
	"github.com/Perceptus-Labs/voicenav-go-sdk/config"
	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page/pagetest"
	"github.com/Perceptus-Labs/voicenav-go-sdk/room"
	"github.com/Perceptus-Labs/voicenav-go-sdk/room/roomtest"
	"github.com/Perceptus-Labs/voicenav-go-sdk/sched/schedtest"
	"github.com/Perceptus-Labs/voicenav-go-sdk/transcript"
)

type fakeTokens struct {
	mu    sync.Mutex
	creds models.Credentials
	err   error
	calls int
}

func (f *fakeTokens) Fetch(ctx context.Context, name string) (models.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.creds, f.err
}

type fakeArchive struct {
	saved map[string][]models.ConversationMessage
	err   error
}

func (a *fakeArchive) Save(ctx context.Context, roomName string, msgs []models.ConversationMessage) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.saved == nil {
		a.saved = make(map[string][]models.ConversationMessage)
	}
	a.saved[roomName] = msgs
	return "archive-1", nil
}

type harness struct {
	session   *VoiceSession
	host      *pagetest.Host
	room      *roomtest.Room
	tokens    *fakeTokens
	store     *transcript.MemoryStore
	clock     *schedtest.Fake
	callbacks room.Callbacks
	dialErr   error
	dials     int
}

func newHarness(t *testing.T, mutate func(cfg *SessionConfig)) *harness {
	t.Helper()
	zap.ReplaceGlobals(zap.NewNop())

	h := &harness{
		host: pagetest.NewHost("/dashboard",
			pagetest.Button("dashboard-refresh", "Refresh"),
			pagetest.Link("", "Reports", "/reports"),
		),
		room:   roomtest.New("voice-1", "user-1"),
		tokens: &fakeTokens{creds: models.Credentials{Token: "tok", URL: "ws://room", RoomName: "voice-1"}},
		store:  transcript.NewMemoryStore(),
		clock:  schedtest.NewFake(),
	}

	cfg := SessionConfig{
		Host:      h.host,
		Sidebar:   h.host,
		Auth:      h.host,
		Tokens:    h.tokens,
		Store:     h.store,
		Scheduler: h.clock,
		Dial: func(ctx context.Context, creds models.Credentials, callbacks room.Callbacks, logger *zap.Logger) (room.Room, error) {
			h.dials++
			h.callbacks = callbacks
			if h.dialErr != nil {
				return nil, h.dialErr
			}
			return h.room, nil
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.session = NewVoiceSession(cfg)
	t.Cleanup(h.session.Stop)
	return h
}

func (h *harness) agentSays(text string) {
	h.callbacks.OnData(room.DataPacket{
		Payload: []byte(text),
		Topic:   models.TopicChat,
		Sender:  &room.Participant{Identity: "agent-1", Kind: room.KindAgent},
	})
}

func eventTypes(t *testing.T, published []roomtest.Published) []string {
	t.Helper()
	var types []string
	for _, p := range published {
		if p.Topic != TopicSessionEvents {
			continue
		}
		var msg WebSocketMessage
		require.NoError(t, json.Unmarshal(p.Payload, &msg))
		types = append(types, msg.Type)
	}
	return types
}

func TestStart_MountsEverything(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.session.Start(context.Background()))

	info := h.session.Info()
	assert.Equal(t, models.SessionConnected, info.State)
	assert.Equal(t, "voice-1", info.RoomName)
	assert.Equal(t, "user-1", info.Identity)

	assert.Len(t, h.room.Methods(), 5)
	assert.True(t, h.session.Surface.Mounted())
	assert.Contains(t, h.session.Registry.Names(), "open_reports")
	assert.Equal(t, 1, h.session.Hub.Navigation.Len())
	assert.Equal(t, 1, h.session.Hub.Clicks.Len())
	assert.Equal(t, []string{"session_started"}, eventTypes(t, h.room.Published()))

	// the first page snapshot is published once the page settles
	h.clock.Advance(bridge.DefaultSettleDelay)
	assert.Equal(t, "/dashboard", h.room.Attributes()[models.AttrCurrentPage])
}

func TestStart_TokenFailureShownOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.tokens.err = errors.New("token endpoint down")

	err := h.session.Start(context.Background())
	require.Error(t, err)

	assert.Equal(t, models.SessionError, h.session.Info().State)
	assert.Contains(t, h.session.Info().Error, "token endpoint down")
	require.Len(t, h.host.Errors, 1)
	assert.Contains(t, h.host.Errors[0], "Could not connect to the voice assistant")
	assert.Zero(t, h.dials)
	assert.Equal(t, 1, h.tokens.calls, "no automatic retry")
}

func TestStart_DialFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.dialErr = errors.New("handshake refused")

	require.Error(t, h.session.Start(context.Background()))
	assert.Len(t, h.host.Errors, 1)
	assert.False(t, h.session.Surface.Mounted())

	// the user may try again after fixing the problem
	h.dialErr = nil
	require.NoError(t, h.session.Start(context.Background()))
	assert.Equal(t, models.SessionConnected, h.session.Info().State)
}

func TestStart_Twice(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))
	assert.ErrorIs(t, h.session.Start(context.Background()), ErrSessionActive)
}

func TestAgentNavigation_GoesThroughListener(t *testing.T) {
	blocked := errors.New("settings are admin only")
	h := newHarness(t, func(cfg *SessionConfig) {
		cfg.Guard = func(pathname string) error {
			if pathname == "/settings" {
				return blocked
			}
			return nil
		}
	})
	require.NoError(t, h.session.Start(context.Background()))

	h.callbacks.OnData(room.DataPacket{Topic: models.TopicNavigation, Payload: []byte(`{"pathname":"/settings"}`)})
	h.callbacks.OnData(room.DataPacket{Topic: models.TopicNavigation, Payload: []byte(`NAVIGATE:/reports`)})

	require.Eventually(t, func() bool { return h.host.Path() == "/reports" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, h.host.HistoryLength(), "the guarded route was never visited")

	// navigation intents are never transcript turns
	msgs, err := h.session.Transcript(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestConversation_Stored(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))

	h.agentSays("Hello! How can I help?")
	h.agentSays("Hello! How can I help?")
	h.callbacks.OnTranscription(room.Participant{Identity: "user-1"}, []room.TranscriptionSegment{
		{ID: "seg-1", Text: "show me reports", Final: true},
	})
	h.clock.Advance(transcript.DefaultFlushDelay)

	msgs, err := h.store.Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleAssistant, msgs[0].Role)
	assert.Equal(t, models.RoleUser, msgs[1].Role)
	assert.Equal(t, "show me reports", msgs[1].Content)
}

func TestInvokeCommandOverRPC(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))

	resp, err := h.room.Call(context.Background(), models.RPCInvokeCommand, `{"name":"voiceCommands.open_settings"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"message":"Opening settings"}`, resp)
	assert.Equal(t, "/settings", h.host.Path())
}

func TestReconnected_ReregistersBridge(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))

	h.room.Clear()
	h.callbacks.OnReconnected()

	assert.Len(t, h.room.Methods(), 5)
	assert.Equal(t, 2, h.room.Registrations(models.RPCGetPageElements))
}

func TestDisconnected_ShowsError(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))

	h.callbacks.OnDisconnected(errors.New("reconnect attempts exhausted"))
	h.callbacks.OnDisconnected(errors.New("again"))

	assert.Equal(t, models.SessionError, h.session.Info().State)
	assert.Equal(t, []string{"The voice assistant was disconnected"}, h.host.Errors)
}

func TestStop_UnwindsAndKeepsTranscript(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))

	h.agentSays("Your reports are ready.")
	h.session.Stop()

	assert.Empty(t, h.room.Methods())
	assert.True(t, h.room.Disconnected())
	assert.False(t, h.session.Surface.Mounted())
	assert.Zero(t, h.session.Hub.Navigation.Len())
	assert.Zero(t, h.session.Hub.Clicks.Len())
	assert.Equal(t, []string{"session_started", "stop_confirmation"}, eventTypes(t, h.room.Published()))

	assert.Equal(t, 1, h.store.Len(), "stop flushes and keeps the transcript")
	assert.ErrorIs(t, h.session.Start(context.Background()), ErrSessionStopped)

	assert.NotPanics(t, h.session.Stop)
}

func TestSaveTranscript(t *testing.T) {
	archive := &fakeArchive{}
	h := newHarness(t, func(cfg *SessionConfig) { cfg.Archive = archive })
	require.NoError(t, h.session.Start(context.Background()))

	h.agentSays("Here is your summary.")
	h.session.Pipeline.AddUserMessage("thanks")

	id, err := h.session.SaveTranscript(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "archive-1", id)
	require.Len(t, archive.saved["voice-1"], 2)
	assert.Zero(t, h.store.Len())
}

func TestSaveTranscript_Failures(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.session.SaveTranscript(context.Background())
	assert.ErrorIs(t, err, ErrNoArchive)

	archive := &fakeArchive{err: errors.New("disk full")}
	h = newHarness(t, func(cfg *SessionConfig) { cfg.Archive = archive })
	require.NoError(t, h.session.Start(context.Background()))
	h.agentSays("Keep me.")

	_, err = h.session.SaveTranscript(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, h.store.Len(), "a failed archive leaves the transcript in place")
}

func TestClearTranscript(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))
	h.agentSays("Something to forget.")

	require.NoError(t, h.session.ClearTranscript(context.Background()))
	assert.Zero(t, h.store.Len())
}

func TestProcessAudio_Disabled(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))
	assert.ErrorIs(t, h.session.ProcessAudio([]byte{0, 1}), ErrAudioDisabled)
}

func TestRouteChanged_UserNavigationRepublishes(t *testing.T) {
	h := newHarness(t, nil)

	// before Start there is no room to publish to
	h.session.RouteChanged()
	assert.Zero(t, h.clock.Pending())

	require.NoError(t, h.session.Start(context.Background()))
	h.clock.Advance(bridge.DefaultSettleDelay)
	require.Equal(t, 1, h.room.AttributeUpdates())

	require.NoError(t, h.host.Navigate("/reports"))
	h.session.RouteChanged()
	h.clock.Advance(bridge.DefaultSettleDelay)

	assert.Equal(t, 2, h.room.AttributeUpdates())
	assert.Equal(t, "/reports", h.room.Attributes()[models.AttrCurrentPage])
}

func TestNewSessionConfig(t *testing.T) {
	c := &config.Config{
		Locale:          "ar",
		Routes:          []models.Route{{Name: "home", Path: "/"}},
		ClickDelay:      900 * time.Millisecond,
		ScanSettleDelay: 250 * time.Millisecond,
		FlushDelay:      10 * time.Millisecond,
		STTLanguage:     "ar",
	}

	sc := NewSessionConfig(c)
	assert.Equal(t, "ar", sc.Locale)
	assert.Equal(t, c.Routes, sc.Routes)
	assert.Equal(t, 900*time.Millisecond, sc.Bridge.ClickDelay)
	assert.Equal(t, 250*time.Millisecond, sc.Bridge.SettleDelay)
	assert.Equal(t, 10*time.Millisecond, sc.Transcript.FlushDelay)
	assert.Nil(t, sc.Deepgram, "speech to text stays off without an api key")

	c.DeepgramAPIKey = "dg-key"
	sc = NewSessionConfig(c)
	require.NotNil(t, sc.Deepgram)
	assert.Equal(t, "dg-key", sc.Deepgram.APIKey)
	assert.Equal(t, "ar", sc.Deepgram.Language)
}

func TestStart_AfterDisconnectMountsOnce(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(context.Background()))

	out := h.session.Surface.Call(context.Background(), "sign_out")
	require.True(t, out.Success)

	h.callbacks.OnDisconnected(errors.New("reconnect attempts exhausted"))
	require.Equal(t, models.SessionError, h.session.Info().State)

	// the user reopens the assistant
	require.NoError(t, h.session.Start(context.Background()))
	assert.Equal(t, models.SessionConnected, h.session.Info().State)
	assert.Equal(t, 2, h.dials)

	assert.Equal(t, 1, h.session.Hub.Navigation.Len())
	assert.Equal(t, 1, h.session.Hub.Clicks.Len())
	assert.Len(t, h.room.Methods(), 5)
	assert.True(t, h.session.Surface.Mounted())

	out = h.session.Surface.Call(context.Background(), "sign_out")
	assert.False(t, out.Success, "sign out stays spent across a reopen")
	assert.Equal(t, 1, h.host.SignOuts)

	h.callbacks.OnData(room.DataPacket{Topic: models.TopicNavigation, Payload: []byte(`NAVIGATE:/reports`)})
	require.Eventually(t, func() bool { return h.host.Path() == "/reports" }, time.Second, 5*time.Millisecond)
}

func TestStart_StopDuringDial(t *testing.T) {
	var h *harness
	h = newHarness(t, func(cfg *SessionConfig) {
		cfg.Dial = func(ctx context.Context, creds models.Credentials, callbacks room.Callbacks, logger *zap.Logger) (room.Room, error) {
			h.session.Stop()
			return h.room, nil
		}
	})

	err := h.session.Start(context.Background())
	assert.ErrorIs(t, err, ErrSessionStopped)

	assert.Equal(t, models.SessionStopped, h.session.Info().State)
	assert.Empty(t, h.room.Methods())
	assert.True(t, h.room.Disconnected())
	assert.False(t, h.session.Surface.Mounted())
	assert.Zero(t, h.session.Hub.Navigation.Len())
	assert.Zero(t, h.session.Hub.Clicks.Len())
	assert.Empty(t, h.host.Errors, "a stop is not a connection error")
}
