package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server
	conns chan *websocket.Conn
	joins atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.joins.Add(1)
		data, _ := json.Marshal(JoinedData{Room: "room-1", Identity: "user-1"})
		if err := conn.WriteJSON(Frame{Type: FrameJoined, Data: data, Timestamp: time.Now()}); err != nil {
			conn.Close()
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) config(token string) Config {
	cfg := DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(ts.URL, "http")
	cfg.Token = token
	cfg.InitialReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnects = 3
	return cfg
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, frameType string, v any) {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Type: frameType, Data: data, Timestamp: time.Now()}))
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestConnect_RejectsBadToken(t *testing.T) {
	ts := newTestServer(t)

	_, err := Connect(context.Background(), ts.config("wrong"), Callbacks{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to room")
}

func TestWSRoom_DeliversEvents(t *testing.T) {
	ts := newTestServer(t)

	packets := make(chan DataPacket, 1)
	metadata := make(chan string, 1)
	segments := make(chan []TranscriptionSegment, 1)

	r, err := Connect(context.Background(), ts.config("secret"), Callbacks{
		OnData:            func(p DataPacket) { packets <- p },
		OnMetadataChanged: func(p Participant, md string) { metadata <- md },
		OnTranscription:   func(p Participant, s []TranscriptionSegment) { segments <- s },
	}, zap.NewNop())
	require.NoError(t, err)
	defer r.Disconnect()

	assert.Equal(t, "room-1", r.Name())
	assert.Equal(t, "user-1", r.LocalIdentity())
	server := ts.accept(t)

	agent := Participant{Identity: "agent-42", Kind: KindAgent}
	writeFrame(t, server, FrameData, DataPacket{Payload: []byte("hello"), Topic: "agent-response", Sender: &agent})
	writeFrame(t, server, FrameMetadata, MetadataData{Participant: agent, Metadata: `{"text":"hi"}`})
	writeFrame(t, server, FrameTranscription, TranscriptionData{
		Participant: agent,
		Segments:    []TranscriptionSegment{{ID: "s1", Text: "hi there", Final: true}},
	})

	select {
	case p := <-packets:
		assert.Equal(t, "hello", string(p.Payload))
		assert.Equal(t, "agent-response", p.Topic)
		require.NotNil(t, p.Sender)
		assert.True(t, p.Sender.IsAgent())
	case <-time.After(2 * time.Second):
		t.Fatal("no data packet")
	}
	assert.Equal(t, `{"text":"hi"}`, <-metadata)
	assert.Equal(t, "hi there", (<-segments)[0].Text)
}

func TestWSRoom_RPC(t *testing.T) {
	ts := newTestServer(t)

	r, err := Connect(context.Background(), ts.config("secret"), Callbacks{}, zap.NewNop())
	require.NoError(t, err)
	defer r.Disconnect()
	server := ts.accept(t)

	require.NoError(t, r.RegisterRPCMethod("echo", func(ctx context.Context, inv RPCInvocation) (string, error) {
		return "echo:" + inv.Payload, nil
	}))
	assert.ErrorIs(t, r.RegisterRPCMethod("echo", nil), ErrMethodRegistered)

	writeFrame(t, server, FrameRPCRequest, RPCRequestData{ID: "1", Method: "echo", Caller: "agent", Payload: "ping"})
	f := readFrame(t, server)
	require.Equal(t, FrameRPCResponse, f.Type)
	var resp RPCResponseData
	require.NoError(t, json.Unmarshal(f.Data, &resp))
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, "echo:ping", resp.Payload)

	r.UnregisterRPCMethod("echo")
	writeFrame(t, server, FrameRPCRequest, RPCRequestData{ID: "2", Method: "echo"})
	f = readFrame(t, server)
	require.NoError(t, json.Unmarshal(f.Data, &resp))
	assert.Equal(t, "2", resp.ID)
	assert.Equal(t, ErrMethodNotFound.Error(), resp.Error)
}

func TestWSRoom_SetAttributes(t *testing.T) {
	ts := newTestServer(t)

	r, err := Connect(context.Background(), ts.config("secret"), Callbacks{}, zap.NewNop())
	require.NoError(t, err)
	defer r.Disconnect()
	server := ts.accept(t)

	require.NoError(t, r.SetAttributes(context.Background(), map[string]string{"currentPage": "/reports"}))

	f := readFrame(t, server)
	require.Equal(t, FrameAttributes, f.Type)
	var attrs AttributesData
	require.NoError(t, json.Unmarshal(f.Data, &attrs))
	assert.Equal(t, "/reports", attrs.Attributes["currentPage"])
	assert.Equal(t, "/reports", r.Attributes()["currentPage"])
}

func TestWSRoom_ReconnectsAfterDrop(t *testing.T) {
	ts := newTestServer(t)

	reconnected := make(chan struct{}, 1)
	r, err := Connect(context.Background(), ts.config("secret"), Callbacks{
		OnReconnected:  func() { reconnected <- struct{}{} },
		OnDisconnected: func(err error) { t.Errorf("unexpected disconnect: %v", err) },
	}, zap.NewNop())
	require.NoError(t, err)
	defer r.Disconnect()

	first := ts.accept(t)
	first.Close()

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("room did not reconnect")
	}
	ts.accept(t)
	assert.Equal(t, int32(2), ts.joins.Load())
	assert.Equal(t, StateConnected, r.State())
}

func TestWSRoom_DisconnectIsFinal(t *testing.T) {
	ts := newTestServer(t)

	r, err := Connect(context.Background(), ts.config("secret"), Callbacks{
		OnDisconnected: func(err error) { t.Errorf("explicit disconnect reported: %v", err) },
	}, zap.NewNop())
	require.NoError(t, err)
	ts.accept(t)

	r.Disconnect()
	r.Disconnect()

	assert.Equal(t, StateDisconnected, r.State())
	assert.ErrorIs(t, r.PublishData(context.Background(), []byte("x"), "lk.chat"), ErrNotConnected)
}
