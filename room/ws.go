package room

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame types exchanged with the room server.
const (
	FrameJoined        = "joined"
	FrameData          = "data"
	FrameMetadata      = "metadata"
	FrameTranscription = "transcription"
	FrameRPCRequest    = "rpc_request"
	FrameRPCResponse   = "rpc_response"
	FrameAttributes    = "attributes"
)

// Frame is the websocket envelope for every room message.
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type JoinedData struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

type MetadataData struct {
	Participant Participant `json:"participant"`
	Metadata    string      `json:"metadata"`
}

type TranscriptionData struct {
	Participant Participant            `json:"participant"`
	Segments    []TranscriptionSegment `json:"segments"`
}

type RPCRequestData struct {
	ID        string `json:"id"`
	Method    string `json:"method"`
	Caller    string `json:"caller"`
	Payload   string `json:"payload"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

type RPCResponseData struct {
	ID      string `json:"id"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

type AttributesData struct {
	Attributes map[string]string `json:"attributes"`
}

// ConnectionState is the state of the websocket connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type Config struct {
	URL   string
	Token string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration

	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	// MaxReconnects is the number of attempts before giving up (0 = infinite).
	MaxReconnects int

	DefaultRPCTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:      10 * time.Second,
		WriteTimeout:          10 * time.Second,
		PingInterval:          30 * time.Second,
		InitialReconnectDelay: 1 * time.Second,
		MaxReconnectDelay:     30 * time.Second,
		MaxReconnects:         10,
		DefaultRPCTimeout:     10 * time.Second,
	}
}

// WSRoom is a Room backed by a websocket connection to the room server.
type WSRoom struct {
	cfg       Config
	callbacks Callbacks
	logger    *zap.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	state    ConnectionState
	name     string
	identity string
	attrs    map[string]string

	writeMu sync.Mutex

	methodsMu sync.RWMutex
	methods   map[string]RPCHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ Room = (*WSRoom)(nil)

// Connect dials the room server and waits for the join acknowledgement.
func Connect(ctx context.Context, cfg Config, callbacks Callbacks, logger *zap.Logger) (*WSRoom, error) {
	if logger == nil {
		logger = zap.L()
	}
	defaults := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.InitialReconnectDelay <= 0 {
		cfg.InitialReconnectDelay = defaults.InitialReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaults.MaxReconnectDelay
	}
	if cfg.DefaultRPCTimeout <= 0 {
		cfg.DefaultRPCTimeout = defaults.DefaultRPCTimeout
	}

	r := &WSRoom{
		cfg:       cfg,
		callbacks: callbacks,
		logger:    logger,
		state:     StateConnecting,
		attrs:     make(map[string]string),
		methods:   make(map[string]RPCHandler),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	if err := r.dial(ctx); err != nil {
		r.cancel()
		r.setState(StateDisconnected)
		return nil, err
	}

	conn := r.currentConn()
	go r.readLoop(conn)
	go r.pingLoop(conn)

	r.logger.Info("Connected to room", zap.String("room", r.Name()), zap.String("identity", r.LocalIdentity()))
	return r, nil
}

func (r *WSRoom) dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.cfg.Token)

	dialer := websocket.Dialer{HandshakeTimeout: r.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, r.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to room: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(r.cfg.HandshakeTimeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read join acknowledgement: %w", err)
	}
	if frame.Type != FrameJoined {
		conn.Close()
		return fmt.Errorf("unexpected first frame %q", frame.Type)
	}
	var joined JoinedData
	if err := json.Unmarshal(frame.Data, &joined); err != nil {
		conn.Close()
		return fmt.Errorf("failed to decode join acknowledgement: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	r.mu.Lock()
	r.conn = conn
	r.name = joined.Room
	r.identity = joined.Identity
	r.state = StateConnected
	r.mu.Unlock()
	return nil
}

func (r *WSRoom) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (r *WSRoom) LocalIdentity() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

func (r *WSRoom) State() ConnectionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *WSRoom) setState(state ConnectionState) {
	r.mu.Lock()
	old := r.state
	r.state = state
	r.mu.Unlock()

	if old != state {
		r.logger.Debug("Room state change", zap.Stringer("from", old), zap.Stringer("to", state))
	}
}

func (r *WSRoom) currentConn() *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

func (r *WSRoom) RegisterRPCMethod(method string, handler RPCHandler) error {
	r.methodsMu.Lock()
	defer r.methodsMu.Unlock()

	if _, ok := r.methods[method]; ok {
		return fmt.Errorf("%s: %w", method, ErrMethodRegistered)
	}
	r.methods[method] = handler
	return nil
}

func (r *WSRoom) UnregisterRPCMethod(method string) {
	r.methodsMu.Lock()
	defer r.methodsMu.Unlock()
	delete(r.methods, method)
}

// SetAttributes merges attrs into the local participant's attributes.
func (r *WSRoom) SetAttributes(ctx context.Context, attrs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	for k, v := range attrs {
		r.attrs[k] = v
	}
	r.mu.Unlock()
	return r.send(FrameAttributes, AttributesData{Attributes: attrs})
}

// Attributes returns a copy of the attributes published so far.
func (r *WSRoom) Attributes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

func (r *WSRoom) PublishData(ctx context.Context, payload []byte, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.send(FrameData, DataPacket{Payload: payload, Topic: topic})
}

func (r *WSRoom) send(frameType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", frameType, err)
	}

	r.mu.RLock()
	conn, state := r.conn, r.state
	r.mu.RUnlock()
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout)); err != nil {
		r.logger.Warn("Failed to set write deadline", zap.Error(err))
	}
	if err := conn.WriteJSON(Frame{Type: frameType, Data: data, Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", frameType, err)
	}
	return nil
}

func (r *WSRoom) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Error("Unexpected room close", zap.Error(err))
			} else {
				r.logger.Warn("Room connection lost", zap.Error(err))
			}
			r.handleDisconnect(conn, err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			r.logger.Warn("Failed to parse room frame", zap.Error(err))
			continue
		}
		r.dispatch(frame)
	}
}

func (r *WSRoom) dispatch(frame Frame) {
	switch frame.Type {
	case FrameData:
		var packet DataPacket
		if err := json.Unmarshal(frame.Data, &packet); err != nil {
			r.logger.Warn("Failed to decode data packet", zap.Error(err))
			return
		}
		if r.callbacks.OnData != nil {
			r.callbacks.OnData(packet)
		}
	case FrameMetadata:
		var md MetadataData
		if err := json.Unmarshal(frame.Data, &md); err != nil {
			r.logger.Warn("Failed to decode metadata change", zap.Error(err))
			return
		}
		if r.callbacks.OnMetadataChanged != nil {
			r.callbacks.OnMetadataChanged(md.Participant, md.Metadata)
		}
	case FrameTranscription:
		var tr TranscriptionData
		if err := json.Unmarshal(frame.Data, &tr); err != nil {
			r.logger.Warn("Failed to decode transcription", zap.Error(err))
			return
		}
		if r.callbacks.OnTranscription != nil {
			r.callbacks.OnTranscription(tr.Participant, tr.Segments)
		}
	case FrameRPCRequest:
		var req RPCRequestData
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			r.logger.Warn("Failed to decode rpc request", zap.Error(err))
			return
		}
		go r.handleRPC(req)
	default:
		r.logger.Debug("Ignoring room frame", zap.String("type", frame.Type))
	}
}

func (r *WSRoom) handleRPC(req RPCRequestData) {
	r.methodsMu.RLock()
	handler, ok := r.methods[req.Method]
	r.methodsMu.RUnlock()

	resp := RPCResponseData{ID: req.ID}
	if !ok {
		resp.Error = ErrMethodNotFound.Error()
	} else {
		timeout := r.cfg.DefaultRPCTimeout
		if req.TimeoutMs > 0 {
			timeout = time.Duration(req.TimeoutMs) * time.Millisecond
		}
		ctx, cancel := context.WithTimeout(r.ctx, timeout)
		defer cancel()

		payload, err := handler(ctx, RPCInvocation{
			RequestID:       req.ID,
			CallerIdentity:  req.Caller,
			Payload:         req.Payload,
			ResponseTimeout: timeout,
		})
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Payload = payload
		}
	}

	if err := r.send(FrameRPCResponse, resp); err != nil {
		r.logger.Error("Failed to send rpc response", zap.String("method", req.Method), zap.Error(err))
	}
}

func (r *WSRoom) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(r.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if r.currentConn() != conn {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(r.cfg.WriteTimeout)); err != nil {
				r.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (r *WSRoom) handleDisconnect(conn *websocket.Conn, cause error) {
	r.mu.Lock()
	if r.conn != conn || r.state != StateConnected {
		r.mu.Unlock()
		return
	}
	r.conn.Close()
	r.conn = nil
	r.state = StateReconnecting
	r.mu.Unlock()

	r.reconnect(cause)
}

func (r *WSRoom) reconnect(cause error) {
	delay := r.cfg.InitialReconnectDelay
	lastErr := cause

	for attempt := 1; r.cfg.MaxReconnects == 0 || attempt <= r.cfg.MaxReconnects; attempt++ {
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(delay):
		}

		r.logger.Info("Reconnecting to room", zap.Int("attempt", attempt), zap.Duration("backoff", delay))
		if err := r.dial(r.ctx); err != nil {
			r.logger.Warn("Reconnection failed", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			delay *= 2
			if delay > r.cfg.MaxReconnectDelay {
				delay = r.cfg.MaxReconnectDelay
			}
			continue
		}

		conn := r.currentConn()
		r.logger.Info("Reconnected to room", zap.String("room", r.Name()))
		if r.callbacks.OnReconnected != nil {
			r.callbacks.OnReconnected()
		}
		go r.pingLoop(conn)
		go r.readLoop(conn)
		return
	}

	r.setState(StateDisconnected)
	r.logger.Error("Giving up on room connection", zap.Error(lastErr))
	if r.callbacks.OnDisconnected != nil {
		r.callbacks.OnDisconnected(fmt.Errorf("room connection lost: %w", lastErr))
	}
}

// Disconnect closes the connection and stops reconnecting.
func (r *WSRoom) Disconnect() {
	r.closeOnce.Do(func() {
		r.cancel()

		r.mu.Lock()
		conn := r.conn
		r.conn = nil
		r.state = StateDisconnected
		r.mu.Unlock()

		if conn != nil {
			err := conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(r.cfg.WriteTimeout),
			)
			if err != nil {
				r.logger.Debug("Failed to send close message", zap.Error(err))
			}
			conn.Close()
		}
		r.logger.Info("Disconnected from room", zap.String("room", r.Name()))
	})
}
