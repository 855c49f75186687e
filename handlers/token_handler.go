package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/transcript"
	"github.com/Perceptus-Labs/voicenav-go-sdk/utils"
)

const (
	callerKey = "caller"

	// limiterIdle drops a caller's limiter once it would have refilled anyway.
	limiterIdle   = 3 * time.Minute
	sweepInterval = time.Minute
)

// TranscriptStores opens the shared transcript store of a room.
type TranscriptStores func(roomName string) transcript.Store

// APIHandler serves the token, transcript and health endpoints.
type APIHandler struct {
	validator   *utils.CallerValidator
	signer      *utils.TokenSigner
	roomURL     string
	transcripts TranscriptStores
	archive     Archive
	logger      *zap.Logger

	limit rate.Limit
	burst int

	// ownerTTL bounds how long an unused room stays claimed.
	ownerTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	owners    map[string]*roomOwner
	lastSweep time.Time
}

// visitor tracks the rate limiter and last seen time for a caller.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type roomOwner struct {
	identity string
	lastSeen time.Time
}

// NewAPIHandler builds the HTTP handlers. transcripts and archive may be nil
// when no shared storage is configured.
func NewAPIHandler(validator *utils.CallerValidator, signer *utils.TokenSigner, roomURL string, perMinute int, transcripts TranscriptStores, archive Archive, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.L()
	}
	if perMinute <= 0 {
		perMinute = 10
	}
	return &APIHandler{
		validator:   validator,
		signer:      signer,
		roomURL:     roomURL,
		transcripts: transcripts,
		archive:     archive,
		logger:      logger,
		limit:       rate.Every(time.Minute / time.Duration(perMinute)),
		burst:       perMinute,
		ownerTTL:    signer.TTL(),
		now:         time.Now,
		visitors:    make(map[string]*visitor),
		owners:      make(map[string]*roomOwner),
	}
}

// Routes mounts the API on group.
func (h *APIHandler) Routes(group *gin.RouterGroup) {
	group.GET("/health", h.HealthCheck)

	authed := group.Group("", h.Authenticate())
	authed.POST("/voice/token", h.IssueToken)
	authed.GET("/sessions/:room/transcript", h.GetTranscript)
	authed.POST("/sessions/:room/transcript/archive", h.ArchiveTranscript)
}

func (h *APIHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Authenticate requires a valid caller bearer token.
func (h *APIHandler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := h.validator.Validate(parts[1])
		if err != nil {
			h.logger.Debug("Rejected caller token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(callerKey, claims)
		c.Next()
	}
}

func caller(c *gin.Context) *utils.CallerClaims {
	v, _ := c.Get(callerKey)
	claims, _ := v.(*utils.CallerClaims)
	return claims
}

func (h *APIHandler) limiter(identity string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.sweepLocked(now)

	v, ok := h.visitors[identity]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(h.limit, h.burst)}
		h.visitors[identity] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweepLocked removes idle limiters and rooms nobody has used for a token
// lifetime. It runs at most once per sweepInterval.
func (h *APIHandler) sweepLocked(now time.Time) {
	if now.Sub(h.lastSweep) < sweepInterval {
		return
	}
	h.lastSweep = now

	for identity, v := range h.visitors {
		if now.Sub(v.lastSeen) > limiterIdle {
			delete(h.visitors, identity)
		}
	}
	for roomName, o := range h.owners {
		if now.Sub(o.lastSeen) > h.ownerTTL {
			delete(h.owners, roomName)
		}
	}
}

type issueTokenRequest struct {
	Name string `json:"name"`
}

// IssueToken creates a room and a token for the caller to join it.
func (h *APIHandler) IssueToken(c *gin.Context) {
	claims := caller(c)
	identity := claims.Subject

	if !h.limiter(identity).Allow() {
		h.logger.Warn("Token request rate limited", zap.String("identity", identity))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many token requests"})
		return
	}

	var req issueTokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = claims.Name
	}

	roomName := utils.NewRoomName()
	token, err := h.signer.Sign(identity, name, roomName)
	if err != nil {
		h.logger.Error("Failed to sign room token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.mu.Lock()
	h.owners[roomName] = &roomOwner{identity: identity, lastSeen: h.now()}
	h.mu.Unlock()

	h.logger.Info("Issued room token", zap.String("identity", identity), zap.String("room", roomName))
	c.JSON(http.StatusOK, models.Credentials{
		Token:    token,
		URL:      h.roomURL,
		RoomName: roomName,
	})
}

// ownedStore resolves the room's store and checks the caller owns the room.
// It writes the error response itself and returns nil on failure.
func (h *APIHandler) ownedStore(c *gin.Context) (string, transcript.Store) {
	if h.transcripts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transcript storage not configured"})
		return "", nil
	}

	roomName := c.Param("room")
	h.mu.Lock()
	h.sweepLocked(h.now())
	owner, ok := h.owners[roomName]
	var identity string
	if ok {
		identity = owner.identity
		if identity == caller(c).Subject {
			owner.lastSeen = h.now()
		}
	}
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
		return "", nil
	}
	if identity != caller(c).Subject {
		c.JSON(http.StatusForbidden, gin.H{"error": "room belongs to another user"})
		return "", nil
	}
	return roomName, h.transcripts(roomName)
}

// GetTranscript returns the stored messages of a room the caller owns.
func (h *APIHandler) GetTranscript(c *gin.Context) {
	roomName, store := h.ownedStore(c)
	if store == nil {
		return
	}

	msgs, err := store.Messages(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load transcript", zap.String("room", roomName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transcript"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roomName": roomName,
		"messages": msgs,
	})
}

// ArchiveTranscript moves a room's transcript into the archive.
func (h *APIHandler) ArchiveTranscript(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transcript archive not configured"})
		return
	}
	roomName, store := h.ownedStore(c)
	if store == nil {
		return
	}

	ctx := c.Request.Context()
	msgs, err := store.Messages(ctx)
	if err != nil {
		h.logger.Error("Failed to load transcript", zap.String("room", roomName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transcript"})
		return
	}

	id, err := h.archive.Save(ctx, roomName, msgs)
	if err != nil {
		h.logger.Error("Failed to archive transcript", zap.String("room", roomName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to archive transcript"})
		return
	}
	if err := store.Clear(ctx); err != nil {
		h.logger.Warn("Archived transcript but failed to clear it", zap.String("room", roomName), zap.Error(err))
	}

	h.logger.Info("Archived transcript", zap.String("room", roomName), zap.String("archive_id", id), zap.Int("messages", len(msgs)))
	c.JSON(http.StatusOK, gin.H{
		"archiveId": id,
		"messages":  len(msgs),
	})
}
