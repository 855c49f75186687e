package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

var (
	ErrTokenEndpoint = errors.New("token endpoint error")
	ErrInvalidToken  = errors.New("invalid token")
)

// TokenClient fetches room credentials from the token endpoint.
type TokenClient struct {
	endpoint   string
	bearer     string
	httpClient *http.Client
}

// NewTokenClient builds a client for endpoint. bearer is the caller's
// session token and may be empty.
func NewTokenClient(endpoint, bearer string) *TokenClient {
	return &TokenClient{
		endpoint:   endpoint,
		bearer:     bearer,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenRequest struct {
	Name string `json:"name,omitempty"`
}

type tokenError struct {
	Error string `json:"error"`
}

func (c *TokenClient) Fetch(ctx context.Context, name string) (models.Credentials, error) {
	var creds models.Credentials

	payloadBytes, err := json.Marshal(tokenRequest{Name: name})
	if err != nil {
		return creds, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return creds, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return creds, fmt.Errorf("failed to call token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return creds, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var te tokenError
		if json.Unmarshal(body, &te) == nil && te.Error != "" {
			return creds, fmt.Errorf("%w: %d %s", ErrTokenEndpoint, resp.StatusCode, te.Error)
		}
		return creds, fmt.Errorf("%w: status %d", ErrTokenEndpoint, resp.StatusCode)
	}

	if err := json.Unmarshal(body, &creds); err != nil {
		return creds, fmt.Errorf("failed to decode token response: %w", err)
	}
	if creds.Token == "" || creds.URL == "" {
		return creds, fmt.Errorf("%w: incomplete credentials", ErrTokenEndpoint)
	}
	return creds, nil
}

// RoomGrant is what a room token allows its holder to do.
type RoomGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

// RoomClaims are the claims of a room access token.
type RoomClaims struct {
	jwt.RegisteredClaims
	Name  string    `json:"name,omitempty"`
	Video RoomGrant `json:"video"`
}

// TokenSigner issues room access tokens signed with the room API secret.
type TokenSigner struct {
	apiKey string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenSigner(apiKey, apiSecret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		apiKey: apiKey,
		secret: []byte(apiSecret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL is how long issued room tokens stay valid.
func (s *TokenSigner) TTL() time.Duration {
	return s.ttl
}

// NewRoomName returns a fresh room name for a voice session.
func NewRoomName() string {
	return "voice-" + uuid.New().String()
}

// Sign creates a token that lets identity join roomName and exchange data.
func (s *TokenSigner) Sign(identity, name, roomName string) (string, error) {
	if identity == "" || roomName == "" {
		return "", errors.New("identity and room name are required")
	}

	now := s.now().UTC()
	claims := RoomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Name: name,
		Video: RoomGrant{
			Room:           roomName,
			RoomJoin:       true,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates a room token signed by s.
func (s *TokenSigner) Parse(tokenStr string) (*RoomClaims, error) {
	claims := &RoomClaims{}
	if err := parseHS256(tokenStr, s.secret, claims); err != nil {
		return nil, err
	}
	if claims.Issuer != s.apiKey {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	return claims, nil
}

// CallerClaims identify the dashboard user asking for a room token.
type CallerClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// CallerValidator checks the bearer token sent to the token endpoint.
type CallerValidator struct {
	secret []byte
}

func NewCallerValidator(secret string) *CallerValidator {
	return &CallerValidator{secret: []byte(secret)}
}

func (v *CallerValidator) Validate(tokenStr string) (*CallerClaims, error) {
	claims := &CallerClaims{}
	if err := parseHS256(tokenStr, v.secret, claims); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	return claims, nil
}

// SignCaller issues a caller token. Used by tests and local tooling.
func (v *CallerValidator) SignCaller(subject, name string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func parseHS256(tokenStr string, secret []byte, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
