package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

func TestTokenClient_Fetch(t *testing.T) {
	var gotAuth, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body tokenRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotName = body.Name
		_ = json.NewEncoder(w).Encode(models.Credentials{Token: "tok", URL: "wss://room.example.com", RoomName: "voice-1"})
	}))
	defer srv.Close()

	creds, err := NewTokenClient(srv.URL, "caller-jwt").Fetch(context.Background(), "Layla")
	require.NoError(t, err)
	assert.Equal(t, "Bearer caller-jwt", gotAuth)
	assert.Equal(t, "Layla", gotName)
	assert.Equal(t, models.Credentials{Token: "tok", URL: "wss://room.example.com", RoomName: "voice-1"}, creds)
}

func TestTokenClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "status with message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limited"}`))
			},
			want: "429 rate limited",
		},
		{
			name: "bare status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: "status 502",
		},
		{
			name: "incomplete credentials",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"token":"tok"}`))
			},
			want: "incomplete credentials",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewTokenClient(srv.URL, "").Fetch(context.Background(), "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTokenEndpoint))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTokenSigner_RoundTrip(t *testing.T) {
	signer := NewTokenSigner("devkey", "room-secret", time.Hour)

	token, err := signer.Sign("user-1", "Layla", "voice-abc")
	require.NoError(t, err)

	claims, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "devkey", claims.Issuer)
	assert.Equal(t, "Layla", claims.Name)
	assert.Equal(t, RoomGrant{Room: "voice-abc", RoomJoin: true, CanPublish: true, CanSubscribe: true, CanPublishData: true}, claims.Video)

	other := NewTokenSigner("devkey", "wrong-secret", time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Sign("", "", "voice-abc")
	assert.Error(t, err)
}

func TestTokenSigner_Expired(t *testing.T) {
	signer := NewTokenSigner("devkey", "room-secret", time.Minute)
	signer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := signer.Sign("user-1", "", "voice-abc")
	require.NoError(t, err)

	_, err = signer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCallerValidator(t *testing.T) {
	v := NewCallerValidator("auth-secret")

	token, err := v.SignCaller("user-1", "Layla", time.Minute)
	require.NoError(t, err)
	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	noSubject, err := v.SignCaller("", "", time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRoomName(t *testing.T) {
	a, b := NewRoomName(), NewRoomName()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^voice-[0-9a-f-]{36}$`, a)
}
