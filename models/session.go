package models

import (
	"time"
)

const (
	// NAVIGATE_MARKER prefixes a navigation target inside agent text, e.g. "NAVIGATE:/dashboard".
	NAVIGATE_MARKER = "NAVIGATE:"

	// END_OF_SPEECH is pushed by the speech-to-text callback when the user stops talking.
	END_OF_SPEECH = "<END_OF_SPEECH>"

	// SESSION_END stops the session goroutines.
	SESSION_END = "<SESSION_END>"
)

// Reserved data channel topics.
const (
	TopicNavigation    = "navigation"
	TopicAgentResponse = "agent-response"
	TopicChat          = "lk.chat"
)

// Session attribute keys published for the remote agent.
const (
	AttrCurrentPage   = "currentPage"
	AttrPageTitle     = "pageTitle"
	AttrElementsCount = "elementsCount"
	AttrLastUpdated   = "lastUpdated"
)

// SessionState is the lifecycle state of a voice session.
type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionConnecting SessionState = "connecting"
	SessionConnected  SessionState = "connected"
	SessionError      SessionState = "error"
	SessionStopped    SessionState = "stopped"
)

// Credentials are returned by the token endpoint and used to join the voice room.
type Credentials struct {
	Token    string `json:"token"`
	URL      string `json:"url"`
	RoomName string `json:"roomName"`
}

// SessionInfo is a snapshot of a running voice session.
type SessionInfo struct {
	ID        string       `json:"id"`
	RoomName  string       `json:"roomName,omitempty"`
	Identity  string       `json:"identity"`
	State     SessionState `json:"state"`
	Error     string       `json:"error,omitempty"`
	StartTime time.Time    `json:"startTime"`
}
