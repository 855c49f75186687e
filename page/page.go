// Package page declares the host capabilities the voice core needs from the
// application it runs in. The host owns the DOM, the router and the toasts;
// the voice core only reads and requests through these interfaces.
package page

import (
	"context"
	"errors"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

var (
	ErrNoHistory = errors.New("no history entry to go to")
	ErrDetached  = errors.New("element is no longer attached")
)

// Rect is a bounding box in screen coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the screen-space centre of the box.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// RawElement is the host's unfiltered view of one DOM node matched by the
// interactive selectors, including the computed style the scanner filters on.
type RawElement struct {
	ID          string
	Tag         string
	InputType   string
	Role        string
	TextContent string
	AriaLabel   string
	Title       string
	Placeholder string
	Alt         string
	Href        string

	Disabled   bool
	Busy       bool
	Display    string
	Visibility string
	Opacity    float64
	Rect       Rect

	// InAssistantUI is set for nodes inside the voice assistant's own widget.
	InAssistantUI bool

	// Ref is an opaque host handle used to act on the node later.
	Ref any
}

// Inspector reads and acts on the live page.
type Inspector interface {
	// QueryInteractive returns the nodes matching any selector, in DOM order.
	QueryInteractive(selectors []string) []RawElement
	ElementByID(id string) (RawElement, bool)
	ScrollIntoView(ctx context.Context, el RawElement) error
	Click(ctx context.Context, el RawElement) error
	Location() models.Location
}

// Navigator is the host router plus browser history.
type Navigator interface {
	Navigate(pathname string) error
	Back() error
	Forward() error
	Reload() error
	HistoryLength() int
	Location() models.Location
}

type Sidebar interface {
	Open()
	Close()
	Toggle()
	IsOpen() bool
}

// Notifier shows feedback to the human user.
type Notifier interface {
	// Notify shows a transient toast.
	Notify(n models.Notification)
	// ShowError shows a persistent inline error panel.
	ShowError(message string)
}

type AuthProvider interface {
	SignOut(ctx context.Context) error
}

// Guard decides whether a navigation intent may be performed. A nil error
// allows the route change.
type Guard func(pathname string) error
