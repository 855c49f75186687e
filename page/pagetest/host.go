// Package pagetest provides an in-memory host page for tests.
package pagetest

import (
	"context"
	"sync"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page"
)

// Host implements every page capability against in-memory state.
type Host struct {
	mu sync.Mutex

	Elements []page.RawElement
	Title    string
	Origin   string

	history []string
	cursor  int

	sidebarOpen bool

	Clicked       []string
	Scrolled      []string
	Notifications []models.Notification
	Errors        []string
	SignOuts      int
	Reloads       int

	SignOutErr  error
	NavigateErr error
}

var (
	_ page.Inspector    = (*Host)(nil)
	_ page.Navigator    = (*Host)(nil)
	_ page.Sidebar      = (*Host)(nil)
	_ page.Notifier     = (*Host)(nil)
	_ page.AuthProvider = (*Host)(nil)
)

func NewHost(pathname string, elements ...page.RawElement) *Host {
	return &Host{
		Elements: elements,
		Title:    "Dashboard",
		Origin:   "https://app.example.com",
		history:  []string{pathname},
	}
}

// Button builds a visible, enabled button.
func Button(id, text string) page.RawElement {
	return page.RawElement{
		ID:          id,
		Tag:         "button",
		TextContent: text,
		Display:     "block",
		Visibility:  "visible",
		Opacity:     1,
		Rect:        page.Rect{X: 10, Y: 10, Width: 100, Height: 30},
	}
}

// Link builds a visible anchor.
func Link(id, text, href string) page.RawElement {
	el := Button(id, text)
	el.Tag = "a"
	el.Href = href
	return el
}

func (h *Host) SetElements(elements ...page.RawElement) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Elements = elements
}

func (h *Host) QueryInteractive(selectors []string) []page.RawElement {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]page.RawElement, len(h.Elements))
	copy(out, h.Elements)
	return out
}

func (h *Host) ElementByID(id string) (page.RawElement, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, el := range h.Elements {
		if el.ID != "" && el.ID == id {
			return el, true
		}
	}
	return page.RawElement{}, false
}

func (h *Host) ScrollIntoView(ctx context.Context, el page.RawElement) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Scrolled = append(h.Scrolled, label(el))
	return nil
}

func (h *Host) Click(ctx context.Context, el page.RawElement) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Clicked = append(h.Clicked, label(el))
	return nil
}

func label(el page.RawElement) string {
	if el.ID != "" {
		return el.ID
	}
	return el.TextContent
}

func (h *Host) Location() models.Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.location()
}

func (h *Host) location() models.Location {
	path := h.history[h.cursor]
	return models.Location{Pathname: path, Title: h.Title, URL: h.Origin + path}
}

func (h *Host) Navigate(pathname string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.NavigateErr != nil {
		return h.NavigateErr
	}
	h.history = append(h.history[:h.cursor+1], pathname)
	h.cursor = len(h.history) - 1
	return nil
}

func (h *Host) Back() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor == 0 {
		return page.ErrNoHistory
	}
	h.cursor--
	return nil
}

func (h *Host) Forward() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor >= len(h.history)-1 {
		return page.ErrNoHistory
	}
	h.cursor++
	return nil
}

func (h *Host) Reload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Reloads++
	return nil
}

func (h *Host) HistoryLength() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}

// Path returns the current pathname.
func (h *Host) Path() string {
	return h.Location().Pathname
}

func (h *Host) Open() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sidebarOpen = true
}

func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sidebarOpen = false
}

func (h *Host) Toggle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sidebarOpen = !h.sidebarOpen
}

func (h *Host) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sidebarOpen
}

func (h *Host) Notify(n models.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Notifications = append(h.Notifications, n)
}

func (h *Host) ShowError(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Errors = append(h.Errors, message)
}

func (h *Host) SignOut(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.SignOutErr != nil {
		return h.SignOutErr
	}
	h.SignOuts++
	return nil
}

// LastNotification returns the most recent toast, or the zero value.
func (h *Host) LastNotification() models.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.Notifications) == 0 {
		return models.Notification{}
	}
	return h.Notifications[len(h.Notifications)-1]
}

// ClickedSnapshot returns a copy of the click log.
func (h *Host) ClickedSnapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, len(h.Clicked))
	copy(out, h.Clicked)
	return out
}
