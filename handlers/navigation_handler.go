package handlers

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page"
)

const navigationBuffer = 16

// NavigationHandler is the session's route listener. It is the only place
// an agent navigation intent becomes a route change.
type NavigationHandler struct {
	session   *VoiceSession
	navigator page.Navigator
	guard     page.Guard

	intents     chan models.NavigationIntent
	done        chan struct{}
	unsubscribe func()
	closeOnce   sync.Once
	stopped     chan struct{}
}

func InitNavigationHandler(session *VoiceSession) *NavigationHandler {
	session.Logger.Info("Initializing Navigation Handler...")

	h := &NavigationHandler{
		session:   session,
		navigator: session.cfg.Host,
		guard:     session.cfg.Guard,
		intents:   make(chan models.NavigationIntent, navigationBuffer),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	h.unsubscribe = session.Hub.Navigation.Subscribe(h.enqueue)

	// Start the route change goroutine
	go h.run()

	return h
}

func (h *NavigationHandler) enqueue(intent models.NavigationIntent) {
	select {
	case h.intents <- intent:
	case <-h.done:
	default:
		h.session.Logger.Warn("Navigation queue full, dropping intent", zap.String("pathname", intent.Pathname))
	}
}

func (h *NavigationHandler) run() {
	h.session.Logger.Info("Navigation handler goroutine started")
	defer close(h.stopped)

	for {
		select {
		case intent := <-h.intents:
			h.navigate(intent)
		case <-h.done:
			h.session.Logger.Info("Navigation handler goroutine stopped")
			return
		}
	}
}

func (h *NavigationHandler) navigate(intent models.NavigationIntent) {
	pathname := strings.TrimSpace(intent.Pathname)
	if pathname == "" {
		return
	}
	if !strings.HasPrefix(pathname, "/") {
		pathname = "/" + pathname
	}
	logger := h.session.Logger.With(zap.String("pathname", pathname), zap.String("source", intent.Source))

	if h.guard != nil {
		if err := h.guard(pathname); err != nil {
			logger.Info("Navigation blocked by guard", zap.Error(err))
			return
		}
	}

	if h.navigator.Location().Pathname == pathname {
		logger.Debug("Already on requested page")
		return
	}

	if err := h.navigator.Navigate(pathname); err != nil {
		logger.Warn("Navigation failed", zap.Error(err))
		return
	}

	logger.Info("Navigated on agent request")
	h.session.Bridge.RouteChanged()
}

func (h *NavigationHandler) Close() {
	h.closeOnce.Do(func() {
		h.session.Logger.Info("Closing Navigation Handler")
		h.unsubscribe()
		close(h.done)
		<-h.stopped
	})
}
