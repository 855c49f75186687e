// Package bridge exposes the page to the remote agent as request/response
// methods on the local room participant.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/commands"
	"github.com/Perceptus-Labs/voicenav-go-sdk/events"
	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page"
	"github.com/Perceptus-Labs/voicenav-go-sdk/room"
	"github.com/Perceptus-Labs/voicenav-go-sdk/scanner"
	"github.com/Perceptus-Labs/voicenav-go-sdk/sched"
)

const (
	// DefaultClickDelay covers the cursor's travel and press before the real click.
	DefaultClickDelay  = 1150 * time.Millisecond
	DefaultSettleDelay = 400 * time.Millisecond
)

var ErrBadRequest = errors.New("bad request")

type Config struct {
	ClickDelay  time.Duration
	SettleDelay time.Duration
	Scheduler   sched.Scheduler
}

type method struct {
	name    string
	handler room.RPCHandler
}

type Bridge struct {
	inspector page.Inspector
	scanner   *scanner.Scanner
	hub       *events.Hub
	surface   *commands.Surface
	cfg       Config
	logger    *zap.Logger

	mu         sync.Mutex
	room       room.Room
	registered bool
	methods    []method

	stateMu     sync.Mutex
	fingerprint uint64
	published   bool
	settle      *sched.Debouncer
}

// New builds a bridge. surface may be nil, which disables invokeCommand.
func New(inspector page.Inspector, hub *events.Hub, surface *commands.Surface, cfg Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.L()
	}
	if cfg.ClickDelay <= 0 {
		cfg.ClickDelay = DefaultClickDelay
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = sched.Real()
	}

	b := &Bridge{
		inspector: inspector,
		scanner:   scanner.New(inspector, logger),
		hub:       hub,
		surface:   surface,
		cfg:       cfg,
		logger:    logger,
		settle:    sched.NewDebouncer(cfg.Scheduler, cfg.SettleDelay),
	}
	b.methods = []method{
		{models.RPCGetPageElements, b.wrap(models.RPCGetPageElements, b.getPageElements)},
		{models.RPCClickElement, b.wrap(models.RPCClickElement, b.clickElement)},
		{models.RPCGetCurrentPage, b.wrap(models.RPCGetCurrentPage, b.getCurrentPage)},
		{models.RPCNavigateToPage, b.wrap(models.RPCNavigateToPage, b.navigateToPage)},
		{models.RPCInvokeCommand, b.wrap(models.RPCInvokeCommand, b.invokeCommand)},
	}
	return b
}

// Register installs the methods on r once. Calling it again for the same
// room is a no-op.
func (b *Bridge) Register(r room.Room) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registered && b.room == r {
		return nil
	}
	if b.room != nil && b.room != r {
		b.unregisterLocked()
	}
	b.room = r
	return b.registerLocked()
}

func (b *Bridge) registerLocked() error {
	for _, m := range b.methods {
		if err := b.room.RegisterRPCMethod(m.name, m.handler); err != nil && !errors.Is(err, room.ErrMethodRegistered) {
			return fmt.Errorf("failed to register %s: %w", m.name, err)
		}
	}
	b.registered = true
	b.logger.Info("Registered RPC methods", zap.Int("methods", len(b.methods)))
	return nil
}

func (b *Bridge) unregisterLocked() {
	for _, m := range b.methods {
		b.room.UnregisterRPCMethod(m.name)
	}
	b.registered = false
}

// Reconnected re-registers every method and republishes page state.
func (b *Bridge) Reconnected() {
	b.mu.Lock()
	if b.room == nil {
		b.mu.Unlock()
		return
	}
	b.unregisterLocked()
	err := b.registerLocked()
	b.mu.Unlock()

	if err != nil {
		b.logger.Error("Failed to re-register RPC methods", zap.Error(err))
	}

	b.stateMu.Lock()
	b.published = false
	b.stateMu.Unlock()
	b.RouteChanged()
}

func (b *Bridge) Registered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registered
}

// Close cancels any pending state publication and removes the methods.
func (b *Bridge) Close() {
	b.settle.Cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.room != nil {
		b.unregisterLocked()
	}
}

func (b *Bridge) currentRoom() room.Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.room
}

// wrap turns handler failures, including panics, into a well-formed
// {success:false, error} response.
func (b *Bridge) wrap(name string, fn func(ctx context.Context, payload string) (any, error)) room.RPCHandler {
	return func(ctx context.Context, inv room.RPCInvocation) (resp string, err error) {
		logger := b.logger.With(zap.String("method", name), zap.String("request_id", inv.RequestID))
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("RPC handler panicked", zap.Any("panic", rec))
				resp, err = marshal(models.RPCResult{Success: false, Error: fmt.Sprint(rec)}), nil
			}
		}()

		out, err := fn(ctx, inv.Payload)
		if err != nil {
			logger.Warn("RPC handler failed", zap.Error(err))
			return marshal(models.RPCResult{Success: false, Error: err.Error()}), nil
		}
		return marshal(out), nil
	}
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"success":false,"error":"failed to encode response"}`
	}
	return string(data)
}

func decode(payload string, v any) error {
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("%w: empty payload", ErrBadRequest)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func (b *Bridge) getPageElements(ctx context.Context, payload string) (any, error) {
	elements := b.scanner.Scan()
	loc := b.inspector.Location()
	return models.PageElementsResponse{
		CurrentPage:   loc.Pathname,
		PageTitle:     loc.Title,
		ElementsCount: len(elements),
		Elements:      elements,
	}, nil
}

func (b *Bridge) getCurrentPage(ctx context.Context, payload string) (any, error) {
	return b.inspector.Location(), nil
}

func (b *Bridge) clickElement(ctx context.Context, payload string) (any, error) {
	var req models.ClickElementRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", ErrBadRequest)
	}

	entry, ok := b.scanner.FindByIdentifier(identifier, models.ParseLookupMode(req.Type))
	if !ok {
		return models.ClickElementResponse{
			Success:           false,
			Message:           `Element "` + identifier + `" not found on page`,
			AvailableElements: b.scanner.Candidates(scanner.MaxCandidates),
		}, nil
	}

	if err := b.inspector.ScrollIntoView(ctx, entry.Raw); err != nil {
		return nil, fmt.Errorf("failed to scroll to element: %w", err)
	}

	x, y := entry.Raw.Rect.Center()
	if b.hub != nil {
		b.hub.Clicks.Publish(models.ClickAnimationRequest{X: x, Y: y})
	}

	if err := sched.Sleep(ctx, b.cfg.Scheduler, b.cfg.ClickDelay); err != nil {
		return nil, fmt.Errorf("click cancelled: %w", err)
	}

	if err := b.inspector.Click(ctx, entry.Raw); err != nil {
		return nil, fmt.Errorf("failed to click element: %w", err)
	}

	b.logger.Info("Clicked element", zap.String("identifier", identifier), zap.String("label", entry.Element.Text))
	element := entry.Element
	return models.ClickElementResponse{
		Success: true,
		Message: `Clicked "` + element.Text + `"`,
		Element: &element,
	}, nil
}

// navigateToPage only expresses intent; the UI's listener owns routing.
func (b *Bridge) navigateToPage(ctx context.Context, payload string) (any, error) {
	var req models.NavigateRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	pathname := strings.TrimSpace(req.Pathname)
	if pathname == "" {
		return nil, fmt.Errorf("%w: pathname is required", ErrBadRequest)
	}
	if !strings.HasPrefix(pathname, "/") {
		pathname = "/" + pathname
	}

	if b.hub != nil {
		b.hub.Navigation.Publish(models.NavigationIntent{Pathname: pathname, Source: "rpc"})
	}
	return models.RPCResult{Success: true, Message: "Navigation to " + pathname + " requested"}, nil
}

// invokeCommand lets RPC-only agents reach the command registry.
func (b *Bridge) invokeCommand(ctx context.Context, payload string) (any, error) {
	if b.surface == nil {
		return nil, errors.New("commands are not available in this session")
	}
	var req models.InvokeCommandRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}

	out := b.surface.Call(ctx, req.Name)
	return models.RPCResult{Success: out.Success, Message: out.Message}, nil
}
