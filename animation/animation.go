// Package animation tracks the on-screen cursor shown before the agent clicks.
// Each request runs its own moving -> clicking -> ripple -> removed sequence.
package animation

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/events"
	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/sched"
)

type Phase string

const (
	PhaseMoving   Phase = "moving"
	PhaseClicking Phase = "clicking"
	PhaseRipple   Phase = "ripple"
	PhaseRemoved  Phase = "removed"
)

// Phase offsets from the start of an animation.
const (
	ClickingAt = 1000 * time.Millisecond
	RippleAt   = 1150 * time.Millisecond
	RemovedAt  = 1600 * time.Millisecond
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DefaultStart is the corner the cursor glyph travels from.
var DefaultStart = Point{X: 24, Y: 24}

type Animation struct {
	ID        string    `json:"id"`
	Start     Point     `json:"start"`
	Target    Point     `json:"target"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"startedAt"`
}

// Renderer draws an animation. It is called on every phase change.
type Renderer interface {
	Render(a Animation)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(a Animation)

func (f RendererFunc) Render(a Animation) { f(a) }

type instance struct {
	anim  Animation
	tasks []sched.Task
}

type Tracker struct {
	sched    sched.Scheduler
	renderer Renderer
	start    Point
	logger   *zap.Logger

	mu     sync.Mutex
	active map[string]*instance
}

// NewTracker builds a tracker. renderer may be nil.
func NewTracker(s sched.Scheduler, renderer Renderer, logger *zap.Logger) *Tracker {
	if s == nil {
		s = sched.Real()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Tracker{
		sched:    s,
		renderer: renderer,
		start:    DefaultStart,
		logger:   logger,
		active:   make(map[string]*instance),
	}
}

// SetStart moves the corner new animations start from.
func (t *Tracker) SetStart(p Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = p
}

// Attach starts an animation for every request on bus.
func (t *Tracker) Attach(bus *events.Bus[models.ClickAnimationRequest]) (detach func()) {
	return bus.Subscribe(func(req models.ClickAnimationRequest) {
		t.Start(req)
	})
}

// Start begins a new, independent animation and returns its id.
func (t *Tracker) Start(req models.ClickAnimationRequest) string {
	t.mu.Lock()
	inst := &instance{anim: Animation{
		ID:        uuid.New().String(),
		Start:     t.start,
		Target:    Point{X: req.X, Y: req.Y},
		Phase:     PhaseMoving,
		StartedAt: t.sched.Now(),
	}}
	id := inst.anim.ID
	t.active[id] = inst
	inst.tasks = []sched.Task{
		t.sched.AfterFunc(ClickingAt, func() { t.advance(id, PhaseClicking) }),
		t.sched.AfterFunc(RippleAt, func() { t.advance(id, PhaseRipple) }),
		t.sched.AfterFunc(RemovedAt, func() { t.advance(id, PhaseRemoved) }),
	}
	snapshot := inst.anim
	t.mu.Unlock()

	t.logger.Debug("Click animation started", zap.String("animation_id", id), zap.Float64("x", req.X), zap.Float64("y", req.Y))
	t.render(snapshot)
	return id
}

func (t *Tracker) advance(id string, phase Phase) {
	t.mu.Lock()
	inst, ok := t.active[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	inst.anim.Phase = phase
	if phase == PhaseRemoved {
		delete(t.active, id)
	}
	snapshot := inst.anim
	t.mu.Unlock()

	t.render(snapshot)
}

func (t *Tracker) render(a Animation) {
	if t.renderer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			t.logger.Error("Animation renderer panicked", zap.String("animation_id", a.ID), zap.Any("panic", rec))
		}
	}()
	t.renderer.Render(a)
}

// Active returns the in-flight animations, oldest first.
func (t *Tracker) Active() []Animation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Animation, 0, len(t.active))
	for _, inst := range t.active {
		out = append(out, inst.anim)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (t *Tracker) Get(id string) (Animation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inst, ok := t.active[id]
	if !ok {
		return Animation{}, false
	}
	return inst.anim, true
}

// Position is the cursor location at time at, eased out over the moving phase.
func (t *Tracker) Position(id string, at time.Time) (Point, bool) {
	a, ok := t.Get(id)
	if !ok {
		return Point{}, false
	}
	progress := float64(at.Sub(a.StartedAt)) / float64(ClickingAt)
	progress = math.Max(0, math.Min(1, progress))
	eased := easeOutCubic(progress)
	return Point{
		X: a.Start.X + (a.Target.X-a.Start.X)*eased,
		Y: a.Start.Y + (a.Target.Y-a.Start.Y)*eased,
	}, true
}

func easeOutCubic(p float64) float64 {
	return 1 - math.Pow(1-p, 3)
}

// Close stops every pending phase change and drops all animations.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, inst := range t.active {
		for _, task := range inst.tasks {
			task.Stop()
		}
		delete(t.active, id)
	}
}
