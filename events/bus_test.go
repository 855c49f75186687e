package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus[models.NavigationIntent]("test", zap.NewNop())

	var got []string
	bus.Subscribe(func(n models.NavigationIntent) { got = append(got, "legacy:"+n.Pathname) })
	bus.Subscribe(func(n models.NavigationIntent) { got = append(got, "router:"+n.Pathname) })

	bus.Publish(models.NavigationIntent{Pathname: "/dashboard"})

	assert.Equal(t, []string{"legacy:/dashboard", "router:/dashboard"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus[models.NavigationIntent]("test", zap.NewNop())

	calls := 0
	unsubscribe := bus.Subscribe(func(models.NavigationIntent) { calls++ })
	assert.Equal(t, 1, bus.Len())

	unsubscribe()
	unsubscribe()
	bus.Publish(models.NavigationIntent{Pathname: "/reports"})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestBus_PanickingListenerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus[models.ClickAnimationRequest]("test", zap.NewNop())

	delivered := false
	bus.Subscribe(func(models.ClickAnimationRequest) { panic("boom") })
	bus.Subscribe(func(models.ClickAnimationRequest) { delivered = true })

	assert.NotPanics(t, func() { bus.Publish(models.ClickAnimationRequest{X: 1, Y: 2}) })
	assert.True(t, delivered)
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	assert.NotNil(t, hub.Navigation)
	assert.NotNil(t, hub.Clicks)
}
