package transcript

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/room"
	"github.com/Perceptus-Labs/voicenav-go-sdk/sched/schedtest"
)

func propertyPipeline() (*Pipeline, *MemoryStore, *schedtest.Fake) {
	store := NewMemoryStore()
	clock := schedtest.NewFake()
	return New(store, nil, Config{Scheduler: clock}, zap.NewNop()), store, clock
}

// TestNavigationDiscardProperty verifies a marker never reaches the transcript.
// Property: entries grow by exactly one when a non-empty remainder follows the
// marker, and by zero otherwise.
func TestNavigationDiscardProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("navigation markers are never logged", prop.ForAll(
		func(path string, remainder string, topic bool) bool {
			p, store, clock := propertyPipeline()
			payload := models.NAVIGATE_MARKER + "/" + path
			if remainder != "" {
				payload += " " + remainder
			}
			pkt := room.DataPacket{Payload: []byte(payload), Sender: agent}
			if topic {
				pkt.Topic = models.TopicNavigation
			}

			p.HandleData(pkt)
			clock.Advance(DefaultFlushDelay)

			want := 0
			if remainder != "" && !topic {
				want = 1
			}
			if store.Len() != want {
				return false
			}
			if want == 1 {
				msgs := store.messages
				return msgs[0].Role == models.RoleAssistant && msgs[0].Content == remainder
			}
			return true
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestDedupIdempotenceProperty verifies a repeated payload is stored once.
// Property: HandleData(x); HandleData(x) yields at most one entry.
func TestDedupIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical payloads are stored once", prop.ForAll(
		func(text string) bool {
			p, store, clock := propertyPipeline()
			pkt := room.DataPacket{Payload: []byte(text), Topic: models.TopicChat, Sender: agent}

			p.HandleData(pkt)
			second := p.HandleData(pkt)
			clock.Advance(DefaultFlushDelay)

			return store.Len() <= 1 && second != models.ClassConversational
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
