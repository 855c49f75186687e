package bridge

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

const attributesTimeout = 5 * time.Second

// RouteChanged schedules a re-scan after the settle delay. A burst of route
// changes settles into one scan.
func (b *Bridge) RouteChanged() {
	b.settle.Trigger(b.publishState)
}

func (b *Bridge) publishState() {
	r := b.currentRoom()
	if r == nil {
		return
	}

	elements := b.scanner.Scan()
	loc := b.inspector.Location()
	fp := fingerprint(loc, elements)

	b.stateMu.Lock()
	unchanged := b.published && b.fingerprint == fp
	b.stateMu.Unlock()
	if unchanged {
		b.logger.Debug("Page state unchanged, skipping publish", zap.String("pathname", loc.Pathname))
		return
	}

	attrs := map[string]string{
		models.AttrCurrentPage:   loc.Pathname,
		models.AttrPageTitle:     loc.Title,
		models.AttrElementsCount: strconv.Itoa(len(elements)),
		models.AttrLastUpdated:   b.cfg.Scheduler.Now().UTC().Format(time.RFC3339Nano),
	}

	ctx, cancel := context.WithTimeout(context.Background(), attributesTimeout)
	defer cancel()
	if err := r.SetAttributes(ctx, attrs); err != nil {
		b.logger.Warn("Failed to publish page state", zap.Error(err))
		return
	}

	b.stateMu.Lock()
	b.fingerprint = fp
	b.published = true
	b.stateMu.Unlock()
	b.logger.Debug("Published page state", zap.String("pathname", loc.Pathname), zap.Int("elements", len(elements)))
}

// fingerprint hashes everything the remote agent would see in a snapshot.
func fingerprint(loc models.Location, elements []models.PageElement) uint64 {
	d := xxhash.New()
	d.WriteString(loc.Pathname)
	d.WriteString("\x00")
	d.WriteString(loc.Title)
	for _, el := range elements {
		d.WriteString("\x00")
		d.WriteString(el.ID)
		d.WriteString("\x1f")
		d.WriteString(el.Text)
		d.WriteString("\x1f")
		d.WriteString(string(el.Type))
	}
	return d.Sum64()
}
