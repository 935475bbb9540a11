package lbCoordinator

import (
	"context"
	"time"

	"golang.org/x/exp/slices"

	"github.com/sHedC/leakbot-exporter/leakbot-api/lbStructs"
)

// Back-fill policy: bounded windows with upsert-by-id merging. First run
// pages backward from now in 90-day windows until the account-registered
// sentinel event is seen or the window budget runs out; later runs fetch
// a single recent window. A re-fetched record with a known id replaces
// the stored one, so a close timestamp the vendor adds after the fact
// updates history instead of duplicating it. Events are never removed.
const (
	backfillWindow     = 90 * 24 * time.Hour
	maxBackfillWindows = 8

	// RegisteredEventCode marks the oldest event an account can have.
	RegisteredEventCode = "V2_LB_REGISTERED"
)

func (c *Coordinator) refreshDeviceEvents(ctx context.Context, dev *Device) error {
	now := c.now().UTC()
	if dev.EventStartDate.IsZero() {
		return c.backfillDeviceEvents(ctx, dev, now)
	}

	start := now.Add(-backfillWindow)
	list, err := c.client.GetDeviceSimpleEventList(ctx, dev.ID, lbStructs.FormatTimestamp(start))
	if err != nil {
		return err
	}
	dev.Events = mergeEvents(dev.Events, list.Events)
	if start.Before(dev.EventStartDate) {
		dev.EventStartDate = start
	}
	dev.EventEndDate = now
	return nil
}

func (c *Coordinator) backfillDeviceEvents(ctx context.Context, dev *Device, now time.Time) error {
	events := dev.Events
	start := now
	for window := 0; window < maxBackfillWindows; window++ {
		start = start.Add(-backfillWindow)
		list, err := c.client.GetDeviceSimpleEventList(ctx, dev.ID, lbStructs.FormatTimestamp(start))
		if err != nil {
			return err
		}
		events = mergeEvents(events, list.Events)

		registered := slices.IndexFunc(list.Events, func(e lbStructs.Event) bool {
			return e.DerivedEventCode == RegisteredEventCode
		})
		if registered != -1 {
			break
		}
	}

	dev.Events = events
	dev.EventStartDate = start
	dev.EventEndDate = now
	c.logger.Infof("device %s: back-filled %d events since %s", dev.ID, len(events), lbStructs.FormatTimestamp(start))
	return nil
}

// mergeEvents upserts batch into history keyed by DerivedEventID and
// returns a new slice ordered by creation time (ids as tie-break). The
// vendor timestamp format sorts lexicographically in time order.
// Idempotent: re-applying an identical batch changes nothing.
func mergeEvents(history, batch []lbStructs.Event) []lbStructs.Event {
	merged := slices.Clone(history)
	for _, ev := range batch {
		idx := slices.IndexFunc(merged, func(e lbStructs.Event) bool {
			return e.DerivedEventID == ev.DerivedEventID
		})
		if idx == -1 {
			merged = append(merged, ev)
		} else {
			merged[idx] = ev
		}
	}
	slices.SortFunc(merged, func(a, b lbStructs.Event) bool {
		if a.DerivedEventCreated != b.DerivedEventCreated {
			return a.DerivedEventCreated < b.DerivedEventCreated
		}
		return a.DerivedEventID < b.DerivedEventID
	})
	return merged
}
