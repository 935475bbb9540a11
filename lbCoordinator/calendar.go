package lbCoordinator

import (
	"time"

	"github.com/sHedC/leakbot-exporter/leakbot-api/lbStructs"
)

// CalendarEvent is one entry of a device's event timeline.
type CalendarEvent struct {
	Start   time.Time
	End     time.Time
	Summary string
}

// openEventDuration is the synthetic duration given to events without a
// recorded close time, and to the odd record whose close precedes its
// open. Keeps End always after Start.
const openEventDuration = 30 * time.Minute

var eventSummaries = map[string]string{
	"V2_LB_HIGHUSE":    "High Water Usage",
	"V2_LB_LOWFLOW":    "Continuous Low Flow",
	"V2_LB_NOFLOW":     "No Water Flow",
	"V2_LB_OFFLINE":    "Device Offline",
	"V2_LB_LOWBATTERY": "Battery Low",
	RegisteredEventCode: "Account Registered",
}

func eventSummary(code string) string {
	if summary, ok := eventSummaries[code]; ok {
		return summary
	}
	return code
}

// GetEvents returns the device's events overlapping [start, end),
// ordered as stored (creation time ascending). Unparsable records are
// skipped.
func (c *Coordinator) GetEvents(deviceID string, start, end time.Time) []CalendarEvent {
	snap := c.Snapshot()
	if snap == nil {
		return nil
	}
	dev, ok := snap.Devices[deviceID]
	if !ok {
		return nil
	}

	var out []CalendarEvent
	for _, ev := range dev.Events {
		evStart, err := ev.Created()
		if err != nil {
			c.logger.Debugw("skipping event with bad created timestamp", "device", deviceID, "event", ev.DerivedEventID)
			continue
		}
		evEnd, closed := ev.Closed()
		if !closed || !evEnd.After(evStart) {
			evEnd = evStart.Add(openEventDuration)
		}
		if evStart.Before(end) && evEnd.After(start) {
			out = append(out, CalendarEvent{Start: evStart, End: evEnd, Summary: eventSummary(ev.DerivedEventCode)})
		}
	}
	return out
}
