package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sHedC/leakbot-exporter/lbCoordinator"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbStructs"
)

func TestRefreshIntervalClamped(t *testing.T) {
	assert.Equal(t, 30*time.Second, refreshInterval(30))
	assert.Equal(t, 15*time.Second, refreshInterval(1))
	assert.Equal(t, 21600*time.Second, refreshInterval(99999))
}

func TestFileRegistryStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.json")

	store, err := NewFileRegistryStore(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, store.RecordEntity("sensor", "123456_battery_sm"))
	require.NoError(t, store.RecordEntity("sensor", "123456_battery_sm"))
	require.NoError(t, store.RecordEntity("calendar", "123456_events"))

	reopened, err := NewFileRegistryStore(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	listed, err := reopened.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"123456_battery_sm"}, listed["sensor"])
	assert.Equal(t, []string{"123456_events"}, listed["calendar"])

	require.NoError(t, reopened.Remove("sensor", "123456_battery_sm"))
	require.NoError(t, reopened.Remove("sensor", "123456_battery_sm"))
	listed, err = reopened.List()
	require.NoError(t, err)
	assert.Empty(t, listed["sensor"])
}

func TestWriteSnapshotToMetricsRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLeakbotMetrics(reg)

	snap := &lbCoordinator.Snapshot{
		Devices: map[string]*lbCoordinator.Device{
			"123456": {
				ID: "123456",
				Info: lbStructs.DeviceInfoView{
					DeviceStatus: "active",
					Info: lbStructs.DeviceDetail{
						BatterySM: "low",
						LeakCountSummary: lbStructs.LeakCountSummary{
							LeakFreeDays: "42",
						},
					},
				},
				WaterUsage: lbStructs.WaterUsageReport{
					UsageRecords: []lbStructs.WaterUsageRecord{
						{PeriodStart: "2026-08-30 00:00:00", UsageHigh: "101.5", UsageLow: "3.2"},
					},
				},
				Events: []lbStructs.Event{
					{DerivedEventID: "1", DerivedEventCreated: "2026-08-29 10:00:00", DerivedEventClosed: "null"},
					{DerivedEventID: "2", DerivedEventCreated: "2026-08-28 10:00:00", DerivedEventClosed: "2026-08-28 11:00:00"},
				},
			},
		},
	}
	writeSnapshotToMetricsRegistry(m, snap, 1000)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceUp.WithLabelValues("123456")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batteryLow.WithLabelValues("123456")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.leakFreeDays.WithLabelValues("123456")))
	assert.Equal(t, 101.5, testutil.ToFloat64(m.waterUsageHigh.WithLabelValues("123456")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openEvents.WithLabelValues("123456")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.lastRefresh))
}
