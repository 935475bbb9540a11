package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sHedC/leakbot-exporter/lbCoordinator"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbStructs"
)

type LeakbotMetrics struct {
	deviceUp       *prometheus.GaugeVec
	batteryLow     *prometheus.GaugeVec
	leakFreeDays   *prometheus.GaugeVec
	waterUsageHigh *prometheus.GaugeVec
	waterUsageLow  *prometheus.GaugeVec
	openEvents     *prometheus.GaugeVec
	lastRefresh    prometheus.Gauge
}

func NewLeakbotMetrics(reg prometheus.Registerer) *LeakbotMetrics {
	m := &LeakbotMetrics{
		deviceUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leakbot_device_up",
				Help: "1 while the device status is active.",
			},
			[]string{"id"}),
		batteryLow: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leakbot_battery_low",
				Help: "1 while the device reports a low battery.",
			},
			[]string{"id"},
		),
		leakFreeDays: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leakbot_leak_free_days",
				Help: "Days since the device last saw a leak.",
			},
			[]string{"id"},
		),
		waterUsageHigh: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leakbot_water_usage_high_hours",
				Help: "Water usage of the latest bucket during high-usage hours.",
			},
			[]string{"id"},
		),
		waterUsageLow: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leakbot_water_usage_low_hours",
				Help: "Water usage of the latest bucket during low-usage hours.",
			},
			[]string{"id"},
		),
		openEvents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leakbot_open_events",
				Help: "Number of events without a close timestamp.",
			},
			[]string{"id"},
		),
		lastRefresh: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "leakbot_last_refresh_timestamp_seconds",
				Help: "Unix time of the last successful refresh.",
			},
		),
	}
	reg.MustRegister(m.deviceUp)
	reg.MustRegister(m.batteryLow)
	reg.MustRegister(m.leakFreeDays)
	reg.MustRegister(m.waterUsageHigh)
	reg.MustRegister(m.waterUsageLow)
	reg.MustRegister(m.openEvents)
	reg.MustRegister(m.lastRefresh)
	return m
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func writeSnapshotToMetricsRegistry(m *LeakbotMetrics, snap *lbCoordinator.Snapshot, now float64) {
	for id, dev := range snap.Devices {
		m.deviceUp.WithLabelValues(id).Set(boolGauge(dev.Info.DeviceStatus == "active"))
		m.batteryLow.WithLabelValues(id).Set(boolGauge(dev.Info.Info.BatterySM == "low"))
		m.leakFreeDays.WithLabelValues(id).Set(lbStructs.Number(dev.Info.Info.LeakCountSummary.LeakFreeDays))

		if n := len(dev.WaterUsage.UsageRecords); n > 0 {
			latest := dev.WaterUsage.UsageRecords[n-1]
			m.waterUsageHigh.WithLabelValues(id).Set(lbStructs.Number(latest.UsageHigh))
			m.waterUsageLow.WithLabelValues(id).Set(lbStructs.Number(latest.UsageLow))
		}

		open := 0
		for _, ev := range dev.Events {
			if _, closed := ev.Closed(); !closed {
				open++
			}
		}
		m.openEvents.WithLabelValues(id).Set(float64(open))
	}
	m.lastRefresh.Set(now)
}
