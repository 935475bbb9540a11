package main

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"go.uber.org/zap"

	"github.com/sHedC/leakbot-exporter/lbCoordinator"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbStructs"
)

// InfluxSink writes water-usage buckets and event records to InfluxDB as
// line protocol. Write-only; refresh cycles never depend on it.
type InfluxSink struct {
	writeApi api.WriteAPIBlocking
	logger   *zap.SugaredLogger
}

func NewInfluxSink(host, token, org, bucket string, logger *zap.SugaredLogger) *InfluxSink {
	influxClient := influxdb2.NewClient(host, token)
	return &InfluxSink{
		writeApi: influxClient.WriteAPIBlocking(org, bucket),
		logger:   logger,
	}
}

func (s *InfluxSink) WriteSnapshot(ctx context.Context, snap *lbCoordinator.Snapshot) error {
	for id, dev := range snap.Devices {
		for _, record := range dev.WaterUsage.UsageRecords {
			ts, err := lbStructs.ParseTimestamp(record.PeriodStart)
			if err != nil {
				s.logger.Warnw("skipping usage record with bad period start", "deviceId", id, "periodStart", record.PeriodStart)
				continue
			}
			influxLine := fmt.Sprintf("leakbot_waterUsage,deviceId=%s high=%f,low=%f %d",
				id, lbStructs.Number(record.UsageHigh), lbStructs.Number(record.UsageLow), ts.UnixNano())
			if err := s.writeApi.WriteRecord(ctx, influxLine); err != nil {
				return err
			}
		}

		for _, ev := range dev.Events {
			created, err := ev.Created()
			if err != nil {
				continue
			}
			open := 1
			if _, closed := ev.Closed(); closed {
				open = 0
			}
			influxLine := fmt.Sprintf("leakbot_event,deviceId=%s,code=%s open=%du %d",
				id, ev.DerivedEventCode, open, created.UnixNano())
			if err := s.writeApi.WriteRecord(ctx, influxLine); err != nil {
				return err
			}
		}

		influxLine := fmt.Sprintf("leakbot_leakFreeDays,deviceId=%s days=%f %d",
			id, lbStructs.Number(dev.Info.Info.LeakCountSummary.LeakFreeDays), time.Now().UTC().UnixNano())
		if err := s.writeApi.WriteRecord(ctx, influxLine); err != nil {
			return err
		}
	}
	return nil
}
