package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/sHedC/leakbot-exporter/lbCoordinator"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbClient"
)

const (
	DomainSensor        = "sensor"
	DomainDeviceTracker = "device_tracker"
	DomainCalendar      = "calendar"
)

// Refresh interval bounds in seconds.
const (
	DefaultRefresh = 30
	MinRefresh     = 15
	MaxRefresh     = 21600
)

var sensorKeys = []string{"device_status", "battery_sm", "leak_free_days", "water_usage"}

var (
	sugar      *zap.SugaredLogger
	configPath string
	metrics    *LeakbotMetrics
)

func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{
		"stdout", "leakbot_exporter.log",
	}
	return cfg.Build()
}

func initConfig() {
	// set defaults
	viper.SetDefault("leakbot.username", "")
	viper.SetDefault("leakbot.password", "")
	viper.SetDefault("leakbot.refreshinterval", DefaultRefresh)
	viper.SetDefault("metrics.port", 9124)
	viper.SetDefault("registry.file", "leakbot_entities.json")
	viper.SetDefault("influxdb.host", "")
	viper.SetDefault("influxdb.token", "")
	viper.SetDefault("influxdb.org", "")
	viper.SetDefault("influxdb.bucket", "")
	if err := godotenv.Load(); err == nil {
		sugar.Info("Loaded environment from .env")
	}
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("lb")
	viper.SetConfigType("yaml")
	cfg, err := os.ReadFile(configPath)
	if err != nil {
		sugar.Info("No configuration file found. Using Default config")
	}
	err = viper.ReadConfig(bytes.NewBuffer(cfg)) // Find and read the config file
	if err != nil {                              // Handle errors reading the config file
		sugar.Errorf("Error while reading config file: %w. Using Default config", err)
	}
}

func initLogger() {
	logger, _ := NewLogger()
	sugar = logger.Sugar()
}

func initCliFlags() {
	flag.StringVar(&configPath, "configFile", "config.yaml", "Path to the config.yaml File.")
	flag.Parse()
}

func init() {
	initLogger()
	initCliFlags()
	initConfig()
}

// refreshInterval clamps the configured interval to the supported range.
func refreshInterval(seconds int) time.Duration {
	if seconds < MinRefresh {
		seconds = MinRefresh
	}
	if seconds > MaxRefresh {
		seconds = MaxRefresh
	}
	return time.Duration(seconds) * time.Second
}

// claimEntities records the identifiers the current schema publishes and
// claims them against the stale-entity index, then prunes whatever no
// current entity reclaimed.
func claimEntities(coordinator *lbCoordinator.Coordinator, store *FileRegistryStore, snap *lbCoordinator.Snapshot) {
	for id := range snap.Devices {
		for _, key := range sensorKeys {
			claim(coordinator, store, DomainSensor, id+"_"+key)
		}
		claim(coordinator, store, DomainDeviceTracker, id)
		claim(coordinator, store, DomainCalendar, id+"_events")
	}
	coordinator.RemoveOldEntities(DomainSensor)
	coordinator.RemoveOldEntities(DomainDeviceTracker)
	coordinator.RemoveOldEntities(DomainCalendar)
}

func claim(coordinator *lbCoordinator.Coordinator, store *FileRegistryStore, domain, id string) {
	if err := store.RecordEntity(domain, id); err != nil {
		sugar.Errorw("could not record entity", "domain", domain, "id", id, "error", err)
	}
	coordinator.ClaimEntity(domain, id)
}

func main() {
	defer sugar.Sync() // flushes buffer, if any

	sugar.Info("Starting Leakbot-Exporter")
	username := viper.GetString("leakbot.username")
	password := viper.GetString("leakbot.password")
	if username == "" || password == "" {
		sugar.Fatal("leakbot.username and leakbot.password must be configured")
	}

	client := lbClient.NewLeakbotApiClient(lbClient.APIURL, username, password, sugar)

	store, err := NewFileRegistryStore(viper.GetString("registry.file"), sugar)
	if err != nil {
		sugar.Fatal(err)
	}
	coordinator := lbCoordinator.NewCoordinator(client, store, sugar)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		sugar.Info("Catch Keyboard interrupt")
		cancel()
	}()

	snap, err := coordinator.Refresh(ctx)
	if err != nil {
		sugar.Fatal(err)
	}

	sugar.Info("Creating Metrics-Registry")
	reg := prometheus.NewRegistry()
	reg.Register(collectors.NewBuildInfoCollector())
	reg.Register(collectors.NewGoCollector())
	metrics = NewLeakbotMetrics(reg)
	writeSnapshotToMetricsRegistry(metrics, snap, float64(time.Now().Unix()))

	claimEntities(coordinator, store, snap)

	var sink *InfluxSink
	if host := viper.GetString("influxdb.host"); host != "" {
		sink = NewInfluxSink(
			host,
			viper.GetString("influxdb.token"),
			viper.GetString("influxdb.org"),
			viper.GetString("influxdb.bucket"),
			sugar,
		)
		if err := sink.WriteSnapshot(ctx, snap); err != nil {
			sugar.Errorw("influx write failed", "error", err)
		}
	}

	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		if err := http.ListenAndServe(":"+viper.GetString("metrics.port"), nil); err != nil {
			sugar.Fatal(err)
		}
	}()

	interval := refreshInterval(viper.GetInt("leakbot.refreshinterval"))
	sugar.Infof("Refreshing every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := coordinator.Refresh(ctx)
			if errors.Is(err, lbCoordinator.ErrAuthenticationFailed) {
				// User-correctable; do not keep hammering the API.
				sugar.Errorw("credentials rejected, stopping refresh until they are corrected", "error", err)
				return
			}
			if err != nil {
				sugar.Warnw("refresh failed, retrying on next tick", "error", err)
				continue
			}
			writeSnapshotToMetricsRegistry(metrics, snap, float64(time.Now().Unix()))
			if sink != nil {
				if err := sink.WriteSnapshot(ctx, snap); err != nil {
					sugar.Errorw("influx write failed", "error", err)
				}
			}
		}
	}
}
