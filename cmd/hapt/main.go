// hapt - hostapd presence tracker
//
// hapt follows station associations on every hostapd radio of an OpenWrt
// router and tells Home Assistant when a device arrives or has left every
// radio. Optional sinks mirror the same transitions to MQTT, InfluxDB and a
// local SQLite journal.
//
// Without --monitor it only reports the stations associated right now and
// exits. With --monitor it stays attached and follows radios as they come
// and go.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hapt/internal/homeassistant"
	"github.com/nerrad567/hapt/internal/hostapd"
	"github.com/nerrad567/hapt/internal/infrastructure/config"
	"github.com/nerrad567/hapt/internal/infrastructure/database"
	"github.com/nerrad567/hapt/internal/infrastructure/influxdb"
	"github.com/nerrad567/hapt/internal/infrastructure/logging"
	"github.com/nerrad567/hapt/internal/infrastructure/mqtt"
	"github.com/nerrad567/hapt/internal/leases"
	"github.com/nerrad567/hapt/internal/monitor"
	"github.com/nerrad567/hapt/internal/notify"
	"github.com/nerrad567/hapt/internal/presence"
	"github.com/nerrad567/hapt/internal/process"
	"github.com/nerrad567/hapt/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "/etc/hapt/config.yaml"

// options are the command-line settings.
type options struct {
	configPath string
	monitor    bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. --config defaults to HAPT_CONFIG,
// then defaultConfigPath.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("hapt", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&opts.monitor, "monitor", false, "keep running and follow association changes")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(output, "unexpected arguments: %v\n", fs.Args())
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses HAPT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HAPT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - opts: Command-line settings
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting hapt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing left to report to
	log.Info("configuration loaded",
		"path", opts.configPath,
		"level", cfg.Logging.Level,
		"monitor", opts.monitor,
	)

	session := uuid.NewString()
	log = log.With("session", session)

	// Leases: re-read on change while the loop runs.
	resolver := leases.NewResolver(cfg.Leases.File, log)
	if opts.monitor {
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go func() {
			if watchErr := resolver.Watch(watchCtx, nil); watchErr != nil {
				log.Warn("lease file not watched, re-reading on every lookup", "error", watchErr)
			}
		}()
	}

	ha := homeassistant.NewClient(cfg.HomeAssistant)
	if pingErr := ha.Ping(ctx); pingErr != nil {
		log.Warn("Home Assistant not reachable yet", "url", cfg.HomeAssistant.URL, "error", pingErr)
	}
	sinks := []notify.Sink{ha}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(ctx, cfg.MQTT, session)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		sinks = append(sinks, notify.NewMQTTSink(mqttClient))
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, session)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, notify.NewInfluxSink(influxClient))
	}

	if cfg.Database.Enabled {
		db, dbErr := database.Open(ctx, database.FromConfig(cfg.Database))
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		applied, migrateErr := db.Migrate(ctx, migrations.FS)
		if migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		journal := database.NewJournal(db, session)
		if days := cfg.Database.RetentionDays; days > 0 {
			pruned, pruneErr := journal.Prune(ctx, time.Now().AddDate(0, 0, -days))
			if pruneErr != nil {
				log.Warn("journal not pruned", "error", pruneErr)
			} else if pruned > 0 {
				log.Info("pruned journal", "rows", pruned, "retention_days", days)
			}
		}
		log.Info("journal ready", "path", db.Path(), "migrations_applied", applied)
		sinks = append(sinks, notify.NewJournalSink(journal))
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Prefix: cfg.Presence.DeviceIDPrefix,
		Domain: cfg.Leases.Domain,
	}, resolver, log, sinks...)
	log.Info("notification sinks", "sinks", dispatcher.Sinks())

	tracker := presence.NewTracker(presence.Config{
		Radios:      cfg.Presence.Radios,
		Devices:     cfg.Presence.Devices,
		HomeTimeout: cfg.Presence.ConsiderHomeConnect,
		AwayTimeout: cfg.Presence.ConsiderHomeDisconnect,
	}, dispatcher, log)

	query := process.NewAssociations(cfg.Hostapd.QueryBinary, process.Config{
		Timeout: cfg.Hostapd.QueryTimeout,
	})
	query.SetLogger(log)

	if !opts.monitor {
		return reportOnce(ctx, cfg, tracker, query, log)
	}

	mon := monitor.New(hostapd.Config{
		CtrlDir:      cfg.Hostapd.CtrlDir,
		LocalDir:     cfg.Hostapd.LocalDir,
		ReplyTimeout: cfg.Hostapd.ReplyTimeout,
	}, tracker, dispatcher, log)
	defer func() {
		log.Info("detaching from hostapd")
		if closeErr := mon.Close(); closeErr != nil {
			log.Error("error closing monitor", "error", closeErr)
		}
	}()

	if setupErr := mon.Setup(ctx); setupErr != nil {
		return fmt.Errorf("setting up monitor: %w", setupErr)
	}
	stations := mon.Reconcile(ctx, query)
	log.Info("startup reconciliation complete",
		"radios", mon.Radios(),
		"stations", stations,
		"devices", len(tracker.Devices()),
	)

	if runErr := mon.Run(ctx); runErr != nil {
		return fmt.Errorf("monitor: %w", runErr)
	}

	stats := mon.Stats()
	log.Info("hapt stopped",
		"attaches", stats.Attaches,
		"drops", stats.Drops,
		"events", stats.Events,
	)
	return nil
}

// reportOnce notifies every station currently associated with a tracked
// radio, without attaching to hostapd.
func reportOnce(ctx context.Context, cfg *config.Config, tracker *presence.Tracker, query presence.AssociationQuery, log *logging.Logger) error {
	radios, err := listRadios(cfg.Hostapd.CtrlDir)
	if err != nil {
		return fmt.Errorf("listing radios: %w", err)
	}

	stations := tracker.Reconcile(ctx, radios, query)
	stats := tracker.Stats()
	log.Info("reported current associations",
		"radios", radios,
		"stations", stations,
		"arrivals", stats.Arrivals,
		"notify_errors", stats.NotifyErrors,
	)
	return nil
}

// listRadios returns the control sockets in dir, sorted. A missing
// directory means hostapd is not running and yields no radios.
func listRadios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var radios []string
	for _, e := range entries {
		if e.Type()&os.ModeSocket != 0 {
			radios = append(radios, e.Name())
		}
	}
	sort.Strings(radios)
	return radios, nil
}
