// backlightd exports backlight control on D-Bus.
//
// It answers setbrightness, getbrightness, getmaxbrightness and
// getactualbrightness (and captureframes when enabled) one call at a time,
// resolving the device from sysfs afresh on every call.
//
// Optional sidecars, all off by default: MQTT state and commands, InfluxDB
// telemetry, a SQLite audit trail and a read-only health HTTP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-backlightd/internal/api"
	"github.com/nerrad567/gray-logic-backlightd/internal/audit"
	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
	"github.com/nerrad567/gray-logic-backlightd/internal/bus"
	"github.com/nerrad567/gray-logic-backlightd/internal/capture"
	"github.com/nerrad567/gray-logic-backlightd/internal/device"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-backlightd/internal/mqttcmd"
	"github.com/nerrad567/gray-logic-backlightd/internal/notify"
	"github.com/nerrad567/gray-logic-backlightd/internal/service"
	"github.com/nerrad567/gray-logic-backlightd/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errHelp is returned by parseFlags for --help and --version, which are
// not failures.
var errHelp = errors.New("help requested")

type options struct {
	configPath  string
	session     bool
	showVersion bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("backlightd", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default $BACKLIGHTD_CONFIG or "+config.DefaultPath+")")
	fs.BoolVar(&opts.session, "session", false, "export on the session bus instead of the system bus")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, errHelp
		}
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.showVersion {
		fmt.Fprintf(out, "backlightd %s (commit %s, built %s)\n", version, commit, date)
		return opts, errHelp
	}
	return opts, nil
}

func loadConfig(opts options) (*config.Config, string, error) {
	path, explicit := config.ResolvePath(opts.configPath)

	var cfg *config.Config
	var err error
	if explicit {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadIfExists(path)
	}
	if err != nil {
		return nil, path, err
	}
	if opts.session {
		cfg.Bus.Type = bus.TypeSession
	}
	return cfg, path, nil
}

// run is the daemon, separated from main for testability. It returns nil
// when ctx is cancelled and an error if the bus connection is lost, so a
// supervisor restarts us.
func run(ctx context.Context, args []string, out io.Writer) error { //nolint:gocognit,gocyclo // linear start-up sequence
	opts, err := parseFlags(args, out)
	if errors.Is(err, errHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	log := logging.Default()

	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting backlightd",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	fan := notify.NewFanout(notify.DefaultQueueSize)
	fan.SetLogger(log.Component("notify"))

	var db *database.DB
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		auditRepo = audit.NewSQLiteRepository(db.DB)
		fan.Add(notify.NewAuditSink(auditRepo))
		log.Info("audit trail enabled", "path", cfg.Database.Path)
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		fan.Add(notify.NewMQTTSink(mqttClient))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		fan.Add(notify.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	fan.Start(ctx)
	defer fan.Close()

	accessor := brightness.NewAccessor(fan)
	accessor.SetLogger(log.Component("brightness"))
	resolver := device.NewResolver(device.NewSysfsEnumerator(cfg.Sysfs.Root, cfg.Sysfs.DevRoot))
	table := service.NewTable(resolver, accessor)

	var worker *capture.Worker
	if cfg.Capture.Enabled {
		worker = capture.NewWorker(&capture.CommandCapturer{
			Binary:  cfg.Capture.Command,
			Args:    cfg.Capture.Args,
			Timeout: cfg.GetCaptureTimeout(),
		}, cfg.Capture.QueueSize)
		worker.SetLogger(log.Component("capture"))
		worker.SetRecorder(fan)
		worker.Start(ctx)
		defer worker.Stop()
		table.EnableCapture(worker)
		log.Info("frame capture enabled", "command", cfg.Capture.Command)
	}

	loop := service.NewLoop(table, cfg.Loop.QueueSize)
	loop.SetLogger(log.Component("loop"))

	srv, err := bus.Connect(bus.Config{
		Type:      cfg.Bus.Type,
		Name:      cfg.Bus.Name,
		Path:      cfg.Bus.Path,
		Interface: cfg.Bus.Interface,
	})
	if err != nil {
		return fmt.Errorf("starting bus service: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing bus connection", "error", closeErr)
		}
	}()
	srv.SetLogger(log.Component("bus"))
	if err := srv.Export(loop, table); err != nil {
		return fmt.Errorf("exporting %s: %w", cfg.Bus.Name, err)
	}

	if mqttClient != nil && cfg.MQTT.Commands.Enabled {
		bridge := mqttcmd.New(mqttClient, loop, byte(cfg.MQTT.QoS)) //nolint:gosec // QoS validated to 0-2
		bridge.SetLogger(log.Component("mqttcmd"))
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT command bridge: %w", err)
		}
		defer func() {
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT command bridge", "error", stopErr)
			}
		}()
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Loop:    loop,
			Bus:     srv,
			Notify:  fan,
			Audit:   auditRepo,
			DB:      db,
			Version: version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if influxClient != nil {
			deps.Influx = influxClient
		}
		if worker != nil {
			deps.Capture = worker
		}
		apiServer, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, serving requests")

	// Deferred closes run in reverse order once the loop has stopped.
	if err := loop.Run(ctx, srv.Lost()); err != nil {
		return fmt.Errorf("request loop: %w", err)
	}

	log.Info("backlightd stopped")
	return nil
}
