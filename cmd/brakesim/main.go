package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/logging"
	intOtel "github.com/OCAP2/brakesim/internal/otel"
	"github.com/OCAP2/brakesim/internal/session"
	"github.com/OCAP2/brakesim/internal/sim"
)

// BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "brakesim"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger feeds the database and InfluxDB managers and the dispatcher
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// LogFile receives the log of a run; nil logs to stdout
	LogFile *os.File

	RunStartTime time.Time = time.Now()

	sessionContext = session.NewContext()

	// activeRunner is read by the log context handler
	activeRunner atomic.Pointer[sim.Runner]
)

const usage = `usage: brakesim <command> [args]

commands:
  run [configDir]                 simulate the configured consist
  restore <sessionID> [configDir] continue from a session's latest snapshot
  sessions [configDir]            list stored sessions
  export <sessionID> [configDir]  write a session as a JSON export
  version                         print the version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	rest := args[1:]
	switch strings.ToLower(args[0]) {
	case "run":
		err = cmdRun(ctx, dirArg(rest, 0), "", stdout)
	case "restore":
		if len(rest) == 0 {
			fmt.Fprintln(stderr, "No session ID provided.")
			return 2
		}
		err = cmdRun(ctx, dirArg(rest, 1), rest[0], stdout)
	case "sessions":
		err = cmdSessions(dirArg(rest, 0), stdout)
	case "export":
		if len(rest) == 0 {
			fmt.Fprintln(stderr, "No session ID provided.")
			return 2
		}
		err = cmdExport(rest[0], dirArg(rest, 1), stdout)
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "%s %s (built %s)\n", AppName, Version, BuildDate)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func dirArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return "."
}

// setup loads the settings from configDir and starts logging. With toFile
// set the log of the run goes to a file in logsDir and through OTel.
func setup(configDir string, toFile bool) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil, nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Debug("Loaded config", "dir", configDir)
	}

	level := viper.GetString("logLevel")
	var out io.Writer = os.Stderr
	if toFile {
		logsDir := viper.GetString("logsDir")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs dir: %w", err)
		}
		path := logging.LogFilePath(logsDir, viper.GetString("consist.name"), RunStartTime)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		LogFile = f
		out = f
		Logger.Info("Begin logging in logs directory", "path", path)
	}

	setupZerolog(out, level)

	// OTel logs go to the same file as the text handler
	otelCfg := config.GetOTelConfig()
	if toFile && otelCfg.Enabled {
		var err error
		OTelProvider, err = intOtel.New(intOtel.FromSettings(otelCfg, LogFile, viper.GetString("consist.name")))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else if otelCfg.Endpoint != "" {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}
	if OTelProvider == nil {
		OTelProvider, _ = intOtel.New(intOtel.Config{})
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(out, level, otelLogProvider, logging.SessionContext(sessionContext.ID, func() float64 {
		if r := activeRunner.Load(); r != nil {
			return r.SimTime()
		}
		return 0
	}))
	Logger = SlogManager.Logger()
	return nil
}

func setupZerolog(out io.Writer, level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	ZLogger = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}).Level(lvl).With().Timestamp().Logger()
}

// teardown flushes logging and closes the log file.
func teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if SlogManager != nil {
		if err := SlogManager.Flush(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "log flush failed:", err)
		}
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "otel shutdown failed:", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
		LogFile = nil
	}
}
