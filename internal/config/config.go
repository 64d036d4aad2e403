package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the settings file looked up in the config directory.
const FileName = "brakesim.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend. Each run
// dumps to its own database file in DumpDir.
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpDir      string
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Type   string
	Memory MemoryConfig
	SQLite SQLiteConfig
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB telemetry settings.
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
	// BackupDir receives gzipped line protocol while the server is down.
	BackupDir string
}

// StreamConfig holds the Server-Sent Events endpoint settings.
type StreamConfig struct {
	Enabled bool
	Address string
}

// SimConfig holds the run loop settings. MaxPressure and
// FullServicePressure are psi on an air train and inHg of vacuum on a
// vacuum train; zero picks the family default.
type SimConfig struct {
	TickSeconds         float64
	DurationSeconds     float64
	StartMoving         bool
	HandbrakeOn         bool
	ImmediateRelease    bool
	MaxPressure         float64
	FullServicePressure float64
	// RealTime paces ticks against the wall clock.
	RealTime       bool
	SnapshotEvery  time.Duration
	StatusEvery    time.Duration
	TelemetryEvery time.Duration
}

// CarConfig places one or more identical cars in the consist. Params
// override the template's values key by key.
type CarConfig struct {
	ID       string         `mapstructure:"id"`
	Template string         `mapstructure:"template"`
	Count    int            `mapstructure:"count"`
	Params   map[string]any `mapstructure:"params"`
}

// ScheduleEntry is one scripted operator action. Car addresses a car by
// ID for per-car actions; an empty Car means every car.
type ScheduleEntry struct {
	At      float64 `mapstructure:"at"`
	Action  string  `mapstructure:"action"`
	Car     string  `mapstructure:"car"`
	Value   float64 `mapstructure:"value"`
	On      bool    `mapstructure:"on"`
	Setting string  `mapstructure:"setting"`
}

// ConsistConfig describes the train to simulate. Lead is a car index;
// a negative Lead runs the train without a controlling unit.
type ConsistConfig struct {
	Name      string                    `mapstructure:"name"`
	Lead      int                       `mapstructure:"lead"`
	Templates map[string]map[string]any `mapstructure:"templates"`
	Cars      []CarConfig               `mapstructure:"cars"`
	Schedule  []ScheduleEntry           `mapstructure:"schedule"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./brakelogs")

	viper.SetDefault("sim.tickSeconds", 0.1)
	viper.SetDefault("sim.durationSeconds", 120.0)
	viper.SetDefault("sim.startMoving", false)
	viper.SetDefault("sim.handbrakeOn", false)
	viper.SetDefault("sim.immediateRelease", true)
	viper.SetDefault("sim.maxPressure", 0.0)
	viper.SetDefault("sim.fullServicePressure", 0.0)
	viper.SetDefault("sim.realTime", false)
	viper.SetDefault("sim.snapshotEvery", "10s")
	viper.SetDefault("sim.statusEvery", "30s")
	viper.SetDefault("sim.telemetryEvery", "1s")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./snapshots")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpDir", "./snapshots")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "brakesim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "brakesim")
	viper.SetDefault("influx.bucket", "brakes")
	viper.SetDefault("influx.backupDir", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "brakesim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.address", "localhost:8090")

	viper.SetDefault("consist.name", "consist")
	viper.SetDefault("consist.lead", 0)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSimConfig returns the run loop settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickSeconds:         viper.GetFloat64("sim.tickSeconds"),
		DurationSeconds:     viper.GetFloat64("sim.durationSeconds"),
		StartMoving:         viper.GetBool("sim.startMoving"),
		HandbrakeOn:         viper.GetBool("sim.handbrakeOn"),
		ImmediateRelease:    viper.GetBool("sim.immediateRelease"),
		MaxPressure:         viper.GetFloat64("sim.maxPressure"),
		FullServicePressure: viper.GetFloat64("sim.fullServicePressure"),
		RealTime:            viper.GetBool("sim.realTime"),
		SnapshotEvery:       viper.GetDuration("sim.snapshotEvery"),
		StatusEvery:         viper.GetDuration("sim.statusEvery"),
		TelemetryEvery:      viper.GetDuration("sim.telemetryEvery"),
	}
}

// GetStorageConfig returns the snapshot backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: strings.ToLower(viper.GetString("storage.type")),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpDir:      viper.GetString("storage.sqlite.dumpDir"),
		},
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB telemetry settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetStreamConfig returns the event stream settings.
func GetStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled: viper.GetBool("stream.enabled"),
		Address: viper.GetString("stream.address"),
	}
}

// GetConsistConfig decodes the consist description. Viper folds map keys
// to lower case, so template names and parameter keys arrive lowered.
func GetConsistConfig() (ConsistConfig, error) {
	var cc ConsistConfig
	if err := viper.UnmarshalKey("consist", &cc); err != nil {
		return cc, fmt.Errorf("error decoding consist: %w", err)
	}
	if len(cc.Cars) == 0 {
		return cc, fmt.Errorf("consist %q has no cars", cc.Name)
	}
	for i, car := range cc.Cars {
		if car.Template == "" {
			continue
		}
		if _, ok := cc.Templates[strings.ToLower(car.Template)]; !ok {
			return cc, fmt.Errorf("car %d: unknown template %q", i, car.Template)
		}
	}
	return cc, nil
}
