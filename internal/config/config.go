// Package config loads service and CLI configuration with viper: built-in
// defaults, then an optional YAML file, then environment variables, then
// any bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"palletroute/internal/heuristic"
	"palletroute/internal/logging"
	"palletroute/internal/webhooks"
)

const EnvPrefix = "PALLETROUTE"

// Engine names.
const (
	EngineBuiltin  = "builtin"
	EngineMiniZinc = "minizinc"
)

type Config struct {
	Server    Server          `mapstructure:"server"`
	Database  Database        `mapstructure:"database"`
	Redis     Redis           `mapstructure:"redis"`
	Log       Log             `mapstructure:"log"`
	Telemetry Telemetry       `mapstructure:"telemetry"`
	Heuristic HeuristicConfig `mapstructure:"heuristic"`
	Solvers   Solvers         `mapstructure:"solvers"`
	Webhooks  Webhooks        `mapstructure:"webhooks"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
	// Port overrides the port of Addr when set (PORT).
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Concurrent background runs accepted by the API.
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
}

// ListenAddr resolves Addr and Port into a listen address.
func (s Server) ListenAddr() string {
	if s.Port != "" {
		return ":" + s.Port
	}
	return s.Addr
}

type Database struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type Redis struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Telemetry struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// HeuristicConfig is the file/env form of heuristic.Config.
type HeuristicConfig struct {
	Fallback                  string        `mapstructure:"fallback" json:"fallback"`
	TreatEqualCapacityAsFixed bool          `mapstructure:"treat_equal_capacity_as_fixed" json:"treatEqualCapacityAsFixed"`
	PackingTimeLimit          time.Duration `mapstructure:"packing_time_limit" json:"packingTimeLimit"`
	RoutingTimeLimit          time.Duration `mapstructure:"routing_time_limit" json:"routingTimeLimit"`
	Workers                   int           `mapstructure:"workers" json:"workers"`
	SolverCallsPerSecond      float64       `mapstructure:"solver_calls_per_second" json:"solverCallsPerSecond"`
	SolverBurst               int           `mapstructure:"solver_burst" json:"solverBurst"`
	CacheSize                 int           `mapstructure:"cache_size" json:"cacheSize"`
	NbVehicles                int           `mapstructure:"nb_vehicles" json:"nbVehicles"`
}

// Heuristic converts to the value the pipeline consumes.
func (h HeuristicConfig) Heuristic() (heuristic.Config, error) {
	f, err := heuristic.ParseFallback(h.Fallback)
	if err != nil {
		return heuristic.Config{}, err
	}
	cfg := heuristic.Config{
		Fallback:                  f,
		TreatEqualCapacityAsFixed: h.TreatEqualCapacityAsFixed,
		PackingTimeLimit:          h.PackingTimeLimit,
		RoutingTimeLimit:          h.RoutingTimeLimit,
		Workers:                   h.Workers,
		SolverCallsPerSecond:      h.SolverCallsPerSecond,
		SolverBurst:               h.SolverBurst,
		CacheSize:                 h.CacheSize,
		NbVehicles:                h.NbVehicles,
	}
	return cfg, cfg.Validate()
}

type Solvers struct {
	Packing Engine `mapstructure:"packing"`
	Routing Engine `mapstructure:"routing"`
}

// Engine selects and parameterizes one solver.
type Engine struct {
	Engine     string `mapstructure:"engine"`
	Binary     string `mapstructure:"binary"`
	ModelPath  string `mapstructure:"model_path"`
	SolverName string `mapstructure:"solver_name"`
	Threads    int    `mapstructure:"threads"`
	Seed       int64  `mapstructure:"seed"`
	Iterations int    `mapstructure:"iterations"`
}

func (e Engine) validate(name string) error {
	switch e.Engine {
	case EngineBuiltin:
	case EngineMiniZinc:
		if strings.TrimSpace(e.ModelPath) == "" {
			return fmt.Errorf("solvers.%s.model_path is required for the minizinc engine", name)
		}
	default:
		return fmt.Errorf("solvers.%s.engine: unknown engine %q", name, e.Engine)
	}
	if e.Threads < 0 || e.Iterations < 0 {
		return fmt.Errorf("solvers.%s: threads and iterations must be >= 0", name)
	}
	return nil
}

type Webhooks struct {
	Subscriptions []webhooks.Subscription `mapstructure:"subscriptions"`
	MaxAttempts   int                     `mapstructure:"max_attempts"`
}

// Validate rejects unknown engines, fallback names and log levels.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Heuristic.Heuristic(); err != nil {
		errs = append(errs, fmt.Errorf("heuristic: %w", err))
	}
	if err := c.Solvers.Packing.validate("packing"); err != nil {
		errs = append(errs, err)
	}
	if err := c.Solvers.Routing.validate("routing"); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Server.MaxConcurrentRuns < 0 {
		errs = append(errs, errors.New("server.max_concurrent_runs must be >= 0"))
	}
	for i, s := range c.Webhooks.Subscriptions {
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("webhooks.subscriptions[%d].url is required", i))
		}
	}
	return errors.Join(errs...)
}

// Default returns the built-in configuration.
func Default() Config {
	cfg, err := Unmarshal(New())
	if err != nil {
		panic(err)
	}
	return cfg
}

// New returns a viper instance carrying defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	d := heuristic.DefaultConfig()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.port", "")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_concurrent_runs", 4)
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "palletroute:runs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "palletroute")
	v.SetDefault("heuristic.fallback", d.Fallback.String())
	v.SetDefault("heuristic.treat_equal_capacity_as_fixed", d.TreatEqualCapacityAsFixed)
	v.SetDefault("heuristic.packing_time_limit", d.PackingTimeLimit)
	v.SetDefault("heuristic.routing_time_limit", d.RoutingTimeLimit)
	v.SetDefault("heuristic.workers", d.Workers)
	v.SetDefault("heuristic.solver_calls_per_second", d.SolverCallsPerSecond)
	v.SetDefault("heuristic.solver_burst", d.SolverBurst)
	v.SetDefault("heuristic.cache_size", d.CacheSize)
	v.SetDefault("heuristic.nb_vehicles", d.NbVehicles)
	for _, kind := range []string{"packing", "routing"} {
		v.SetDefault("solvers."+kind+".engine", EngineBuiltin)
		v.SetDefault("solvers."+kind+".binary", "minizinc")
		v.SetDefault("solvers."+kind+".model_path", "")
		v.SetDefault("solvers."+kind+".solver_name", "chuffed")
		v.SetDefault("solvers."+kind+".threads", 0)
		v.SetDefault("solvers."+kind+".seed", 1)
		v.SetDefault("solvers."+kind+".iterations", 0)
	}
	v.SetDefault("webhooks.max_attempts", 10)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// deployment names kept from the original service
	_ = v.BindEnv("server.port", "PORT", EnvPrefix+"_SERVER_PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL", EnvPrefix+"_DATABASE_URL")
	_ = v.BindEnv("database.migrate", "DB_MIGRATE", EnvPrefix+"_DATABASE_MIGRATE")
	_ = v.BindEnv("redis.url", "REDIS_URL", EnvPrefix+"_REDIS_URL")
	_ = v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", EnvPrefix+"_TELEMETRY_ENDPOINT")
	return v
}

// Read merges a YAML file into v. An empty path is a no-op.
func Read(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Unmarshal decodes and validates the merged configuration.
func Unmarshal(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load is New + Read + Unmarshal.
func Load(path string) (Config, error) {
	v := New()
	if err := Read(v, path); err != nil {
		return Config{}, err
	}
	return Unmarshal(v)
}

// Public returns the non-secret settings for diagnostics.
func (c Config) Public() map[string]any {
	subs := make([]string, len(c.Webhooks.Subscriptions))
	for i, s := range c.Webhooks.Subscriptions {
		subs[i] = s.URL
	}
	return map[string]any{
		"server":    map[string]any{"addr": c.Server.ListenAddr(), "maxConcurrentRuns": c.Server.MaxConcurrentRuns},
		"database":  map[string]any{"configured": c.Database.URL != "", "migrate": c.Database.Migrate},
		"redis":     map[string]any{"configured": c.Redis.URL != "", "channel": c.Redis.Channel},
		"log":       map[string]any{"level": c.Log.Level, "development": c.Log.Development},
		"telemetry": map[string]any{"enabled": c.Telemetry.Enabled},
		"heuristic": c.Heuristic,
		"solvers": map[string]any{
			"packing": c.Solvers.Packing.Engine,
			"routing": c.Solvers.Routing.Engine,
		},
		"webhooks": subs,
	}
}
