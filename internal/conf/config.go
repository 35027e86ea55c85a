// Package conf holds the gateway settings and their loading from file, env and defaults.
package conf

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/TechinMama/RecipeForADisaster/internal/errors"
)

// EnvPrefix is the prefix for environment overrides, e.g. RECIPEGW_UPSTREAM.
const EnvPrefix = "RECIPEGW"

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Settings is the complete gateway configuration.
type Settings struct {
	Listen          string   `mapstructure:"listen" yaml:"listen"`
	Upstream        string   `mapstructure:"upstream" yaml:"upstream"`
	APIPrefix       string   `mapstructure:"apiprefix" yaml:"apiPrefix"`
	UpstreamTimeout Duration `mapstructure:"upstreamtimeout" yaml:"upstreamTimeout"`

	Store        StoreSettings        `mapstructure:"store" yaml:"store"`
	Cache        CacheSettings        `mapstructure:"cache" yaml:"cache"`
	Mirror       MirrorSettings       `mapstructure:"mirror" yaml:"mirror"`
	Connectivity ConnectivitySettings `mapstructure:"connectivity" yaml:"connectivity"`
	Bridge       BridgeSettings       `mapstructure:"bridge" yaml:"bridge"`
	Log          LogSettings          `mapstructure:"log" yaml:"log"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics      MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
}

// StoreSettings locates the durable local store.
type StoreSettings struct {
	Driver  string `mapstructure:"driver" yaml:"driver"`
	DataDir string `mapstructure:"datadir" yaml:"dataDir"`
	Name    string `mapstructure:"name" yaml:"name"`
	Version int    `mapstructure:"version" yaml:"version"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// CacheSettings names the HTTP response caches and the assets precached on install.
type CacheSettings struct {
	Prefix    string   `mapstructure:"prefix" yaml:"prefix"`
	Version   string   `mapstructure:"version" yaml:"version"`
	Precache  []string `mapstructure:"precache" yaml:"precache"`
	Snapshots bool     `mapstructure:"snapshots" yaml:"snapshots"`
}

// MirrorSettings selects which successful GET bodies are mirrored into the entity store.
type MirrorSettings struct {
	Patterns       []string `mapstructure:"patterns" yaml:"patterns"`
	CollectionPath string   `mapstructure:"collectionpath" yaml:"collectionPath"`
}

// ConnectivitySettings drives the upstream health probe.
type ConnectivitySettings struct {
	HealthPath    string   `mapstructure:"healthpath" yaml:"healthPath"`
	ProbeInterval Duration `mapstructure:"probeinterval" yaml:"probeInterval"`
	ProbeTimeout  Duration `mapstructure:"probetimeout" yaml:"probeTimeout"`
}

// BridgeSettings configures the client control channel.
type BridgeSettings struct {
	WSPath              string `mapstructure:"wspath" yaml:"wsPath"`
	ManualSyncPerMinute int    `mapstructure:"manualsyncperminute" yaml:"manualSyncPerMinute"`
}

type LogSettings struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentrydsn" yaml:"sentryDSN"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// StaticCacheName is the cache holding cache-first static assets.
func (c CacheSettings) StaticCacheName() string { return c.name("static") }

// DynamicCacheName is the cache for navigations and other non-API requests.
func (c CacheSettings) DynamicCacheName() string { return c.name("dynamic") }

// APICacheName is the cache of successful API GET responses.
func (c CacheSettings) APICacheName() string { return c.name("api") }

// Names returns every cache name of the current version.
func (c CacheSettings) Names() []string {
	return []string{c.StaticCacheName(), c.DynamicCacheName(), c.APICacheName()}
}

func (c CacheSettings) name(kind string) string {
	return fmt.Sprintf("%s-%s-%s", c.Prefix, kind, c.Version)
}

// SQLitePath is the database file used by the sqlite driver.
func (s StoreSettings) SQLitePath() string {
	return filepath.Join(s.DataDir, s.Name+".db")
}

// CacheDir is where HTTP cache snapshots are written.
func (s StoreSettings) CacheDir() string {
	return filepath.Join(s.DataDir, "cache")
}

// setDefaults registers every default on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "127.0.0.1:8090")
	v.SetDefault("upstream", "http://127.0.0.1:8080")
	v.SetDefault("apiprefix", "/api/")
	v.SetDefault("upstreamtimeout", "30s")

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.datadir", "./data")
	v.SetDefault("store.name", "RecipeOfflineDB")
	v.SetDefault("store.version", 1)
	v.SetDefault("store.dsn", "")

	v.SetDefault("cache.prefix", "recipe")
	v.SetDefault("cache.version", "v1")
	v.SetDefault("cache.precache", []string{
		"/",
		"/static/js/bundle.js",
		"/static/css/main.css",
		"/manifest.json",
		"/favicon.ico",
		"/logo192.png",
		"/logo512.png",
	})
	v.SetDefault("cache.snapshots", true)

	v.SetDefault("mirror.patterns", []string{"/api/recipes", "/api/recipes/*"})
	v.SetDefault("mirror.collectionpath", "/api/recipes")

	v.SetDefault("connectivity.healthpath", "/api/health")
	v.SetDefault("connectivity.probeinterval", "15s")
	v.SetDefault("connectivity.probetimeout", "3s")

	v.SetDefault("bridge.wspath", "/_gateway/ws")
	v.SetDefault("bridge.manualsyncperminute", 6)

	v.SetDefault("log.level", "info")

	v.SetDefault("telemetry.sentrydsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads settings from configFile (optional), RECIPEGW_* env vars and defaults.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("file", configFile).
				Build()
		}
	}

	return decode(v)
}

// Defaults returns settings with every default applied.
func Defaults() *Settings {
	v := viper.New()
	setDefaults(v)
	s, err := decode(v)
	if err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(err)
	}
	return s
}

func decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "decode").
			Build()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks settings the gateway cannot run without.
func (s *Settings) Validate() error {
	invalid := func(msg string, kv ...any) error {
		b := errors.Newf("%s", msg).Component("conf").Category(errors.CategoryConfiguration)
		for i := 0; i+1 < len(kv); i += 2 {
			b = b.Context(fmt.Sprint(kv[i]), kv[i+1])
		}
		return b.Build()
	}

	u, err := url.Parse(s.Upstream)
	if s.Upstream == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("upstream must be an absolute URL", "upstream", s.Upstream)
	}
	if !strings.HasPrefix(s.APIPrefix, "/") {
		return invalid("apiPrefix must start with /", "apiPrefix", s.APIPrefix)
	}
	switch s.Store.Driver {
	case DriverSQLite:
		if s.Store.DataDir == "" || s.Store.Name == "" {
			return invalid("sqlite store requires dataDir and name")
		}
	case DriverMySQL:
		if s.Store.DSN == "" {
			return invalid("mysql store requires dsn")
		}
	default:
		return invalid("unknown store driver", "driver", s.Store.Driver)
	}
	if s.Store.Version <= 0 {
		return invalid("store version must be positive", "version", s.Store.Version)
	}
	if s.Connectivity.ProbeInterval.Std() <= 0 {
		return invalid("probe interval must be positive", "probeInterval", s.Connectivity.ProbeInterval.String())
	}
	s.Connectivity.ProbeTimeout = s.Connectivity.ProbeTimeout.OrDefault(3 * time.Second)
	if s.Cache.Prefix == "" || s.Cache.Version == "" {
		return invalid("cache prefix and version are required")
	}
	return nil
}

// UpstreamURL joins the upstream base with path and raw query.
func (s *Settings) UpstreamURL(path, rawQuery string) string {
	base := strings.TrimSuffix(s.Upstream, "/")
	if rawQuery != "" {
		return base + path + "?" + rawQuery
	}
	return base + path
}
