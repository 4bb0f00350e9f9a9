// Package config manages salewatch configuration.
//
// Settings come from three layers, highest precedence first:
//
//  1. Environment variables (SW_* prefix, plus the documented contract vars
//     DATABASE_URL and ENCRYPTION_KEY)
//  2. The YAML config file (~/.salewatch/config.yaml by default)
//  3. Built-in defaults
//
// A process-wide viper instance is initialized once at startup; direct YAML
// reads (LoadLocalConfig) exist for the cases where the singleton is not up
// yet.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Defaults for the sync pipeline. Overridable via config keys under sync.*.
const (
	DefaultTaskBatchSize   = 10
	DefaultConcurrentTasks = 8
	DefaultRecordBatchSize = 1000
	// DefaultMaxRetries is remote retries after the initial attempt, so
	// three attempts total.
	DefaultMaxRetries     = 2
	DefaultAttemptTimeout = 30 * time.Second
	DefaultStatusTTL      = 5 * time.Minute
	DefaultListenAddr     = "127.0.0.1:8844"
	DefaultPartnerBaseURL = "https://partner.steampowered.com/financialapi"
)

var (
	vMu sync.Mutex
	v   *viper.Viper
)

// Dir returns the salewatch home directory (~/.salewatch), honoring
// SW_HOME for tests and multi-instance setups.
func Dir() string {
	if dir := os.Getenv("SW_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".salewatch"
	}
	return filepath.Join(home, ".salewatch")
}

func buildViper() (*viper.Viper, error) {
	nv := viper.New()
	nv.SetConfigName("config")
	nv.SetConfigType("yaml")
	nv.AddConfigPath(Dir())
	nv.SetEnvPrefix("SW")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	if err := nv.ReadInConfig(); err != nil {
		// A missing config file is normal; anything else is worth surfacing.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nv, nil
}

// Initialize sets up the viper singleton. Safe to call more than once; later
// calls re-read the config file (tests rely on this after changing SW_HOME).
func Initialize() error {
	nv, err := buildViper()
	if err != nil {
		return err
	}
	vMu.Lock()
	v = nv
	vMu.Unlock()
	return nil
}

func instance() *viper.Viper {
	vMu.Lock()
	defer vMu.Unlock()
	if v == nil {
		nv, err := buildViper()
		if err != nil {
			// Fall back to an env-only instance so reads still work.
			nv = viper.New()
			nv.SetEnvPrefix("SW")
			nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
			nv.AutomaticEnv()
		}
		v = nv
	}
	return v
}

// GetString returns the configured string for key, or "" when unset.
func GetString(key string) string {
	return instance().GetString(key)
}

// GetInt returns the configured int for key, or def when unset or
// non-positive.
func GetInt(key string, def int) int {
	iv := instance()
	if !iv.IsSet(key) {
		return def
	}
	n := iv.GetInt(key)
	if n <= 0 {
		return def
	}
	return n
}

// GetDuration returns the configured duration for key, or def when unset.
func GetDuration(key string, def time.Duration) time.Duration {
	iv := instance()
	if !iv.IsSet(key) {
		return def
	}
	d := iv.GetDuration(key)
	if d <= 0 {
		return def
	}
	return d
}

// GetBool returns the configured bool for key, or def when unset.
func GetBool(key string, def bool) bool {
	iv := instance()
	if !iv.IsSet(key) {
		return def
	}
	return iv.GetBool(key)
}

// Settings is the resolved runtime configuration handed to the engine and
// server. Build one via Load at process start.
type Settings struct {
	DatabaseURL    string
	ListenAddr     string
	PartnerBaseURL string

	TaskBatchSize   int
	ConcurrentTasks int
	RecordBatchSize int
	// MaxRetries is remote retries after the initial attempt.
	MaxRetries     int
	AttemptTimeout time.Duration
	StatusTTL      time.Duration

	// StaleReclaimAfter > 0 enables the stale in-progress sweeper at
	// discovery time. Off by default.
	StaleReclaimAfter time.Duration

	Production bool
}

// Load resolves Settings from env, config file and defaults.
//
// Production deployments (SW_ENV=production) must provide ENCRYPTION_KEY;
// Load fails closed when it is missing.
func Load() (*Settings, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	s := &Settings{
		DatabaseURL:       firstNonEmpty(os.Getenv("DATABASE_URL"), GetString("database.url"), filepath.Join(Dir(), "salewatch.db")),
		ListenAddr:        firstNonEmpty(GetString("server.listen"), DefaultListenAddr),
		PartnerBaseURL:    firstNonEmpty(GetString("partner.base-url"), DefaultPartnerBaseURL),
		TaskBatchSize:     GetInt("sync.task-batch-size", DefaultTaskBatchSize),
		ConcurrentTasks:   GetInt("sync.concurrent-tasks", DefaultConcurrentTasks),
		RecordBatchSize:   GetInt("sync.record-batch-size", DefaultRecordBatchSize),
		MaxRetries:        GetInt("sync.max-retries", DefaultMaxRetries),
		AttemptTimeout:    GetDuration("sync.attempt-timeout", DefaultAttemptTimeout),
		StatusTTL:         GetDuration("sync.status-ttl", DefaultStatusTTL),
		StaleReclaimAfter: GetDuration("sync.stale-reclaim-after", 0),
		Production:        os.Getenv("SW_ENV") == "production",
	}

	if s.Production && os.Getenv("ENCRYPTION_KEY") == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required when SW_ENV=production")
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, val := range vals {
		if val != "" {
			return val
		}
	}
	return ""
}
