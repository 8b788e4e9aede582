package debuglog

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatHuman = "human"
	FormatJSON  = "json"
)

// Config selects the level and encoding of the process logger.
type Config struct {
	Level  string `toml:"level,omitempty" mapstructure:"level"`
	Format string `toml:"format,omitempty" mapstructure:"format"`
}

func (c *Config) InitDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatHuman
	}
}

func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return errors.Wrapf(err, "log level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case FormatHuman, FormatJSON:
		return nil
	}
	return errors.Errorf("unknown log format %q", c.Format)
}

// New builds a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := zapcore.ParseLevel(cfg.Level)
	var zc zap.Config
	if strings.ToLower(cfg.Format) == FormatJSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}

// RateLimiter lets one log line per key through per interval.
type RateLimiter struct {
	interval time.Duration

	mu    sync.Mutex
	last  map[string]time.Time
	sweep time.Time
	now   func() time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether a line for key may be logged now.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || key == "" {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.last[key]; ok && now.Sub(last) < r.interval {
		return false
	}
	r.last[key] = now
	if now.Sub(r.sweep) > 2*r.interval {
		for k, ts := range r.last {
			if now.Sub(ts) > 4*r.interval {
				delete(r.last, k)
			}
		}
		r.sweep = now
	}
	return true
}

// Warn logs msg at warn level unless key was logged within the interval.
func (r *RateLimiter) Warn(log *zap.Logger, key, msg string, fields ...zap.Field) {
	if r.Allow(key) {
		log.Warn(msg, fields...)
	}
}
