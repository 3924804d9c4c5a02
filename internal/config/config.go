package config

import (
	"math"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/fit"
	"github.com/copyleftdev/optix/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		// MaxBodyBytes caps the size of request bodies.
		MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Fit struct {
		Hops        int     `env:"FIT_HOPS" envDefault:"100"`
		LowerBound  float64 `env:"FIT_LOWER_BOUND" envDefault:"1e-3"`
		StepSize    float64 `env:"FIT_STEP_SIZE" envDefault:"0.5"`
		Temperature float64 `env:"FIT_TEMPERATURE" envDefault:"1"`
		Seed        int64   `env:"FIT_SEED" envDefault:"0"`
		Strategy    string  `env:"FIT_STRATEGY" envDefault:"basinhopping"`
		LocalMethod string  `env:"FIT_LOCAL_METHOD" envDefault:"lbfgs"`
		Chains      int     `env:"FIT_CHAINS" envDefault:"1"`
		// WorkerCount caps the number of fits running at once.
		WorkerCount int `env:"FIT_WORKER_COUNT" envDefault:"4"`
		// Ceilings for per-request overrides.
		MaxHops   int `env:"FIT_MAX_HOPS" envDefault:"10000"`
		MaxChains int `env:"FIT_MAX_CHAINS" envDefault:"16"`
		// Finished fits are forgotten after Retention, and beyond
		// MaxRetained the oldest finished fits go first.
		Retention   time.Duration `env:"FIT_RETENTION" envDefault:"1h"`
		MaxRetained int           `env:"FIT_MAX_RETAINED" envDefault:"1000"`
	}
	Trace struct {
		MaxSamples int `env:"TRACE_MAX_SAMPLES" envDefault:"1000"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing environment").
			WithComponent("config").WithOperation("Load")
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fit settings.
func (c *Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return errors.Errorf(errors.KindConfiguration, format, args...).
			WithComponent("config").WithOperation("Validate")
	}

	if _, err := fit.ParseStrategy(c.Fit.Strategy); err != nil {
		return err
	}
	if _, err := optimization.ParseLocalMethod(c.Fit.LocalMethod); err != nil {
		return err
	}
	if c.Fit.Hops < 1 {
		return fail("FIT_HOPS must be positive, got %d", c.Fit.Hops)
	}
	if c.Fit.StepSize <= 0 || c.Fit.Temperature <= 0 {
		return fail("FIT_STEP_SIZE and FIT_TEMPERATURE must be positive")
	}
	if c.Fit.Chains < 1 || c.Fit.WorkerCount < 1 {
		return fail("FIT_CHAINS and FIT_WORKER_COUNT must be positive")
	}
	if c.Fit.MaxHops < c.Fit.Hops {
		return fail("FIT_MAX_HOPS (%d) is below FIT_HOPS (%d)", c.Fit.MaxHops, c.Fit.Hops)
	}
	if c.Fit.MaxChains < c.Fit.Chains {
		return fail("FIT_MAX_CHAINS (%d) is below FIT_CHAINS (%d)", c.Fit.MaxChains, c.Fit.Chains)
	}
	if c.Fit.Retention <= 0 || c.Fit.MaxRetained < 1 {
		return fail("FIT_RETENTION and FIT_MAX_RETAINED must be positive")
	}
	if c.Trace.MaxSamples < 2 || c.HTTP.MaxBodyBytes < 1 {
		return fail("TRACE_MAX_SAMPLES must be at least 2 and HTTP_MAX_BODY_BYTES positive")
	}
	return nil
}

// FitOptions converts the fit settings into run options. Per-request
// options appended after these take precedence.
func (c *Config) FitOptions() []fit.RunOption {
	strategy, _ := fit.ParseStrategy(c.Fit.Strategy)
	method, _ := optimization.ParseLocalMethod(c.Fit.LocalMethod)
	return []fit.RunOption{
		fit.WithHops(c.Fit.Hops),
		fit.WithSeed(c.Fit.Seed),
		fit.WithStepSize(c.Fit.StepSize),
		fit.WithTemperature(c.Fit.Temperature),
		fit.WithStrategy(strategy),
		fit.WithLocalMethod(method),
		fit.WithChains(c.Fit.Chains),
	}
}

// DefaultBounds returns [FIT_LOWER_BOUND, +Inf) for n parameters.
func (c *Config) DefaultBounds(n int) [][2]float64 {
	bounds := make([][2]float64, n)
	for i := range bounds {
		bounds[i] = [2]float64{c.Fit.LowerBound, math.Inf(1)}
	}
	return bounds
}
