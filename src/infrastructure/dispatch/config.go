package dispatch

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML values like "2m" or "90s" into a time.Duration
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the job processor tunables. All fields have working defaults;
// a YAML file pointed at by DISPATCH_CONFIG overrides them.
type Config struct {
	// RatePerSecond paces outbound dispatches across both runners. The
	// default of 2/s matches a 500 ms inter-message delay.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the token bucket depth.
	Burst int `yaml:"burst"`

	// CronSpec drives daemon mode.
	CronSpec string `yaml:"cron_spec"`

	// LeaseTTL bounds how long a crashed processor can hold the run lease.
	LeaseTTL Duration `yaml:"lease_ttl"`
}

func DefaultConfig() Config {
	return Config{
		RatePerSecond: 2,
		Burst:         1,
		CronSpec:      "* * * * *",
		LeaseTTL:      Duration(5 * time.Minute),
	}
}

// LoadConfig reads the YAML file at path over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.CronSpec == "" {
		cfg.CronSpec = "* * * * *"
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = Duration(5 * time.Minute)
	}
	return cfg, nil
}
