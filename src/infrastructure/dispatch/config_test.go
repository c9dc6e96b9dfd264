package dispatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")

	assert.NoError(t, err)
	assert.Equal(t, 2.0, cfg.RatePerSecond)
	assert.Equal(t, 1, cfg.Burst)
	assert.Equal(t, "* * * * *", cfg.CronSpec)
	assert.Equal(t, Duration(5*time.Minute), cfg.LeaseTTL)
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yml")
	content := "rate_per_second: 10\nburst: 5\ncron_spec: \"*/5 * * * *\"\nlease_ttl: 2m\n"
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)

	assert.NoError(t, err)
	assert.Equal(t, 10.0, cfg.RatePerSecond)
	assert.Equal(t, 5, cfg.Burst)
	assert.Equal(t, "*/5 * * * *", cfg.CronSpec)
	assert.Equal(t, Duration(2*time.Minute), cfg.LeaseTTL)
}

func TestLoadConfigRejectsNonPositiveValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yml")
	content := "rate_per_second: -1\nburst: 0\n"
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)

	assert.NoError(t, err)
	assert.Equal(t, 2.0, cfg.RatePerSecond)
	assert.Equal(t, 1, cfg.Burst)
}
