package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfig_DefaultsAndSecrets(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "08:00", cfg.Scheduling.WorkDayStart)
	assert.Equal(t, "17:00", cfg.Scheduling.WorkDayEnd)
	assert.Equal(t, 30*time.Minute, cfg.Scheduling.SlotDuration)
	assert.Equal(t, 5, cfg.Scheduling.MaxAttachments)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "pw", cfg.Database.Password)
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	yml := []byte(`
server:
  port: 9090
database:
  driver: memory
scheduling:
  slot_duration: 45m
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), yml, 0o600))
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("CAREBOOK_SERVER_PORT", "7070")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 45*time.Minute, cfg.Scheduling.SlotDuration)
}

func TestLoadConfig_RequiresJWTSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "jwt secret")
}
