package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfigMergesEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
scheduler:
  interval_seconds: 60
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)

	cfg, err := LoadConfig("production", dir)
	require.NoError(t, err)

	db := cfg["db"].(map[string]interface{})
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, 5432, db["port"])
	assert.Equal(t, 60, cfg["scheduler"].(map[string]interface{})["interval_seconds"])
}

func TestLoadConfigMissingEnvFileUsesBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: \"8080\"\n")

	cfg, err := LoadConfig("staging", dir)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg["server"].(map[string]interface{})["port"])
}

func TestLoadConfigSubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: ${MM_TEST_JWT}\nnotifier:\n  smtp:\n    password: ${MM_TEST_SMTP}\n")
	writeFile(t, dir, "secrets.env", "# local secrets\nMM_TEST_JWT=\"from-file\"\nMM_TEST_SMTP=smtp-file\n")
	t.Setenv("MM_TEST_SMTP", "smtp-env")

	var out struct {
		JWT      JWTConfig      `yaml:"jwt"`
		Notifier NotifierConfig `yaml:"notifier"`
	}
	require.NoError(t, Decode("local", dir, &out))

	assert.Equal(t, "from-file", out.JWT.Secret)
	assert.Equal(t, "smtp-env", out.Notifier.SMTP.Password)
}

func TestLoadConfigRequiresBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	require.Error(t, err)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SCAN_INTERVAL", "15")
	t.Setenv("SMTP_PORT", "not-a-number")

	db := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&db)
	assert.Equal(t, "pg", db.Host)
	assert.Equal(t, 6543, db.Port)

	sched := SchedulerConfig{}
	OverrideSchedulerFromEnv(&sched)
	assert.Equal(t, 15, sched.IntervalSeconds)

	n := NotifierConfig{SMTP: SMTPConfig{Port: 587}}
	OverrideNotifierFromEnv(&n)
	assert.Equal(t, 587, n.SMTP.Port)
}

func TestSchedulerIntervalDefault(t *testing.T) {
	assert.Equal(t, "1m0s", SchedulerConfig{}.Interval().String())
	assert.Equal(t, "30s", SchedulerConfig{IntervalSeconds: 30}.Interval().String())
}
