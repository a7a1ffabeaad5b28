package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir(), "config")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "gemini-3-flash-preview", cfg.GeminiClient.Model)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.True(t, cfg.Database.SeedMockData)
	assert.Equal(t, "nas", cfg.Storage.Driver)
	assert.Equal(t, int64(50<<20), cfg.Upload.MaxBytes)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5, cfg.Scheduler.BatchSize)

	tpl, version := cfg.ImageAnalysisPrompt()
	assert.Equal(t, "ncd-v1", version)
	assert.Equal(t, DefaultImageAnalysisPrompt, tpl)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
server:
  addr: ":9090"
database:
  driver: mysql
  host: db.internal
  user: ncd
  dbName: ncd
storage:
  driver: minio
  minio:
    endpoint: "minio:9000"
    bucket: scans
prompts:
  imageAnalysis:
    currentVersion: NCD-V2
    versions:
      ncd-v2: "Look closely at %s."
scheduler:
  enabled: true
  batchSize: 2
`)
	t.Setenv("API_KEY", "from-env")

	cfg, err := Load(dir, "config")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.GeminiClient.APIKey)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "minio", cfg.Storage.Driver)
	assert.Equal(t, "scans", cfg.Storage.MinIO.Bucket)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 2, cfg.Scheduler.BatchSize)

	tpl, version := cfg.ImageAnalysisPrompt()
	assert.Equal(t, "ncd-v2", version)
	assert.Equal(t, "Look closely at %s.", tpl)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: sqlite\n"), "config")
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage:\n  driver: ftp\n"), "config")
	assert.Error(t, err)
}

func TestImageAnalysisPromptFallsBack(t *testing.T) {
	cfg := &Config{}
	cfg.Prompts.ImageAnalysis.CurrentVersion = "missing"
	tpl, version := cfg.ImageAnalysisPrompt()
	assert.Equal(t, DefaultImageAnalysisPrompt, tpl)
	assert.Equal(t, "default-v0", version)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 3306, DBName: "db"}
	assert.Equal(t, "u:p@tcp(h:3306)/db?charset=utf8mb4&parseTime=True&loc=Local", d.DSN())
	assert.Equal(t, "mysql://u:p@tcp(h:3306)/db?charset=utf8mb4&parseTime=True&loc=Local&multiStatements=true", d.MigrateURL())
}
