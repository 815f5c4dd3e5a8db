package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
connections:
  - name: bank-a
    url: https://bank.example/ebics
    host_id: EBIXHOST
    partner_id: PARTNER1
    user_id: USER0001
    fetch: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 4, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 7, cfg.Scheduler.FetchWindowDays)
	require.Len(t, cfg.Connections, 1)
	assert.True(t, cfg.Connections[0].Fetch)
	assert.False(t, cfg.Connections[0].Submit)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("EBICS_URL", "https://env.example/ebics")
	path := writeConfig(t, `
connections:
  - name: bank-a
    url: ${EBICS_URL}
    host_id: EBIXHOST
    partner_id: PARTNER1
    user_id: USER0001
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example/ebics", cfg.Connections[0].URL)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "mongodb requires uri",
			content: `
storage:
  backend: mongodb
`,
			wantErr: "storage.uri",
		},
		{
			name: "unknown backend",
			content: `
storage:
  backend: postgres
`,
			wantErr: "unknown storage backend",
		},
		{
			name: "connection missing url",
			content: `
connections:
  - name: bank-a
    host_id: EBIXHOST
    partner_id: P
    user_id: U
`,
			wantErr: "url is required",
		},
		{
			name: "duplicate connection names",
			content: `
connections:
  - name: bank-a
    url: https://a.example
    host_id: H
    partner_id: P
    user_id: U
  - name: bank-a
    url: https://b.example
    host_id: H
    partner_id: P
    user_id: U
`,
			wantErr: "duplicate connection name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
