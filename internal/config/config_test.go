package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return fromViper(v)
}

func TestDefaultsApply(t *testing.T) {
	cfg, err := load(t, "jwt_secret: s3cret\nstorage:\n  driver: memory\n")
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.ServerPort)
	require.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	require.Equal(t, 2*time.Second, cfg.Sync.RequestsInterval)
	require.Equal(t, 5*time.Second, cfg.Sync.NotificationsInterval)
	require.Equal(t, []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}, cfg.Sync.BurstOffsets)
	require.Equal(t, 587, cfg.Email.SMTPPort)
}

func TestJWTSecretRequired(t *testing.T) {
	_, err := load(t, "storage:\n  driver: memory\n")
	require.ErrorContains(t, err, "jwt_secret")
}

func TestPostgresNeedsDatabaseURL(t *testing.T) {
	_, err := load(t, "jwt_secret: s3cret\n")
	require.ErrorContains(t, err, "database_url")
}

func TestSeedSection(t *testing.T) {
	cfg, err := load(t, `
jwt_secret: s3cret
storage:
  driver: memory
seed:
  users:
    - id: u1
      email: ann@example.com
      role: ADMIN
      department_id: it
  credentials:
    - id: c1
      name: prod-db
      owner_id: u1
      privacy: PUBLIC
`)
	require.NoError(t, err)
	require.Len(t, cfg.Seed.Users, 1)
	require.Equal(t, "it", cfg.Seed.Users[0].DepartmentID)
	require.Equal(t, "PUBLIC", cfg.Seed.Credentials[0].Privacy)
}

func TestSyncSectionStandsAlone(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	require.NoError(t, v.ReadConfig(strings.NewReader("sync:\n  token: abc\n  requests_interval: 1s\n")))

	sync, err := syncFromViper(v)
	require.NoError(t, err)
	require.Equal(t, "abc", sync.Token)
	require.Equal(t, "http://localhost:8080/api", sync.APIURL)
	require.Equal(t, time.Second, sync.RequestsInterval)
	require.Equal(t, 5*time.Second, sync.NotificationsInterval)
}

func TestSyncTokenRequired(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	_, err := syncFromViper(v)
	require.ErrorContains(t, err, "sync.token")
}
