package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL    string         `mapstructure:"database_url"`
	ServerPort     string         `mapstructure:"server_port"`
	JWTSecret      string         `mapstructure:"jwt_secret"`
	AllowedOrigins []string       `mapstructure:"allowed_origins"`
	Storage        StorageConfig  `mapstructure:"storage"`
	Redis          RedisConfig    `mapstructure:"redis"`
	Cache          CacheConfig    `mapstructure:"cache"`
	Sync           SyncConfig     `mapstructure:"sync"`
	Temporal       TemporalConfig `mapstructure:"temporal"`
	Email          EmailConfig    `mapstructure:"email"`
	Seed           SeedConfig     `mapstructure:"seed"`
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SyncConfig struct {
	APIURL                string          `mapstructure:"api_url"`
	Token                 string          `mapstructure:"token"` // bearer token of the watch client
	RequestsInterval      time.Duration   `mapstructure:"requests_interval"`
	NotificationsInterval time.Duration   `mapstructure:"notifications_interval"`
	BurstOffsets          []time.Duration `mapstructure:"burst_offsets"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
}

type EmailConfig struct {
	From              string `mapstructure:"from"`
	SMTPHost          string `mapstructure:"smtp_host"`
	SMTPPort          int    `mapstructure:"smtp_port"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	InviteURLTemplate string `mapstructure:"invite_url_template"`
	// NotifyUsers mirrors feed notifications to the recipient's mailbox.
	NotifyUsers bool `mapstructure:"notify_users"`
}

// SeedConfig populates the directory when running on the memory driver.
type SeedConfig struct {
	Users         []SeedUser   `mapstructure:"users"`
	Credentials   []SeedTarget `mapstructure:"credentials"`
	Projects      []SeedTarget `mapstructure:"projects"`
	Subscriptions []SeedTarget `mapstructure:"subscriptions"`
}

type SeedUser struct {
	ID           string `mapstructure:"id"`
	Email        string `mapstructure:"email"`
	Name         string `mapstructure:"name"`
	Role         string `mapstructure:"role"`
	DepartmentID string `mapstructure:"department_id"`
}

type SeedTarget struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	OwnerID  string `mapstructure:"owner_id"`
	Privacy  string `mapstructure:"privacy"`
	Archived bool   `mapstructure:"archived"`
}

// Load reads config.yaml from the current directory or ./config. Every key
// can be overridden with a TRACKER_ prefixed environment variable.
func Load() (*Config, error) {
	v, err := readViper()
	if err != nil {
		return nil, err
	}
	return fromViper(v)
}

// LoadSync reads only the client sync section. It skips the server checks so
// the watch client runs without database or signing settings.
func LoadSync() (*SyncConfig, error) {
	v, err := readViper()
	if err != nil {
		return nil, err
	}
	return syncFromViper(v)
}

func readViper() (*viper.Viper, error) {
	v := viper.New()

	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("tracker")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("sync.api_url", "http://localhost:8080/api")
	v.SetDefault("sync.requests_interval", 2*time.Second)
	v.SetDefault("sync.notifications_interval", 5*time.Second)
	v.SetDefault("sync.burst_offsets", []string{"0s", "500ms", "1500ms", "3s"})
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.invite_url_template", "http://localhost:3000/collab-invites/%s?targetKind=%s")
}

func fromViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.Cache.TTL <= 0 {
		config.Cache.TTL = 5 * time.Minute
	}

	if strings.TrimSpace(config.JWTSecret) == "" {
		return nil, errors.New("jwt_secret must be set")
	}
	switch config.Storage.Driver {
	case "postgres":
		if strings.TrimSpace(config.DatabaseURL) == "" {
			return nil, errors.New("database_url must be set for the postgres storage driver")
		}
	case "memory":
	default:
		return nil, errors.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	return &config, nil
}

func syncFromViper(v *viper.Viper) (*SyncConfig, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	sync := config.Sync
	if strings.TrimSpace(sync.APIURL) == "" {
		return nil, errors.New("sync.api_url must be set")
	}
	if strings.TrimSpace(sync.Token) == "" {
		return nil, errors.New("sync.token must be set")
	}
	return &sync, nil
}
