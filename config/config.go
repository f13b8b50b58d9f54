package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	AWS      AWSConfig
	Stream   StreamConfig
	LMS      LMSConfig
	Pipeline PipelineConfig
	Module   ModuleConfig
	Schedule ScheduleConfig
	Zoom     ZoomConfig
	Webex    WebexConfig
	Teams    TeamsConfig
	Unicko   UnickoConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// JWTConfig holds operator token signing settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// LogConfig selects level and optional rotating file output.
type LogConfig struct {
	Level      string
	File       string // empty = stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AWSConfig holds credentials for the archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string // empty disables row snapshots
	PresignExpireMinutes int
}

// StreamConfig points at the streaming host upload API.
type StreamConfig struct {
	URL        string
	Key        string
	CategoryID string
}

// LMSConfig points at the course host web service.
type LMSConfig struct {
	URL    string
	Token  string
	SiteID int64
}

// Storage modes.
const (
	StorageStream     = "stream"
	StorageNoDownload = "nodownload"
)

// PipelineConfig holds sweep behavior shared by all platforms.
type PipelineConfig struct {
	Platforms        []string
	StorageMode      string
	DaysToListing    int
	DaysToCleanup    int
	HTTPTimeoutSec   int
	Timezone         string
	HideFromStudents bool
	BasedGrouping    bool
	EmbedOrder       string // before | after
	EmbedBatch       int
	UploadMaxTries   int
}

// ModuleConfig controls the name of embedded course modules.
type ModuleConfig struct {
	Prefix           string
	AddDate          bool
	HideTopic        bool
	AddRecordingType bool
}

// ScheduleConfig holds the cron spec of each periodic job.
type ScheduleConfig struct {
	Listing      string
	Upload       string
	Embed        string
	Cleanup      string
	RefreshToken string
}

// ZoomConfig holds server-to-server OAuth credentials.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	APIURL       string
	OAuthURL     string
}

// WebexConfig holds integration credentials; the access token is rotated by the refresh job.
type WebexConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	APIURL       string
}

// TeamsConfig holds Azure AD app credentials.
type TeamsConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	OwnerMarker  string
	UsersFilter  []string
	GraphURL     string
	LoginURL     string
}

// UnickoConfig holds API key credentials.
type UnickoConfig struct {
	Key    string
	Secret string
	APIURL string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// DirectLink reports whether videos stay on the vendor and rows skip the upload stage.
func (c PipelineConfig) DirectLink() bool {
	return c.StorageMode == StorageNoDownload
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "recsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Stream: StreamConfig{
			URL:        strings.TrimRight(getEnv("STREAM_URL", ""), "/"),
			Key:        getEnv("STREAM_KEY", ""),
			CategoryID: getEnv("STREAM_CATEGORY_ID", ""),
		},
		LMS: LMSConfig{
			URL:    strings.TrimRight(getEnv("LMS_URL", ""), "/"),
			Token:  getEnv("LMS_TOKEN", ""),
			SiteID: int64(getEnvInt("LMS_SITE_ID", 1)),
		},
		Pipeline: PipelineConfig{
			Platforms:        splitTrim(strings.ToLower(getEnv("PLATFORMS", "zoom")), ","),
			StorageMode:      getEnv("STORAGE_MODE", StorageStream),
			DaysToListing:    getEnvInt("DAYS_TO_LISTING", 1),
			DaysToCleanup:    getEnvInt("DAYS_TO_CLEANUP", 0),
			HTTPTimeoutSec:   getEnvInt("HTTP_TIMEOUT_SEC", 30),
			Timezone:         getEnv("TIMEZONE", "UTC"),
			HideFromStudents: getEnvBool("HIDE_FROM_STUDENTS", false),
			BasedGrouping:    getEnvBool("BASED_GROUPING", false),
			EmbedOrder:       getEnv("EMBED_ORDER", "before"),
			EmbedBatch:       getEnvInt("EMBED_BATCH", 100),
			UploadMaxTries:   getEnvInt("UPLOAD_MAX_TRIES", 3),
		},
		Module: ModuleConfig{
			Prefix:           getEnv("MODULE_PREFIX", ""),
			AddDate:          getEnvBool("MODULE_ADD_DATE", true),
			HideTopic:        getEnvBool("MODULE_HIDE_TOPIC", false),
			AddRecordingType: getEnvBool("MODULE_ADD_RECORDING_TYPE", false),
		},
		Schedule: ScheduleConfig{
			Listing:      getEnv("SCHEDULE_LISTING", "*/5 * * * *"),
			Upload:       getEnv("SCHEDULE_UPLOAD", "*/5 * * * *"),
			Embed:        getEnv("SCHEDULE_EMBED", "*/5 * * * *"),
			Cleanup:      getEnv("SCHEDULE_CLEANUP", "0 */6 * * *"),
			RefreshToken: getEnv("SCHEDULE_REFRESH_TOKEN", "0 0 */5 * *"),
		},
		Zoom: ZoomConfig{
			AccountID:    getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:     getEnv("ZOOM_CLIENT_ID", ""),
			ClientSecret: getEnv("ZOOM_CLIENT_SECRET", ""),
			APIURL:       getEnv("ZOOM_API_URL", "https://api.zoom.us/v2"),
			OAuthURL:     getEnv("ZOOM_OAUTH_URL", "https://zoom.us/oauth/token"),
		},
		Webex: WebexConfig{
			ClientID:     getEnv("WEBEX_CLIENT_ID", ""),
			ClientSecret: getEnv("WEBEX_CLIENT_SECRET", ""),
			RefreshToken: getEnv("WEBEX_REFRESH_TOKEN", ""),
			AccessToken:  getEnv("WEBEX_ACCESS_TOKEN", ""),
			APIURL:       getEnv("WEBEX_API_URL", "https://webexapis.com/v1"),
		},
		Teams: TeamsConfig{
			TenantID:     getEnv("TEAMS_TENANT_ID", ""),
			ClientID:     getEnv("TEAMS_CLIENT_ID", ""),
			ClientSecret: getEnv("TEAMS_CLIENT_SECRET", ""),
			OwnerMarker:  getEnv("TEAMS_OWNER_MARKER", "moodle@"),
			UsersFilter:  splitTrim(getEnv("TEAMS_USERS_FILTER", ""), ","),
			GraphURL:     getEnv("TEAMS_GRAPH_URL", "https://graph.microsoft.com/v1.0"),
			LoginURL:     getEnv("TEAMS_LOGIN_URL", "https://login.microsoftonline.com"),
		},
		Unicko: UnickoConfig{
			Key:    getEnv("UNICKO_KEY", ""),
			Secret: getEnv("UNICKO_SECRET", ""),
			APIURL: getEnv("UNICKO_API_URL", "https://api.unicko.com/v1"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Pipeline.StorageMode {
	case StorageStream, StorageNoDownload:
	default:
		return fmt.Errorf("STORAGE_MODE must be %q or %q, got %q", StorageStream, StorageNoDownload, c.Pipeline.StorageMode)
	}
	switch c.Pipeline.EmbedOrder {
	case "before", "after":
	default:
		return fmt.Errorf("EMBED_ORDER must be before or after, got %q", c.Pipeline.EmbedOrder)
	}
	if c.Pipeline.UploadMaxTries < 1 {
		return fmt.Errorf("UPLOAD_MAX_TRIES must be positive")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
