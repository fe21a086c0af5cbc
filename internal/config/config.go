package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     int    `mapstructure:"port"`
	CacheDir string `mapstructure:"cache_dir"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// Media acquisition
	Retention        time.Duration `mapstructure:"retention"`
	MaxFilesize      string        `mapstructure:"max_filesize"`
	AudioFormat      string        `mapstructure:"audio_format"`
	DownloadAttempts int           `mapstructure:"download_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	VerifyAttempts   int           `mapstructure:"verify_attempts"`
	VerifyDelay      time.Duration `mapstructure:"verify_delay"`
	DedupeDownloads  bool          `mapstructure:"dedupe_downloads"`
	StrictMatch      bool          `mapstructure:"strict_match"`
	YTDLPPath        string        `mapstructure:"ytdlp_path"`
	YTDLPRetries     int           `mapstructure:"ytdlp_retries"`
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`

	// HTTP
	UploadLimit    string   `mapstructure:"upload_limit"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Upstream services
	GeminiModel             string        `mapstructure:"gemini_model"`
	LemurModel              string        `mapstructure:"lemur_model"`
	PollInterval            time.Duration `mapstructure:"poll_interval"`
	ContentSafetyConfidence int           `mapstructure:"content_safety_confidence"`
}

// Secrets are read from the environment only; they never live in a config file.
type Secrets struct {
	AssemblyAIKey   string `env:"ASSEMBLYAI_API_KEY"`
	GeminiKey       string `env:"GEMINI_API_KEY"`
	LegacyGeminiKey string `env:"NEXT_PUBLIC_GEMINI_API_KEY"`
	GoogleKey       string `env:"GOOGLE_API_KEY"`
}

// Gemini returns the configured Gemini key, falling back to the legacy variable name.
func (s Secrets) Gemini() string {
	if s.GeminiKey != "" {
		return s.GeminiKey
	}
	return s.LegacyGeminiKey
}

var Defaults = Config{
	Port:     4000,
	CacheDir: "./temp_audio",
	DataDir:  "./data",
	LogLevel: "info",

	Retention:        time.Hour,
	MaxFilesize:      "100m",
	AudioFormat:      "mp3",
	DownloadAttempts: 3,
	RetryDelay:       2 * time.Second,
	VerifyAttempts:   3,
	VerifyDelay:      time.Second,
	DedupeDownloads:  true,
	YTDLPPath:        "yt-dlp",
	YTDLPRetries:     3,
	DownloadTimeout:  10 * time.Minute,

	UploadLimit:    "500MiB",
	AllowedOrigins: []string{"*"},

	GeminiModel:             "gemini-1.5-flash",
	LemurModel:              "anthropic/claude-3-5-sonnet",
	PollInterval:            3 * time.Second,
	ContentSafetyConfidence: 60,
}

// SetDefaults registers Defaults on v so that files, env and flags only override what they name.
func SetDefaults(v *viper.Viper) {
	d := Defaults
	v.SetDefault("port", d.Port)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("retention", d.Retention)
	v.SetDefault("max_filesize", d.MaxFilesize)
	v.SetDefault("audio_format", d.AudioFormat)
	v.SetDefault("download_attempts", d.DownloadAttempts)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("verify_attempts", d.VerifyAttempts)
	v.SetDefault("verify_delay", d.VerifyDelay)
	v.SetDefault("dedupe_downloads", d.DedupeDownloads)
	v.SetDefault("strict_match", d.StrictMatch)
	v.SetDefault("ytdlp_path", d.YTDLPPath)
	v.SetDefault("ytdlp_retries", d.YTDLPRetries)
	v.SetDefault("download_timeout", d.DownloadTimeout)
	v.SetDefault("upload_limit", d.UploadLimit)
	v.SetDefault("allowed_origins", d.AllowedOrigins)
	v.SetDefault("gemini_model", d.GeminiModel)
	v.SetDefault("lemur_model", d.LemurModel)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("content_safety_confidence", d.ContentSafetyConfidence)
}

// Load resolves the configuration from defaults, an optional config file
// and AUDIOKIT_* environment variables. A missing file falls back to defaults.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("audiokit")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is the conventional name on most hosting platforms.
	_ = v.BindEnv("port", "AUDIOKIT_PORT", "PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadSecrets reads API keys from the environment, loading .env first when present.
func LoadSecrets(dotenv ...string) (Secrets, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load(dotenv...)
	return env.ParseAs[Secrets]()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		errs = append(errs, errors.New("cache_dir is required"))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Retention <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	if c.DownloadAttempts < 1 {
		errs = append(errs, errors.New("download_attempts must be at least 1"))
	}
	if c.VerifyAttempts < 1 {
		errs = append(errs, errors.New("verify_attempts must be at least 1"))
	}
	if c.RetryDelay < 0 || c.VerifyDelay < 0 {
		errs = append(errs, errors.New("retry_delay and verify_delay must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if _, err := humanize.ParseBytes(c.MaxFilesize); err != nil {
		errs = append(errs, fmt.Errorf("max_filesize %q: %w", c.MaxFilesize, err))
	}
	if _, err := humanize.ParseBytes(c.UploadLimit); err != nil {
		errs = append(errs, fmt.Errorf("upload_limit %q: %w", c.UploadLimit, err))
	}
	return errors.Join(errs...)
}

// UploadLimitBytes returns the parsed multipart upload limit.
func (c Config) UploadLimitBytes() int64 {
	n, err := humanize.ParseBytes(c.UploadLimit)
	if err != nil {
		return 0
	}
	return int64(n)
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
