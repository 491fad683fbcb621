package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Player   PlayerConfig   `mapstructure:"player" yaml:"player"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Submit   SubmitConfig   `mapstructure:"submit" yaml:"submit"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// AudioConfig describes the single whistle artifact and how it is encoded.
type AudioConfig struct {
	ArtifactDir  string `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	ArtifactName string `mapstructure:"artifact_name" yaml:"artifact_name"`
	SampleRate   int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels     int    `mapstructure:"channels" yaml:"channels"`
	Codec        string `mapstructure:"codec" yaml:"codec"`     // "aac"
	Quality      string `mapstructure:"quality" yaml:"quality"` // "min", "low", "medium", "high", "max"
}

type RecorderConfig struct {
	Backend           string        `mapstructure:"backend" yaml:"backend"` // "ffmpeg", "auto"
	FFmpegPath        string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	InputFormat       string        `mapstructure:"input_format" yaml:"input_format"` // "pulse", "alsa", "avfoundation", "dshow", "jack"
	InputDevice       string        `mapstructure:"input_device" yaml:"input_device"`
	AssumePermission  bool          `mapstructure:"assume_permission" yaml:"assume_permission"`
	PermissionTimeout time.Duration `mapstructure:"permission_timeout" yaml:"permission_timeout"`
	StopTimeout       time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

type PlayerConfig struct {
	Preferred string `mapstructure:"preferred" yaml:"preferred"` // "", "vlc", "mpv", "ffplay"
}

type StorageConfig struct {
	DataDir  string      `mapstructure:"data_dir" yaml:"data_dir"`
	Database string      `mapstructure:"database" yaml:"database"`
	Minio    MinioConfig `mapstructure:"minio" yaml:"minio"`
}

type MinioConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

type SubmitConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// AAC bitrates for a mono 12 kHz voice-band capture
var validQualities = map[string]string{
	"min":    "16k",
	"low":    "24k",
	"medium": "32k",
	"high":   "48k",
	"max":    "64k",
}

var validInputFormats = []string{"pulse", "alsa", "avfoundation", "dshow", "jack"}

// Default returns the built-in configuration: mono 12 kHz AAC at high quality.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "whistle")

	return &Config{
		Audio: AudioConfig{
			ArtifactDir:  dataDir,
			ArtifactName: "whistle.m4a",
			SampleRate:   12000,
			Channels:     1,
			Codec:        "aac",
			Quality:      "high",
		},
		Recorder: RecorderConfig{
			Backend:           "auto",
			FFmpegPath:        "ffmpeg",
			InputFormat:       "pulse",
			InputDevice:       "default",
			PermissionTimeout: 5 * time.Second,
			StopTimeout:       5 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:  dataDir,
			Database: filepath.Join(dataDir, "whistles.db"),
			Minio: MinioConfig{
				Bucket: "whistles",
				Region: "us-east-1",
			},
		},
		Submit: SubmitConfig{
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Port: "8080",
		},
		Log: LogConfig{
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load reads configFile on top of the defaults. An empty configFile yields the
// defaults plus WHISTLE_* environment overrides. A .env file in the working
// directory is loaded first and never overrides variables already set.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("WHISTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Audio.ArtifactDir = expandPath(cfg.Audio.ArtifactDir)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)
	cfg.Storage.Database = expandPath(cfg.Storage.Database)
	cfg.Log.File = expandPath(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("audio.artifact_dir", d.Audio.ArtifactDir)
	v.SetDefault("audio.artifact_name", d.Audio.ArtifactName)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.codec", d.Audio.Codec)
	v.SetDefault("audio.quality", d.Audio.Quality)

	v.SetDefault("recorder.backend", d.Recorder.Backend)
	v.SetDefault("recorder.ffmpeg_path", d.Recorder.FFmpegPath)
	v.SetDefault("recorder.input_format", d.Recorder.InputFormat)
	v.SetDefault("recorder.input_device", d.Recorder.InputDevice)
	v.SetDefault("recorder.assume_permission", d.Recorder.AssumePermission)
	v.SetDefault("recorder.permission_timeout", d.Recorder.PermissionTimeout)
	v.SetDefault("recorder.stop_timeout", d.Recorder.StopTimeout)

	v.SetDefault("player.preferred", d.Player.Preferred)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.database", d.Storage.Database)
	v.SetDefault("storage.minio.enabled", d.Storage.Minio.Enabled)
	v.SetDefault("storage.minio.endpoint", d.Storage.Minio.Endpoint)
	v.SetDefault("storage.minio.access_key", d.Storage.Minio.AccessKey)
	v.SetDefault("storage.minio.secret_key", d.Storage.Minio.SecretKey)
	v.SetDefault("storage.minio.bucket", d.Storage.Minio.Bucket)
	v.SetDefault("storage.minio.region", d.Storage.Minio.Region)
	v.SetDefault("storage.minio.use_ssl", d.Storage.Minio.UseSSL)

	v.SetDefault("submit.timeout", d.Submit.Timeout)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
}

// Save writes the configuration to path as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if path == "" {
		return fmt.Errorf("no config file specified")
	}

	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("error writing config file %s: %w", path, err)
	}

	return nil
}

// ArtifactPath is the fixed location every recording is written to.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.Audio.ArtifactDir, c.Audio.ArtifactName)
}

// ObjectsDir is where artifacts are archived when MinIO is disabled.
func (c *Config) ObjectsDir() string {
	return filepath.Join(c.Storage.DataDir, "objects")
}

// Bitrate maps the configured quality name to the encoder bitrate.
func (c *Config) Bitrate() string {
	if q, ok := validQualities[strings.ToLower(c.Audio.Quality)]; ok {
		return q
	}
	return validQualities["high"]
}

// Validate checks the configuration for values the recorder or storage cannot use.
func (c *Config) Validate() error {
	if c.Audio.ArtifactDir == "" {
		return fmt.Errorf("audio.artifact_dir is required")
	}
	if c.Audio.ArtifactName == "" {
		return fmt.Errorf("audio.artifact_name is required")
	}
	if strings.ContainsAny(c.Audio.ArtifactName, `/\`) {
		return fmt.Errorf("audio.artifact_name must be a file name, got: %s", c.Audio.ArtifactName)
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("audio.channels must be 1 (whistles are mono), got: %d", c.Audio.Channels)
	}
	if c.Audio.Codec != "aac" {
		return fmt.Errorf("audio.codec must be 'aac', got: %s", c.Audio.Codec)
	}
	if _, ok := validQualities[strings.ToLower(c.Audio.Quality)]; !ok {
		return fmt.Errorf("audio.quality must be one of min, low, medium, high, max, got: %s", c.Audio.Quality)
	}

	switch strings.ToLower(c.Recorder.Backend) {
	case "ffmpeg", "auto":
	default:
		return fmt.Errorf("recorder.backend must be 'ffmpeg' or 'auto', got: %s", c.Recorder.Backend)
	}
	if c.Recorder.FFmpegPath == "" {
		return fmt.Errorf("recorder.ffmpeg_path is required")
	}
	if !isValidInputFormat(c.Recorder.InputFormat) {
		return fmt.Errorf("recorder.input_format must be one of %s, got: %s",
			strings.Join(validInputFormats, ", "), c.Recorder.InputFormat)
	}
	if c.Recorder.StopTimeout <= 0 {
		return fmt.Errorf("recorder.stop_timeout must be > 0, got: %s", c.Recorder.StopTimeout)
	}
	if c.Recorder.PermissionTimeout <= 0 {
		return fmt.Errorf("recorder.permission_timeout must be > 0, got: %s", c.Recorder.PermissionTimeout)
	}

	switch c.Player.Preferred {
	case "", "vlc", "mpv", "ffplay":
	default:
		return fmt.Errorf("player.preferred must be one of vlc, mpv, ffplay, got: %s", c.Player.Preferred)
	}

	if c.Storage.Database == "" {
		return fmt.Errorf("storage.database is required")
	}
	if m := c.Storage.Minio; m.Enabled {
		if m.Endpoint == "" {
			return fmt.Errorf("storage.minio.endpoint is required when minio is enabled")
		}
		if m.Bucket == "" {
			return fmt.Errorf("storage.minio.bucket is required when minio is enabled")
		}
		if m.AccessKey == "" || m.SecretKey == "" {
			return fmt.Errorf("storage.minio access_key and secret_key are required when minio is enabled")
		}
	}

	if c.Submit.Timeout <= 0 {
		return fmt.Errorf("submit.timeout must be > 0, got: %s", c.Submit.Timeout)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	return nil
}

func isValidInputFormat(format string) bool {
	for _, f := range validInputFormats {
		if f == format {
			return true
		}
	}
	return false
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
