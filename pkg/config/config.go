// Package config loads binary settings from WISHBOARD_* environment variables
// and lets command line flags override them.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

type Relay struct {
	Addr           string        `env:"WISHBOARD_ADDR" envDefault:"localhost:8080"`
	Database       string        `env:"WISHBOARD_DATABASE" envDefault:"wishboard.sqlite3"`
	BoardID        string        `env:"WISHBOARD_BOARD_ID" envDefault:"default"`
	UploadDir      string        `env:"WISHBOARD_UPLOAD_DIR" envDefault:"uploads"`
	MaxPhotoBytes  int64         `env:"WISHBOARD_MAX_PHOTO_BYTES" envDefault:"10485760"`
	BackupInterval time.Duration `env:"WISHBOARD_BACKUP_INTERVAL" envDefault:"5s"`
	LogLevel       slog.Level    `env:"WISHBOARD_LOG_LEVEL" envDefault:"INFO"`
}

// ParseRelay reads the environment, then applies any flags in args.
func ParseRelay(fs *flag.FlagSet, args []string) (Relay, error) {
	var cfg Relay
	if err := ParseEnv(&cfg); err != nil {
		return Relay{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "the address to listen on")
	fs.StringVar(&cfg.Database, "database", cfg.Database, "the sqlite database file")
	fs.StringVar(&cfg.BoardID, "board", cfg.BoardID, "the board document id")
	fs.StringVar(&cfg.UploadDir, "upload-dir", cfg.UploadDir, "where uploaded photos are written")
	fs.Int64Var(&cfg.MaxPhotoBytes, "max-photo-bytes", cfg.MaxPhotoBytes, "the largest accepted photo")
	fs.DurationVar(&cfg.BackupInterval, "backup-interval", cfg.BackupInterval, "how often the document is backed up")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return Relay{}, err
	}
	if cfg.BackupInterval <= 0 {
		return Relay{}, fmt.Errorf("backup interval must be positive, got %s", cfg.BackupInterval)
	}
	if cfg.MaxPhotoBytes <= 0 {
		return Relay{}, fmt.Errorf("max photo bytes must be positive, got %d", cfg.MaxPhotoBytes)
	}
	return cfg, nil
}

type Display struct {
	Relay           string        `env:"WISHBOARD_RELAY" envDefault:"http://127.0.0.1:8080"`
	LogFile         string        `env:"WISHBOARD_LOG_FILE" envDefault:"wishboard-display.log"`
	LogLevel        slog.Level    `env:"WISHBOARD_LOG_LEVEL" envDefault:"INFO"`
	Volume          float64       `env:"WISHBOARD_VOLUME" envDefault:"0.4"`
	Muted           bool          `env:"WISHBOARD_MUTED"`
	FrameInterval   time.Duration `env:"WISHBOARD_FRAME_INTERVAL" envDefault:"50ms"`
	RetryDelay      time.Duration `env:"WISHBOARD_RETRY_DELAY" envDefault:"1s"`
	SnapshotTimeout time.Duration `env:"WISHBOARD_SNAPSHOT_TIMEOUT" envDefault:"500ms"`
	// Seed fixes the layout random source; zero means seed from the clock.
	Seed int64 `env:"WISHBOARD_SEED"`
}

func ParseDisplay(fs *flag.FlagSet, args []string) (Display, error) {
	var cfg Display
	if err := ParseEnv(&cfg); err != nil {
		return Display{}, err
	}
	fs.StringVar(&cfg.Relay, "relay", cfg.Relay, "the relay base url")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "where logs are written while the terminal is in use")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.Float64Var(&cfg.Volume, "volume", cfg.Volume, "sound volume between 0 and 1")
	fs.BoolVar(&cfg.Muted, "muted", cfg.Muted, "start with sound muted")
	fs.DurationVar(&cfg.FrameInterval, "frame-interval", cfg.FrameInterval, "time between rendered frames")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "time between reconnect attempts")
	fs.DurationVar(&cfg.SnapshotTimeout, "snapshot-timeout", cfg.SnapshotTimeout, "how long to wait for a snapshot before asking again")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "layout random seed")
	if err := fs.Parse(args); err != nil {
		return Display{}, err
	}
	if cfg.FrameInterval <= 0 || cfg.RetryDelay <= 0 || cfg.SnapshotTimeout <= 0 {
		return Display{}, fmt.Errorf("frame interval, retry delay and snapshot timeout must be positive")
	}
	if cfg.Volume < 0 || cfg.Volume > 1 {
		return Display{}, fmt.Errorf("volume must be between 0 and 1, got %v", cfg.Volume)
	}
	return cfg, nil
}

// Client is shared by the wishctl commands.
type Client struct {
	Relay   string        `env:"WISHBOARD_RELAY" envDefault:"http://127.0.0.1:8080"`
	Timeout time.Duration `env:"WISHBOARD_TIMEOUT" envDefault:"30s"`
}
