// Package config loads the console configuration file
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Upload  UploadConfig  `yaml:"upload"`
	Kiosk   KioskConfig   `yaml:"kiosk"`
	Archive ArchiveConfig `yaml:"archive"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	DataRoot string `yaml:"data_root"`
}

type AuthConfig struct {
	// Tokens seeded into the session store at startup. Session issuance
	// itself lives in the upstream account system; the console only
	// validates and expires what it is handed.
	Tokens     []string      `yaml:"tokens"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type UploadConfig struct {
	// Chunk size used by the client for chunked uploads. One knob for
	// every call site.
	ChunkSize int64 `yaml:"chunk_size"`
	// Files at or below this size go up as a single multipart request.
	ChunkThreshold int64 `yaml:"chunk_threshold"`
	MaxImageBytes  int64 `yaml:"max_image_bytes"`
	MaxVideoBytes  int64 `yaml:"max_video_bytes"`
}

type KioskConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ServerURL    string        `yaml:"server_url"`
	CustomerID   int64         `yaml:"customer_id"`
	MachineID    int64         `yaml:"machine_id"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ArchiveConfig struct {
	Enabled      bool          `yaml:"enabled"`
	AWSProfile   string        `yaml:"aws_profile"`
	S3Bucket     string        `yaml:"s3_bucket"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:     "0.0.0.0:8080",
			DataRoot: "data",
		},
		Auth: AuthConfig{
			SessionTTL: 24 * time.Hour,
		},
		Upload: UploadConfig{
			ChunkSize:      512 * 1024,
			ChunkThreshold: 1024 * 1024,
			MaxImageBytes:  2 * 1024 * 1024,
			MaxVideoBytes:  50 * 1024 * 1024,
		},
		Kiosk: KioskConfig{
			ServerURL:    "http://localhost:8080",
			PollInterval: time.Minute,
		},
		Archive: ArchiveConfig{
			SyncInterval: time.Hour,
		},
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Upload.ChunkSize <= 0 {
		return nil, fmt.Errorf("upload.chunk_size must be positive, got %d", cfg.Upload.ChunkSize)
	}

	return cfg, nil
}
