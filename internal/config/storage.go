package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// StorageConfig holds the MinIO connection used for attachment blobs.
type StorageConfig struct {
	Endpoint  string        `env:"MINIO_ENDPOINT,default=localhost:9000"`
	AccessKey string        `env:"MINIO_ACCESS_KEY"`
	SecretKey string        `env:"MINIO_SECRET_KEY"`
	Bucket    string        `env:"MINIO_BUCKET,default=kdxreport"`
	Region    string        `env:"MINIO_REGION"`
	UseSSL    bool          `env:"MINIO_USE_SSL,default=false"`
	URLTTL    time.Duration `env:"MINIO_URL_TTL,default=1h"`
	MaxUpload int64         `env:"MINIO_MAX_UPLOAD_BYTES,default=20971520"`
}

// LoadStorageConfig decodes MINIO_* variables.
func LoadStorageConfig() (StorageConfig, error) {
	var cfg StorageConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("storage config: %w", err)
	}
	return cfg, nil
}
