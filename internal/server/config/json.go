package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"github.com/dmitrijs2005/gophdrive/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Pointer and
// zero-valued fields left out of the file keep their current value.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	LogLevel                     string         `json:"log_level"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	StorageBackend               string         `json:"storage_backend"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	S3UsePathStyle               *bool          `json:"s3_use_path_style"`
	PublicBaseURL                string         `json:"public_base_url"`
	SignedURLTTL                 timex.Duration `json:"signed_url_ttl"`
	ListPageSize                 int32          `json:"list_page_size"`
	CopyConcurrency              int            `json:"copy_concurrency"`
	UploadConcurrency            int            `json:"upload_concurrency"`
	MaxFormMemory                int64          `json:"max_form_memory"`
	MaxChunkSize                 int64          `json:"max_chunk_size"`
	OperationTimeout             timex.Duration `json:"operation_timeout"`
	DefaultFolders               []string       `json:"default_folders"`
	MetricsEnabled               *bool          `json:"metrics_enabled"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// $GOPHDRIVE_CONFIG). It panics if the file cannot be read or parsed.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.PublicBaseURL, c.PublicBaseURL)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.SignedURLTTL.Duration > 0 {
		config.SignedURLTTL = c.SignedURLTTL.Duration
	}
	if c.OperationTimeout.Duration > 0 {
		config.OperationTimeout = c.OperationTimeout.Duration
	}
	if c.ListPageSize > 0 {
		config.ListPageSize = c.ListPageSize
	}
	if c.CopyConcurrency > 0 {
		config.CopyConcurrency = c.CopyConcurrency
	}
	if c.UploadConcurrency > 0 {
		config.UploadConcurrency = c.UploadConcurrency
	}
	if c.MaxFormMemory > 0 {
		config.MaxFormMemory = c.MaxFormMemory
	}
	if c.MaxChunkSize > 0 {
		config.MaxChunkSize = c.MaxChunkSize
	}
	if c.DefaultFolders != nil {
		config.DefaultFolders = c.DefaultFolders
	}
	if c.S3UsePathStyle != nil {
		config.S3UsePathStyle = *c.S3UsePathStyle
	}
	if c.MetricsEnabled != nil {
		config.MetricsEnabled = *c.MetricsEnabled
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
