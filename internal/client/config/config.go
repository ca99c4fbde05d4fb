package config

import "time"

// Config holds runtime settings for the GophDrive CLI.
//
// Fields:
//   - ServerURL: base URL of the GophDrive HTTP API.
//   - ChunkSize: size of every chunk but the last in chunked uploads, in bytes.
//     The store rejects non-final parts below 5 MiB.
//   - RequestTimeout: bound for ordinary API calls; transfers are unbounded.
//   - TokenFile: where the session tokens are kept between runs.
//   - DownloadDir: directory downloads are written to.
type Config struct {
	ServerURL      string
	ChunkSize      int64
	RequestTimeout time.Duration
	TokenFile      string
	DownloadDir    string
}

// MinChunkSize is the smallest chunk size the server side accepts for
// non-final parts.
const MinChunkSize int64 = 5 << 20

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.ChunkSize = MinChunkSize
	c.RequestTimeout = 30 * time.Second
	c.TokenFile = ".gophdrive-session"
	c.DownloadDir = "downloads"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	if cfg.ChunkSize < MinChunkSize {
		cfg.ChunkSize = MinChunkSize
	}
	return cfg
}
