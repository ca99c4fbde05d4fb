package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the server (default from Config)
//	-k int      chunk size in MiB
//	-r int      request timeout in seconds
//	-t string   session token file
//	-o string   download directory
//
// Flags defined elsewhere (-c) are skipped by flagx.Parse.
func parseFlags(cfg *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the server")
	chunkMiB := fs.Int64("k", cfg.ChunkSize>>20, "chunk size for uploads (in MiB)")
	requestTimeout := fs.Int("r", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.TokenFile, "t", cfg.TokenFile, "session token file")
	fs.StringVar(&cfg.DownloadDir, "o", cfg.DownloadDir, "download directory")

	if err := flagx.Parse(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	cfg.ChunkSize = *chunkMiB << 20
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
