// Package config loads runtime configuration for the GophDrive CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via -c/-config or the
//     GOPHDRIVE_CONFIG environment variable.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "chunk_size": 5242880,
//	  "request_timeout": "30s",
//	  "token_file": ".gophdrive-session",
//	  "download_dir": "downloads"
//	}
package config
