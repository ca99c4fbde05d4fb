// Package cli provides the interactive GophDrive command-line client.
//
// It wires configuration, the HTTP API client, the chunked uploader and an
// interactive REPL. The session (username and tokens) is kept in a local file
// so a restart does not require a new login; an expired access token is
// refreshed transparently by the API client.
//
// Paths typed by the user are relative to the current folder (see cd) unless
// they start with "/". Folders may be written with a trailing "/".
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
package cli
