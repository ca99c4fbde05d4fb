// Package keys converts between user-facing virtual paths and fully
// qualified object keys of the form "users/<userID>/<virtual path>".
//
// Every key handed to, or accepted from, a client must pass through this
// package. ToVirtualPath is the single enforcement point of the ownership
// rule: a key that does not carry the caller's exact prefix is rejected
// with common.ErrForeignKey.
package keys

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

const (
	// RootPrefix is shared by all user namespaces.
	RootPrefix = "users/"
	// Separator delimits path segments in keys and virtual paths.
	Separator = "/"
)

// UserPrefix returns "users/<userID>/".
func UserPrefix(userID string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	return RootPrefix + userID + Separator, nil
}

func validateUserID(userID string) error {
	if userID == "" || strings.Contains(userID, Separator) || userID == "." || userID == ".." {
		return fmt.Errorf("user id %q: %w", userID, common.ErrValidation)
	}
	return nil
}

// Clean normalizes a virtual path: leading/trailing slashes and empty or "."
// segments are dropped. Paths containing ".." segments, backslashes or
// control characters are rejected. The empty string is the root.
func Clean(p string) (string, error) {
	if strings.ContainsAny(p, "\\\x00") {
		return "", fmt.Errorf("%w: illegal character", common.ErrInvalidPath)
	}

	segments := strings.Split(p, Separator)
	kept := segments[:0]
	for _, s := range segments {
		switch s {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: parent reference", common.ErrInvalidPath)
		}
		for _, r := range s {
			if r < 0x20 || r == 0x7f {
				return "", fmt.Errorf("%w: control character", common.ErrInvalidPath)
			}
		}
		kept = append(kept, s)
	}

	return strings.Join(kept, Separator), nil
}

// ToObjectKey joins the user prefix with the normalized virtual path. Folder
// keys end with "/"; the root folder is the bare user prefix. The root can
// never be addressed as a file.
func ToObjectKey(userID, virtualPath string, isFolder bool) (string, error) {
	prefix, err := UserPrefix(userID)
	if err != nil {
		return "", err
	}

	p, err := Clean(virtualPath)
	if err != nil {
		return "", err
	}

	if p == "" {
		if !isFolder {
			return "", fmt.Errorf("%w: empty file path", common.ErrInvalidPath)
		}
		return prefix, nil
	}

	if isFolder {
		return prefix + p + Separator, nil
	}
	return prefix + p, nil
}

// ToVirtualPath strips "users/<userID>/" from key. A folder key keeps its
// trailing slash, so ToVirtualPath(u, ToObjectKey(u, p, false)) == p.
func ToVirtualPath(userID, key string) (string, error) {
	prefix, err := UserPrefix(userID)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(key, prefix) {
		return "", common.ErrForeignKey
	}
	return key[len(prefix):], nil
}

// IsFolderKey reports whether key addresses a folder (marker or prefix).
func IsFolderKey(key string) bool {
	return strings.HasSuffix(key, Separator)
}

// Base returns the last non-empty segment of a key or path.
func Base(p string) string {
	p = strings.TrimRight(p, Separator)
	if i := strings.LastIndex(p, Separator); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Parent returns the path without its last segment ("" for top level).
func Parent(p string) string {
	p = strings.TrimRight(p, Separator)
	if i := strings.LastIndex(p, Separator); i >= 0 {
		return p[:i]
	}
	return ""
}

// Join concatenates virtual path segments, skipping empty ones.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, Separator)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, Separator)
}

// IsWithin reports whether key equals prefix or lies below it. Both
// arguments are folder keys or prefixes ending with "/".
func IsWithin(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}

// Redact rewrites the keys of userID found in msg as "/"-rooted virtual
// paths, for error text that is about to leave the server. It reports false
// when msg still mentions the key namespace, e.g. another user's key; such a
// message must be replaced, not sent.
func Redact(userID, msg string) (string, bool) {
	if prefix, err := UserPrefix(userID); err == nil {
		msg = strings.ReplaceAll(msg, prefix, Separator)
	}
	return msg, !strings.Contains(msg, RootPrefix)
}
