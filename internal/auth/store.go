// Package auth supplies the authentication cookie attached to catalog and
// transport requests.
//
// The engine never logs in by itself. It asks a Store for the current token
// on every request, so a cookie refreshed on disk by another program is
// picked up without restarting.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// SessionCookie is the cookie that marks a logged-in session.
const SessionCookie = "MUSIC_U"

var (
	// ErrAbsent means no usable token is available.
	ErrAbsent = errors.New("authentication token absent")

	// ErrExpired means the remote service rejected the token.
	ErrExpired = errors.New("authentication token expired")
)

// Store is the credential boundary.
type Store interface {
	// CurrentToken returns an opaque token (a Cookie header value) or
	// ErrAbsent.
	CurrentToken(ctx context.Context) (string, error)
}

// CookieFile reads a "k=v; k2=v2" cookie string from a file on every call.
type CookieFile struct {
	Path string
}

// NewCookieFile creates a CookieFile store for path.
func NewCookieFile(path string) *CookieFile {
	return &CookieFile{Path: path}
}

// CurrentToken implements Store.
func (c *CookieFile) CurrentToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s not found", ErrAbsent, c.Path)
		}
		return "", err
	}
	return tokenFromCookies(ParseCookies(string(data)))
}

// LoggedIn reports whether store currently holds a session cookie. Without
// one the catalog only serves tracks that are free for guests.
func LoggedIn(ctx context.Context, store Store) bool {
	if store == nil {
		return false
	}
	_, err := store.CurrentToken(ctx)
	return err == nil
}

// Static is a Store backed by a fixed cookie string, e.g. from an
// environment variable.
type Static string

// CurrentToken implements Store.
func (s Static) CurrentToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return tokenFromCookies(ParseCookies(string(s)))
}

// ParseCookies splits a Cookie header style string into a map.
// Malformed items are skipped.
func ParseCookies(text string) map[string]string {
	cookies := make(map[string]string)
	for _, item := range strings.Split(strings.TrimSpace(text), ";") {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cookies[key] = strings.TrimSpace(value)
	}
	return cookies
}

// FormatCookies renders cookies as a Cookie header value with sorted keys.
func FormatCookies(cookies map[string]string) string {
	keys := make([]string, 0, len(cookies))
	for k := range cookies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+cookies[k])
	}
	return strings.Join(parts, "; ")
}

func tokenFromCookies(cookies map[string]string) (string, error) {
	if cookies[SessionCookie] == "" {
		return "", fmt.Errorf("%w: no %s cookie", ErrAbsent, SessionCookie)
	}
	return FormatCookies(cookies), nil
}
