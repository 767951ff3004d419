package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxUsernameLength is the longest username accepted for lookup.
const MaxUsernameLength = 64

var (
	// ErrUserNotFound is returned by identity stores when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUsername rejects writes for names NormalizeUsername refuses.
	ErrInvalidUsername = errors.New("invalid username")
)

// User is the read-only projection of an identity store record.
type User struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
}

// NormalizeUsername trims and lowercases a username.
// It reports false for empty input or input longer than MaxUsernameLength.
func NormalizeUsername(username string) (string, bool) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return "", false
	}
	return strings.ToLower(username), true
}
