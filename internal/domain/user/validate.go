package user

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	errs "rps_arena/internal/errors"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9]+$`)

// NormalizeUsername lower-cases and trims a username as typed by a player.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func ValidateUsername(name string) error {
	if len(name) > MaxUsernameLength || !usernamePattern.MatchString(name) {
		return errs.ErrInvalidUsername
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || strings.Contains(email, "/") {
		return errs.ErrInvalidEmail
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return errs.ErrWeakPassword
	}
	return nil
}

func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return errs.ErrBioTooLong
	}
	return nil
}
