package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	usernameRe  = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)
	plateRe     = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	plateHashRe = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

func ValidateUsername(username string) bool {
	return usernameRe.MatchString(strings.TrimSpace(username))
}

func PasswordMinLength() int {
	minStr := os.Getenv("PASSWORD_MIN_LENGTH")
	if minStr == "" {
		return 10
	}
	min, err := strconv.Atoi(minStr)
	if err != nil || min < 8 {
		return 10
	}
	return min
}

func ValidatePassword(password string) bool {
	return len(password) >= PasswordMinLength()
}

// NormalizePlate collapses a raw plate to the canonical form used for
// fingerprinting: uppercase, with spaces and dashes stripped.
func NormalizePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	plate = strings.ReplaceAll(plate, " ", "")
	return strings.ReplaceAll(plate, "-", "")
}

func ValidatePlate(plate string) bool {
	return plateRe.MatchString(NormalizePlate(plate))
}

// PlateFingerprint derives the one-way identifier stored and matched in
// place of the raw plate text.
func PlateFingerprint(plate string) string {
	sum := sha256.Sum256([]byte(NormalizePlate(plate)))
	return hex.EncodeToString(sum[:])
}

// ValidatePlateHash checks that a value is a well-formed fingerprint
// before any I/O happens on the send path.
func ValidatePlateHash(hash string) bool {
	return plateHashRe.MatchString(hash)
}

func MaxAlertMessageLength() int {
	maxStr := os.Getenv("MAX_ALERT_MESSAGE_LENGTH")
	if maxStr == "" {
		return 280
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil || max < 1 {
		return 280
	}
	return max
}

// TrimAndLimit trims whitespace and caps the byte length. The cut never
// lands inside a multi-byte rune: a rune straddling the limit is
// dropped whole, so the result stays valid UTF-8.
func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
