package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Referral is one user brought in by a referrer.
type Referral struct {
	ReferredUserTelegramID int64
	Timestamp              time.Time
	User                   ReferredUser
}

// ReferredUser is the public profile shown in a referrer's list.
type ReferredUser struct {
	TelegramUsername string
	TotalAirdrops    float64
	ReferralCount    int
	HeliosUsername   string
	AvatarPath       string
}

// Referrer identifies who referred a user.
type Referrer struct {
	TelegramID       int64
	TelegramUsername string
}

// NewReferralToken builds "<telegramID>-<8 hex chars>".
func NewReferralToken(telegramID int64) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return strconv.FormatInt(telegramID, 10) + "-" + hex.EncodeToString(b[:]), nil
}

// ParseTelegramID parses a positive Telegram user id from a path segment.
func ParseTelegramID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// ParseAmount parses a strictly positive integer increment.
func ParseAmount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return n, nil
}
