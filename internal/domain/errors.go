package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoReferrer       = errors.New("no referrer")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidID        = errors.New("invalid telegram id")
	ErrRecipientBlocked = errors.New("recipient blocked the bot")
)
