package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when no row matches.
var ErrNotFound = errors.New("not found")

// User is the persisted record for one sender. Created lazily on the
// first FAQ/greeting interaction and never deleted.
type User struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Gender       string `json:"gender"`
	TalkToPerson bool   `json:"talk_to_person"`
}

// UserStore persists user records keyed by sender ID.
type UserStore interface {
	// GetUser returns the record for id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*User, error)

	// InsertUser creates the record if it does not exist yet.
	// Inserting an existing ID is a no-op, so two near-simultaneous
	// first contacts from the same sender resolve to one row.
	InsertUser(ctx context.Context, u User) error

	// SetTalkToPerson flips the hand-off flag. Idempotent.
	SetTalkToPerson(ctx context.Context, id string, v bool) error
}

// ChannelStore maps a page/channel ID to its access token.
type ChannelStore interface {
	// AccessToken returns the token for the channel, or ErrNotFound.
	AccessToken(ctx context.Context, channelID string) (string, error)

	// PutChannel stores or replaces a channel's access token.
	PutChannel(ctx context.Context, channelID, accessToken string) error
}
