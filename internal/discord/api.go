package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/disgoorg/snowflake/v2"
)

// ChannelKind distinguishes the channel types the notifier works with.
type ChannelKind int

const (
	KindCategory ChannelKind = iota
	KindText
	KindThread
)

// Channel is a guild channel, category or thread.
type Channel struct {
	ID       snowflake.ID
	Name     string
	ParentID snowflake.ID
	Kind     ChannelKind
}

// Member is a guild member.
type Member struct {
	ID  snowflake.ID
	Bot bool
}

// API is the subset of the Discord REST API used by the notifier.
type API interface {
	GuildChannels(ctx context.Context, guildID snowflake.ID) ([]Channel, error)
	ActiveThreads(ctx context.Context, guildID snowflake.ID) ([]Channel, error)
	ArchivedThreads(ctx context.Context, channelID snowflake.ID) ([]Channel, error)
	CreateCategory(ctx context.Context, guildID snowflake.ID, name string) (Channel, error)
	CreateTextChannel(ctx context.Context, guildID, parentID snowflake.ID, name string) (Channel, error)
	CreateThread(ctx context.Context, channelID snowflake.ID, name string) (Channel, error)
	GuildMembers(ctx context.Context, guildID snowflake.ID) ([]Member, error)
	ThreadMembers(ctx context.Context, threadID snowflake.ID) ([]snowflake.ID, error)
	AddThreadMember(ctx context.Context, threadID, userID snowflake.ID) error
	SendMessage(ctx context.Context, channelID snowflake.ID, msg *Message) error
}

// HTTPError is a failed Discord API call with its HTTP status.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("discord api: status %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is an HTTP 429.
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

// IsForbidden reports whether err is an HTTP 403.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

func hasStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}
