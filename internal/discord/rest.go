package discord

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

const (
	membersPageSize  = 1000
	archivedPageSize = 100
)

// RestAPI implements API with the disgo REST client.
type RestAPI struct {
	client rest.Client
	rest   rest.Rest
	logger *zap.Logger
}

// NewRestAPI creates a REST client authenticated with a bot token.
func NewRestAPI(token string, logger *zap.Logger) *RestAPI {
	client := rest.NewClient(token)

	return &RestAPI{
		client: client,
		rest:   rest.New(client),
		logger: logger.Named("discord_rest"),
	}
}

// Close releases the underlying HTTP client.
func (a *RestAPI) Close(ctx context.Context) {
	a.client.Close(ctx)
}

// GuildChannels lists categories and text channels of a guild.
func (a *RestAPI) GuildChannels(ctx context.Context, guildID snowflake.ID) ([]Channel, error) {
	channels, err := a.rest.GetGuildChannels(guildID, rest.WithCtx(ctx))
	if err != nil {
		return nil, a.convert(err)
	}

	result := make([]Channel, 0, len(channels))
	for _, channel := range channels {
		var kind ChannelKind

		switch channel.Type() {
		case discord.ChannelTypeGuildCategory:
			kind = KindCategory
		case discord.ChannelTypeGuildText:
			kind = KindText
		default:
			continue
		}

		result = append(result, toChannel(channel, kind))
	}

	return result, nil
}

// ActiveThreads lists the unarchived threads of a guild.
func (a *RestAPI) ActiveThreads(ctx context.Context, guildID snowflake.ID) ([]Channel, error) {
	threads, err := a.rest.GetActiveGuildThreads(guildID, rest.WithCtx(ctx))
	if err != nil {
		return nil, a.convert(err)
	}

	result := make([]Channel, 0, len(threads.Threads))
	for _, thread := range threads.Threads {
		result = append(result, toChannel(thread, KindThread))
	}

	return result, nil
}

// ArchivedThreads pages through the archived public threads of a text channel.
func (a *RestAPI) ArchivedThreads(ctx context.Context, channelID snowflake.ID) ([]Channel, error) {
	var (
		result []Channel
		before time.Time
	)

	for {
		page, err := a.rest.GetPublicArchivedThreads(channelID, before, archivedPageSize, rest.WithCtx(ctx))
		if err != nil {
			return nil, a.convert(err)
		}

		for _, thread := range page.Threads {
			result = append(result, toChannel(thread, KindThread))
		}

		if !page.HasMore || len(page.Threads) == 0 {
			return result, nil
		}

		before = page.Threads[len(page.Threads)-1].ThreadMetadata.ArchiveTimestamp
	}
}

// CreateCategory creates a category channel.
func (a *RestAPI) CreateCategory(ctx context.Context, guildID snowflake.ID, name string) (Channel, error) {
	channel, err := a.rest.CreateGuildChannel(guildID, discord.GuildCategoryChannelCreate{
		Name: name,
	}, rest.WithCtx(ctx))
	if err != nil {
		return Channel{}, a.convert(err)
	}

	return toChannel(channel, KindCategory), nil
}

// CreateTextChannel creates a text channel under a category.
func (a *RestAPI) CreateTextChannel(
	ctx context.Context, guildID, parentID snowflake.ID, name string,
) (Channel, error) {
	channel, err := a.rest.CreateGuildChannel(guildID, discord.GuildTextChannelCreate{
		Name:     name,
		ParentID: parentID,
	}, rest.WithCtx(ctx))
	if err != nil {
		return Channel{}, a.convert(err)
	}

	return toChannel(channel, KindText), nil
}

// CreateThread creates a public thread in a text channel.
func (a *RestAPI) CreateThread(ctx context.Context, channelID snowflake.ID, name string) (Channel, error) {
	thread, err := a.rest.CreateThread(channelID, discord.GuildPublicThreadCreate{
		Name: name,
	}, rest.WithCtx(ctx))
	if err != nil {
		return Channel{}, a.convert(err)
	}

	return Channel{ID: thread.ID(), Name: name, ParentID: channelID, Kind: KindThread}, nil
}

// GuildMembers pages through every member of a guild.
func (a *RestAPI) GuildMembers(ctx context.Context, guildID snowflake.ID) ([]Member, error) {
	var (
		members []Member
		after   snowflake.ID
	)

	for {
		chunk, err := a.rest.GetMembers(guildID, membersPageSize, after, rest.WithCtx(ctx))
		if err != nil {
			return nil, a.convert(err)
		}

		for _, member := range chunk {
			members = append(members, Member{ID: member.User.ID, Bot: member.User.Bot})
		}

		if len(chunk) < membersPageSize {
			return members, nil
		}

		after = chunk[len(chunk)-1].User.ID
	}
}

// ThreadMembers lists the user IDs that joined a thread.
func (a *RestAPI) ThreadMembers(ctx context.Context, threadID snowflake.ID) ([]snowflake.ID, error) {
	members, err := a.rest.GetThreadMembers(threadID, rest.WithCtx(ctx))
	if err != nil {
		return nil, a.convert(err)
	}

	ids := make([]snowflake.ID, len(members))
	for i, member := range members {
		ids[i] = member.UserID
	}

	return ids, nil
}

// AddThreadMember adds a user to a thread.
func (a *RestAPI) AddThreadMember(ctx context.Context, threadID, userID snowflake.ID) error {
	return a.convert(a.rest.AddThreadMember(threadID, userID, rest.WithCtx(ctx)))
}

// SendMessage posts an embed with optional attachments.
func (a *RestAPI) SendMessage(ctx context.Context, channelID snowflake.ID, msg *Message) error {
	embed := discord.NewEmbedBuilder().
		SetTitle(msg.Title).
		SetDescription(msg.Description).
		SetColor(msg.Color)

	if !msg.Timestamp.IsZero() {
		embed.SetTimestamp(msg.Timestamp)
	}

	builder := discord.NewMessageCreateBuilder()

	for i, file := range msg.Files {
		builder.AddFile(file.Name, "", bytes.NewReader(file.Data))

		if i == 0 {
			embed.SetImage("attachment://" + file.Name)
		}
	}

	builder.SetEmbeds(embed.Build())

	if msg.Silent {
		builder.SetFlags(discord.MessageFlagSuppressNotifications)
	}

	_, err := a.rest.CreateMessage(channelID, builder.Build(), rest.WithCtx(ctx))

	return a.convert(err)
}

// convert maps disgo REST errors to HTTPError.
func (a *RestAPI) convert(err error) error {
	if err == nil {
		return nil
	}

	var restErr *rest.Error
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return err
	}

	a.logger.Debug("Discord API error",
		zap.Int("status", restErr.Response.StatusCode),
		zap.String("message", restErr.Message),
		zap.String("request", string(restErr.RqBody)),
		zap.String("response", string(restErr.RsBody)))

	return &HTTPError{StatusCode: restErr.Response.StatusCode, Message: restErr.Message}
}

func toChannel(channel discord.GuildChannel, kind ChannelKind) Channel {
	result := Channel{
		ID:   channel.ID(),
		Name: channel.Name(),
		Kind: kind,
	}

	if parentID := channel.ParentID(); parentID != nil {
		result.ParentID = *parentID
	}

	return result
}
