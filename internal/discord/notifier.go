package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/fourmitrack/fourmitrack/internal/discord/rate"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const membersCacheTTL = 10 * time.Minute

type channelKey struct {
	kind   ChannelKind
	parent snowflake.ID
	name   string
}

func (k channelKey) String() string {
	return fmt.Sprintf("%d/%d/%s", k.kind, k.parent, k.name)
}

// Notifier sends messages to category/channel/thread destinations, creating
// them on first use.
type Notifier struct {
	api           API
	guildID       snowflake.ID
	errorsChannel string
	addMembers    bool
	limiter       *rate.Limiter
	retry         utils.RetryOptions
	logger        *zap.Logger

	group    singleflight.Group
	mu       sync.RWMutex
	loaded   bool
	channels map[channelKey]snowflake.ID
	synced   map[snowflake.ID]struct{}
	archived map[snowflake.ID]struct{}
	members  *utils.TTLMap[snowflake.ID, []Member]
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRetryOptions overrides the backoff used for rate limited calls.
func WithRetryOptions(opts utils.RetryOptions) Option {
	return func(n *Notifier) {
		n.retry = opts
	}
}

// NewNotifier creates a Notifier for the configured guild.
func NewNotifier(api API, cfg *config.Discord, logger *zap.Logger, opts ...Option) *Notifier {
	errorsChannel := cfg.ErrorsChannel
	if errorsChannel == "" {
		errorsChannel = ErrorsGroup
	}

	n := &Notifier{
		api:           api,
		guildID:       snowflake.ID(cfg.GuildID),
		errorsChannel: errorsChannel,
		addMembers:    cfg.AddMembers,
		limiter: rate.New(
			time.Duration(cfg.RequestInterval)*time.Millisecond,
			time.Duration(cfg.RequestJitter)*time.Millisecond,
		),
		retry:    utils.GetNotifyRetryOptions(),
		logger:   logger.Named("notifier"),
		channels: make(map[channelKey]snowflake.ID),
		synced:   make(map[snowflake.ID]struct{}),
		archived: make(map[snowflake.ID]struct{}),
		members:  utils.NewTTLMap[snowflake.ID, []Member](membersCacheTTL),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Close stops background cache cleanup.
func (n *Notifier) Close() {
	n.members.Close()
}

// Send delivers a message. Permission errors are logged and swallowed.
func (n *Notifier) Send(ctx context.Context, msg *Message) error {
	err := n.send(ctx, msg)
	if err != nil && IsForbidden(err) {
		n.logger.Warn("Missing permission to deliver message",
			zap.String("destination", msg.path()),
			zap.String("title", msg.Title),
			zap.Error(err))

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to send message: %w (destination=%s)", err, msg.path())
	}

	return nil
}

// ReportError sends an operator report to the errors channel of a category.
func (n *Notifier) ReportError(ctx context.Context, category, title, description string) error {
	return n.Send(ctx, &Message{
		Category:    category,
		Group:       n.errorsChannel,
		Title:       title,
		Description: description,
		Color:       ColorError,
		Timestamp:   time.Now(),
	})
}

func (n *Notifier) send(ctx context.Context, msg *Message) error {
	if err := n.load(ctx); err != nil {
		return err
	}

	categoryID, err := n.resolve(ctx, channelKey{kind: KindCategory, name: msg.Category},
		func(ctx context.Context) (Channel, error) {
			return n.api.CreateCategory(ctx, n.guildID, msg.Category)
		})
	if err != nil {
		return err
	}

	name := textChannelName(msg.Group)

	destination, err := n.resolve(ctx, channelKey{kind: KindText, parent: categoryID, name: name},
		func(ctx context.Context) (Channel, error) {
			return n.api.CreateTextChannel(ctx, n.guildID, categoryID, name)
		})
	if err != nil {
		return err
	}

	if msg.Thread != "" {
		channelID := destination
		thread := textChannelName(msg.Thread)
		key := channelKey{kind: KindThread, parent: channelID, name: thread}

		if err := n.loadArchived(ctx, key); err != nil {
			return err
		}

		destination, err = n.resolve(ctx, key,
			func(ctx context.Context) (Channel, error) {
				return n.api.CreateThread(ctx, channelID, thread)
			})
		if err != nil {
			return err
		}

		if n.addMembers {
			n.syncMembers(ctx, destination)
		}
	}

	return n.call(ctx, func() error {
		return n.api.SendMessage(ctx, destination, msg)
	})
}

// load indexes the existing channels and active threads of the guild once.
func (n *Notifier) load(ctx context.Context) error {
	n.mu.RLock()
	loaded := n.loaded
	n.mu.RUnlock()

	if loaded {
		return nil
	}

	_, err, _ := n.group.Do("load", func() (any, error) {
		var channels, threads []Channel

		err := n.call(ctx, func() (err error) {
			channels, err = n.api.GuildChannels(ctx, n.guildID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list guild channels: %w", err)
		}

		err = n.call(ctx, func() (err error) {
			threads, err = n.api.ActiveThreads(ctx, n.guildID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list active threads: %w", err)
		}

		n.mu.Lock()
		defer n.mu.Unlock()

		for _, channel := range append(channels, threads...) {
			n.index(channel)
		}

		n.loaded = true

		n.logger.Debug("Indexed guild channels",
			zap.Int("channels", len(channels)),
			zap.Int("threads", len(threads)))

		return nil, nil
	})

	return err
}

// loadArchived indexes the archived public threads of the parent channel of
// a missing thread, once per channel.
func (n *Notifier) loadArchived(ctx context.Context, key channelKey) error {
	n.mu.RLock()
	_, exists := n.channels[key]
	_, done := n.archived[key.parent]
	n.mu.RUnlock()

	if exists || done {
		return nil
	}

	_, err, _ := n.group.Do(fmt.Sprintf("archived/%d", key.parent), func() (any, error) {
		n.mu.RLock()
		_, done := n.archived[key.parent]
		n.mu.RUnlock()

		if done {
			return nil, nil
		}

		var threads []Channel

		err := n.call(ctx, func() (err error) {
			threads, err = n.api.ArchivedThreads(ctx, key.parent)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list archived threads: %w (channelID=%d)", err, key.parent)
		}

		n.mu.Lock()
		defer n.mu.Unlock()

		for _, thread := range threads {
			if thread.ParentID == 0 {
				thread.ParentID = key.parent
			}

			n.index(thread)
		}

		n.archived[key.parent] = struct{}{}

		n.logger.Debug("Indexed archived threads",
			zap.Uint64("channelID", uint64(key.parent)),
			zap.Int("threads", len(threads)))

		return nil, nil
	})

	return err
}

// index records a known channel. The caller holds the write lock.
func (n *Notifier) index(channel Channel) {
	name := channel.Name
	if channel.Kind != KindCategory {
		name = textChannelName(name)
	}

	key := channelKey{kind: channel.Kind, parent: channel.ParentID, name: name}
	if channel.Kind == KindCategory {
		key.parent = 0
	}

	if _, exists := n.channels[key]; !exists {
		n.channels[key] = channel.ID
	}
}

// resolve returns the ID of a channel, creating it when missing. Concurrent
// callers resolving the same channel share one creation.
func (n *Notifier) resolve(
	ctx context.Context, key channelKey, create func(context.Context) (Channel, error),
) (snowflake.ID, error) {
	n.mu.RLock()
	id, exists := n.channels[key]
	n.mu.RUnlock()

	if exists {
		return id, nil
	}

	result, err, _ := n.group.Do(key.String(), func() (any, error) {
		n.mu.RLock()
		id, exists := n.channels[key]
		n.mu.RUnlock()

		if exists {
			return id, nil
		}

		var channel Channel

		err := n.call(ctx, func() (err error) {
			channel, err = create(ctx)
			return err
		})
		if err != nil {
			return snowflake.ID(0), fmt.Errorf("failed to create channel %q: %w", key.name, err)
		}

		n.mu.Lock()
		n.channels[key] = channel.ID
		n.mu.Unlock()

		n.logger.Info("Created channel",
			zap.String("name", key.name),
			zap.Int("kind", int(key.kind)),
			zap.Uint64("id", uint64(channel.ID)))

		return channel.ID, nil
	})
	if err != nil {
		return 0, err
	}

	return result.(snowflake.ID), nil
}

// syncMembers adds every human guild member missing from a thread, once per
// thread and process.
func (n *Notifier) syncMembers(ctx context.Context, threadID snowflake.ID) {
	n.mu.RLock()
	_, done := n.synced[threadID]
	n.mu.RUnlock()

	if done {
		return
	}

	members, err := n.guildMembers(ctx)
	if err != nil {
		n.logger.Warn("Failed to list guild members", zap.Error(err))
		return
	}

	var joined []snowflake.ID

	err = n.call(ctx, func() (err error) {
		joined, err = n.api.ThreadMembers(ctx, threadID)
		return err
	})
	if err != nil {
		n.logger.Warn("Failed to list thread members",
			zap.Uint64("threadID", uint64(threadID)),
			zap.Error(err))

		return
	}

	present := make(map[snowflake.ID]struct{}, len(joined))
	for _, id := range joined {
		present[id] = struct{}{}
	}

	added := 0

	for _, member := range members {
		if member.Bot {
			continue
		}

		if _, ok := present[member.ID]; ok {
			continue
		}

		err := n.call(ctx, func() error {
			return n.api.AddThreadMember(ctx, threadID, member.ID)
		})
		switch {
		case err == nil:
			added++
		case IsForbidden(err):
			n.logger.Debug("Skipping thread member",
				zap.Uint64("userID", uint64(member.ID)),
				zap.Error(err))
		default:
			n.logger.Warn("Failed to add thread member",
				zap.Uint64("threadID", uint64(threadID)),
				zap.Uint64("userID", uint64(member.ID)),
				zap.Error(err))
		}
	}

	n.mu.Lock()
	n.synced[threadID] = struct{}{}
	n.mu.Unlock()

	if added > 0 {
		n.logger.Debug("Added thread members",
			zap.Uint64("threadID", uint64(threadID)),
			zap.Int("added", added))
	}
}

func (n *Notifier) guildMembers(ctx context.Context) ([]Member, error) {
	if members, ok := n.members.Get(n.guildID); ok {
		return members, nil
	}

	var members []Member

	err := n.call(ctx, func() (err error) {
		members, err = n.api.GuildMembers(ctx, n.guildID)
		return err
	})
	if err != nil {
		return nil, err
	}

	n.members.Set(n.guildID, members)

	return members, nil
}

// call paces an API call and retries it while Discord rate limits it.
func (n *Notifier) call(ctx context.Context, fn func() error) error {
	_, err := utils.WithRetryIf(ctx, func() (struct{}, error) {
		if err := n.limiter.Wait(ctx); err != nil {
			return struct{}{}, err
		}

		return struct{}{}, fn()
	}, n.retry, IsRateLimited)

	return err
}

// textChannelName returns a group or thread name the way Discord stores
// text channel names.
func textChannelName(group string) string {
	return strings.Join(strings.Fields(cases.Lower(language.Und).String(group)), "-")
}
