// Package fourmizzz scrapes ranking, profile and alliance pages of the game.
package fourmizzz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrConnection signals that the game site could not be reached.
	ErrConnection = errors.New("could not reach game server")
	// ErrUnexpectedStatus signals a non-success HTTP response.
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrParse signals a page that could not be understood.
	ErrParse = errors.New("failed to parse page")
	// ErrPlayerNotFound signals a profile page without player data.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrAllianceNotFound signals an alliance page without member data.
	ErrAllianceNotFound = errors.New("alliance not found")
	// ErrSessionExpired signals a cookie session rejected by the game.
	ErrSessionExpired = errors.New("session expired")
)

// SessionCookie is the name of the game's session cookie.
const SessionCookie = "PHPSESSID"

var tracer = otel.Tracer("fourmitrack/fourmizzz")

// Client fetches pages from the game site.
type Client struct {
	http    *resty.Client
	baseURL string
	limiter Limiter
	logger  *zap.Logger
}

// NewClient creates a game site client. The base URL holds a %s placeholder
// replaced by the server name.
func NewClient(cfg *config.Fourmizzz, limiter Limiter, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.RequestTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://%s.fourmizzz.fr"
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/html").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}

	if limiter == nil {
		limiter = NewLocalLimiter(cfg.RequestsPerSecond)
	}

	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		limiter: limiter,
		logger:  logger.Named("fourmizzz"),
	}
}

// FetchRankingPage fetches one hunting field ranking page. Pages past the end
// of the leaderboard return no rows and no error.
func (c *Client) FetchRankingPage(ctx context.Context, server *types.Server, page int) ([]*types.RankingEntry, error) {
	ctx, span := tracer.Start(ctx, "fourmizzz:FetchRankingPage", trace.WithAttributes(
		attribute.String("server", server.Name),
		attribute.Int("page", page),
	))
	defer span.End()

	body, err := c.get(ctx, server, "/classement2.php", url.Values{
		"page":           {strconv.Itoa(page)},
		"typeClassement": {"terrain"},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch ranking page: %w (server=%s, page=%d)", err, server.Name, page)
	}

	entries, err := parseRankingPage(bytes.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse ranking page: %w (server=%s, page=%d)", err, server.Name, page)
	}

	span.SetAttributes(attribute.Int("rows", len(entries)))

	return entries, nil
}

// FetchProfile fetches the profile page of a player.
func (c *Client) FetchProfile(ctx context.Context, server *types.Server, name string) (*Profile, error) {
	ctx, span := tracer.Start(ctx, "fourmizzz:FetchProfile", trace.WithAttributes(
		attribute.String("server", server.Name),
		attribute.String("player", name),
	))
	defer span.End()

	body, err := c.get(ctx, server, "/Membre.php", url.Values{"Pseudo": {name}})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch profile: %w (server=%s, name=%s)", err, server.Name, name)
	}

	profile, err := parseProfile(bytes.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse profile: %w (server=%s, name=%s)", err, server.Name, name)
	}

	return profile, nil
}

// PlayerAlliance returns the alliance tag of a player, empty when none.
func (c *Client) PlayerAlliance(ctx context.Context, server *types.Server, name string) (string, error) {
	profile, err := c.FetchProfile(ctx, server, name)
	if err != nil {
		return "", err
	}

	return profile.Alliance, nil
}

// FetchAllianceMembers fetches the member list of an alliance.
func (c *Client) FetchAllianceMembers(ctx context.Context, server *types.Server, alliance string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "fourmizzz:FetchAllianceMembers", trace.WithAttributes(
		attribute.String("server", server.Name),
		attribute.String("alliance", alliance),
	))
	defer span.End()

	body, err := c.get(ctx, server, "/classementAlliance.php", url.Values{"alliance": {alliance}})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch alliance: %w (server=%s, alliance=%s)", err, server.Name, alliance)
	}

	members, err := parseAllianceMembers(bytes.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse alliance: %w (server=%s, alliance=%s)", err, server.Name, alliance)
	}

	return members, nil
}

// ValidateSession checks that the server's cookie session is still logged in.
func (c *Client) ValidateSession(ctx context.Context, server *types.Server) error {
	body, err := c.get(ctx, server, "/alliance.php", nil)
	if err != nil {
		return fmt.Errorf("failed to fetch alliance page: %w (server=%s)", err, server.Name)
	}

	valid, err := parseSessionValid(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse alliance page: %w (server=%s)", err, server.Name)
	}

	if !valid {
		return fmt.Errorf("%w (server=%s)", ErrSessionExpired, server.Name)
	}

	return nil
}

// get performs a rate limited GET with the server's session cookie.
func (c *Client) get(ctx context.Context, server *types.Server, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, server.Name); err != nil {
		return nil, err
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query)

	if server.CookieSession != "" {
		req.SetCookie(&http.Cookie{Name: SessionCookie, Value: server.CookieSession})
	}

	endpoint := fmt.Sprintf(c.baseURL, server.Name) + path

	resp, err := req.Get(endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}

	c.logger.Debug("Fetched page",
		zap.String("server", server.Name),
		zap.String("path", path),
		zap.Duration("duration", resp.Time()))

	return resp.Body(), nil
}
