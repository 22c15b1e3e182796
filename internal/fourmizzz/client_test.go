package fourmizzz_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/fourmizzz"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const rankingPage = `<html><body>
<table class="tab_triable">
<tr><th>#</th><th>Pseudo</th><th>TDC</th><th>Fourmilière</th><th>Technologie</th><th>Trophées</th></tr>
<tr><td>1</td><td><a href="Membre.php?Pseudo=alice">alice</a></td><td>12 345 678</td><td>30</td><td>30</td><td>1 204</td></tr>
<tr><td>2</td><td><a href="Membre.php?Pseudo=bob">bob</a></td><td>9 876 543</td><td>28</td><td>29</td><td>17</td></tr>
</table>
</body></html>`

const profilePage = `<html><body>
<div class="boite_membre">
<table><tr><td>Alliance :</td><td><a href="classementAlliance.php?alliance=FOO">FOO</a></td></tr></table>
%s
</div>
<table class="tableau_score">
<tr><th></th><th>Score</th></tr>
<tr><td>Terrain de chasse</td><td>4 200 000</td></tr>
<tr><td>Fourmilière</td><td>25</td></tr>
<tr><td>Technologie</td><td>26</td></tr>
<tr><td>Trophées</td><td>88</td></tr>
</table>
</body></html>`

const alliancePage = `<html><body>
<table id="tabMembresAlliance">
<tr><th>#</th><th>Rang</th><th>Pseudo</th></tr>
<tr><td>1</td><td>Chef</td><td>alice</td></tr>
<tr><td>2</td><td>Membre</td><td>bob</td></tr>
</table>
</body></html>`

type gameSite struct {
	server   *httptest.Server
	cookies  atomic.Value
	vacation atomic.Bool
	expired  atomic.Bool
}

func newGameSite(t *testing.T) *gameSite {
	t.Helper()

	site := &gameSite{}
	mux := http.NewServeMux()

	mux.HandleFunc("/s1/classement2.php", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(fourmizzz.SessionCookie); err == nil {
			site.cookies.Store(cookie.Value)
		}

		assert.Equal(t, "terrain", r.URL.Query().Get("typeClassement"))

		if r.URL.Query().Get("page") == "1" {
			_, _ = fmt.Fprint(w, rankingPage)
			return
		}

		_, _ = fmt.Fprint(w, "<html><body><p>Aucun joueur</p></body></html>")
	})
	mux.HandleFunc("/s1/Membre.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Pseudo") == "ghost" {
			_, _ = fmt.Fprint(w, "<html><body></body></html>")
			return
		}

		marker := ""
		if site.vacation.Load() {
			marker = "<p>Joueur en vacances</p>"
		}

		_, _ = fmt.Fprintf(w, profilePage, marker)
	})
	mux.HandleFunc("/s1/classementAlliance.php", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, alliancePage)
	})
	mux.HandleFunc("/s1/alliance.php", func(w http.ResponseWriter, _ *http.Request) {
		text := "Bienvenue"
		if site.expired.Load() {
			text = "Session expirée, Merci de vous reconnecterRetour"
		}

		_, _ = fmt.Fprintf(w, `<html><body><div id="centre"><p>%s</p></div></body></html>`, text)
	})
	mux.HandleFunc("/s2/classement2.php", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)

	return site
}

func (s *gameSite) client(t *testing.T) *fourmizzz.Client {
	t.Helper()

	return fourmizzz.NewClient(&config.Fourmizzz{
		BaseURL:           s.server.URL + "/%s",
		RequestsPerSecond: 1000,
	}, nil, zaptest.NewLogger(t))
}

func TestFetchRankingPage(t *testing.T) {
	t.Parallel()

	site := newGameSite(t)
	client := site.client(t)
	server := &types.Server{Name: "s1", CookieSession: "abc123"}

	entries, err := client.FetchRankingPage(t.Context(), server, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, &types.RankingEntry{Name: "alice", Value: 12345678, Trophies: 1204}, entries[0])
	assert.Equal(t, &types.RankingEntry{Name: "bob", Value: 9876543, Trophies: 17}, entries[1])
	assert.Equal(t, "abc123", site.cookies.Load())

	entries, err = client.FetchRankingPage(t.Context(), server, 99)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = client.FetchRankingPage(t.Context(), &types.Server{Name: "s2"}, 1)
	require.ErrorIs(t, err, fourmizzz.ErrUnexpectedStatus)
}

func TestFetchRankingPageConnectionFailure(t *testing.T) {
	t.Parallel()

	site := newGameSite(t)
	client := site.client(t)
	site.server.Close()

	_, err := client.FetchRankingPage(t.Context(), &types.Server{Name: "s1"}, 1)
	require.ErrorIs(t, err, fourmizzz.ErrConnection)
}

func TestFetchProfile(t *testing.T) {
	t.Parallel()

	site := newGameSite(t)
	client := site.client(t)
	server := &types.Server{Name: "s1"}

	profile, err := client.FetchProfile(t.Context(), server, "alice")
	require.NoError(t, err)
	assert.Equal(t, &fourmizzz.Profile{Value: 4200000, Trophies: 88, Alliance: "FOO"}, profile)

	site.vacation.Store(true)
	profile, err = client.FetchProfile(t.Context(), server, "alice")
	require.NoError(t, err)
	assert.True(t, profile.OnVacation)

	alliance, err := client.PlayerAlliance(t.Context(), server, "alice")
	require.NoError(t, err)
	assert.Equal(t, "FOO", alliance)

	_, err = client.FetchProfile(t.Context(), server, "ghost")
	require.ErrorIs(t, err, fourmizzz.ErrPlayerNotFound)
}

func TestFetchAllianceMembers(t *testing.T) {
	t.Parallel()

	site := newGameSite(t)
	members, err := site.client(t).FetchAllianceMembers(t.Context(), &types.Server{Name: "s1"}, "FOO")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)
}

func TestValidateSession(t *testing.T) {
	t.Parallel()

	site := newGameSite(t)
	client := site.client(t)
	server := &types.Server{Name: "s1", CookieSession: "abc"}

	require.NoError(t, client.ValidateSession(t.Context(), server))

	site.expired.Store(true)
	require.ErrorIs(t, client.ValidateSession(t.Context(), server), fourmizzz.ErrSessionExpired)
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	site := newGameSite(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := site.client(t).FetchRankingPage(ctx, &types.Server{Name: "s1"}, 1)
	require.ErrorIs(t, err, context.Canceled)
}
