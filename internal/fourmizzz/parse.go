package fourmizzz

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
)

const (
	vacationMarker       = "Joueur en vacances"
	sessionExpiredMarker = "Session expirée"
)

// Profile is the part of a player page used for tracking.
type Profile struct {
	Value      int64
	Trophies   int64
	OnVacation bool
	Alliance   string
}

// parseNumber reads an integer printed with space or non-breaking space
// digit grouping.
func parseNumber(text string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t', '\n', '\r':
			return -1
		}

		return r
	}, text)

	value, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParse, text)
	}

	return value, nil
}

// parseRankingPage extracts the rows of a hunting field ranking page. A page
// without the ranking table lies past the end of the leaderboard and yields
// no rows.
func parseRankingPage(r io.Reader) ([]*types.RankingEntry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	table := doc.Find("table.tab_triable").First()
	if table.Length() == 0 {
		return nil, nil
	}

	var (
		entries  []*types.RankingEntry
		parseErr error
	)

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 || parseErr != nil {
			return
		}

		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}

		nameCell := cells.Eq(1)
		name := strings.TrimSpace(nameCell.Find("a").First().Text())
		if name == "" {
			name = strings.TrimSpace(nameCell.Text())
		}

		value, err := parseNumber(cells.Eq(2).Text())
		if err != nil {
			parseErr = fmt.Errorf("invalid hunting field for %s: %w", name, err)
			return
		}

		trophies, err := parseNumber(cells.Eq(5).Text())
		if err != nil {
			parseErr = fmt.Errorf("invalid trophies for %s: %w", name, err)
			return
		}

		entries = append(entries, &types.RankingEntry{
			Name:     name,
			Value:    value,
			Trophies: trophies,
		})
	})

	if parseErr != nil {
		return nil, parseErr
	}

	return entries, nil
}

// parseProfile extracts hunting field, trophies, vacation mode and alliance
// from a player page.
func parseProfile(r io.Reader) (*Profile, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	rows := doc.Find("table.tableau_score").First().Find("tr")
	if rows.Length() < 5 {
		return nil, fmt.Errorf("%w: score table not found", ErrPlayerNotFound)
	}

	value, err := parseNumber(rows.Eq(1).Find("td").Eq(1).Text())
	if err != nil {
		return nil, fmt.Errorf("invalid hunting field: %w", err)
	}

	trophies, err := parseNumber(rows.Eq(4).Find("td").Eq(1).Text())
	if err != nil {
		return nil, fmt.Errorf("invalid trophies: %w", err)
	}

	member := doc.Find("div.boite_membre").First()

	return &Profile{
		Value:      value,
		Trophies:   trophies,
		OnVacation: strings.Contains(member.Text(), vacationMarker),
		Alliance: strings.TrimSpace(member.Find("table").First().
			Find("tr").First().Find("td").Eq(1).Find("a").First().Text()),
	}, nil
}

// parseAllianceMembers extracts member names from an alliance ranking page.
func parseAllianceMembers(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	table := doc.Find("#tabMembresAlliance")
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: member table not found", ErrAllianceNotFound)
	}

	var members []string

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}

		name := strings.TrimSpace(row.Find("td").Eq(2).Text())
		if name != "" {
			members = append(members, name)
		}
	})

	return members, nil
}

// parseSessionValid reports whether the page was served to a logged in session.
func parseSessionValid(r io.Reader) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrParse, err)
	}

	text := doc.Find("#centre").Find("p").First().Text()

	return !strings.Contains(text, sessionExpiredMarker), nil
}
