package correlate

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const timeLayout = "02/01/2006 15:04"

// Move is one change of a player on a metric.
type Move struct {
	Name     string
	Alliance string
	After    int64
	Diff     int64
	Time     time.Time
}

// groupDigits formats n with space separated thousands.
func groupDigits(n int64) string {
	return strings.ReplaceAll(message.NewPrinter(language.English).Sprintf("%d", n), ",", " ")
}

// signedDigits is groupDigits with an explicit sign.
func signedDigits(n int64) string {
	if n < 0 {
		return "-" + groupDigits(-n)
	}

	return "+" + groupDigits(n)
}

// Line renders the move as "name (alliance): before -> after (+diff)".
func (m Move) Line() string {
	var b strings.Builder

	b.WriteString(m.Name)

	if m.Alliance != "" {
		b.WriteString(" (")
		b.WriteString(m.Alliance)
		b.WriteString(")")
	}

	b.WriteString(": ")
	b.WriteString(groupDigits(m.After - m.Diff))
	b.WriteString(" -> ")
	b.WriteString(groupDigits(m.After))
	b.WriteString(" (")
	b.WriteString(signedDigits(m.Diff))
	b.WriteString(")")

	return b.String()
}

// describe renders the target moves with their timestamps followed by the
// corresponding moves.
func describe(target, corresponding []Move, loc *time.Location) string {
	var b strings.Builder

	b.WriteString("Target moves:\n")

	for _, move := range target {
		b.WriteString(move.Time.In(loc).Format(timeLayout))
		b.WriteString("\n")
		b.WriteString(move.Line())
		b.WriteString("\n")
	}

	b.WriteString("\nCorresponding moves:\n")

	for _, move := range corresponding {
		b.WriteString(move.Line())
		b.WriteString("\n")
	}

	return b.String()
}
