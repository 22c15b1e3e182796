// Package discord delivers notifications to a Discord guild laid out as one
// category per game server, one text channel per alliance or player and one
// thread per player.
package discord

import "time"

// ErrorsGroup is the operator channel created in every server category.
const ErrorsGroup = "errors"

const (
	// ColorHuntingField is used for hunting field moves.
	ColorHuntingField = 0x80ff00
	// ColorTrophies is used for trophy moves.
	ColorTrophies = 0xffd700
	// ColorVacation is used for vacation mode changes.
	ColorVacation = 0x03b2f8
	// ColorError is used for operator reports.
	ColorError = 0xbb0000
)

// File is an attachment sent with a message.
type File struct {
	Name string
	Data []byte
}

// Message is a notification and its destination.
type Message struct {
	Category    string
	Group       string
	Thread      string
	Title       string
	Description string
	Color       int
	Silent      bool
	Timestamp   time.Time
	Files       []*File
}

// path returns the destination key of the message.
func (m *Message) path() string {
	if m.Thread == "" {
		return m.Category + "/" + m.Group
	}

	return m.Category + "/" + m.Group + "/" + m.Thread
}
