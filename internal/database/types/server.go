package types

import "time"

// Server is a game world such as s1 or s4.
type Server struct {
	ID            int64     `bun:",pk,autoincrement"              json:"id"`
	Name          string    `bun:",unique,notnull"                json:"name"`
	CookieSession string    `bun:",notnull,default:''"            json:"-"`
	NScannedPages int       `bun:",nullzero,notnull,default:1"    json:"nScannedPages"`
	ScanVersion   int64     `bun:",notnull,default:0"             json:"scanVersion"`
	CreatedAt     time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// ScanState is the persisted scan depth of a server together with the
// version it was read at.
type ScanState struct {
	ServerID int64
	Depth    int
	Version  int64
}

// ScanState returns the current scan state of the server.
func (s *Server) ScanState() ScanState {
	return ScanState{
		ServerID: s.ID,
		Depth:    s.NScannedPages,
		Version:  s.ScanVersion,
	}
}
