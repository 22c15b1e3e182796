package types

import "time"

// Alliance is a tracked alliance whose members are synced into targets.
type Alliance struct {
	ID        int64     `bun:",pk,autoincrement"                  json:"id"`
	ServerID  int64     `bun:",notnull,unique:alliance_server_name" json:"serverId"`
	Name      string    `bun:",notnull,unique:alliance_server_name" json:"name"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"   json:"createdAt"`

	Server *Server `bun:"rel:belongs-to,join:server_id=id" json:"-"`
}

// Target is a tracked player.
type Target struct {
	ID         int64     `bun:",pk,autoincrement"                 json:"id"`
	ServerID   int64     `bun:",notnull,unique:target_server_name"  json:"serverId"`
	Name       string    `bun:",notnull,unique:target_server_name"  json:"name"`
	AllianceID *int64    `bun:",nullzero"                           json:"allianceId,omitempty"`
	OnVacation bool      `bun:",notnull,default:false"              json:"onVacation"`
	CreatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp"  json:"createdAt"`

	Server   *Server   `bun:"rel:belongs-to,join:server_id=id"   json:"-"`
	Alliance *Alliance `bun:"rel:belongs-to,join:alliance_id=id" json:"-"`
}

// AllianceName returns the alliance tag or an empty string.
func (t *Target) AllianceName() string {
	if t.Alliance == nil {
		return ""
	}

	return t.Alliance.Name
}

// Group returns the notification channel of the target: its alliance or,
// for players without one, its own name.
func (t *Target) Group() string {
	if alliance := t.AllianceName(); alliance != "" {
		return alliance
	}

	return t.Name
}
