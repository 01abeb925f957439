// Package chat defines the conversation records shared between the
// session store, the agent dispatcher, and the HTTP layer: turns, roles,
// and the artifacts (tables, chart images) an agent reply can carry.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the originator of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Table is a tabular artifact attached to an agent turn.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Chart is a raster chart artifact attached to an agent turn.
// Data is the raw image bytes; encoding/json transports it as base64.
type Chart struct {
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// Turn is one exchange unit in a conversation: either the user's
// question or the agent's reply. Turns are append-only and never edited.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Tables    []Table   `json:"tables,omitempty"`
	Charts    []Chart   `json:"charts,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserTurn builds a user turn for the given question text.
func NewUserTurn(text string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAgentTurn builds an agent turn carrying the reply text and any
// artifacts the agent produced alongside it.
func NewAgentTurn(text string, tables []Table, charts []Chart) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleAgent,
		Text:      text,
		Tables:    tables,
		Charts:    charts,
		CreatedAt: time.Now().UTC(),
	}
}
