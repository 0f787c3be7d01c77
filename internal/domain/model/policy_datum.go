package model

import (
	"encoding/json"
	"time"
)

// PolicyDatum is an append-only fact about a contestant, e.g. key "level".
type PolicyDatum struct {
	ID        string          `json:"id"`
	ContestID string          `json:"contest_id"`
	UserID    string          `json:"user_id"`
	Key       string          `json:"key"`
	PolicyID  string          `json:"policy_id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// PolicyDataQuery selects the latest datum per user created at or before EffectiveDate
// whose PolicyID is in PolicyIDs.
type PolicyDataQuery struct {
	ContestID     string
	Key           string
	UserIDs       []string
	PolicyIDs     []string
	EffectiveDate time.Time
}

// FrozenTable is the permanent compressed snapshot of one result table.
type FrozenTable struct {
	RoundID   string    `json:"round_id"`
	TableID   string    `json:"table_id"`
	Payload   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
