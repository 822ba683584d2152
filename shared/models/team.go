// shared/models/team.go
package models

import "time"

// Team is a competing entity accruing points.
// Points is a cached sum of the team's transactions and is only changed through the ledger.
type Team struct {
	ID          string     `bson:"_id" json:"id"`
	AuthUID     string     `bson:"authUid,omitempty" json:"authUid,omitempty"` // Identity-provider subject linked to the team
	Name        string     `bson:"name" json:"name"`
	Points      int64      `bson:"points" json:"points"`
	CreatedAt   *time.Time `bson:"created_at,omitempty" json:"createdAt,omitempty"`
	LastUpdated *time.Time `bson:"last_updated,omitempty" json:"lastUpdated,omitempty"`
}

// DisplayName falls back to a placeholder for teams seeded without a name.
func (t Team) DisplayName() string {
	if t.Name == "" {
		return "Unnamed team"
	}
	return t.Name
}

// RankedTeam is one leaderboard row.
type RankedTeam struct {
	Rank   int    `json:"rank"`
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
}
