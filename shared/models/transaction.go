// shared/models/transaction.go
package models

import "time"

// Transaction is an immutable signed point adjustment.
// It is created once by the ledger and never updated or deleted.
// Timestamp comes from the clock of the instance that served the adjustment.
type Transaction struct {
	ID        string    `bson:"_id" json:"id"`
	TeamID    string    `bson:"teamId" json:"teamId"`
	Delta     int64     `bson:"delta" json:"delta"`
	Comment   string    `bson:"comment" json:"comment"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	AdminUID  string    `bson:"adminUid" json:"adminUid"`
}

// Kind labels the adjustment for display.
func (t Transaction) Kind() string {
	if t.Delta >= 0 {
		return "Added"
	}
	return "Removed"
}

// TeamDeltaSum is the aggregated delta of one team's transactions.
type TeamDeltaSum struct {
	TeamID string `bson:"_id" json:"teamId"`
	Sum    int64  `bson:"sum" json:"sum"`
	Count  int64  `bson:"count" json:"count"`
}
