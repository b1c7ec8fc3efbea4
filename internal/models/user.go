package models

import "time"

// UserStatusActive is the only status written today; records of unreachable
// users are removed rather than flagged.
const UserStatusActive = "active"

// UserRecord is a known broadcast recipient.
type UserRecord struct {
	RecipientID int64     `json:"recipient_id"`
	LastSeen    time.Time `json:"last_seen"`
	Status      string    `json:"status"`
}
