// shared/models/session.go
package models

import "time"

// SessionRecord is what a session token resolves to.
type SessionRecord struct {
	SubjectID string    `json:"subjectId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Principal is an identity-provider subject that passed email/password sign-in.
type Principal struct {
	SubjectID string `json:"subjectId"`
	Email     string `json:"email"`
}
