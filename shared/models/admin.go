// shared/models/admin.go
package models

// Admin marks an identity-provider subject as administrator. Its existence is the only signal.
type Admin struct {
	SubjectID string `bson:"_id" json:"subjectId"`
}
