package models

import "time"

type ContactType string

const (
	ContactGeneral        ContactType = "contact"
	ContactJobApplication ContactType = "job_application"
)

type ContactSubmission struct {
	ID        int64       `json:"id,omitempty" db:"id"`
	FirstName string      `json:"firstName" db:"first_name"`
	LastName  string      `json:"lastName" db:"last_name"`
	Email     string      `json:"email" db:"email"`
	Subject   string      `json:"subject" db:"subject"`
	Message   string      `json:"message" db:"message"`
	Type      ContactType `json:"type,omitempty" db:"type"`
	CreatedAt time.Time   `json:"createdAt,omitempty" db:"created_at"`
}
