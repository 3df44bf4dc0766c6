package domain

import (
	"strings"
	"time"
)

// NameFallback is shown when a contact carries neither first nor last name.
const NameFallback = "N/A"

// TimestampLayout is the activity table's timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// ContactRecord is one contact-creation event as returned by the CRM.
// CreatedAt is an absolute instant; the zero value means the provider omitted it.
type ContactRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
}

// DisplayName joins first and last name, falling back to NameFallback.
func (c ContactRecord) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	if name == "" {
		return NameFallback
	}
	return name
}

// ActivityRow is the presentation projection of a ContactRecord.
type ActivityRow struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// Row projects the record into the reporting timezone.
func (c ContactRecord) Row(loc *time.Location) ActivityRow {
	email := c.Email
	if email == "" {
		email = NameFallback
	}
	return ActivityRow{
		Timestamp: c.CreatedAt.In(loc).Format(TimestampLayout),
		Name:      c.DisplayName(),
		Email:     email,
	}
}
