package models

import (
	"strings"
	"time"
)

const (
	DefaultTeam           = "Unknown Team"
	DefaultLocation       = "Remote"
	DefaultEmploymentType = "Unknown"
	DefaultCompensation   = "Not specified"
)

// Posting is a stored job listing. SourceName and SourceColor are filled in
// by read queries that join the owning source.
type Posting struct {
	ID             string    `json:"id"`
	SourceID       string    `json:"lab_id"`
	Title          string    `json:"title"`
	Team           string    `json:"team"`
	Location       string    `json:"location"`
	EmploymentType string    `json:"type"`
	Compensation   string    `json:"compensation"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	IsActive       bool      `json:"is_active"`

	SourceName  string `json:"lab_name,omitempty"`
	SourceColor string `json:"lab_color,omitempty"`
}

// NormalizedPosting is what a source adapter produces for one listing.
type NormalizedPosting struct {
	ExternalID     string `json:"id"`
	Title          string `json:"title"`
	Team           string `json:"team"`
	Location       string `json:"location"`
	EmploymentType string `json:"type"`
	Compensation   string `json:"compensation"`
}

// WithDefaults trims every field and fills empty optional ones.
func (p NormalizedPosting) WithDefaults() NormalizedPosting {
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.Title = strings.TrimSpace(p.Title)
	p.Team = orDefault(p.Team, DefaultTeam)
	p.Location = orDefault(p.Location, DefaultLocation)
	p.EmploymentType = orDefault(p.EmploymentType, DefaultEmploymentType)
	p.Compensation = orDefault(p.Compensation, DefaultCompensation)
	return p
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
