package models

import (
	"time"
)

// Source is a row of the labs table.
type Source struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Color       string     `json:"color"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// RawPayload is an unparsed response body from a source.
type RawPayload []byte

func (p RawPayload) MarshalBinary() ([]byte, error) {
	return []byte(p), nil
}

func (p *RawPayload) UnmarshalBinary(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}
