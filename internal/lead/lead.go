// Package lead defines the Lead record that moves through the pipeline and
// the envelope codec that puts it on and takes it off the wire.
package lead

import (
	"strings"
	"time"
)

// Geolocation is derived from the lead's IP address during enrichment.
type Geolocation struct {
	Country   string  `json:"country,omitempty"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	ISP       string  `json:"isp,omitempty"`
}

// CompanyInfo is derived from the lead's email domain during enrichment.
type CompanyInfo struct {
	Name     string `json:"name,omitempty"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
	Founded  int    `json:"founded,omitempty"`
	Website  string `json:"website,omitempty"`
}

// Lead is a contact submission accumulating fields as it advances through
// the stages. Email is the idempotency key for persistence; each stage
// stamps only its own timestamp and never removes fields written upstream.
type Lead struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Website string `json:"website,omitempty"`
	Source  string `json:"source,omitempty"`
	Notes   string `json:"notes,omitempty"`
	IP      string `json:"ip,omitempty"`

	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	CleanedAt  *time.Time `json:"cleanedAt,omitempty"`
	EnrichedAt *time.Time `json:"enrichedAt,omitempty"`

	Geolocation *Geolocation `json:"geolocation,omitempty"`
	CompanyInfo *CompanyInfo `json:"companyInfo,omitempty"`
	Score       int          `json:"score,omitempty"`
}

// EmailDomain returns the domain portion of the lead's email, or "" when the
// email has no @.
func (l *Lead) EmailDomain() string {
	at := strings.LastIndex(l.Email, "@")
	if at < 0 || at == len(l.Email)-1 {
		return ""
	}
	return strings.ToLower(l.Email[at+1:])
}
