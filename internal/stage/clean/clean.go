// Package clean implements the second pipeline stage: a deterministic, pure
// normalisation of the lead's string fields. Cleaning never drops a lead.
package clean

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/nyaruka/phonenumbers"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	"github.com/leadforge/lead-processing-pipeline/internal/pipeline"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
)

// defaultPhoneRegion is assumed when a phone number carries no country code.
const defaultPhoneRegion = "US"

// Cleaner holds the stage's routing, clock, and logger.
type Cleaner struct {
	route  pipeline.Route
	now    func() time.Time
	logger *slog.Logger
}

// New creates the cleaning stage.
func New() (*Cleaner, error) {
	route, err := pipeline.RouteFor(pipeline.StageClean)
	if err != nil {
		return nil, err
	}
	return &Cleaner{
		route:  route,
		now:    time.Now,
		logger: logger.WithStage(string(route.Stage), route.Input),
	}, nil
}

// Route returns the stage's queue routing.
func (c *Cleaner) Route() pipeline.Route {
	return c.route
}

// Handle cleans the lead in place, stamps cleanedAt, and forwards it to the
// enrichment queue.
func (c *Cleaner) Handle(ctx context.Context, l *lead.Lead, pub pipeline.Publisher) error {
	Apply(l, c.now().UTC())
	if err := pub.PublishLead(ctx, c.route.Output, l); err != nil {
		return err
	}
	c.logger.Info("lead cleaned", "email", l.Email)
	return nil
}

// Apply normalises the lead: trims every string field, lowercases the email,
// title-cases the name, reformats the phone number to international display
// format when it parses, and stamps cleanedAt. Fields written by earlier
// stages are never removed.
func Apply(l *lead.Lead, now time.Time) {
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	l.Name = titleCase(strings.TrimSpace(l.Name))
	l.Phone = formatPhone(strings.TrimSpace(l.Phone))
	l.Company = strings.TrimSpace(l.Company)
	l.Website = strings.TrimSpace(l.Website)
	l.Source = strings.TrimSpace(l.Source)
	l.Notes = strings.TrimSpace(l.Notes)
	l.IP = strings.TrimSpace(l.IP)
	l.CleanedAt = &now
}

// titleCase capitalises the first letter of each whitespace-separated token
// and lowercases the remainder.
func titleCase(name string) string {
	fields := strings.Fields(name)
	for i, f := range fields {
		runes := []rune(strings.ToLower(f))
		runes[0] = unicode.ToUpper(runes[0])
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}

// formatPhone returns the international display format when the number
// parses as valid, and the input untouched otherwise. A bad phone number
// never fails the stage.
func formatPhone(phone string) string {
	if phone == "" {
		return phone
	}
	num, err := phonenumbers.Parse(phone, defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}
