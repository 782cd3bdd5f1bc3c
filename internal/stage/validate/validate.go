// Package validate implements the first pipeline stage: a one-shot boolean
// gate on lead.validation. Leads missing an email or name, or with a
// structurally invalid email, never reach lead.cleaning.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	"github.com/leadforge/lead-processing-pipeline/internal/pipeline"
	apperrors "github.com/leadforge/lead-processing-pipeline/pkg/errors"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
)

// Validator holds the stage's routing and logger.
type Validator struct {
	route  pipeline.Route
	logger *slog.Logger
}

// New creates the validation stage.
func New() (*Validator, error) {
	route, err := pipeline.RouteFor(pipeline.StageValidate)
	if err != nil {
		return nil, err
	}
	return &Validator{
		route:  route,
		logger: logger.WithStage(string(route.Stage), route.Input),
	}, nil
}

// Route returns the stage's queue routing.
func (v *Validator) Route() pipeline.Route {
	return v.route
}

// Handle forwards a valid lead unchanged to the cleaning queue. An invalid
// lead is rejected with ErrInvalidLead; it is never forwarded downstream and
// there is no field-level error reporting back to the submitter.
func (v *Validator) Handle(ctx context.Context, l *lead.Lead, pub pipeline.Publisher) error {
	if err := Check(l); err != nil {
		v.logger.Warn("rejecting invalid lead", "email", l.Email, "error", err)
		return err
	}
	if err := pub.PublishLead(ctx, v.route.Output, l); err != nil {
		return err
	}
	v.logger.Info("lead validated", "email", l.Email)
	return nil
}

// Check applies the validation rules: email and name are required, and the
// email must parse as a bare address with a dotted domain.
func Check(l *lead.Lead) error {
	if l == nil {
		return fmt.Errorf("%w: empty lead", apperrors.ErrInvalidLead)
	}
	email := strings.TrimSpace(l.Email)
	if email == "" {
		return fmt.Errorf("%w: missing email", apperrors.ErrInvalidLead)
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: missing name", apperrors.ErrInvalidLead)
	}
	if !validEmail(email) {
		return fmt.Errorf("%w: bad email format %q", apperrors.ErrInvalidLead, email)
	}
	return nil
}

// validEmail accepts only a bare addr-spec (no display name) whose domain
// contains a dot.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return false
	}
	domain := addr.Address[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
