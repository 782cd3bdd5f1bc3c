package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	"github.com/leadforge/lead-processing-pipeline/internal/pipeline"
	apperrors "github.com/leadforge/lead-processing-pipeline/pkg/errors"
)

type capturePublisher struct {
	queue string
	lead  *lead.Lead
	count int
}

func (p *capturePublisher) PublishLead(_ context.Context, queue string, l *lead.Lead) error {
	p.queue = queue
	p.lead = l
	p.count++
	return nil
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		lead  *lead.Lead
		valid bool
	}{
		{"valid", &lead.Lead{Email: "jane.doe@example.com", Name: "Jane Doe"}, true},
		{"valid uppercase", &lead.Lead{Email: "Jane.Doe@Example.com", Name: "Jane"}, true},
		{"missing email", &lead.Lead{Name: "No Email"}, false},
		{"missing name", &lead.Lead{Email: "a@b.co"}, false},
		{"blank name", &lead.Lead{Email: "a@b.co", Name: "   "}, false},
		{"no at sign", &lead.Lead{Email: "not-an-email", Name: "X"}, false},
		{"no domain dot", &lead.Lead{Email: "a@localhost", Name: "X"}, false},
		{"display name form", &lead.Lead{Email: "Jane <jane@example.com>", Name: "X"}, false},
		{"spaces inside", &lead.Lead{Email: "ja ne@example.com", Name: "X"}, false},
		{"nil lead", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.lead)
			if tt.valid && err != nil {
				t.Errorf("Check = %v, want nil", err)
			}
			if !tt.valid {
				if !errors.Is(err, apperrors.ErrInvalidLead) {
					t.Errorf("Check = %v, want ErrInvalidLead", err)
				}
				if !apperrors.IsPermanent(err) {
					t.Errorf("validation failure should be permanent")
				}
			}
		})
	}
}

func TestHandleForwardsValidLead(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pub := &capturePublisher{}
	l := &lead.Lead{Email: "jane.doe@example.com", Name: "Jane Doe"}

	if err := v.Handle(context.Background(), l, pub); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if pub.count != 1 {
		t.Fatalf("published %d messages, want 1", pub.count)
	}
	if pub.queue != pipeline.QueueCleaning {
		t.Errorf("published to %q, want %q", pub.queue, pipeline.QueueCleaning)
	}
	if pub.lead.Email != l.Email {
		t.Errorf("forwarded lead email = %q", pub.lead.Email)
	}
}

func TestHandleRejectsWithoutForwarding(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pub := &capturePublisher{}

	err = v.Handle(context.Background(), &lead.Lead{Name: "No Email"}, pub)
	if !errors.Is(err, apperrors.ErrInvalidLead) {
		t.Errorf("Handle = %v, want ErrInvalidLead", err)
	}
	if pub.count != 0 {
		t.Errorf("rejected lead was published downstream %d times", pub.count)
	}
}
