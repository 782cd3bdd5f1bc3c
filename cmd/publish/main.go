// Command publish injects a lead onto the lead.validation queue, standing in
// for the ingress boundary during development and smoke testing.
//
// Usage:
//
//	go run ./cmd/publish -email jane.doe@example.com -name "Jane Doe"
//	go run ./cmd/publish -file lead.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	"github.com/leadforge/lead-processing-pipeline/internal/pipeline"
	"github.com/leadforge/lead-processing-pipeline/pkg/config"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
	"github.com/leadforge/lead-processing-pipeline/pkg/rabbit"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "path to a lead JSON file (overrides field flags)")
	email := flag.String("email", "", "lead email")
	name := flag.String("name", "", "lead name")
	phone := flag.String("phone", "", "lead phone")
	company := flag.String("company", "", "lead company")
	website := flag.String("website", "", "lead website")
	source := flag.String("source", "", "lead source")
	notes := flag.String("notes", "", "lead notes")
	ip := flag.String("ip", "", "submitter IP address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	l, err := buildLead(*file, *email, *name, *phone, *company, *website, *source, *notes, *ip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := rabbit.Connect(ctx, cfg.Rabbit, pipeline.AllQueues()...)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	pub := pipeline.NewPublisher(client, nil)
	if err := pub.PublishLead(ctx, pipeline.QueueValidation, l); err != nil {
		slog.Error("failed to publish lead", "error", err)
		os.Exit(1)
	}
	slog.Info("lead queued for validation", "email", l.Email)
}

// buildLead reads the lead from a JSON file when given, otherwise from the
// field flags. createdAt is stamped here the way the ingress boundary would.
func buildLead(file, email, name, phone, company, website, source, notes, ip string) (*lead.Lead, error) {
	var l lead.Lead
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading lead file: %w", err)
		}
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("parsing lead file: %w", err)
		}
	} else {
		l = lead.Lead{
			Email:   email,
			Name:    name,
			Phone:   phone,
			Company: company,
			Website: website,
			Source:  source,
			Notes:   notes,
			IP:      ip,
		}
	}
	if l.Email == "" {
		return nil, fmt.Errorf("a lead must include an email")
	}
	if l.CreatedAt == nil {
		now := time.Now().UTC()
		l.CreatedAt = &now
	}
	return &l, nil
}
