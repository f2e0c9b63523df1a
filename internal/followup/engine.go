package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/autoflowai/autoflow/internal/leads"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// followUpInterval spaces follow-ups further apart as the count climbs:
// the second waits 48h, the third 96h.
const followUpInterval = 48 * time.Hour

// batchLimit bounds one sweep so a slow LLM cannot stall the cron trigger.
const batchLimit = 20

// LeadStore is the slice of the leads store the sweep needs.
type LeadStore interface {
	ListDueFollowUps(ctx context.Context, asOf time.Time, limit int) ([]leads.Lead, error)
	RecordFollowUp(ctx context.Context, id string, count int, next *time.Time) error
	AppendActivity(ctx context.Context, leadID, profileID string, kind leads.ActivityType, description string) error
}

// ProfileSource resolves the owning business for each due lead.
type ProfileSource interface {
	GetByID(ctx context.Context, id string) (*profiles.Profile, error)
}

// Composer writes the follow-up email body.
type Composer interface {
	FollowUp(ctx context.Context, lead *leads.Lead, profile *profiles.Profile) (string, error)
}

// EmailSender delivers the follow-up to the lead.
type EmailSender interface {
	SendLeadEmail(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, subject, body string) error
}

// Metrics counts follow-up outcomes.
type Metrics interface {
	FollowUpSent()
	FollowUpFailed()
}

// Result summarizes one sweep.
type Result struct {
	Processed int
	Sent      int
	Errors    int
}

// Engine sweeps leads whose scheduled follow-up has come due, writes an
// AI-composed nudge, and reschedules the next one. Per-lead failures are
// logged and skipped so one bad lead cannot block the batch.
type Engine struct {
	leadStore LeadStore
	profiles  ProfileSource
	composer  Composer
	email     EmailSender
	metrics   Metrics
	logger    *logging.Logger

	now func() time.Time
}

// NewEngine wires a follow-up engine.
func NewEngine(leadStore LeadStore, profileSrc ProfileSource, composer Composer, email EmailSender, metrics Metrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		leadStore: leadStore,
		profiles:  profileSrc,
		composer:  composer,
		email:     email,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessDue runs one sweep over due leads.
func (e *Engine) ProcessDue(ctx context.Context) (Result, error) {
	var res Result

	due, err := e.leadStore.ListDueFollowUps(ctx, e.now(), batchLimit)
	if err != nil {
		return res, fmt.Errorf("followup: list due leads: %w", err)
	}

	for i := range due {
		lead := &due[i]

		profile, err := e.profiles.GetByID(ctx, lead.ProfileID)
		if err != nil {
			e.logger.Error("follow-up profile lookup failed", "error", err, "lead_id", lead.ID)
			res.Errors++
			continue
		}
		if !profile.AutoReplyEnabled {
			continue
		}
		if lead.Email == "" {
			e.logger.Debug("lead has no email, skipping follow-up", "lead_id", lead.ID)
			continue
		}

		res.Processed++
		if err := e.sendOne(ctx, profile, lead); err != nil {
			e.logger.Error("follow-up failed", "error", err, "lead_id", lead.ID)
			res.Errors++
			if e.metrics != nil {
				e.metrics.FollowUpFailed()
			}
			continue
		}
		res.Sent++
		if e.metrics != nil {
			e.metrics.FollowUpSent()
		}
	}

	e.logger.Info("follow-up sweep complete", "processed", res.Processed, "sent", res.Sent, "errors", res.Errors)
	return res, nil
}

func (e *Engine) sendOne(ctx context.Context, profile *profiles.Profile, lead *leads.Lead) error {
	body, err := e.composer.FollowUp(ctx, lead, profile)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	subject := fmt.Sprintf("Following up - %s", profile.DisplayName())
	if err := e.email.SendLeadEmail(ctx, profile, lead, subject, body); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	newCount := lead.FollowUpCount + 1
	var next *time.Time
	if newCount < leads.MaxFollowUps {
		at := e.now().Add(time.Duration(newCount) * followUpInterval)
		next = &at
	}
	if err := e.leadStore.RecordFollowUp(ctx, lead.ID, newCount, next); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	desc := fmt.Sprintf("Follow-up #%d sent to %s", newCount, lead.Email)
	if err := e.leadStore.AppendActivity(ctx, lead.ID, lead.ProfileID, leads.ActivityFollowUp, desc); err != nil {
		e.logger.Error("follow-up activity append failed", "error", err, "lead_id", lead.ID)
	}

	e.logger.Info("follow-up sent", "lead_id", lead.ID, "number", newCount)
	return nil
}
