// Package report accepts environmental issue reports. Nothing is sent
// anywhere; a report is validated, held for a short artificial delay and
// acknowledged with a receipt.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaigai-ai/vaigai/pkg/models"
	"github.com/vaigai-ai/vaigai/pkg/validation"
)

const (
	DefaultDelay        = 1200 * time.Millisecond
	DefaultDismissAfter = 5 * time.Second
)

// ErrInvalidReport wraps every validation failure returned by Submit.
var ErrInvalidReport = errors.New("invalid report")

// Desk receives issue reports.
type Desk struct {
	delay        time.Duration
	dismissAfter time.Duration
	validate     *validator.Validate
	trans        ut.Translator
	logger       *zap.Logger
	now          func() time.Time
}

// NewDesk creates a Desk. Negative durations are treated as zero.
func NewDesk(delay, dismissAfter time.Duration, logger *zap.Logger) (*Desk, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	validate, trans, err := validation.New("json")
	if err != nil {
		return nil, err
	}

	return &Desk{
		delay:        max(delay, 0),
		dismissAfter: max(dismissAfter, 0),
		validate:     validate,
		trans:        trans,
		logger:       logger.Named("report"),
		now:          time.Now,
	}, nil
}

// Submit validates r, waits out the submission delay and returns a receipt.
// The wait ends early with ctx's error if ctx is done first.
func (d *Desk) Submit(ctx context.Context, r models.IssueReport) (models.ReportReceipt, error) {
	r.Location = strings.TrimSpace(r.Location)
	r.IssueType = strings.TrimSpace(r.IssueType)
	r.Description = strings.TrimSpace(r.Description)

	if err := d.check(r); err != nil {
		return models.ReportReceipt{}, err
	}

	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return models.ReportReceipt{}, ctx.Err()
	case <-timer.C:
	}

	receipt := models.ReportReceipt{
		ID:           uuid.NewString(),
		SubmittedAt:  d.now(),
		DismissAfter: d.dismissAfter,
	}
	d.logger.Info("report received",
		zap.String("id", receipt.ID),
		zap.String("issue_type", r.IssueType))
	return receipt, nil
}

func (d *Desk) check(r models.IssueReport) error {
	err := d.validate.Struct(r)
	if err == nil {
		return nil
	}
	msg, ok := validation.Messages(err, d.trans)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return fmt.Errorf("%w: %s", ErrInvalidReport, msg)
}
