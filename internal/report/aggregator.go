package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/commshub/internal/db/models"
	"github.com/pysugar/commshub/internal/logging"
)

// ErrInvalidRange is returned when DateTo precedes DateFrom.
var ErrInvalidRange = errors.New("invalid date range")

// LogSource loads log entries with SentAt inside inclusive bounds.
type LogSource interface {
	ListCommunicationLogs(ctx context.Context, from, to *time.Time) ([]models.CommunicationLog, error)
}

// Directory lists employees with their company loaded.
type Directory interface {
	ListEmployees(ctx context.Context) ([]models.Employee, error)
}

// Aggregator fetches logs and the employee directory and builds reports.
type Aggregator struct {
	logs   LogSource
	dir    Directory
	opts   Options
	logger *logging.Logger
}

// NewAggregator creates an Aggregator. logger may be nil.
func NewAggregator(logs LogSource, dir Directory, opts Options, logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.NewSilentLogger()
	}
	return &Aggregator{logs: logs, dir: dir, opts: opts, logger: logger}
}

// BuildReport returns the report for q.
func (a *Aggregator) BuildReport(ctx context.Context, q Query) (*Report, error) {
	if q.DateFrom != nil && q.DateTo != nil && q.DateTo.Before(*q.DateFrom) {
		return nil, fmt.Errorf("%w: date_to %s is before date_from %s", ErrInvalidRange, q.DateTo.Format(time.RFC3339), q.DateFrom.Format(time.RFC3339))
	}

	start := time.Now()
	entries, err := a.logs.ListCommunicationLogs(ctx, q.DateFrom, q.DateTo)
	if err != nil {
		return nil, err
	}
	employees, err := a.dir.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}

	r := Build(entries, employees, q, a.opts)
	a.logger.Debug().
		Int("entries", len(entries)).
		Int("matched", r.TotalMessages).
		Dur("duration", time.Since(start)).
		Msg("communication report built")
	return r, nil
}
