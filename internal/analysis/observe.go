package analysis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/metalens/internal/metrics"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// Observed records outcome, latency and payload size of every call and logs
// failures.
type Observed struct {
	next    Analyzer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewObserved wraps next. m and logger may be nil.
func NewObserved(next Analyzer, m *metrics.Metrics, logger *slog.Logger) *Observed {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Observed{
		next:    next,
		metrics: m,
		logger:  logger.With(slog.String("component", "analysis")),
	}
}

// Analyze calls through and records the outcome.
func (o *Observed) Analyze(ctx context.Context, req Request) (types.AnalysisResult, error) {
	start := time.Now()
	result, err := o.next.Analyze(ctx, req)
	elapsed := time.Since(start)

	outcome := Outcome(err)
	if o.metrics != nil {
		o.metrics.AnalysisRequests.WithLabelValues(outcome).Inc()
		o.metrics.AnalysisDuration.Observe(elapsed.Seconds())
		o.metrics.AnalysisBytes.Add(float64(req.RawSize))
	}

	if err != nil {
		o.logger.Warn("analysis failed",
			slog.String("outcome", outcome),
			slog.String("mime_type", req.MimeType),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return types.AnalysisResult{}, err
	}

	o.logger.Info("analysis completed",
		slog.String("mime_type", req.MimeType),
		slog.Int("keywords", len(result.Keywords)),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

// Outcome maps an analysis error to a metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrPayloadTooLarge):
		return metrics.OutcomeTooLarge
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrEmptyResponse):
		return metrics.OutcomeMalformed
	case IsServiceError(err), errors.Is(err, ErrNoAPIKey):
		return metrics.OutcomeService
	}
	return metrics.OutcomeTransport
}
