// Package session owns the single active file of a metalens run: its handle,
// its current record, and the analysis bookkeeping around it.
//
// Each Open or Close bumps a generation counter. An analysis carries the
// generation it was issued against and its result is merged only if that
// generation is still current; otherwise it is discarded. At most one
// analysis is in flight per active record, and edits are accepted while it
// runs.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mesh-intelligence/metalens/internal/analysis"
	"github.com/mesh-intelligence/metalens/internal/metrics"
	"github.com/mesh-intelligence/metalens/pkg/clock"
	"github.com/mesh-intelligence/metalens/pkg/export"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// Session errors.
var (
	ErrNoActiveFile     = errors.New("no active file")
	ErrNoAnalyzer       = errors.New("no analyzer configured")
	ErrAnalysisInFlight = errors.New("an analysis is already running for this file")
	ErrStaleAnalysis    = errors.New("analysis result discarded: the file was replaced")
)

// Config wires a Session. Zero values are usable: no analyzer, the default
// payload limit, no timeout, the real clock, no metrics, a discarding logger.
type Config struct {
	Analyzer        analysis.Analyzer
	MaxPayloadBytes int64
	Timeout         time.Duration
	Clock           clock.Clock
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// Session holds the active handle and record. Safe for concurrent use.
type Session struct {
	analyzer   analysis.Analyzer
	maxPayload int64
	timeout    time.Duration
	exporter   *export.Exporter
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu         sync.Mutex
	active     bool
	handle     types.FileHandle
	record     types.Record
	generation uint64
	inflight   bool
}

// New creates an empty session.
func New(cfg Config) *Session {
	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = analysis.DefaultMaxPayloadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		analyzer:   cfg.Analyzer,
		maxPayload: cfg.MaxPayloadBytes,
		timeout:    cfg.Timeout,
		exporter:   export.New(cfg.Clock),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With(slog.String("component", "session")),
	}
}

// Open makes h the active file, replacing any previous one, and returns its
// freshly initialized record.
func (s *Session) Open(h types.FileHandle) types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.inflight = false
	s.active = true
	s.handle = h
	s.record = types.InitFrom(h)

	s.logger.Debug("file opened",
		slog.String("name", h.OriginalName),
		slog.Int64("size", h.OriginalSize),
		slog.Uint64("generation", s.generation),
	)
	return s.record
}

// Close discards the active file. Pending analyses become stale.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.inflight = false
	s.active = false
	s.handle = types.FileHandle{}
	s.record = types.Record{}
}

// Active reports whether a file is open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Generation returns the current generation token.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// InFlight reports whether an analysis is running for the active record.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// Snapshot returns the active handle and record.
func (s *Session) Snapshot() (types.FileHandle, types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return types.FileHandle{}, types.Record{}, ErrNoActiveFile
	}
	return s.handle, s.record, nil
}

// Record returns the active record.
func (s *Session) Record() (types.Record, error) {
	_, r, err := s.Snapshot()
	return r, err
}

// Update replaces the active record with fn applied to it.
func (s *Session) Update(fn func(types.Record) types.Record) (types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return types.Record{}, ErrNoActiveFile
	}
	s.record = fn(s.record)
	return s.record, nil
}

// Ticket identifies one issued analysis.
type Ticket struct {
	generation uint64
	request    analysis.Request
}

// Generation returns the generation the ticket was issued against.
func (t Ticket) Generation() uint64 { return t.generation }

// Request returns the prepared analysis request.
func (t Ticket) Request() analysis.Request { return t.request }

// BeginAnalysis checks preconditions, prepares the request and marks an
// analysis in flight. The size precondition fails here, before any call.
func (s *Session) BeginAnalysis() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return Ticket{}, ErrNoActiveFile
	}
	if s.inflight {
		return Ticket{}, ErrAnalysisInFlight
	}

	req, err := analysis.Prepare(s.handle, s.record, s.maxPayload)
	if err != nil {
		s.count(analysis.Outcome(err))
		return Ticket{}, err
	}

	s.inflight = true
	return Ticket{generation: s.generation, request: req}, nil
}

// CompleteAnalysis applies the outcome of a ticket. A ticket from an older
// generation is discarded with ErrStaleAnalysis. A failed analysis leaves the
// record unchanged and returns the failure. Otherwise the result is merged
// and the new record returned.
func (s *Session) CompleteAnalysis(t Ticket, result types.AnalysisResult, analysisErr error) (types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.generation != s.generation || !s.active {
		s.count(metrics.OutcomeStale)
		s.logger.Info("discarding stale analysis",
			slog.Uint64("ticket_generation", t.generation),
			slog.Uint64("generation", s.generation),
		)
		return types.Record{}, ErrStaleAnalysis
	}

	s.inflight = false
	if analysisErr != nil {
		return s.record, analysisErr
	}

	s.record = types.Merge(s.record, result)
	return s.record, nil
}

// Outcome is the completion of an asynchronous analysis.
type Outcome struct {
	Result types.AnalysisResult
	Record types.Record
	Err    error
}

// Analyze runs one analysis to completion and merges it.
func (s *Session) Analyze(ctx context.Context) (types.AnalysisResult, types.Record, error) {
	if s.analyzer == nil {
		return types.AnalysisResult{}, types.Record{}, ErrNoAnalyzer
	}
	ticket, err := s.BeginAnalysis()
	if err != nil {
		return types.AnalysisResult{}, types.Record{}, err
	}
	return s.run(ctx, ticket)
}

// AnalyzeAsync starts an analysis in the background. Precondition failures
// are returned directly; everything else arrives on the channel, which
// receives exactly one Outcome.
func (s *Session) AnalyzeAsync(ctx context.Context) (<-chan Outcome, error) {
	if s.analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	ticket, err := s.BeginAnalysis()
	if err != nil {
		return nil, err
	}

	done := make(chan Outcome, 1)
	go func() {
		result, record, err := s.run(ctx, ticket)
		done <- Outcome{Result: result, Record: record, Err: err}
	}()
	return done, nil
}

func (s *Session) run(ctx context.Context, ticket Ticket) (types.AnalysisResult, types.Record, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.analyzer.Analyze(ctx, ticket.request)
	record, err := s.CompleteAnalysis(ticket, result, err)
	if err != nil {
		return types.AnalysisResult{}, record, err
	}
	return result, record, nil
}

// ExportBinary builds the binary artifact for the active file.
func (s *Session) ExportBinary() (export.BinaryArtifact, error) {
	h, r, err := s.Snapshot()
	if err != nil {
		return export.BinaryArtifact{}, err
	}
	return s.exporter.Binary(h, r), nil
}

// ExportSidecar builds the sidecar artifact for the active file.
func (s *Session) ExportSidecar() (export.SidecarArtifact, error) {
	h, r, err := s.Snapshot()
	if err != nil {
		return export.SidecarArtifact{}, err
	}
	return s.exporter.Sidecar(h, r)
}

// count records an analysis outcome that never reached the analyzer
// decorators. Callers hold s.mu.
func (s *Session) count(outcome string) {
	if s.metrics != nil {
		s.metrics.AnalysisRequests.WithLabelValues(outcome).Inc()
	}
}
