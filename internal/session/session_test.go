package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/metalens/internal/analysis"
	"github.com/mesh-intelligence/metalens/internal/metrics"
	"github.com/mesh-intelligence/metalens/pkg/clock"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// gatedAnalyzer blocks each call until release receives a reply.
type gatedAnalyzer struct {
	started chan analysis.Request
	release chan reply
}

type reply struct {
	result types.AnalysisResult
	err    error
}

func newGated() *gatedAnalyzer {
	return &gatedAnalyzer{
		started: make(chan analysis.Request, 4),
		release: make(chan reply),
	}
}

func (g *gatedAnalyzer) Analyze(ctx context.Context, req analysis.Request) (types.AnalysisResult, error) {
	g.started <- req
	select {
	case r := <-g.release:
		return r.result, r.err
	case <-ctx.Done():
		return types.AnalysisResult{}, ctx.Err()
	}
}

// staticAnalyzer returns the same reply immediately.
type staticAnalyzer reply

func (s staticAnalyzer) Analyze(context.Context, analysis.Request) (types.AnalysisResult, error) {
	return s.result, s.err
}

var at = time.Date(2024, 3, 9, 14, 5, 0, 0, time.Local)

func handle(name string) types.FileHandle {
	return types.NewFileHandle(name, "application/pdf", at, []byte("%PDF-1.7 "+name), "")
}

func suggestion() types.AnalysisResult {
	return types.AnalysisResult{
		Summary:           "Quarterly revenue report",
		Keywords:          []string{"finance", "q1"},
		SuggestedFilename: "q1_revenue.pdf",
	}
}

func recv(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("analysis did not complete")
		return Outcome{}
	}
}

func TestNoActiveFile(t *testing.T) {
	s := New(Config{Analyzer: staticAnalyzer{}})

	assert.False(t, s.Active())
	_, err := s.Record()
	assert.ErrorIs(t, err, ErrNoActiveFile)
	_, err = s.Update(func(r types.Record) types.Record { return r })
	assert.ErrorIs(t, err, ErrNoActiveFile)
	_, _, err = s.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveFile)
	_, err = s.ExportBinary()
	assert.ErrorIs(t, err, ErrNoActiveFile)
	_, err = s.ExportSidecar()
	assert.ErrorIs(t, err, ErrNoActiveFile)
}

func TestNoAnalyzer(t *testing.T) {
	s := New(Config{})
	s.Open(handle("a.pdf"))

	_, _, err := s.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNoAnalyzer)
	_, err = s.AnalyzeAsync(context.Background())
	assert.ErrorIs(t, err, ErrNoAnalyzer)
	assert.False(t, s.InFlight())
}

func TestOpenReplacesRecord(t *testing.T) {
	s := New(Config{})

	r := s.Open(handle("a.pdf"))
	assert.Equal(t, "a.pdf", r.Name)
	g1 := s.Generation()

	_, err := s.Update(func(r types.Record) types.Record { return r.AddKeyword("draft") })
	require.NoError(t, err)

	r = s.Open(handle("b.pdf"))
	assert.Equal(t, "b.pdf", r.Name)
	assert.Empty(t, r.Keywords, "a new handle starts from a fresh record")
	assert.Greater(t, s.Generation(), g1)

	s.Close()
	assert.False(t, s.Active())
	assert.Greater(t, s.Generation(), g1+1)
}

func TestAnalyzeMerges(t *testing.T) {
	s := New(Config{Analyzer: staticAnalyzer{result: suggestion()}})
	s.Open(handle("report.pdf"))
	_, err := s.Update(func(r types.Record) types.Record {
		r, _ = r.AddCustomField()
		return r
	})
	require.NoError(t, err)

	result, rec, err := s.Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Quarterly revenue report", result.Summary)
	assert.Equal(t, "q1_revenue.pdf", rec.Name)
	assert.Equal(t, "Quarterly revenue report", rec.Description)
	assert.Equal(t, []string{"finance", "q1"}, rec.Keywords)
	assert.Len(t, rec.CustomFields, 1)
	assert.False(t, s.InFlight())

	got, err := s.Record()
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestAnalyzeFailureLeavesRecord(t *testing.T) {
	failure := fmt.Errorf("%w: boom", analysis.ErrTransport)
	s := New(Config{Analyzer: staticAnalyzer{err: failure}})
	s.Open(handle("report.pdf"))
	before, err := s.Update(func(r types.Record) types.Record { return r.AddKeyword("mine") })
	require.NoError(t, err)

	_, rec, err := s.Analyze(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrFailed)
	assert.Equal(t, before, rec)
	assert.False(t, s.InFlight(), "a failed analysis may be retried")

	after, err := s.Record()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPayloadTooLarge(t *testing.T) {
	m := metrics.New()
	calls := newGated()
	s := New(Config{Analyzer: calls, MaxPayloadBytes: 4, Metrics: m})
	s.Open(handle("big.pdf"))

	_, _, err := s.Analyze(context.Background())
	assert.ErrorIs(t, err, analysis.ErrPayloadTooLarge)
	assert.ErrorIs(t, err, analysis.ErrFailed)
	assert.False(t, s.InFlight())
	assert.Empty(t, calls.started, "no call is made over the limit")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisRequests.WithLabelValues(metrics.OutcomeTooLarge)))
}

func TestSingleInFlight(t *testing.T) {
	g := newGated()
	s := New(Config{Analyzer: g})
	s.Open(handle("report.pdf"))

	done, err := s.AnalyzeAsync(context.Background())
	require.NoError(t, err)
	<-g.started
	assert.True(t, s.InFlight())

	_, err = s.AnalyzeAsync(context.Background())
	assert.ErrorIs(t, err, ErrAnalysisInFlight)
	_, _, err = s.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrAnalysisInFlight)

	g.release <- reply{result: suggestion()}
	out := recv(t, done)
	require.NoError(t, out.Err)
	assert.False(t, s.InFlight())
}

func TestEditsDuringFlight(t *testing.T) {
	g := newGated()
	s := New(Config{Analyzer: g})
	s.Open(handle("report.pdf"))

	done, err := s.AnalyzeAsync(context.Background())
	require.NoError(t, err)
	<-g.started

	_, err = s.Update(func(r types.Record) types.Record {
		return r.Set(types.FieldMimeType, "application/x-report").AddKeyword("mine")
	})
	require.NoError(t, err)

	g.release <- reply{result: suggestion()}
	out := recv(t, done)
	require.NoError(t, out.Err)

	assert.Equal(t, "application/x-report", out.Record.MimeType, "edits made while pending survive the merge")
	assert.Equal(t, []string{"finance", "q1"}, out.Record.Keywords, "keywords are overwritten by the merge")
}

func TestStaleAnalysisDiscarded(t *testing.T) {
	tests := []struct {
		name    string
		replace func(*Session)
	}{
		{"reopened", func(s *Session) { s.Open(handle("other.txt")) }},
		{"closed", func(s *Session) { s.Close() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			g := newGated()
			s := New(Config{Analyzer: g, Metrics: m})
			s.Open(handle("report.pdf"))

			done, err := s.AnalyzeAsync(context.Background())
			require.NoError(t, err)
			<-g.started

			tt.replace(s)
			assert.False(t, s.InFlight(), "replacing the file clears the in-flight guard")

			g.release <- reply{result: suggestion()}
			out := recv(t, done)
			assert.ErrorIs(t, out.Err, ErrStaleAnalysis)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisRequests.WithLabelValues(metrics.OutcomeStale)))

			if s.Active() {
				rec, err := s.Record()
				require.NoError(t, err)
				assert.Equal(t, "other.txt", rec.Name)
				assert.Empty(t, rec.Description)
				assert.Empty(t, rec.Keywords)
			}
		})
	}
}

func TestStaleFailureIsStale(t *testing.T) {
	g := newGated()
	s := New(Config{Analyzer: g})
	s.Open(handle("report.pdf"))

	done, err := s.AnalyzeAsync(context.Background())
	require.NoError(t, err)
	<-g.started
	s.Open(handle("other.pdf"))

	g.release <- reply{err: errors.New("late failure")}
	out := recv(t, done)
	assert.ErrorIs(t, out.Err, ErrStaleAnalysis)
}

func TestCompleteAnalysisTicket(t *testing.T) {
	s := New(Config{Analyzer: staticAnalyzer{}})
	s.Open(handle("report.pdf"))

	ticket, err := s.BeginAnalysis()
	require.NoError(t, err)
	assert.Equal(t, s.Generation(), ticket.Generation())
	assert.Equal(t, "application/pdf", ticket.Request().MimeType)

	rec, err := s.CompleteAnalysis(ticket, suggestion(), nil)
	require.NoError(t, err)
	assert.Equal(t, "q1_revenue.pdf", rec.Name)

	_, err = s.CompleteAnalysis(Ticket{generation: ticket.Generation() - 1}, suggestion(), nil)
	assert.ErrorIs(t, err, ErrStaleAnalysis)
}

func TestTimeout(t *testing.T) {
	g := newGated()
	s := New(Config{Analyzer: g, Timeout: 20 * time.Millisecond})
	s.Open(handle("report.pdf"))

	_, _, err := s.Analyze(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.InFlight())
}

func TestExports(t *testing.T) {
	fake := clock.Fake(time.Date(2025, 1, 2, 3, 4, 0, 0, time.Local))
	s := New(Config{Clock: fake})
	h := handle("report.pdf")
	s.Open(h)

	_, err := s.Update(func(r types.Record) types.Record {
		r = r.Set(types.FieldName, "final.pdf").Set(types.FieldModifiedAt, "garbage")
		r, id := r.AddCustomField()
		return r.UpdateCustomField(id, types.AttrKey, "owner").UpdateCustomField(id, types.AttrValue, "ana")
	})
	require.NoError(t, err)

	bin, err := s.ExportBinary()
	require.NoError(t, err)
	assert.Equal(t, h.Bytes, bin.Bytes)
	assert.Equal(t, "final.pdf", bin.Filename)
	assert.True(t, fake.Now().Equal(bin.Timestamp), "unparseable modifiedAt falls back to the clock")

	side, err := s.ExportSidecar()
	require.NoError(t, err)
	assert.Equal(t, "final_metadata.json", side.Filename)
	assert.Contains(t, string(side.JSON), `"owner": "ana"`)
}
