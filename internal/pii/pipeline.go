// pipeline.go wires the three detection layers, the reconciler, and the
// redactor into the single entry point the rest of the module calls:
// collect candidates from every enabled layer, reconcile them into
// non-overlapping spans, then (optionally) redact.
package pii

import (
	"context"
	"time"

	"legalcore/internal/logger"
	"legalcore/internal/metrics"
)

// Pipeline is the PII Protection Core's public entry point.
type Pipeline struct {
	regex      *RegexLayer
	localNER   *LocalNERLayer
	external   *ExternalAnalyzerLayer
	reconciler *Reconciler
	redactor   *Redactor

	m   *metrics.Metrics
	log *logger.Logger
}

// PipelineOption configures optional layers; all default to disabled.
type PipelineOption func(*Pipeline)

// WithLocalNER enables the L2 layer with the given model.
func WithLocalNER(model LocalNERModel) PipelineOption {
	return func(p *Pipeline) { p.localNER = NewLocalNERLayer(model) }
}

// WithExternalAnalyzer enables the L3 layer.
func WithExternalAnalyzer(layer *ExternalAnalyzerLayer) PipelineOption {
	return func(p *Pipeline) { p.external = layer }
}

// DefaultConfidenceThreshold is the reconciliation confidence floor used
// when a pipeline is built without an explicit WithConfidenceThreshold
// option. Candidates below this score never reach clustering.
const DefaultConfidenceThreshold = 0.5

// WithConfidenceThreshold overrides the reconciler's confidence floor
// (spec §4.3 step 2: "drop candidates whose confidence < threshold").
func WithConfidenceThreshold(threshold float64) PipelineOption {
	return func(p *Pipeline) { p.reconciler.threshold = threshold }
}

// NewPipeline builds a Pipeline. exclusions may be nil to disable exclusion
// filtering; region selects the exclusion region (empty checks all loaded
// regions). The reconciler's confidence threshold defaults to
// DefaultConfidenceThreshold; override it with WithConfidenceThreshold.
func NewPipeline(exclusions *ExclusionRegistry, region string, m *metrics.Metrics, log *logger.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		regex:      NewRegexLayer(),
		reconciler: NewReconciler(exclusions, region, DefaultConfidenceThreshold),
		redactor:   NewRedactor(),
		m:          m,
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Detect runs every enabled layer over text and reconciles their output
// into a final []Span. It never returns an error: layer failures degrade
// gracefully per-layer, so Detect always returns whatever coverage the
// surviving layers provide.
func (p *Pipeline) Detect(ctx context.Context, text string) []Span {
	start := time.Now()
	candidates := [][]Candidate{p.regex.Detect(text)}
	p.m.DetectionsTotal.Add(1)

	if p.localNER != nil {
		cands := p.localNER.Detect(ctx, text)
		if cands != nil {
			candidates = append(candidates, cands)
		}
	}

	if p.external != nil && p.external.Enabled() {
		p.m.ExternalAnalyzerRuns.Add(1)
		cands, ok := p.external.Detect(ctx, text)
		if !ok {
			p.m.ExternalAnalyzerFail.Add(1)
		} else {
			candidates = append(candidates, cands)
		}
	}

	for _, group := range candidates {
		p.m.CandidatesFound.Add(int64(len(group)))
	}

	spans := p.reconciler.Reconcile(text, candidates...)
	p.m.SpansAfterReconcile.Add(int64(len(spans)))
	p.m.RecordDetectLatency(time.Since(start))

	if p.log != nil {
		p.log.Debugf("detect", "candidates=%d spans=%d", sumLens(candidates), len(spans))
	}
	return spans
}

// Redact runs Detect then applies the resulting spans in the given Mode.
// sessionID is only meaningful in ModeAnonymize; see Redactor.Apply. The
// returned map is the tag -> original_text mapping produced by this call
// (nil in ModeRedact).
func (p *Pipeline) Redact(ctx context.Context, text string, mode Mode, sessionID string) (string, map[string]string) {
	spans := p.Detect(ctx, text)
	return p.redactor.Apply(text, spans, mode, sessionID)
}

// Deanonymize reverses a prior ModeAnonymize call's token substitutions.
func (p *Pipeline) Deanonymize(text, sessionID string) string {
	return p.redactor.Deanonymize(text, sessionID)
}

// DeleteSession discards the token map for sessionID.
func (p *Pipeline) DeleteSession(sessionID string) {
	p.redactor.DeleteSession(sessionID)
}

// Close releases resources held by optional layers (the L3 detection
// cache, in particular).
func (p *Pipeline) Close() error {
	if p.external != nil {
		return p.external.Close()
	}
	return nil
}

func sumLens(groups [][]Candidate) int {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	return n
}
