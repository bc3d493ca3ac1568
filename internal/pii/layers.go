package pii

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"golang.org/x/sync/singleflight"

	"legalcore/internal/errs"
)

// regexPattern pairs a compiled regex with its entity type and base
// confidence. Confidence reflects how specifically the pattern identifies
// the target type: high scores mean low false-positive risk.
type regexPattern struct {
	re         *regexp.Regexp
	entityType EntityType
	confidence float64
}

// RegexLayer is the always-on L1 detection layer: a fast structural-pattern
// scan that never degrades and never calls out of process.
type RegexLayer struct {
	patterns []regexPattern
}

// NewRegexLayer compiles the default L1 pattern table.
func NewRegexLayer() *RegexLayer {
	l := &RegexLayer{}
	l.compile()
	return l
}

func (l *RegexLayer) compile() {
	// Confidence scores follow Presidio/CHPDA convention:
	//   0.90+    highly specific format, very low false-positive rate
	//   0.70-0.89 moderately specific, some ambiguity possible
	//   below 0.70 broad pattern with meaningful false-positive risk
	specs := []struct {
		expr       string
		entityType EntityType
		confidence float64
	}{
		{`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, EntityEmail, 0.95},
		{`(?i)(?:api[_\-]?key|token|secret|bearer)[\s"':=]+([a-zA-Z0-9_\-.]{20,})`, EntityAPIKey, 0.90},
		{`\b(?:\d{3}-?\d{2}-?\d{4}|\d{9})\b`, EntitySSN, 0.85},
		{`\b(?:\d{4}[\-\s]?){3}\d{4}\b`, EntityCreditCard, 0.85},
		{`(?i)\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct)\b`, EntityAddress, 0.75},
		{`(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,7}:` +
			`|(?:[0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,5}(?::[0-9a-fA-F]{1,4}){1,2}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,4}(?::[0-9a-fA-F]{1,4}){1,3}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,3}(?::[0-9a-fA-F]{1,4}){1,4}` +
			`|(?:[0-9a-fA-F]{1,4}:){1,2}(?::[0-9a-fA-F]{1,4}){1,5}` +
			`|[0-9a-fA-F]{1,4}:(?::[0-9a-fA-F]{1,4}){1,6}` +
			`|:(?::[0-9a-fA-F]{1,4}){1,7}` +
			`|::`,
			EntityIPAddress, 0.85},
		{`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`, EntityIPAddress, 0.70},
		{`(\+?1?[\-.\s]?)?\(?([0-9]{3})\)?[\-.\s]?([0-9]{3})[\-.\s]?([0-9]{4})`, EntityPhone, 0.65},
		{`(?i)\b(?:case|docket)\s+(?:no\.?|number)\s*[:#]?\s*[0-9]{1,2}:[0-9]{2}-(?:cv|cr|bk|md)-[0-9]{3,6}\b`, EntityCaseNumber, 0.90},
		{`(?i)\b(?:case|docket)\s+(?:no\.?|number)\s*[:#]?\s*[A-Za-z0-9][A-Za-z0-9\-]{3,19}\b`, EntityCaseNumber, 0.75},
		{`(?i)\b(?:mrn|medical\s+record\s+(?:no\.?|number))\s*[:#]?\s*[0-9]{5,10}\b`, EntityMedical, 0.85},
		{`(?i)\b(?:Mr|Mrs|Ms|Dr|Judge|Justice|Prof|Att(?:y|orney))\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`, EntityName, 0.80},
		{`\b[A-Z][a-z]+\s[A-Z][a-z]+\b`, EntityName, 0.45},
		{`\b(?:[A-Z][A-Za-z]*\s){1,4}(?:Inc|Incorporated|Corp|Corporation|LLC|Ltd|Co|Company)\.?\b`, EntityCompany, 0.75},
		{`(?i)\bLaw\s+Offices?\s+of\s+[A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)*\b`, EntityLawFirm, 0.85},
		{`\b(?:[A-Z][A-Za-z]+(?:\s*&\s*|\s+and\s+))+[A-Z][A-Za-z]+,?\s+(?:LLP|LLC|P\.?C\.?|Associates|Attorneys(?:\s+at\s+Law)?)\b`, EntityLawFirm, 0.80},
	}
	for _, s := range specs {
		re, err := regexp.Compile(s.expr)
		if err != nil {
			continue
		}
		l.patterns = append(l.patterns, regexPattern{re: re, entityType: s.entityType, confidence: s.confidence})
	}

	// Credit-card candidates are gated by a Luhn check in Detect, not here,
	// since Luhn operates on the matched digit string, not the pattern.
}

// Detect runs every compiled pattern over text and returns one Candidate
// per match. Credit-card matches that fail the Luhn checksum are dropped:
// a 16-digit block is common in non-card numeric data (tracking numbers,
// serials) and the checksum meaningfully cuts false positives.
func (l *RegexLayer) Detect(text string) []Candidate {
	var out []Candidate
	for _, p := range l.patterns {
		locs := p.re.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			matched := text[loc[0]:loc[1]]
			if p.entityType == EntityCreditCard && !luhnValid(matched) {
				continue
			}
			out = append(out, Candidate{
				Start:      loc[0],
				End:        loc[1],
				Type:       p.entityType,
				Text:       matched,
				Confidence: p.confidence,
				Source:     LayerRegex,
			})
		}
	}
	return out
}

// luhnValid reports whether the digit characters in s pass the Luhn
// checksum. Non-digit characters (spaces, hyphens) are ignored.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 12 {
		return false
	}
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// ErrModelUnavailable is returned by LocalNERModel implementations that
// cannot serve a request; the caller degrades to L1-only on this error.
var ErrModelUnavailable = errs.New(errs.Availability, "local NER model unavailable")

// LocalNERModel is the interface the L2 layer dispatches to. A real
// implementation would wrap a quantized on-device model runtime; the one
// shipped here (noopLocalNER) always reports ErrModelUnavailable so the
// pipeline exercises its graceful-degradation path without vendoring a
// model runtime, which is out of scope for this core.
type LocalNERModel interface {
	Detect(ctx context.Context, text string) ([]Candidate, error)
}

type noopLocalNER struct{}

func (noopLocalNER) Detect(context.Context, string) ([]Candidate, error) {
	return nil, ErrModelUnavailable
}

// LocalNERLayer is the optional L2 detection layer: a local named-entity
// recognizer for unstructured entities (names, organizations) that regex
// cannot reliably find. On any error it degrades silently to no
// candidates; L1 coverage is never lost.
type LocalNERLayer struct {
	model    LocalNERModel
	degraded bool
}

// NewLocalNERLayer wraps model. Pass nil to use the graceful-degradation
// stub.
func NewLocalNERLayer(model LocalNERModel) *LocalNERLayer {
	if model == nil {
		model = noopLocalNER{}
	}
	return &LocalNERLayer{model: model}
}

// Detect returns L2 candidates, or nil if the model is unavailable. Once
// the model reports unavailability, the layer remembers that and skips
// future calls rather than retrying a model that is known to be broken.
func (l *LocalNERLayer) Detect(ctx context.Context, text string) []Candidate {
	if l.degraded {
		return nil
	}
	cands, err := l.model.Detect(ctx, text)
	if err != nil {
		l.degraded = true
		return nil
	}
	return cands
}

// Degraded reports whether L2 has fallen back to L1-only operation.
func (l *LocalNERLayer) Degraded() bool { return l.degraded }

// externalDetection is the newline-delimited JSON record format an
// external analyzer process emits on stdout, one per line.
type externalDetection struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// ExternalAnalyzerLayer is the optional L3 detection layer: an isolated
// child process given the source text on stdin and expected to emit
// newline-delimited JSON detections on stdout. Any failure — non-zero
// exit, timeout, malformed output — degrades silently to L1+L2.
type ExternalAnalyzerLayer struct {
	path    string
	timeout time.Duration
	cache   detectionCache
	group   singleflight.Group
}

// NewExternalAnalyzerLayer configures the L3 layer. path is the
// executable to invoke; an empty path disables the layer entirely (Detect
// always returns nil, false). cachePath is forwarded to newDetectionCache;
// an empty cachePath keeps results in memory only.
func NewExternalAnalyzerLayer(path string, timeout time.Duration, cachePath string) *ExternalAnalyzerLayer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExternalAnalyzerLayer{path: path, timeout: timeout, cache: newDetectionCache(cachePath)}
}

// Enabled reports whether an external analyzer executable is configured.
func (l *ExternalAnalyzerLayer) Enabled() bool { return l.path != "" }

// Close releases the layer's detection cache.
func (l *ExternalAnalyzerLayer) Close() error { return l.cache.Close() }

// Detect invokes the external analyzer on text and parses its output,
// consulting the content-hash cache first since external invocation is
// the most expensive step in the pipeline. It never returns an error to
// the caller: failures degrade to (nil, false) so the pipeline proceeds
// with whatever L1/L2 already found. The bool return reports whether
// candidates are available (from cache or a fresh run), for metrics
// purposes.
func (l *ExternalAnalyzerLayer) Detect(ctx context.Context, text string) ([]Candidate, bool) {
	if !l.Enabled() {
		return nil, false
	}

	key := contentKey(text)
	if cached, ok := l.cache.Get(key); ok {
		return cached, true
	}

	// Two goroutines handling the same recurring clause at once would
	// otherwise both pay for a subprocess launch; singleflight collapses
	// them into one invocation and fans the result out to both callers.
	v, err, _ := l.group.Do(key, func() (any, error) {
		return l.run(ctx, text)
	})
	if err != nil {
		return nil, false
	}
	out, _ := v.([]Candidate)
	l.cache.Set(key, out)
	return out, true
}

func (l *ExternalAnalyzerLayer) run(ctx context.Context, text string) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.path) //nolint:gosec // G204: path is operator-configured, not user input
	cmd.Stdin = bytes.NewBufferString(text)
	configureHiddenWindow(cmd)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var out []Candidate
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var d externalDetection
		if err := json.Unmarshal(line, &d); err != nil {
			continue
		}
		if d.End <= d.Start || d.Start < 0 || d.End > len(text) {
			continue
		}
		out = append(out, Candidate{
			Start:      d.Start,
			End:        d.End,
			Type:       ParseEntityType(d.Type),
			Text:       text[d.Start:d.End],
			Confidence: d.Confidence,
			Source:     LayerExternal,
		})
	}
	return out, nil
}

// contentKey returns the cache key used for L3 detection results. It is a
// separate function (rather than inlining fmt.Sprintf everywhere) so the
// key format is documented in exactly one place.
func contentKey(text string) string {
	return fmt.Sprintf("l3:%x", hashText(text))
}
