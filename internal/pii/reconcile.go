// reconcile.go — the Span Reconciler (C3).
//
// The three detection layers run independently and may overlap, disagree
// on entity type, or fire on text an exclusion region says to ignore. The
// reconciler turns their raw Candidates into a final, non-overlapping list
// of Spans the Redactor can safely apply in one left-to-right pass.
package pii

import "sort"

// Reconciler merges Candidates from every detection layer into Spans.
type Reconciler struct {
	exclusions *ExclusionRegistry
	region     string
	threshold  float64
}

// NewReconciler builds a Reconciler. exclusions may be nil, which disables
// exclusion filtering entirely (every candidate is kept). region selects
// which exclusion region's terms apply; an empty region checks all loaded
// regions. threshold is the minimum confidence a candidate must carry to
// survive reconciliation (spec §4.3 step 2); candidates scoring below it
// are dropped before clustering.
func NewReconciler(exclusions *ExclusionRegistry, region string, threshold float64) *Reconciler {
	return &Reconciler{exclusions: exclusions, region: region, threshold: threshold}
}

// Reconcile merges candidates from one or more layers into a sorted,
// non-overlapping []Span. Candidates below the reconciler's confidence
// threshold are dropped first. Overlap resolution then prefers the
// higher-confidence candidate; ties prefer the longer span. When two or
// more layers produce overlapping candidates of the agreeing type, the
// resulting Span's confidence is boosted and its Agreement count reflects
// how many layers concurred.
func (r *Reconciler) Reconcile(text string, candidates ...[]Candidate) []Span {
	var all []Candidate
	for _, group := range candidates {
		for _, c := range group {
			if c.Confidence < r.threshold {
				continue
			}
			if r.excluded(text, c) {
				continue
			}
			all = append(all, c)
		}
	}
	if len(all) == 0 {
		return nil
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End > all[j].End
	})

	clusters := clusterOverlapping(all)

	spans := make([]Span, 0, len(clusters))
	for _, cluster := range clusters {
		spans = append(spans, resolveCluster(cluster))
	}
	return spans
}

func (r *Reconciler) excluded(text string, c Candidate) bool {
	if r.exclusions == nil {
		return false
	}
	if r.region != "" {
		return r.exclusions.IsExcluded(c.Text, r.region)
	}
	_, excluded := r.exclusions.IsExcludedAnyRegion(c.Text)
	return excluded
}

// clusterOverlapping groups candidates (already sorted by Start asc,
// End desc) into sets that mutually overlap in byte range.
func clusterOverlapping(sorted []Candidate) [][]Candidate {
	var clusters [][]Candidate
	var current []Candidate
	currentEnd := -1

	for _, c := range sorted {
		if len(current) == 0 || c.Start < currentEnd {
			current = append(current, c)
			if c.End > currentEnd {
				currentEnd = c.End
			}
			continue
		}
		clusters = append(clusters, current)
		current = []Candidate{c}
		currentEnd = c.End
	}
	if len(current) > 0 {
		clusters = append(clusters, current)
	}
	return clusters
}

// resolveCluster picks the winning candidate in an overlapping cluster and
// applies a multi-layer-agreement confidence boost.
func resolveCluster(cluster []Candidate) Span {
	best := cluster[0]
	for _, c := range cluster[1:] {
		if c.Confidence > best.Confidence {
			best = c
			continue
		}
		if c.Confidence == best.Confidence && (c.End-c.Start) > (best.End-best.Start) {
			best = c
		}
	}

	layers := map[Layer]bool{best.Source: true}
	agreement := 1
	for _, c := range cluster {
		if c.Type != best.Type {
			continue
		}
		if layers[c.Source] {
			continue
		}
		layers[c.Source] = true
		agreement++
	}

	confidence := best.Confidence
	if agreement > 1 {
		// Each additional concurring layer closes a fraction of the
		// remaining gap to full confidence.
		boost := 1.0
		for i := 1; i < agreement; i++ {
			boost *= 0.5
		}
		confidence = confidence + (1.0-confidence)*(1.0-boost)
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Span{
		Start:      best.Start,
		End:        best.End,
		Type:       best.Type,
		Confidence: confidence,
		Agreement:  agreement,
	}
}
