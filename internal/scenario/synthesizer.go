package scenario

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/civicops/civicops-ai/internal/evidence"
	"github.com/civicops/civicops-ai/internal/intent"
)

// Options tunes one synthesis pass.
type Options struct {
	// ZoneUnresolved marks a turn whose zone scope could not be resolved
	// within the clarifying-question budget. Hypotheses are produced for
	// every zone with evidence, each down-weighted.
	ZoneUnresolved bool
}

// Synthesizer builds scenario assessments from evidence batches.
type Synthesizer struct {
	log *zap.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{log: log}
}

// Synthesize produces the assessment for one turn. It is a pure function of
// its inputs: identical category, scope, and batch yield an identical result.
func (s *Synthesizer) Synthesize(category intent.Category, cityID, zoneID string, batch *evidence.Batch, opts Options) *Result {
	if batch == nil {
		batch = &evidence.Batch{}
	}

	if category == intent.General {
		return s.synthesizeGrid(cityID, batch)
	}

	res := &Result{Category: string(category)}

	zoneItems := groupByZone(batch.Items)
	gapPenalty := 0.1 * float64(len(batch.Gaps))

	var zones []string
	if opts.ZoneUnresolved || zoneID == "" {
		for z := range zoneItems {
			zones = append(zones, z)
		}
		sort.Strings(zones)
	} else {
		zones = []string{zoneID}
	}
	res.AffectedZones = zones

	for _, z := range zones {
		items := zoneItems[z]
		if len(items) == 0 {
			res.Hypotheses = append(res.Hypotheses, Hypothesis{
				ZoneID:               z,
				Description:          fmt.Sprintf("No current evidence for zone %s; unable to assess.", z),
				Confidence:           clampConfidence(0.2-gapPenalty, false),
				InsufficientEvidence: true,
			})
			continue
		}

		rankItems(items)
		top := items[0]
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}

		res.Hypotheses = append(res.Hypotheses, Hypothesis{
			ZoneID:      z,
			Description: describe(category, z, top),
			Confidence:  clampConfidence(baseConfidence(top.Severity)-gapPenalty, opts.ZoneUnresolved),
			EvidenceIDs: ids,
		})
	}

	if len(res.Hypotheses) == 0 {
		// No zone resolved and no evidence anywhere.
		res.Hypotheses = []Hypothesis{{
			Description:          "No current evidence matches this report; unable to assess.",
			Confidence:           clampConfidence(0.2-gapPenalty, opts.ZoneUnresolved),
			InsufficientEvidence: true,
		}}
	}

	sort.SliceStable(res.Hypotheses, func(i, j int) bool {
		if res.Hypotheses[i].Confidence != res.Hypotheses[j].Confidence {
			return res.Hypotheses[i].Confidence > res.Hypotheses[j].Confidence
		}
		return res.Hypotheses[i].ZoneID < res.Hypotheses[j].ZoneID
	})

	res.RiskBefore = riskBefore(batch.Items, zones)
	res.LowConfidence = opts.ZoneUnresolved || res.Hypotheses[0].Confidence < 0.5

	if allInsufficient(res.Hypotheses) {
		// No evidence means no grounds to recommend a response.
		res.RiskAfter = res.RiskBefore
		return res
	}

	if pb := selectPlaybook(batch.Items, string(category), evidence.RiskTier(res.RiskBefore)); pb != nil {
		res.PlaybookID = pb.ID
		res.RecommendedActions = pb.Actions
		res.ETAMinutes = pb.ETAMinutes
		res.CostUSD = pb.CostUSD
		res.RiskAfter = projectRisk(res.RiskBefore, pb.Effectiveness)
	} else {
		res.RiskAfter = res.RiskBefore
	}

	return res
}

// synthesizeGrid handles general status queries with a city-wide rollup.
func (s *Synthesizer) synthesizeGrid(cityID string, batch *evidence.Batch) *Result {
	summary := &GridSummary{}
	var ids []string
	topRisk := 0.0

	for _, it := range batch.Items {
		if it.Source != evidence.SourceStateSnapshot {
			continue
		}
		var rec evidence.StateRecord
		if err := json.Unmarshal(it.Payload, &rec); err != nil {
			s.log.Warn("skipping malformed state snapshot", zap.String("id", it.ID), zap.Error(err))
			continue
		}
		summary.ZoneCount++
		summary.AlertCount += len(rec.Alerts)
		if rec.RiskTier == "high" {
			summary.HighRiskCount++
		}
		if rec.RiskScore > topRisk {
			topRisk = rec.RiskScore
		}
		ids = append(ids, it.ID)
	}
	sort.Strings(ids)

	res := &Result{
		Category:    string(intent.General),
		GridSummary: summary,
		RiskBefore:  topRisk,
		RiskAfter:   topRisk,
	}

	gapPenalty := 0.1 * float64(len(batch.Gaps))
	if summary.ZoneCount == 0 {
		res.Hypotheses = []Hypothesis{{
			Description:          "No zone state available; grid status unknown.",
			Confidence:           clampConfidence(0.2-gapPenalty, false),
			InsufficientEvidence: true,
		}}
		res.LowConfidence = true
		return res
	}

	res.Hypotheses = []Hypothesis{{
		Description: fmt.Sprintf("Grid status: %d zones reporting, %d high risk, %d open alerts.",
			summary.ZoneCount, summary.HighRiskCount, summary.AlertCount),
		Confidence:  clampConfidence(0.9-gapPenalty, false),
		EvidenceIDs: ids,
	}}
	res.LowConfidence = res.Hypotheses[0].Confidence < 0.5
	return res
}

// groupByZone buckets non-playbook items by zone. Playbooks are zone-less
// reference material and never count as incident evidence.
func groupByZone(items []evidence.Item) map[string][]evidence.Item {
	out := make(map[string][]evidence.Item)
	for _, it := range items {
		if it.Source == evidence.SourcePlaybooks || it.ZoneID == "" {
			continue
		}
		out[it.ZoneID] = append(out[it.ZoneID], it)
	}
	return out
}

// rankItems orders evidence by severity (desc), then recency (desc), then ID.
// Recency second means two conflicting records of equal severity resolve to
// the most recently recorded one.
func rankItems(items []evidence.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Severity != items[j].Severity {
			return items[i].Severity > items[j].Severity
		}
		if !items[i].RecordedAt.Equal(items[j].RecordedAt) {
			return items[i].RecordedAt.After(items[j].RecordedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// baseConfidence maps the strongest item's severity to a starting confidence.
func baseConfidence(severity int) float64 {
	switch {
	case severity >= 4:
		return 0.9
	case severity == 3:
		return 0.8
	case severity == 2:
		return 0.65
	default:
		return 0.5
	}
}

// clampConfidence applies the unresolved-scope discount and clamps the score
// into (0, 1), rounded to two decimals.
func clampConfidence(c float64, zoneUnresolved bool) float64 {
	if zoneUnresolved {
		c *= 0.6
	}
	if c < 0.05 {
		c = 0.05
	}
	if c > 0.99 {
		c = 0.99
	}
	return math.Round(c*100) / 100
}

// describe renders a short hypothesis description from the strongest item.
func describe(category intent.Category, zoneID string, top evidence.Item) string {
	label := strings.ReplaceAll(string(category), "_", " ")
	return fmt.Sprintf("Probable %s in zone %s: strongest signal is %s %s (severity %d).",
		label, zoneID, top.Source, top.Kind, top.Severity)
}

// riskBefore reads the current risk score for the first affected zone from
// its state snapshot. Without a snapshot the risk is unknown and reported
// as zero.
func riskBefore(items []evidence.Item, zones []string) float64 {
	if len(zones) == 0 {
		return 0
	}
	for _, it := range items {
		if it.Source != evidence.SourceStateSnapshot || it.ZoneID != zones[0] {
			continue
		}
		var rec evidence.StateRecord
		if err := json.Unmarshal(it.Payload, &rec); err != nil {
			continue
		}
		return rec.RiskScore
	}
	return 0
}

// selectPlaybook picks the best response plan from gathered playbook items.
// Exact event-type matches beat wildcard ones, exact tier matches beat
// wildcard tiers, and ties break on lexicographic playbook ID.
func selectPlaybook(items []evidence.Item, eventType, riskTier string) *evidence.Playbook {
	var best *evidence.Playbook
	var bestScore int

	for _, it := range items {
		if it.Source != evidence.SourcePlaybooks {
			continue
		}
		var pb evidence.Playbook
		if err := json.Unmarshal(it.Payload, &pb); err != nil {
			continue
		}
		if pb.EventType != eventType && pb.EventType != "*" {
			continue
		}
		if pb.TriggerTier != riskTier && pb.TriggerTier != "*" {
			continue
		}

		score := 0
		if pb.EventType == eventType {
			score += 2
		}
		if pb.TriggerTier == riskTier {
			score++
		}
		if best == nil || score > bestScore || (score == bestScore && pb.ID < best.ID) {
			cp := pb
			best = &cp
			bestScore = score
		}
	}
	return best
}

// projectRisk computes residual risk after applying a playbook. Response
// never raises risk, so the projection is clamped into [0, before].
func projectRisk(before, effectiveness float64) float64 {
	if effectiveness < 0 {
		effectiveness = 0
	}
	if effectiveness > 1 {
		effectiveness = 1
	}
	after := before * (1 - effectiveness)
	after = math.Round(after*100) / 100
	if after < 0 {
		after = 0
	}
	if after > before {
		after = before
	}
	return after
}

// allInsufficient reports whether no hypothesis has evidential support.
func allInsufficient(hs []Hypothesis) bool {
	for _, h := range hs {
		if !h.InsufficientEvidence {
			return false
		}
	}
	return true
}
