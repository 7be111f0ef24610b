package compose

import (
	"fmt"
	"strings"

	"github.com/civicops/civicops-ai/internal/scenario"
)

// Package compose renders a scenario assessment into the assistant reply.
// Rendering is pure template work over fixed phrasing: the same assessment
// always produces the same reply text, which is what makes recorded runs
// replayable.

// ClarifyingReply renders the early-exit reply for a clarification turn.
func ClarifyingReply(question string) string {
	return question
}

// Reply renders the final assistant reply for a completed assessment.
func Reply(res *scenario.Result) string {
	if res == nil {
		return "I could not produce an assessment for this request."
	}

	var b strings.Builder

	if res.GridSummary != nil {
		writeGrid(&b, res)
		return b.String()
	}

	writeHypotheses(&b, res)

	if len(res.RecommendedActions) > 0 {
		b.WriteString("\nRecommended response")
		if res.PlaybookID != "" {
			fmt.Fprintf(&b, " (playbook %s)", res.PlaybookID)
		}
		b.WriteString(":\n")
		for _, a := range res.RecommendedActions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		if res.ETAMinutes > 0 {
			fmt.Fprintf(&b, "Estimated time to effect: %d minutes. Estimated cost: $%.2f.\n", res.ETAMinutes, res.CostUSD)
		}
		fmt.Fprintf(&b, "Projected risk: %.2f now, %.2f after response.\n", res.RiskBefore, res.RiskAfter)
	}

	if res.LowConfidence {
		b.WriteString("\nNote: confidence in this assessment is low; treat it as preliminary.\n")
	}

	return b.String()
}

func writeGrid(b *strings.Builder, res *scenario.Result) {
	g := res.GridSummary
	if g.ZoneCount == 0 {
		b.WriteString("No zone state is currently available, so I cannot report grid status.\n")
		return
	}
	fmt.Fprintf(b, "Grid overview: %d zones reporting, %d at high risk, %d open alerts.\n",
		g.ZoneCount, g.HighRiskCount, g.AlertCount)
	if g.HighRiskCount > 0 {
		b.WriteString("High-risk zones need attention first.\n")
	} else {
		b.WriteString("All zones are within normal operating range.\n")
	}
}

func writeHypotheses(b *strings.Builder, res *scenario.Result) {
	b.WriteString("Assessment:\n")
	for _, h := range res.Hypotheses {
		if h.InsufficientEvidence {
			fmt.Fprintf(b, "- %s (insufficient evidence, confidence %.2f)\n", h.Description, h.Confidence)
			continue
		}
		fmt.Fprintf(b, "- %s (confidence %.2f, evidence: %s)\n",
			h.Description, h.Confidence, strings.Join(h.EvidenceIDs, ", "))
	}
}
