package pipeline

import (
	"fmt"
	"strings"

	"github.com/talentforge/assessor/internal/domain"
)

// User-prompt builders. System prompts live in config (overridable per
// deployment); these assemble the per-call context. Prompts are scoped
// strictly to one unit so outputs stay traceable: phase 1 sees one
// transcript, one competency, one level.

func buildEvidencePrompt(doc domain.Document, comp domain.Competency, level domain.CompetencyLevel, specificContext string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Competency: %s\n", comp.Name)
	fmt.Fprintf(&b, "Level %d: %s\n", level.Level, level.Definition)
	b.WriteString("Key behaviors at this level:\n")
	for i, kb := range level.KeyBehaviors {
		fmt.Fprintf(&b, "%d. %s\n", i+1, kb)
	}
	if specificContext != "" {
		fmt.Fprintf(&b, "\nAssessment context: %s\n", specificContext)
	}
	fmt.Fprintf(&b, "\nSource: %s (%s)\n", doc.SourceTag, doc.Filename)
	fmt.Fprintf(&b, "Transcript:\n%s\n", doc.Text)
	b.WriteString("\nExtract every literal quote from the transcript that evidences one of the key behaviors above.")
	return b.String()
}

func buildJudgePrompt(comp domain.Competency, level domain.CompetencyLevel, evidence []domain.Evidence) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Competency: %s\n", comp.Name)
	fmt.Fprintf(&b, "Level %d: %s\n", level.Level, level.Definition)
	b.WriteString("Key behaviors to judge:\n")
	for i, kb := range level.KeyBehaviors {
		fmt.Fprintf(&b, "%d. %s\n", i+1, kb)
	}

	b.WriteString("\nCollected evidence:\n")
	if len(evidence) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range evidence {
		fmt.Fprintf(&b, "- [%s, level %d] %q — %s\n", e.SourceTag, e.Level, e.Quote, e.Reasoning)
	}
	b.WriteString("\nJudge each key behavior strictly against this evidence.")
	return b.String()
}

func buildNarrativePrompt(comp domain.Competency, targetLevel, achievedLevel int, statuses []domain.KeyBehaviorStatus, anomalies []int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Competency: %s\n", comp.Name)
	fmt.Fprintf(&b, "Target level: %d\nAchieved level: %d\n", targetLevel, achievedLevel)
	b.WriteString("\nJudgment trail:\n")
	for _, s := range statuses {
		verdict := "not fulfilled"
		if s.Fulfilled {
			verdict = "fulfilled"
		}
		fmt.Fprintf(&b, "- level %d, %q: %s — %s\n", s.Level, s.KeyBehavior, verdict, s.Explanation)
	}
	if len(anomalies) > 0 {
		fmt.Fprintf(&b, "\nScoring inconsistency: level(s) %s failed while a higher level passed. "+
			"Address this explicitly in the explanation.\n", joinInts(anomalies))
	}
	b.WriteString("\nWrite the explanation and the three recommendation categories.")
	return b.String()
}

func buildSummaryDraftPrompt(analyses []domain.CompetencyAnalysis, specificContext string) string {
	var b strings.Builder

	if specificContext != "" {
		fmt.Fprintf(&b, "Assessment context: %s\n\n", specificContext)
	}
	b.WriteString("Competency analyses:\n")
	for _, a := range analyses {
		fmt.Fprintf(&b, "\n## %s (achieved level %d)\n%s\n", a.Competency, a.LevelAchieved, a.Explanation)
	}
	b.WriteString("\nWrite the executive summary.")
	return b.String()
}

func buildSummaryCritiquePrompt(draft summaryResult) string {
	var b strings.Builder

	b.WriteString("Draft executive summary:\n\n")
	fmt.Fprintf(&b, "Overview: %s\n\n", draft.Overview)
	fmt.Fprintf(&b, "Strengths: %s\n\n", draft.Strengths)
	fmt.Fprintf(&b, "Weaknesses: %s\n\n", draft.Weaknesses)
	fmt.Fprintf(&b, "Recommendations: %s\n", draft.Recommendations)
	b.WriteString("\nReview for contradictions and return the refined summary.")
	return b.String()
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
