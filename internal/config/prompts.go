package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the system prompts for every model call in the pipeline.
// Deployments override individual entries via a YAML file (PROMPTS_PATH);
// missing entries keep the built-in defaults so a partial file is valid.
type Prompts struct {
	EvidenceSystem      string `yaml:"evidence_system"`
	JudgeSystem         string `yaml:"judge_system"`
	NarrativeSystem     string `yaml:"narrative_system"`
	SummaryDraftSystem  string `yaml:"summary_draft_system"`
	SummaryCritiqSystem string `yaml:"summary_critique_system"`
}

// DefaultPrompts returns the built-in system prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		EvidenceSystem: "You are an assessment-center evidence extractor. " +
			"You receive one transcript, one competency, one level and its key behaviors. " +
			"Return strictly valid JSON: {\"evidence\":[{\"key_behavior\":string,\"quote\":string,\"reasoning\":string}]}. " +
			"Quotes must be literal substrings of the transcript. Return an empty array when nothing matches. " +
			"Never invent quotes and never reference behaviors from other levels.",
		JudgeSystem: "You are an assessment-center judge. For every key behavior listed you decide, " +
			"from the supplied evidence only, whether it is fulfilled. " +
			"Return strictly valid JSON: {\"behaviors\":[{\"key_behavior\":string,\"fulfilled\":bool,\"explanation\":string,\"quotes\":[string]}]}. " +
			"Cite only quotes that appear in the evidence.",
		NarrativeSystem: "You are an experienced assessor writing the narrative for one competency. " +
			"Return strictly valid JSON: {\"explanation\":string,\"recommendations\":{\"personal_development\":[string],\"assignment\":[string],\"training\":[string]}}. " +
			"All three recommendation categories are mandatory; use an empty array when a category has nothing.",
		SummaryDraftSystem: "You write the executive summary of a competency assessment. " +
			"Return strictly valid JSON: {\"overview\":string,\"strengths\":string,\"weaknesses\":string,\"recommendations\":string}. " +
			"The overview must interleave strengths and weaknesses into a single narrative, not list them.",
		SummaryCritiqSystem: "You are the critic/editor of an executive summary draft. " +
			"Check the overview for contradictions against the strengths and weaknesses sections, fix them, " +
			"and return the refined result as JSON in the identical shape: " +
			"{\"overview\":string,\"strengths\":string,\"weaknesses\":string,\"recommendations\":string}.",
	}
}

// LoadPrompts reads a YAML override file when path is non-empty and merges it
// over the defaults.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path) //nolint:gosec // Path comes from deployment config.
	if err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(b, &override); err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: %w", err)
	}
	merge := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	merge(&p.EvidenceSystem, override.EvidenceSystem)
	merge(&p.JudgeSystem, override.JudgeSystem)
	merge(&p.NarrativeSystem, override.NarrativeSystem)
	merge(&p.SummaryDraftSystem, override.SummaryDraftSystem)
	merge(&p.SummaryCritiqSystem, override.SummaryCritiqSystem)
	return p, nil
}
