package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/usecase-cli/internal/model"
)

// defaultAnalysisPrompt asks for a strict JSON array of use cases. The
// offset/batch framing lets analyze resume after truncated responses.
const defaultAnalysisPrompt = `You are a senior business analyst extracting software requirements.

Read the requirement text below and produce the use cases it describes.

Rules:
- Return ONLY a JSON array. No prose, no markdown, no code fences.
- Return at most {{batch_size}} use cases, starting from use case number {{from}}.
- If there are no use cases at or after number {{from}}, return [].
- Each element is an object with these fields: "name", "role", "goal", "reason",
  "tasks", "inputs", "outputs", "context", "priority", "rules", "triggers",
  "preconditions", "postconditions", "exceptions", "stakeholders", "constraints".
- "priority" is one of "low", "medium", "high".
- List fields are JSON arrays of strings. Omit fields you cannot determine.

Requirement text:
{{chunk}}`

const defaultConflictPrompt = `You compare two software use cases and decide whether they describe the same
real-world use case (one being a rewording, refinement, or duplicate of the other).

Use case A: {{a}}
Use case B: {{b}}

Return ONLY a JSON object of the form {"duplicate": true} or {"duplicate": false}.
No other text.`

const defaultRelatedPrompt = `You are given a list of software use cases as JSON objects with "id", "name",
and "goal". For each use case, determine which OTHER use cases in the list are
functionally related to it (shared actors, shared data, or one invoking another).

{{preserve}}Return ONLY a JSON array where each element is
{"id": "<id>", "related_usecases": [{"id": "<other id>", "name": "<other name>"}]}.
Use only ids present in the input. No other text.

Use cases:
{{items}}`

const relatedPreserveClause = `These use cases extend an existing set. Keep every relation that is still
valid and add new ones; do not drop a relation unless its target no longer exists.

`

// PromptPack holds the prompt templates. Fields left empty in an override
// file fall back to the built-in templates.
type PromptPack struct {
	Analysis string `yaml:"analysis"`
	Conflict string `yaml:"conflict"`
	Related  string `yaml:"related"`
}

// DefaultPromptPack returns the built-in templates.
func DefaultPromptPack() PromptPack {
	return PromptPack{
		Analysis: defaultAnalysisPrompt,
		Conflict: defaultConflictPrompt,
		Related:  defaultRelatedPrompt,
	}
}

// LoadPromptPack reads template overrides from a yaml file. An empty path
// returns the defaults.
func LoadPromptPack(path string) (PromptPack, error) {
	pack := DefaultPromptPack()
	if path == "" {
		return pack, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pack, eris.Wrapf(err, "gateway: read prompt pack %s", path)
	}
	var override PromptPack
	if err := yaml.Unmarshal(data, &override); err != nil {
		return pack, eris.Wrapf(err, "gateway: parse prompt pack %s", path)
	}
	if override.Analysis != "" {
		pack.Analysis = override.Analysis
	}
	if override.Conflict != "" {
		pack.Conflict = override.Conflict
	}
	if override.Related != "" {
		pack.Related = override.Related
	}
	return pack, nil
}

func (p PromptPack) analysisPrompt(chunk string, offset, batchSize int) string {
	return strings.NewReplacer(
		"{{chunk}}", chunk,
		"{{from}}", fmt.Sprintf("%d", offset+1),
		"{{batch_size}}", fmt.Sprintf("%d", batchSize),
	).Replace(p.Analysis)
}

func (p PromptPack) conflictPrompt(a, b string) string {
	return strings.NewReplacer("{{a}}", a, "{{b}}", b).Replace(p.Conflict)
}

func (p PromptPack) relatedPrompt(items []model.UseCase, incremental bool) (string, error) {
	type projection struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Goal string `json:"goal"`
	}
	proj := make([]projection, 0, len(items))
	for _, it := range items {
		proj = append(proj, projection{ID: it.ID, Name: it.Name, Goal: it.Goal})
	}
	data, err := json.Marshal(proj)
	if err != nil {
		return "", eris.Wrap(err, "gateway: marshal related projection")
	}

	preserve := ""
	if incremental {
		preserve = relatedPreserveClause
	}
	return strings.NewReplacer(
		"{{preserve}}", preserve,
		"{{items}}", string(data),
	).Replace(p.Related), nil
}
