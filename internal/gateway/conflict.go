package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// CheckConflict asks the service whether two short texts describe the same
// use case. The error is fatal only for this specific pair; callers treat a
// failed check as "not a conflict".
func (g *Gateway) CheckConflict(ctx context.Context, a, b string) (bool, error) {
	prompt := g.prompts.conflictPrompt(a, b)

	var lastErr error
	for attempt := 0; attempt < g.opts.MaxPasses; attempt++ {
		raw, err := g.generate(ctx, prompt)
		if err != nil {
			return false, eris.Wrap(err, "gateway: conflict check")
		}
		verdict, err := parseVerdict(raw)
		if err == nil {
			return verdict, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}
	return false, eris.Wrap(lastErr, "gateway: conflict check")
}

func parseVerdict(raw string) (bool, error) {
	s := StripFences(raw)

	var obj struct {
		Duplicate *bool `json:"duplicate"`
		Conflict  *bool `json:"conflict"`
		Result    *bool `json:"result"`
	}
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		for _, v := range []*bool{obj.Duplicate, obj.Conflict, obj.Result} {
			if v != nil {
				return *v, nil
			}
		}
	}

	// A bare true/false still counts as an answer.
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, eris.Errorf("no boolean verdict in response: %.80s", s)
}
