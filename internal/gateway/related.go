package gateway

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/model"
)

// LinkRelated asks the service to propose related-use-case links for the
// whole set and merges them back by id. With a single item (or none) there
// is nothing to relate and the call is skipped. In incremental mode the
// items' existing links are unioned with the proposals locally, so a flaky
// response can add links but never drop them.
func (g *Gateway) LinkRelated(ctx context.Context, items []model.UseCase, incremental bool) ([]model.UseCase, error) {
	if len(items) <= 1 {
		return items, nil
	}

	prompt, err := g.prompts.relatedPrompt(items, incremental)
	if err != nil {
		return items, err
	}
	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return items, eris.Wrap(err, "gateway: link related")
	}

	var proposals []struct {
		ID              string             `json:"id"`
		RelatedUsecases []model.RelatedRef `json:"related_usecases"`
	}
	if uerr := json.Unmarshal([]byte(StripFences(raw)), &proposals); uerr != nil {
		return items, eris.Wrap(uerr, "gateway: parse related response")
	}

	valid := make(map[string]struct{}, len(items))
	for _, it := range items {
		valid[it.ID] = struct{}{}
	}
	byID := make(map[string][]model.RelatedRef, len(proposals))
	for _, p := range proposals {
		byID[p.ID] = p.RelatedUsecases
	}

	out := make([]model.UseCase, len(items))
	copy(out, items)
	for i := range out {
		proposed, ok := byID[out[i].ID]
		if !ok {
			continue
		}
		var links []model.RelatedRef
		if incremental {
			links = out[i].RelatedUsecases
		}
		for _, ref := range proposed {
			if ref.ID == out[i].ID {
				continue
			}
			if _, known := valid[ref.ID]; !known {
				g.logger.Debug("dropping related link to unknown id",
					zap.String("id", out[i].ID), zap.String("target", ref.ID))
				continue
			}
			links = appendRef(links, ref)
		}
		out[i].RelatedUsecases = links
	}
	return out, nil
}

func appendRef(links []model.RelatedRef, ref model.RelatedRef) []model.RelatedRef {
	for _, l := range links {
		if l.ID == ref.ID {
			return links
		}
	}
	return append(links, ref)
}
