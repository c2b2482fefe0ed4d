package model

import (
	"fmt"
	"strings"
)

// Priority levels for a use case.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// UseCase is one structured requirement item derived by the analysis service.
// IDs are positional ("UC" + 1-based index), regenerated on every merge, and
// only meaningful within one persisted snapshot; never use them as stable
// foreign keys across snapshots.
type UseCase struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Role            string       `json:"role"`
	Goal            string       `json:"goal"`
	Reason          string       `json:"reason"`
	Tasks           []string     `json:"tasks"`
	Inputs          []string     `json:"inputs"`
	Outputs         []string     `json:"outputs"`
	Context         string       `json:"context"`
	Priority        string       `json:"priority"`
	Rules           []string     `json:"rules"`
	Triggers        []string     `json:"triggers"`
	Preconditions   []string     `json:"preconditions"`
	Postconditions  []string     `json:"postconditions"`
	Exceptions      []string     `json:"exceptions"`
	Stakeholders    []string     `json:"stakeholders"`
	Constraints     []string     `json:"constraints"`
	RelatedUsecases []RelatedRef `json:"related_usecases"`
}

// RelatedRef points at another use case within the same snapshot. It is not
// a stable reference: ids shift on every merge, so refs are recomputed by
// the re-linking pass rather than carried across runs.
type RelatedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Key returns the normalized identity used for dedup and conflict matching:
// lower-cased, whitespace-collapsed name, falling back to goal.
func (u UseCase) Key() string {
	s := u.Name
	if strings.TrimSpace(s) == "" {
		s = u.Goal
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Equal reports content equality on the identity fields (name, goal, role,
// reason), ignoring case and surrounding whitespace. Used by conflict
// resolution, which must never match by positional ID.
func (u UseCase) Equal(other UseCase) bool {
	eq := func(a, b string) bool {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return eq(u.Name, other.Name) &&
		eq(u.Goal, other.Goal) &&
		eq(u.Role, other.Role) &&
		eq(u.Reason, other.Reason)
}

// NormalizeIDs assigns fresh sequential "UC<n>" ids in place of whatever the
// items carried. Returns the same slice for chaining.
func NormalizeIDs(items []UseCase) []UseCase {
	for i := range items {
		items[i].ID = fmt.Sprintf("UC%d", i+1)
	}
	return items
}

// Dedupe removes items whose normalized key was already seen, preserving
// first-occurrence order. Items with an empty key are kept as-is.
func Dedupe(items []UseCase) []UseCase {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		key := it.Key()
		if key == "" {
			out = append(out, it)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}
