package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/store"
)

// Resolution choices for a pending conflict.
const (
	KeepOld = "old"
	KeepNew = "new"
)

// ResolveDuplicate applies a manual verdict to one pending conflict and
// removes it from the pending list. Keeping the candidate replaces the
// existing item at its original position; ids are positional, so the match
// is by content, never by id.
func ResolveDuplicate(ctx context.Context, st store.Store, versionID, conflictID, keep string) (*model.RunSummary, error) {
	if keep != KeepOld && keep != KeepNew {
		return nil, eris.Errorf("resolve: keep must be %q or %q, got %q", KeepOld, KeepNew, keep)
	}

	version, err := st.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, c := range version.PendingConflicts {
		if c.ID == conflictID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, eris.Errorf("resolve: conflict %s not found on version %s", conflictID, versionID)
	}
	conflict := version.PendingConflicts[idx]

	items := version.RequirementModel
	if keep == KeepNew {
		pos := -1
		for i, item := range items {
			if item.Equal(conflict.Existing) {
				pos = i
				break
			}
		}
		if pos >= 0 {
			items[pos] = conflict.New
		} else {
			// The existing item vanished in a later merge; admit the
			// candidate rather than drop the verdict.
			zap.L().Warn("resolve: existing item no longer in set, appending candidate",
				zap.String("version", versionID), zap.String("conflict", conflictID))
			items = append(items, conflict.New)
		}
	}

	remaining := make([]model.Conflict, 0, len(version.PendingConflicts)-1)
	remaining = append(remaining, version.PendingConflicts[:idx]...)
	remaining = append(remaining, version.PendingConflicts[idx+1:]...)

	items = model.NormalizeIDs(items)
	if err := st.SaveRequirementModel(ctx, versionID, items, remaining, version.ProcessingErrors); err != nil {
		return nil, err
	}

	return &model.RunSummary{
		VersionID:        versionID,
		RequirementModel: items,
		Conflicts:        remaining,
		Errors:           version.ProcessingErrors,
	}, nil
}
