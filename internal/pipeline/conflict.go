package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/usecase-cli/internal/model"
)

// Default similarity thresholds for the conflict gate.
const (
	DefaultUpperThreshold = 0.95
	DefaultLowerThreshold = 0.75
)

// SemanticChecker is the external verdict for the ambiguous middle band.
// The gateway satisfies it.
type SemanticChecker interface {
	CheckConflict(ctx context.Context, a, b string) (bool, error)
}

// Thresholds bound the similarity bands of the conflict gate.
type Thresholds struct {
	// Upper: at or above, a conflict without asking the service.
	Upper float64
	// Lower: below, not a conflict without asking the service.
	Lower float64
}

// Detector decides whether a candidate use case duplicates an existing one.
// Exact key equality and near-certain similarity short-circuit; only the
// ambiguous band pays for an external semantic verdict.
type Detector struct {
	checker    SemanticChecker
	thresholds Thresholds
	logger     *zap.Logger
}

// NewDetector creates a Detector. Zero thresholds take the defaults.
func NewDetector(checker SemanticChecker, thresholds Thresholds) *Detector {
	if thresholds.Upper <= 0 {
		thresholds.Upper = DefaultUpperThreshold
	}
	if thresholds.Lower <= 0 {
		thresholds.Lower = DefaultLowerThreshold
	}
	return &Detector{
		checker:    checker,
		thresholds: thresholds,
		logger:     zap.L().With(zap.String("component", "conflict")),
	}
}

// IsConflict applies the three-tier gate to the normalized identity keys of
// both items. A failed semantic verdict counts as "not a conflict": the
// candidate is appended and a duplicate, if real, surfaces to a human later.
func (d *Detector) IsConflict(ctx context.Context, existing, candidate model.UseCase) bool {
	a := existing.Key()
	b := candidate.Key()
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	score := DiceSimilarity(a, b)
	switch {
	case score >= d.thresholds.Upper:
		return true
	case score < d.thresholds.Lower:
		return false
	}

	verdict, err := d.checker.CheckConflict(ctx, a, b)
	if err != nil {
		d.logger.Warn("semantic conflict check failed, treating as no conflict",
			zap.String("existing", a),
			zap.String("candidate", b),
			zap.Float64("similarity", score),
			zap.Error(err))
		return false
	}
	return verdict
}
