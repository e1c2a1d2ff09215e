package scene

import (
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
)

// buildInput prepares one adjustment iteration: the new images of the
// selected clusters with their initial models, plus up to prevDates anchor
// clusters whose adjusted models hold the frame fixed. Anchors are the
// already-adjusted clusters closest to the selection by timeline distance.
func (s *Scene) buildInput(selected []int, prevDates int, cfg AdjustConfig) (*Input, error) {
	var newIDs []string
	for _, t := range selected {
		newIDs = append(newIDs, s.entries[t].Images...)
	}
	newImages, err := s.loadImages(newIDs, rpc.StageInitial, false)
	if err != nil {
		return nil, err
	}

	var anchors []Image
	if prevDates > 0 && len(selected) > 0 {
		first := selected[0]
		for _, t := range selected[1:] {
			if t < first {
				first = t
			}
		}
		if _, err := s.markAdjustedDates(first); err != nil {
			return nil, err
		}
		// in-memory flags can carry dates adjusted later in this run; only
		// dates strictly before the selection may anchor it
		var candidates []int
		for _, idx := range s.adjustedIndices() {
			if idx < first {
				candidates = append(candidates, idx)
			}
		}
		anchorDates := closestDates(candidates, first, prevDates)
		var anchorIDs []string
		for _, t := range anchorDates {
			anchorIDs = append(anchorIDs, s.entries[t].Images...)
		}
		anchors, err = s.loadImages(anchorIDs, rpc.StageAdjusted, true)
		if err != nil {
			return nil, err
		}
		if len(anchorDates) > 0 {
			zap.L().Debug("anchoring on adjusted dates", zap.Ints("dates", anchorDates))
		}
	}

	in := &Input{
		Anchors:   anchors,
		New:       newImages,
		Config:    cfg,
		InputDir:  s.cfg.GeotiffDir,
		OutputDir: s.outputDir(),
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// closestDates picks up to n adjusted cluster indices nearest to target by
// index distance, returned in chronological order.
func closestDates(adjusted []int, target, n int) []int {
	if len(adjusted) == 0 || n <= 0 {
		return nil
	}
	picked := append([]int(nil), adjusted...)
	sort.Slice(picked, func(i, j int) bool {
		di, dj := absInt(picked[i]-target), absInt(picked[j]-target)
		if di != dj {
			return di < dj
		}
		return picked[i] < picked[j]
	})
	if len(picked) > n {
		picked = picked[:n]
	}
	sort.Ints(picked)
	return picked
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// outputDir is the strategy-scoped output subtree.
func (s *Scene) outputDir() string {
	return filepath.Join(s.cfg.OutputDir, s.strategy.Dir())
}
