package scene

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
	"github.com/lionlai1989/sat-bundleadjust/internal/timeline"
)

// markAdjustedDates recovers adjustment state from disk so interrupted runs
// resume instead of redoing finished dates. A cluster counts as adjusted when
// every one of its images has a persisted adjusted model; only clusters
// strictly before beforeIdx are eligible, which keeps the anchor set causal.
// It returns whether any cluster was marked.
func (s *Scene) markAdjustedDates(beforeIdx int) (bool, error) {
	ids, err := s.rpcs.AdjustedIDs()
	if err != nil {
		return false, err
	}
	adjusted := make(map[string]bool, len(ids))
	for _, id := range ids {
		adjusted[id] = true
	}

	found := false
	for i := range s.entries {
		e := &s.entries[i]
		if i >= beforeIdx || len(e.Images) == 0 {
			continue
		}
		all := true
		for _, id := range e.Images {
			if !adjusted[id] {
				all = false
				break
			}
		}
		if all && !e.Adjusted {
			e.Adjusted = true
			zap.L().Debug("recovered adjusted date", zap.String("date", e.ID), zap.Int("index", i))
		}
		found = found || all
	}
	return found, nil
}

// entryAdjusted reports whether every image of a cluster already has a
// persisted adjusted model. Unlike markAdjustedDates it never touches the
// timeline flags, so it is safe to ask about the date currently being
// processed.
func (s *Scene) entryAdjusted(e *timeline.Entry) (bool, error) {
	if len(e.Images) == 0 {
		return false, nil
	}
	ids, err := s.rpcs.AdjustedIDs()
	if err != nil {
		return false, err
	}
	adjusted := make(map[string]bool, len(ids))
	for _, id := range ids {
		adjusted[id] = true
	}
	for _, id := range e.Images {
		if !adjusted[id] {
			return false, nil
		}
	}
	return true, nil
}

// adjustedIndices lists the timeline indices currently marked adjusted.
func (s *Scene) adjustedIndices() []int {
	var out []int
	for i := range s.entries {
		if s.entries[i].Adjusted {
			out = append(out, i)
		}
	}
	return out
}

// loadImages assembles pipeline images for the given ids, reading camera
// models from the requested stage.
func (s *Scene) loadImages(ids []string, stage rpc.Stage, adjusted bool) ([]Image, error) {
	out := make([]Image, 0, len(ids))
	for _, id := range ids {
		m, err := s.rpcs.LoadOne(id, stage)
		if err != nil {
			return nil, eris.Wrapf(err, "scene: image %s", id)
		}
		out = append(out, Image{ID: id, Path: s.meta[id].path, Model: m, Adjusted: adjusted})
	}
	return out, nil
}
