package scene

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lionlai1989/sat-bundleadjust/internal/pairs"
	"github.com/lionlai1989/sat-bundleadjust/internal/rpc"
	"github.com/lionlai1989/sat-bundleadjust/internal/store"
	"github.com/lionlai1989/sat-bundleadjust/internal/timeline"
	"github.com/lionlai1989/sat-bundleadjust/internal/validate"
)

// Run adjusts the selected timeline per the configured strategy and records
// the outcome. It is the entry point the adjust command calls after Load.
func (s *Scene) Run(ctx context.Context) error {
	selected, err := s.selection()
	if err != nil {
		return err
	}

	if s.cfg.Reset {
		if err := s.reset(); err != nil {
			return err
		}
	}

	fmt.Fprintf(s.out, "Adjusting %d dates with the %s strategy\n", len(selected), s.strategy)
	s.PrintTimeline(selected)

	var runID string
	if s.stats != nil {
		run, err := s.stats.CreateRun(ctx, s.strategy.String(), len(selected), timeline.TotalImages(s.entries, selected))
		if err != nil {
			return err
		}
		runID = run.ID
	}

	start := time.Now()
	var errBefore, errAfter float64
	switch s.strategy {
	case StrategySequential:
		errBefore, errAfter, err = s.runSequential(ctx, runID, selected)
	case StrategyGlobal:
		errBefore, errAfter, err = s.runJoint(ctx, runID, selected, pairs.FromTimeline(s.entries, selected, s.cfg.PreviousDates, true))
	case StrategyBruteforce:
		errBefore, errAfter, err = s.runJoint(ctx, runID, selected, nil)
	}
	if err != nil {
		return err
	}

	if s.stats != nil {
		if err := s.stats.FinishRun(ctx, runID, errBefore, errAfter); err != nil {
			return err
		}
	}
	if s.cfg.RemoveTempFiles {
		s.removeTempFiles()
	}

	fmt.Fprintf(s.out, "Done in %s, mean reprojection error %.3f --> %.3f px\n",
		formatElapsed(time.Since(start)), errBefore, errAfter)
	return nil
}

// selection resolves the configured timeline indices, defaulting to the full
// timeline, and bounds-checks them.
func (s *Scene) selection() ([]int, error) {
	if len(s.cfg.TimelineIndices) == 0 {
		return timeline.AllIndices(s.entries), nil
	}
	for _, t := range s.cfg.TimelineIndices {
		if t < 0 || t >= len(s.entries) {
			return nil, eris.Errorf("scene: timeline index %d out of range [0, %d)", t, len(s.entries))
		}
	}
	return s.cfg.TimelineIndices, nil
}

// runSequential adjusts the selected dates one at a time in ascending date
// order, anchoring each on the closest previously adjusted dates. Dates whose
// adjusted models already exist on disk are skipped, which makes interrupted
// runs resumable.
func (s *Scene) runSequential(ctx context.Context, runID string, selected []int) (before, after float64, err error) {
	var bSum, aSum float64
	done := 0

	// chronological processing keeps every anchor strictly in the past even
	// when the configured indices are listed out of order
	order := append([]int(nil), selected...)
	sort.Ints(order)

	for i, t := range order {
		e := &s.entries[t]
		if len(e.Images) == 0 {
			continue
		}
		onDisk, err := s.entryAdjusted(e)
		if err != nil {
			return 0, 0, err
		}
		if e.Adjusted || onDisk {
			e.Adjusted = true
			fmt.Fprintf(s.out, "(%d/%d) %s already adjusted, skipping\n", i+1, len(order), e.ID)
			continue
		}

		// the reference camera is pinned only on the first date or when no
		// anchors carry the datum forward
		fixRef := s.cfg.FixRefCam && (i == 0 || s.cfg.PreviousDates == 0)
		in, err := s.buildInput([]int{t}, s.cfg.PreviousDates, s.adjustConfig(fixRef))
		if err != nil {
			return 0, 0, err
		}

		dateStart := time.Now()
		res, err := s.pipeline.Run(ctx, in)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "scene: adjust date %s", e.ID)
		}
		if err := s.persistAdjusted(in.New, res); err != nil {
			return 0, 0, err
		}
		e.Adjusted = true

		// the solver's own initial error is relative to the anchor-adjusted
		// models, so recompute both residuals against the original ones
		eb, ea := s.iterationErrors(in, res)
		bSum += eb
		aSum += ea
		done++

		elapsed := time.Since(dateStart)
		fmt.Fprintf(s.out, "(%d/%d) %s adjusted in %s, %d tracks (%.3f --> %.3f px)\n",
			i+1, len(order), e.ID, formatElapsed(elapsed), res.Tracks, eb, ea)
		if s.stats != nil && runID != "" {
			st := store.DateStat{
				RunID:     runID,
				DateID:    e.ID,
				Images:    len(e.Images),
				Tracks:    res.Tracks,
				Elapsed:   elapsed.Seconds(),
				ErrBefore: eb,
				ErrAfter:  ea,
			}
			if err := s.stats.AddDateStat(ctx, st); err != nil {
				return 0, 0, err
			}
		}
	}

	if done == 0 {
		return 0, 0, nil
	}
	return bSum / float64(done), aSum / float64(done), nil
}

// runJoint adjusts every selected date in a single solver call. A non-nil
// pair list restricts the correspondence search (global strategy); nil leaves
// it exhaustive (bruteforce).
func (s *Scene) runJoint(ctx context.Context, runID string, selected []int, prs []pairs.Pair) (before, after float64, err error) {
	in, err := s.buildInput(selected, 0, s.adjustConfig(s.cfg.FixRefCam))
	if err != nil {
		return 0, 0, err
	}
	in.Pairs = prs

	start := time.Now()
	res, err := s.pipeline.Run(ctx, in)
	if err != nil {
		return 0, 0, eris.Wrap(err, "scene: joint adjustment")
	}
	if err := s.persistAdjusted(in.New, res); err != nil {
		return 0, 0, err
	}
	for _, t := range selected {
		s.entries[t].Adjusted = true
	}

	eb, ea := s.iterationErrors(in, res)
	elapsed := time.Since(start)
	fmt.Fprintf(s.out, "%d dates adjusted in %s, %d tracks (%.3f --> %.3f px)\n",
		len(selected), formatElapsed(elapsed), res.Tracks, eb, ea)
	if s.stats != nil && runID != "" {
		st := store.DateStat{
			RunID:     runID,
			DateID:    "all",
			Images:    len(in.New),
			Tracks:    res.Tracks,
			Elapsed:   elapsed.Seconds(),
			ErrBefore: eb,
			ErrAfter:  ea,
		}
		if err := s.stats.AddDateStat(ctx, st); err != nil {
			return 0, 0, err
		}
	}
	return eb, ea, nil
}

// persistAdjusted writes the corrected models of the new images. Anchor
// corrections, if the solver reports any, are discarded: anchors are frozen
// by contract. Writes are atomic, so a crash never leaves a date half
// adjusted with a readable model file.
func (s *Scene) persistAdjusted(newImages []Image, res *Result) error {
	for _, img := range newImages {
		m, ok := res.Adjusted[img.ID]
		if !ok {
			return eris.Errorf("scene: solver returned no adjusted model for %s", img.ID)
		}
		if err := s.rpcs.Save(img.ID, m, rpc.StageAdjusted); err != nil {
			return err
		}
	}
	return nil
}

// iterationErrors reports the mean reprojection error before and after one
// iteration. When the solver returned its observation table the residuals
// are recomputed against the original initial models; otherwise the solver's
// own figures are used.
func (s *Scene) iterationErrors(in *Input, res *Result) (before, after float64) {
	if res.Observations == nil {
		return res.ErrBefore, res.ErrAfter
	}
	ids := make([]string, 0, len(in.Anchors)+len(in.New))
	for _, img := range in.Images() {
		ids = append(ids, img.ID)
	}
	v, err := s.recomputeErrors(ids, res)
	if err != nil {
		zap.L().Warn("reprojection validation failed, using solver figures", zap.Error(err))
		return res.ErrBefore, res.ErrAfter
	}
	return v.Before, v.After
}

// recomputeErrors replays the solver's observations against the original
// initial models and the freshly persisted adjusted ones.
func (s *Scene) recomputeErrors(ids []string, res *Result) (validate.Result, error) {
	initial, err := s.rpcs.Load(ids, rpc.StageInitial)
	if err != nil {
		return validate.Result{}, err
	}
	adjusted, err := s.rpcs.Load(ids, rpc.StageAdjusted)
	if err != nil {
		return validate.Result{}, err
	}
	return validate.Compare(res.Observations, initial, adjusted, res.TriPairs)
}

// adjustConfig builds the solver configuration for one iteration.
func (s *Scene) adjustConfig(fixRef bool) AdjustConfig {
	return AdjustConfig{
		CamModel:          s.cfg.CamModel,
		CorrectionParams:  s.cfg.CorrectionParams,
		PredefinedMatches: s.cfg.PredefinedMatches,
		FixRefCam:         fixRef,
		RefCamWeight:      s.cfg.RefCamWeight,
		CleanOutliers:     s.cfg.CleanOutliers,
		AOIPath:           s.aoiPath,
	}
}

// reset discards every artifact of the current strategy and clears the
// in-memory adjustment marks. Initial models and artifacts of other
// strategies are untouched.
func (s *Scene) reset() error {
	if err := os.RemoveAll(s.outputDir()); err != nil {
		return eris.Wrap(err, "scene: reset strategy output")
	}
	timeline.ResetAdjusted(s.entries)
	zap.L().Info("reset strategy output", zap.String("dir", s.outputDir()))
	return nil
}

// removeTempFiles drops the solver's intermediate feature and match data,
// keeping only adjusted models and reports.
func (s *Scene) removeTempFiles() {
	for _, sub := range []string{"features", "matches", "tracks"} {
		dir := filepath.Join(s.outputDir(), sub)
		if err := os.RemoveAll(dir); err != nil {
			zap.L().Warn("could not remove temp dir", zap.String("dir", dir), zap.Error(err))
		}
	}
}

// formatElapsed renders a duration as H:MM:SS.cc.
func formatElapsed(d time.Duration) string {
	secs := d.Seconds()
	h := int(secs) / 3600
	m := (int(secs) % 3600) / 60
	return fmt.Sprintf("%d:%02d:%05.2f", h, m, secs-float64(h*3600+m*60))
}
