package materializer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/forgelab/dice/apath"
	"github.com/forgelab/dice/emit"
)

// CleanReport summarizes one clean_stale sweep (spec §4.2.6): what was (or,
// in dry-run mode, would be) removed, and how much space that reclaims.
type CleanReport struct {
	DryRun     bool
	Removed    []string
	Failed     map[string]error
	BytesFreed int64
}

// Summary renders a one-line human-readable report, the form spec §4.2.1
// asks clean_stale to return.
func (r *CleanReport) Summary() string {
	verb := "removed"
	if r.DryRun {
		verb = "would remove"
	}
	return humanize.Comma(int64(len(r.Removed))) + " paths " + verb + ", " +
		humanize.Bytes(uint64(r.BytesFreed)) + " reclaimed, " +
		humanize.Comma(int64(len(r.Failed))) + " failed"
}

// runClean walks the tracked tree for leaves whose last_access_time is
// older than keepSince, removing them (unless dryRun) and recording what
// was reclaimed. When trackedOnly is false it additionally sweeps the
// output root for files the tree has no record of at all. A single path's
// removal failure is recorded in the report, not returned as a sweep error
// (spec §4.2.6: "failures are reported but do not abort the sweep").
func (p *processor) runClean(ctx context.Context, keepSince time.Time, dryRun, trackedOnly bool) (*CleanReport, error) {
	report := &CleanReport{DryRun: dryRun, Failed: map[string]error{}}

	tracked := make(map[string]bool)
	for _, e := range p.tree.walk() {
		snap := e.n.snapshot()
		tracked[e.path.String()] = true
		if snap.stage != Materialized || !snap.lastAccessTime.Before(keepSince) {
			continue
		}
		if err := p.reclaim(e.path, e.n, report); err != nil {
			report.Failed[e.path.String()] = err
			continue
		}
	}

	if !trackedOnly {
		p.sweepUntracked(ctx, tracked, keepSince, report)
	}

	p.stats.AddCleanerReclaimed(report.BytesFreed)
	p.emitter.Emit(emit.Event{Subsystem: "materializer", Key: "clean_stale", Version: -1, Kind: "clean", Msg: report.Summary()})
	return report, nil
}

func (p *processor) reclaim(path apath.Path, n *node, report *CleanReport) error {
	abs := p.fs.Abs(path.String())
	var size int64
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		size = info.Size()
	}

	if !report.DryRun {
		if err := p.fs.Remove(path.String()); err != nil {
			return err
		}
		n.mu.Lock()
		n.stage = Absent
		n.method = nil
		n.priorMethod = nil
		n.digest = ""
		n.mu.Unlock()
	}

	report.Removed = append(report.Removed, path.String())
	report.BytesFreed += size
	return nil
}

// sweepUntracked walks the output root for files the tree has no entry
// for at all, removing (or reporting, in dry-run mode) any whose mtime
// predates keepSince.
func (p *processor) sweepUntracked(ctx context.Context, tracked map[string]bool, keepSince time.Time, report *CleanReport) {
	_ = ctx
	filepath.Walk(p.fs.Root, func(abs string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(p.fs.Root, abs)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if tracked[rel] || !info.ModTime().Before(keepSince) {
			return nil
		}
		if !report.DryRun {
			if rmErr := os.Remove(abs); rmErr != nil {
				report.Failed[rel] = rmErr
				return nil
			}
		}
		report.Removed = append(report.Removed, rel)
		report.BytesFreed += info.Size()
		return nil
	})
}
