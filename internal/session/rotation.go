package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// sweepCronParser accepts the same expression shapes the teacher's
// schedule parser does (internal/cron/schedule.go): standard 5-field cron,
// an optional leading seconds field, and descriptors like "@hourly".
var sweepCronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

var rotatedFilePattern = regexp.MustCompile(`^(context|wire)\.(\d+)\.jsonl$`)

// Sweeper periodically prunes rotated context.<n>.jsonl/wire.<n>.jsonl
// files past a retention count, across every session directory under a
// share dir. Grounded on the teacher's cron-expression parsing
// (internal/cron/schedule.go) driving a background loop shaped like the
// teacher's task scheduler's ticker loop (internal/tasks/scheduler.go's
// pollLoop), scaled down to this module's single sweep job.
type Sweeper struct {
	shareDir  string
	retention int
	schedule  cron.Schedule
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper parses cronExpr and builds a Sweeper that prunes
// shareDir/sessions/*/ down to retention rotated files per family.
// retention <= 0 disables pruning: Start becomes a no-op.
func NewSweeper(shareDir string, retention int, cronExpr string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schedule, err := sweepCronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("session: parse rotation sweep schedule %q: %w", cronExpr, err)
	}
	return &Sweeper{shareDir: shareDir, retention: retention, schedule: schedule, logger: logger}, nil
}

// Start runs the sweep loop in the background until ctx is cancelled or
// Stop is called.
func (sw *Sweeper) Start(ctx context.Context) {
	if sw.retention <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel
	sw.wg.Add(1)
	go sw.loop(ctx)
}

// Stop cancels the sweep loop and waits for it to exit. A no-op if Start
// was never called or retention disabled pruning.
func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.wg.Wait()
}

func (sw *Sweeper) loop(ctx context.Context) {
	defer sw.wg.Done()
	for {
		next := sw.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			sw.sweepOnce()
		}
	}
}

// sweepOnce prunes every session directory once.
func (sw *Sweeper) sweepOnce() {
	sessionsDir := filepath.Join(sw.shareDir, "sessions")
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		sw.logger.Error("session: rotation sweep: read sessions dir", "error", err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := sw.pruneSessionDir(filepath.Join(sessionsDir, e.Name())); err != nil {
			sw.logger.Error("session: rotation sweep: prune session", "session", e.Name(), "error", err)
		}
	}
}

// pruneSessionDir deletes every rotated file in dir beyond the retention
// count, for the context and wire families independently, oldest (lowest
// index) first.
func (sw *Sweeper) pruneSessionDir(dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	byFamily := map[string][]int{}
	for _, f := range files {
		m := rotatedFilePattern.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[2])
		byFamily[m[1]] = append(byFamily[m[1]], n)
	}
	for family, indices := range byFamily {
		sort.Ints(indices)
		if len(indices) <= sw.retention {
			continue
		}
		for _, n := range indices[:len(indices)-sw.retention] {
			path := filepath.Join(dir, fmt.Sprintf("%s.%d.jsonl", family, n))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", path, err)
			}
		}
	}
	return nil
}
