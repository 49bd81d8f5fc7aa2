package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager discovers skills under one directory, tracks which are eligible
// given the current environment, and can watch the directory for changes
// so new or edited SKILL.md files take effect without a restart. Grounded
// on the teacher's skills.Manager, trimmed to the single configured
// directory this module's SkillsConfig names (no multi-source merge, no
// git/registry sources, no per-skill config overrides).
type Manager struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	skills   map[string]*SkillEntry
	eligible map[string]*SkillEntry

	gatingCtx *GatingContext

	watchMu     sync.Mutex
	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup
}

// NewManager creates a skill manager rooted at dir.
func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dir:       dir,
		logger:    logger.With("component", "skills"),
		skills:    make(map[string]*SkillEntry),
		eligible:  make(map[string]*SkillEntry),
		gatingCtx: NewGatingContext(),
	}
}

// Discover (re)scans the configured directory and refreshes the eligible
// set.
func (m *Manager) Discover(ctx context.Context) error {
	found, err := Discover(ctx, m.dir, m.logger)
	if err != nil {
		return fmt.Errorf("skills: discover: %w", err)
	}

	skills := make(map[string]*SkillEntry, len(found))
	for _, s := range found {
		skills[s.Name] = s
	}

	eligible := make(map[string]*SkillEntry)
	for _, s := range FilterEligible(found, m.gatingCtx) {
		eligible[s.Name] = s
	}

	m.mu.Lock()
	m.skills = skills
	m.eligible = eligible
	m.mu.Unlock()

	m.logger.Info("refreshed skills", "total", len(skills), "eligible", len(eligible))
	return nil
}

// GetSkill returns a discovered skill by name, regardless of eligibility.
func (m *Manager) GetSkill(name string) (*SkillEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.skills[name]
	return s, ok
}

// ListEligible returns every eligible skill.
func (m *Manager) ListEligible() []*SkillEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*SkillEntry, 0, len(m.eligible))
	for _, s := range m.eligible {
		result = append(result, s)
	}
	return result
}

// IneligibleReasons returns the ineligibility reason for every discovered
// but ineligible skill, keyed by skill name.
func (m *Manager) IneligibleReasons() map[string]string {
	m.mu.RLock()
	all := make([]*SkillEntry, 0, len(m.skills))
	for _, s := range m.skills {
		all = append(all, s)
	}
	m.mu.RUnlock()
	return IneligibleReasons(all, m.gatingCtx)
}

// RegisterInto installs every eligible skill as a slash command through
// register (cmd/soul passes turn.CommandRegistry.RegisterSkill). Takes the
// registrar as a closure
// (name, template string) rather than importing package turn directly, so
// this package has no dependency on the turn driver it feeds.
func (m *Manager) RegisterInto(register func(name, template string)) {
	for _, s := range m.ListEligible() {
		register(s.Name, ExpandBaseDir(s.Content, s.Path))
	}
}

// Watch starts an fsnotify watch on the skills directory, re-running
// Discover on every debounced filesystem event. Returns nil without
// watching if dir is empty, and an error if dir does not exist yet: a
// directory created after startup is not watched, matching the teacher's
// watch-what-exists-at-start semantics.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration) error {
	if m.dir == "" {
		return nil
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	m.watchMu.Lock()
	if m.watcher != nil {
		m.watchMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.watchMu.Unlock()
		return fmt.Errorf("skills: new watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		m.watchMu.Unlock()
		return fmt.Errorf("skills: watch directory: %w", err)
	}
	m.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchMu.Unlock()

	m.watchWg.Add(1)
	go m.watchLoop(watchCtx, watcher, debounce)
	return nil
}

// Close stops the active watch, if any.
func (m *Manager) Close() error {
	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	watcher := m.watcher
	m.watcher = nil
	m.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	m.watchWg.Wait()
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration) {
	defer m.watchWg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleRefresh := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if err := m.Discover(context.Background()); err != nil {
				m.logger.Warn("skill refresh failed during watch", "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleRefresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("skill watch error", "error", err)
		}
	}
}
