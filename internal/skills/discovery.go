package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Discover scans dir for skill subdirectories (each containing a SKILL.md)
// and returns every skill that parses and validates. A missing dir is not
// an error: it simply yields no skills, matching how a fresh workspace
// with no skills/ directory configured should behave.
func Discover(ctx context.Context, dir string, logger *slog.Logger) ([]*SkillEntry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "skills")

	if dir == "" {
		return nil, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		logger.Debug("skills directory does not exist", "path", dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("skills: stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skills: not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("skills: read directory: %w", err)
	}

	var found []*SkillEntry
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		if !entry.IsDir() {
			continue
		}

		skillPath := filepath.Join(dir, entry.Name())
		skillFile := filepath.Join(skillPath, SkillFilename)

		if _, err := os.Stat(skillFile); os.IsNotExist(err) {
			continue
		}

		skill, err := ParseSkillFile(skillFile)
		if err != nil {
			logger.Warn("failed to parse skill", "path", skillPath, "error", err)
			continue
		}

		if err := ValidateSkill(skill); err != nil {
			logger.Warn("invalid skill", "path", skillPath, "error", err)
			continue
		}

		found = append(found, skill)
		logger.Debug("discovered skill", "name", skill.Name, "path", skillPath)
	}

	logger.Info("discovered skills", "count", len(found), "path", dir)
	return found, nil
}
