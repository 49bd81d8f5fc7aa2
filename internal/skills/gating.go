package skills

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// GatingContext provides context for skill eligibility checks, caching the
// binary/env lookups so a repeated eligibility check across many skills
// doesn't re-shell out or re-query the environment per skill.
type GatingContext struct {
	// OS is the current operating system (darwin, linux, windows).
	OS string

	// PathBins caches binary-on-PATH lookups by name.
	PathBins map[string]bool

	// EnvVars caches environment variable presence checks by name.
	EnvVars map[string]bool
}

// NewGatingContext creates a GatingContext for the current environment.
func NewGatingContext() *GatingContext {
	return &GatingContext{
		OS:       runtime.GOOS,
		PathBins: make(map[string]bool),
		EnvVars:  make(map[string]bool),
	}
}

// CheckBinary checks if a binary exists on PATH and caches the result.
func (c *GatingContext) CheckBinary(name string) bool {
	if result, ok := c.PathBins[name]; ok {
		return result
	}

	_, err := exec.LookPath(name)
	result := err == nil
	c.PathBins[name] = result
	return result
}

// CheckEnv checks if an environment variable is set.
func (c *GatingContext) CheckEnv(name string) bool {
	if result, ok := c.EnvVars[name]; ok {
		return result
	}

	_, exists := os.LookupEnv(name)
	c.EnvVars[name] = exists
	return exists
}

// EligibilityResult is the result of a skill eligibility check.
type EligibilityResult struct {
	Eligible bool
	Reason   string
}

// CheckEligibility checks whether a skill is eligible to be loaded given
// ctx's environment.
func (s *SkillEntry) CheckEligibility(ctx *GatingContext) EligibilityResult {
	meta := s.Metadata
	if meta == nil {
		return EligibilityResult{true, ""}
	}
	if meta.Always {
		return EligibilityResult{true, "always enabled"}
	}

	if len(meta.OS) > 0 {
		found := false
		for _, os := range meta.OS {
			if os == ctx.OS {
				found = true
				break
			}
		}
		if !found {
			return EligibilityResult{false, fmt.Sprintf("requires OS %v, have %s", meta.OS, ctx.OS)}
		}
	}

	if meta.Requires != nil {
		for _, bin := range meta.Requires.Bins {
			if !ctx.CheckBinary(bin) {
				return EligibilityResult{false, fmt.Sprintf("missing required binary: %s", bin)}
			}
		}

		if len(meta.Requires.AnyBins) > 0 {
			found := false
			for _, bin := range meta.Requires.AnyBins {
				if ctx.CheckBinary(bin) {
					found = true
					break
				}
			}
			if !found {
				return EligibilityResult{false, fmt.Sprintf("requires one of: %v", meta.Requires.AnyBins)}
			}
		}

		for _, env := range meta.Requires.Env {
			if !ctx.CheckEnv(env) {
				return EligibilityResult{false, fmt.Sprintf("missing environment variable: %s", env)}
			}
		}
	}

	return EligibilityResult{true, ""}
}

// FilterEligible filters skills to only those that are eligible.
func FilterEligible(skills []*SkillEntry, ctx *GatingContext) []*SkillEntry {
	var eligible []*SkillEntry
	for _, skill := range skills {
		if skill.CheckEligibility(ctx).Eligible {
			eligible = append(eligible, skill)
		}
	}
	return eligible
}

// IneligibleReasons returns the ineligibility reason for every skill that
// failed its eligibility check.
func IneligibleReasons(skills []*SkillEntry, ctx *GatingContext) map[string]string {
	reasons := make(map[string]string)
	for _, skill := range skills {
		if result := skill.CheckEligibility(ctx); !result.Eligible {
			reasons[skill.Name] = result.Reason
		}
	}
	return reasons
}
