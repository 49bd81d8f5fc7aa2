// Package skills discovers SKILL.md files (YAML frontmatter + markdown
// body) under a configured directory and exposes them as named prompt
// templates, each surfaced as a slash command via
// turn.CommandRegistry.RegisterSkill.
package skills

// SkillEntry represents a discovered skill with its metadata and content.
type SkillEntry struct {
	// Name is the unique skill identifier (lowercase, hyphens allowed) and
	// doubles as the slash-command name it is registered under.
	Name string `yaml:"name"`

	// Description explains what the skill does and when to use it.
	Description string `yaml:"description"`

	// Homepage is an optional URL to skill documentation.
	Homepage string `yaml:"homepage"`

	// Metadata contains gating hints. Nil means always eligible.
	Metadata *SkillMetadata `yaml:"metadata"`

	// Content is the markdown body, used as the prompt template.
	Content string `yaml:"-"`

	// Path is the directory the skill was discovered in.
	Path string `yaml:"-"`
}

// SkillMetadata contains eligibility gating rules.
type SkillMetadata struct {
	// Emoji is displayed in UIs next to the skill name.
	Emoji string `yaml:"emoji"`

	// Always skips all gating checks if true.
	Always bool `yaml:"always"`

	// OS restricts the skill to specific platforms (darwin, linux, windows).
	OS []string `yaml:"os"`

	// Requires defines gating requirements.
	Requires *SkillRequires `yaml:"requires"`

	// PrimaryEnv is the main API key environment variable this skill needs.
	// Eligibility checks do not read it; only Requires.Env is checked.
	PrimaryEnv string `yaml:"primaryEnv"`
}

// SkillRequires defines gating requirements for a skill.
type SkillRequires struct {
	// Bins requires all listed binaries to exist on PATH.
	Bins []string `yaml:"bins"`

	// AnyBins requires at least one of the listed binaries to exist.
	AnyBins []string `yaml:"anyBins"`

	// Env requires all listed environment variables to be set.
	Env []string `yaml:"env"`
}
