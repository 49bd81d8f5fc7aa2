package turn

import (
	"context"
	"fmt"
	"strings"
)

// CommandResult is what a slash command or skill invocation produces.
type CommandResult struct {
	// ResponseText, non-empty, is recorded as an assistant message and ends
	// the turn without entering the model loop at all (e.g. "/help").
	ResponseText string

	// EnterLoop requests that the turn driver proceed into the normal step
	// loop after the handler runs (e.g. a skill expands its template then
	// continues). "/compact" does not set it: it ends the turn.
	EnterLoop bool

	// RewrittenInput, set alongside EnterLoop, replaces the user's raw input
	// for the step loop and for Ralph-loop re-invocation (e.g. a skill's
	// expanded prompt template).
	RewrittenInput string
}

// CommandHandler runs one slash command or skill invocation.
type CommandHandler func(ctx context.Context, d *Driver, args string) (CommandResult, error)

// Command is one registered slash command.
type Command struct {
	Name    string
	Handler CommandHandler
}

// CommandRegistry resolves a slash-command name to its handler. Grounded on
// the teacher's commands.Registry (internal/commands/registry.go) but
// trimmed to the single "/" prefix and plain name+args shape spec §4.9
// names: no inline-command detection, no aliases or admin-only gating —
// none of those are part of this build's command surface.
type CommandRegistry struct {
	commands map[string]Command
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]Command)}
}

// Register adds or replaces a command by name.
func (r *CommandRegistry) Register(c Command) {
	r.commands[strings.ToLower(c.Name)] = c
}

// RegisterSkill adds a named prompt template as a slash command (spec
// §4.9: "a skill (a named prompt template)"). Invoking it rewrites the
// turn's effective input to the template — with args substituted for a
// "%s" placeholder, or appended on a new paragraph if the template has
// none — and proceeds into the normal step loop.
func (r *CommandRegistry) RegisterSkill(name, template string) {
	r.Register(Command{
		Name: name,
		Handler: func(ctx context.Context, d *Driver, args string) (CommandResult, error) {
			prompt := template
			if strings.Contains(template, "%s") {
				prompt = fmt.Sprintf(template, args)
			} else if args != "" {
				prompt = template + "\n\n" + args
			}
			return CommandResult{EnterLoop: true, RewrittenInput: prompt}, nil
		},
	})
}

// Get looks up a command by name (case-insensitive).
func (r *CommandRegistry) Get(name string) (Command, bool) {
	c, ok := r.commands[strings.ToLower(name)]
	return c, ok
}

// Names lists every registered command name, for the wire server's
// `initialize` result (spec §4.10: "the list of slash commands the host
// may surface").
func (r *CommandRegistry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	return names
}

// parseSlashCommand splits "/name rest of args" into name and args. ok is
// false when text is not a slash command at all, in which case the caller
// must treat the whole text as an ordinary user message.
func parseSlashCommand(text string) (name, args string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	body := trimmed[1:]
	if body == "" {
		return "", "", false
	}
	parts := strings.SplitN(body, " ", 2)
	name = strings.ToLower(parts[0])
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args, true
}
