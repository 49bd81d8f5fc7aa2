package turn

import (
	"context"
	"fmt"
)

// RegisterBuiltins installs the built-in slash commands spec §4.9 names
// alongside skills: "/help" and "/compact". Skills are registered
// separately via RegisterSkill once loaded from disk.
func RegisterBuiltins(r *CommandRegistry) {
	r.Register(Command{Name: "help", Handler: handleHelp})
	r.Register(Command{Name: "compact", Handler: handleCompact})
}

func handleHelp(ctx context.Context, d *Driver, args string) (CommandResult, error) {
	return builtinCommandResponse("Built-in commands: /help, /compact. Any other /name invokes a registered skill.")
}

// handleCompact forces an immediate compaction pass regardless of the
// threshold, then ends the turn: it has nothing useful to hand to the step
// loop.
func handleCompact(ctx context.Context, d *Driver, args string) (CommandResult, error) {
	if d.compactionMgr == nil {
		return builtinCommandResponse("compaction is not configured for this session")
	}
	if err := d.compactionMgr.Run(ctx); err != nil {
		return CommandResult{}, fmt.Errorf("turn: /compact: %w", err)
	}
	return builtinCommandResponse("conversation history compacted")
}
