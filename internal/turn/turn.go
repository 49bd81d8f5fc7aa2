// Package turn implements the turn driver ("Soul", spec §4.9): the
// conversation-level loop that starts a turn, repeatedly runs steps while
// the model keeps calling tools, intercepts slash commands and skills,
// drives the "Ralph loop" flow mode, and turns cancellation and hard limits
// into the right wire envelopes.
//
// Grounded on the teacher's AgenticLoop (internal/agent/loop.go) for the
// step-looping/cancellation/hard-limit shape, and its commands package
// (internal/commands) for the slash-command interception idea — trimmed
// down to the single-prefix, no-inline-detection shape spec §4.9 actually
// calls for (see commands.go).
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/agentcore/soul/internal/approval"
	"github.com/agentcore/soul/internal/compaction"
	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/internal/toolset"
	"github.com/agentcore/soul/internal/wire"
	"github.com/agentcore/soul/pkg/message"
)

// StopSentinel ends a Ralph loop early when the model emits it (spec
// §4.9).
const StopSentinel = "<choice>STOP</choice>"

// Config controls turn-level limits and flow mode.
type Config struct {
	// MaxStepsPerTurn caps a pathological step loop (spec §4.9).
	MaxStepsPerTurn int

	// FlowMode enables the Ralph loop: after a step loop finishes
	// normally, the same prompt re-runs until MaxRalphIterations or the
	// stop sentinel.
	FlowMode bool

	// MaxRalphIterations bounds flow-mode re-invocations.
	MaxRalphIterations int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{MaxStepsPerTurn: 50, MaxRalphIterations: 10}
}

// Status is the outcome of a turn.
type Status string

const (
	StatusFinished    Status = "finished"
	StatusInterrupted Status = "interrupted"
	StatusError       Status = "error"
)

// Result is a turn's outcome, surfaced by the JSON-RPC wire server as the
// prompt method's final result (spec §4.10: "{status: finished | interrupted
// | error, reason?}").
type Result struct {
	Status Status
	Reason string
}

// Driver runs turns for one session.
type Driver struct {
	cfg           Config
	store         *contextstore.Store
	bus           *wire.Bus
	approvalCoord *approval.Coordinator
	stepDriver    *step.Driver
	toolRegistry  *toolset.Registry
	compactionMgr *compaction.Manager // nil disables compaction entirely
	commands      *CommandRegistry    // nil disables slash-command interception
}

// New builds a Driver. A zero-value cfg falls back to DefaultConfig.
func New(
	cfg Config,
	store *contextstore.Store,
	bus *wire.Bus,
	approvalCoord *approval.Coordinator,
	stepDriver *step.Driver,
	toolRegistry *toolset.Registry,
	compactionMgr *compaction.Manager,
	commands *CommandRegistry,
) *Driver {
	defaults := DefaultConfig()
	if cfg.MaxStepsPerTurn <= 0 {
		cfg.MaxStepsPerTurn = defaults.MaxStepsPerTurn
	}
	if cfg.MaxRalphIterations <= 0 {
		cfg.MaxRalphIterations = defaults.MaxRalphIterations
	}
	return &Driver{
		cfg:           cfg,
		store:         store,
		bus:           bus,
		approvalCoord: approvalCoord,
		stepDriver:    stepDriver,
		toolRegistry:  toolRegistry,
		compactionMgr: compactionMgr,
		commands:      commands,
	}
}

// RunTurn starts and drives one turn to completion (spec §4.9). isNewConversation
// clears memoized per-session approvals; it is true for a session's first
// turn and false for every subsequent one.
func (d *Driver) RunTurn(ctx context.Context, turnID, userInput string, isNewConversation bool) Result {
	if isNewConversation {
		d.approvalCoord.ResetSession()
	}
	if err := d.bus.Emit(wire.EventTurnBegin, wire.TurnBeginPayload{TurnID: turnID}); err != nil {
		return Result{Status: StatusError, Reason: err.Error()}
	}

	effectiveInput, result, handled := d.resolveCommand(ctx, userInput)
	if handled {
		return result
	}

	if err := d.store.Append(contextstore.MessageEntry(message.Text(message.RoleUser, effectiveInput))); err != nil {
		return Result{Status: StatusError, Reason: err.Error()}
	}

	maxIterations := 1
	if d.cfg.FlowMode {
		maxIterations = d.cfg.MaxRalphIterations
	}

	var last Result
	for iteration := 0; iteration < maxIterations; iteration++ {
		last = d.runSteps(ctx, turnID)
		if last.Status != StatusFinished {
			return last
		}
		if !d.cfg.FlowMode || iteration+1 >= maxIterations || d.sawStopSentinel() {
			break
		}
		if err := d.store.Append(contextstore.MessageEntry(message.Text(message.RoleUser, effectiveInput))); err != nil {
			return Result{Status: StatusError, Reason: err.Error()}
		}
	}
	return last
}

// resolveCommand intercepts a leading slash command (spec §4.9). handled is
// true when the turn is already complete (an unrecognized command is not
// "handled": it passes through verbatim as ordinary input).
func (d *Driver) resolveCommand(ctx context.Context, userInput string) (effectiveInput string, result Result, handled bool) {
	if d.commands == nil {
		return userInput, Result{}, false
	}
	name, args, ok := parseSlashCommand(userInput)
	if !ok {
		return userInput, Result{}, false
	}
	cmd, found := d.commands.Get(name)
	if !found {
		return userInput, Result{}, false
	}

	cmdResult, err := cmd.Handler(ctx, d, args)
	if err != nil {
		return userInput, Result{Status: StatusError, Reason: err.Error()}, true
	}
	if !cmdResult.EnterLoop {
		if cmdResult.ResponseText != "" {
			if err := d.store.Append(contextstore.MessageEntry(message.Text(message.RoleAssistant, cmdResult.ResponseText))); err != nil {
				return userInput, Result{Status: StatusError, Reason: err.Error()}, true
			}
		}
		return userInput, Result{Status: StatusFinished}, true
	}
	if cmdResult.RewrittenInput != "" {
		return cmdResult.RewrittenInput, Result{}, false
	}
	return userInput, Result{}, false
}

// sawStopSentinel reports whether the most recent message is an assistant
// message containing the Ralph-loop stop sentinel.
func (d *Driver) sawStopSentinel() bool {
	snap, err := d.store.Snapshot()
	if err != nil || len(snap) == 0 {
		return false
	}
	last := snap[len(snap)-1]
	return last.Role == message.RoleAssistant && strings.Contains(last.PlainText(), StopSentinel)
}

// runSteps drives the step loop for one Ralph-loop iteration: run steps
// while the model keeps calling tools, interleaving threshold-triggered
// compaction ahead of each step (spec's data-flow step 4) and resuming
// without interruption on a D-Mail rewind (spec §4.7).
func (d *Driver) runSteps(ctx context.Context, turnID string) Result {
	tools := step.BuildToolSpecs(d.toolRegistry)

	for stepIndex := 1; ; stepIndex++ {
		if stepIndex > d.cfg.MaxStepsPerTurn {
			_ = d.bus.Emit(wire.EventStepInterrupted, wire.StepInterruptedPayload{Reason: "max_steps_reached"})
			return Result{Status: StatusError, Reason: "max_steps_reached"}
		}

		if d.compactionMgr != nil && d.compactionMgr.ShouldCompact() {
			if err := d.compactionMgr.Run(ctx); err != nil {
				_ = d.bus.Emit(wire.EventStepInterrupted, wire.StepInterruptedPayload{Reason: err.Error()})
				return Result{Status: StatusError, Reason: err.Error()}
			}
		}

		if err := d.bus.Emit(wire.EventStepBegin, wire.StepBeginPayload{StepIndex: stepIndex}); err != nil {
			return Result{Status: StatusError, Reason: err.Error()}
		}

		stopPipe := d.pipeApprovals(ctx)
		stepResult, err := d.stepDriver.Run(ctx, tools)
		stopPipe()

		if err != nil {
			reason := classifyStepError(err)
			if reason == "cancelled" {
				d.approvalCoord.CancelAll("cancelled")
			}
			_ = d.bus.Emit(wire.EventStepInterrupted, wire.StepInterruptedPayload{Reason: reason})
			return Result{Status: StatusInterrupted, Reason: reason}
		}

		if stepResult.DMailTriggered {
			continue
		}
		if !stepResult.HasToolCalls {
			return Result{Status: StatusFinished}
		}
	}
}

// classifyStepError maps a step driver error onto the reason string the
// wire's StepInterrupted envelope carries.
func classifyStepError(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, step.ErrContextLengthExceeded):
		return "context_length_exceeded"
	default:
		return err.Error()
	}
}

// pipeApprovals runs a dedicated task that forwards inbound ApprovalResponse
// envelopes to the approval coordinator for the lifetime of one step (spec
// §4.9: "a dedicated approval-piping task that forwards approval events
// across the wire until the step finishes"). Returns a stop func the caller
// must call once the step ends.
func (d *Driver) pipeApprovals(ctx context.Context) func() {
	sub := d.bus.Subscribe(32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-sub.C():
				if !ok {
					return
				}
				if wire.NormalizeInboundType(env.Type) != wire.EventApprovalResponse {
					continue
				}
				var p wire.ApprovalResponsePayload
				if err := json.Unmarshal(env.Payload, &p); err != nil {
					continue
				}
				d.approvalCoord.Resolve(p.ID, approval.Decision(p.Decision), p.Reason)
			}
		}
	}()
	return func() {
		d.bus.Unsubscribe(sub)
		<-done
	}
}

// builtinCommandResponse is a small helper for Command handlers that only
// ever produce a direct text response (e.g. "/help").
func builtinCommandResponse(text string) (CommandResult, error) {
	return CommandResult{ResponseText: text}, nil
}
