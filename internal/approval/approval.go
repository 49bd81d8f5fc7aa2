// Package approval implements the approval coordinator (spec §4.4): a
// request/response rendezvous over the wire bus, combined with an
// auto-approval policy engine. The policy engine (allow/deny lists, safe
// bins, skill allowlist) is grounded on the teacher's ApprovalChecker
// (internal/agent/approval.go); it sits behind the single "Yolo" policy
// flag the spec names, per SPEC_FULL.md's supplemented-features note. The
// wire rendezvous itself (suspend until a matching ApprovalResponse) has no
// teacher equivalent — ApprovalChecker resolves synchronously — and is new
// code built to the spec's own contract.
package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/agentcore/soul/internal/wire"
)

// Decision is the outcome of an approval request (spec §4.4).
type Decision string

const (
	Approve            Decision = "approve"
	ApproveForSession  Decision = "approve_for_session"
	Reject             Decision = "reject"
	RejectedWithReason Decision = "rejected_with_reason"
)

// Policy configures auto-approval, grounded on the teacher's ApprovalPolicy
// (internal/agent/approval.go) but folded behind the spec's single "Yolo"
// concept: Yolo auto-approves everything; short of that, allow/deny/safe-bin
// pattern lists let the coordinator resolve a request without a wire
// round-trip at all.
type Policy struct {
	// Yolo auto-approves every request (spec §4.4).
	Yolo bool

	// Denylist patterns always auto-reject, checked before Allowlist.
	Denylist []string

	// Allowlist patterns auto-approve.
	Allowlist []string

	// SafeBins are action names considered safe to auto-approve (e.g.
	// read-only shell commands): cat, head, tail, wc, sort, uniq, grep.
	SafeBins []string
}

// DefaultPolicy mirrors the teacher's DefaultApprovalPolicy safe-bin set.
func DefaultPolicy() Policy {
	return Policy{
		SafeBins: []string{"cat", "head", "tail", "wc", "sort", "uniq", "grep"},
	}
}

// decide returns an auto-decision and true if the policy resolves the
// action without consulting the wire; otherwise false (caller must
// rendezvous).
func (p Policy) decide(action string) (Decision, bool) {
	if p.Yolo {
		return Approve, true
	}
	if matchesAny(p.Denylist, action) {
		return Reject, true
	}
	if matchesAny(p.Allowlist, action) {
		return Approve, true
	}
	if matchesAny(p.SafeBins, action) {
		return Approve, true
	}
	return "", false
}

func matchesAny(patterns []string, action string) bool {
	for _, pattern := range patterns {
		if matchesPattern(pattern, action) {
			return true
		}
	}
	return false
}

// matchesPattern supports exact match, a bare "*" wildcard, "mcp:*", and
// prefix*/*suffix globs, mirroring the teacher's matchesPattern/
// matchToolPattern helpers.
func matchesPattern(pattern, action string) bool {
	if pattern == "" || action == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == "mcp:*" {
		return strings.HasPrefix(action, "mcp:")
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(action, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(action, strings.TrimPrefix(pattern, "*"))
	}
	return pattern == action
}

// pendingRequest is an in-flight wire rendezvous.
type pendingRequest struct {
	resultCh chan result
}

type result struct {
	decision Decision
	reason   string
}

// Coordinator is the approval coordinator (spec §4.4).
type Coordinator struct {
	bus    *wire.Bus
	policy Policy

	// fpMu guards sessionApproved; per spec §5 this is a short critical
	// section with no async suspension while held.
	fpMu            sync.Mutex
	sessionApproved map[string]bool

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest
}

// New creates a coordinator bound to bus with the given policy.
func New(bus *wire.Bus, policy Policy) *Coordinator {
	return &Coordinator{
		bus:             bus,
		policy:          policy,
		sessionApproved: make(map[string]bool),
		pending:         make(map[string]*pendingRequest),
	}
}

func fingerprint(sender, action string) string { return sender + "|" + action }

// Request implements the spec's request() operation.
func (c *Coordinator) Request(ctx context.Context, action, description, sender, toolCallID string) (Decision, string, error) {
	fp := fingerprint(sender, action)

	c.fpMu.Lock()
	approved := c.sessionApproved[fp]
	c.fpMu.Unlock()
	if approved {
		return Approve, "", nil
	}

	if d, handled := c.policy.decide(action); handled {
		return d, "", nil
	}

	id := uuid.NewString()
	pr := &pendingRequest{resultCh: make(chan result, 1)}

	c.pendingMu.Lock()
	c.pending[id] = pr
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.bus.Emit(wire.RequestApprovalRequest, wire.ApprovalRequestPayload{
		ID:          id,
		Action:      action,
		Description: description,
		Sender:      sender,
		ToolCallID:  toolCallID,
	}); err != nil {
		return Reject, "", fmt.Errorf("approval: emit request: %w", err)
	}

	select {
	case <-ctx.Done():
		return Reject, "cancelled", nil
	case r := <-pr.resultCh:
		if r.decision == ApproveForSession {
			c.fpMu.Lock()
			c.sessionApproved[fp] = true
			c.fpMu.Unlock()
			return Approve, "", nil
		}
		return r.decision, r.reason, nil
	}
}

// Resolve delivers a reply to an in-flight request; called when an
// ApprovalResponse envelope (or its legacy ApprovalRequestResolved alias)
// arrives on the wire's inbound side. Resolving an unknown or already-
// resolved id is a no-op.
func (c *Coordinator) Resolve(id string, decision Decision, reason string) {
	c.pendingMu.Lock()
	pr, ok := c.pending[id]
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case pr.resultCh <- result{decision: decision, reason: reason}:
	default:
	}
}

// ResetSession clears the memoized approve_for_session fingerprints (spec
// §4.9: "clear transient approval state on a new conversation"). It does
// not touch in-flight requests; callers only reset between conversations,
// never mid-turn.
func (c *Coordinator) ResetSession() {
	c.fpMu.Lock()
	defer c.fpMu.Unlock()
	c.sessionApproved = make(map[string]bool)
}

// CancelAll resolves every in-flight request to reject with the given
// reason (spec §4.4: "On turn cancellation any in-flight request resolves
// to reject with reason cancelled").
func (c *Coordinator) CancelAll(reason string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for _, pr := range c.pending {
		select {
		case pr.resultCh <- result{decision: Reject, reason: reason}:
		default:
		}
	}
}
