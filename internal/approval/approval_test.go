package approval

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentcore/soul/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestYoloAutoApprovesWithoutWireRoundTrip(t *testing.T) {
	bus := wire.New(nil)
	sub := bus.Subscribe(8)
	c := New(bus, Policy{Yolo: true})

	decision, _, err := c.Request(context.Background(), "write", "write file", "agent", "tc1")
	require.NoError(t, err)
	require.Equal(t, Approve, decision)

	select {
	case <-sub.C():
		t.Fatal("expected no ApprovalRequest envelope under Yolo policy")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApprovalRendezvous(t *testing.T) {
	bus := wire.New(nil)
	sub := bus.Subscribe(8)
	c := New(bus, Policy{})

	done := make(chan struct{})
	var decision Decision
	go func() {
		decision, _, _ = c.Request(context.Background(), "write", "write file", "agent", "tc1")
		close(done)
	}()

	env := <-sub.C()
	require.Equal(t, wire.RequestApprovalRequest, env.Type)
	var payload wire.ApprovalRequestPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.NotEmpty(t, payload.ID)

	c.Resolve(payload.ID, Approve, "")
	<-done
	require.Equal(t, Approve, decision)
}

func TestApproveForSessionMemoizesFingerprint(t *testing.T) {
	bus := wire.New(nil)
	sub := bus.Subscribe(8)
	c := New(bus, Policy{})

	go func() {
		env := <-sub.C()
		var payload wire.ApprovalRequestPayload
		_ = json.Unmarshal(env.Payload, &payload)
		c.Resolve(payload.ID, ApproveForSession, "")
	}()
	decision, _, err := c.Request(context.Background(), "write", "write file", "agent", "tc1")
	require.NoError(t, err)
	require.Equal(t, Approve, decision)

	// Second request for the same (sender, action) short-circuits without
	// any wire traffic.
	decision2, _, err := c.Request(context.Background(), "write", "write file", "agent", "tc2")
	require.NoError(t, err)
	require.Equal(t, Approve, decision2)
}

func TestCancellationResolvesReject(t *testing.T) {
	bus := wire.New(nil)
	bus.Subscribe(8)
	c := New(bus, Policy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision, reason, err := c.Request(ctx, "write", "write file", "agent", "tc1")
	require.NoError(t, err)
	require.Equal(t, Reject, decision)
	require.Equal(t, "cancelled", reason)
}

func TestCancelAllResolvesInFlightRequests(t *testing.T) {
	bus := wire.New(nil)
	bus.Subscribe(8)
	c := New(bus, Policy{})

	done := make(chan struct{})
	var decision Decision
	var reason string
	go func() {
		decision, reason, _ = c.Request(context.Background(), "write", "write file", "agent", "tc1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	c.CancelAll("cancelled")
	<-done
	require.Equal(t, Reject, decision)
	require.Equal(t, "cancelled", reason)
}

func TestResetSessionClearsMemoizedFingerprint(t *testing.T) {
	bus := wire.New(nil)
	sub := bus.Subscribe(8)
	c := New(bus, Policy{})

	go func() {
		env := <-sub.C()
		var payload wire.ApprovalRequestPayload
		_ = json.Unmarshal(env.Payload, &payload)
		c.Resolve(payload.ID, ApproveForSession, "")
	}()
	decision, _, err := c.Request(context.Background(), "write", "write file", "agent", "tc1")
	require.NoError(t, err)
	require.Equal(t, Approve, decision)

	c.ResetSession()

	go func() {
		env := <-sub.C()
		var payload wire.ApprovalRequestPayload
		_ = json.Unmarshal(env.Payload, &payload)
		c.Resolve(payload.ID, Reject, "")
	}()
	decision2, _, err := c.Request(context.Background(), "write", "write file", "agent", "tc2")
	require.NoError(t, err)
	require.Equal(t, Reject, decision2)
}

func TestDenylistBeatsAllowlist(t *testing.T) {
	bus := wire.New(nil)
	bus.Subscribe(8)
	c := New(bus, Policy{Denylist: []string{"rm"}, Allowlist: []string{"*"}})

	decision, _, err := c.Request(context.Background(), "rm", "remove file", "agent", "tc1")
	require.NoError(t, err)
	require.Equal(t, Reject, decision)
}
