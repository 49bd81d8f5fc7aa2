package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/soul/internal/approval"
	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/internal/toolset"
	"github.com/agentcore/soul/internal/turn"
	"github.com/agentcore/soul/internal/wire"
	"github.com/agentcore/soul/pkg/message"
)

// fixedTextProvider streams a single fixed assistant reply with no tool
// calls, ending every step loop immediately.
type fixedTextProvider struct{ text string }

func (p fixedTextProvider) Stream(ctx context.Context, req step.CompletionRequest) (<-chan step.Chunk, error) {
	ev := message.TextEvent(p.text)
	ch := make(chan step.Chunk, 2)
	ch <- step.Chunk{Event: &ev}
	ch <- step.Chunk{Done: true}
	close(ch)
	return ch, nil
}

type testHarness struct {
	server *Server
	bus    *wire.Bus
	stdin  *io.PipeWriter
	stdout *bufio.Scanner
	done   chan error
}

func newHarness(t *testing.T, provider step.Provider) *testHarness {
	t.Helper()
	store, err := contextstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := wire.New(nil)
	registry := toolset.NewRegistry()
	dispatcher := toolset.NewDispatcher(registry, nil, "test")
	approvalCoord := approval.New(bus, approval.Policy{})
	stepDriver := step.New(step.Config{RetryBackoff: time.Microsecond}, provider, store, bus, dispatcher, "test-model")
	externalCoord := NewExternalToolCoordinator(bus)

	cmds := turn.NewCommandRegistry()
	turn.RegisterBuiltins(cmds)
	turnDriver := turn.New(turn.Config{}, store, bus, approvalCoord, stepDriver, registry, nil, cmds)

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	srv := New(stdinR, stdoutW, nil, registry, externalCoord, approvalCoord, bus, turnDriver, []string{"help", "compact"})

	h := &testHarness{
		server: srv,
		bus:    bus,
		stdin:  stdinW,
		stdout: bufio.NewScanner(stdoutR),
		done:   make(chan error, 1),
	}
	h.stdout.Buffer(make([]byte, 64*1024), 1024*1024)
	go func() { h.done <- srv.Run(context.Background()) }()
	t.Cleanup(func() { _ = stdinW.Close() })
	return h
}

func (h *testHarness) send(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	_, err = h.stdin.Write(append(raw, '\n'))
	require.NoError(t, err)
}

func (h *testHarness) nextLine(t *testing.T) map[string]any {
	t.Helper()
	require.True(t, h.stdout.Scan(), "expected another outbound line, scanner error: %v", h.stdout.Err())
	var m map[string]any
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &m))
	return m
}

// nextLineMatching reads outbound lines (notifications and responses alike)
// until match accepts one, giving up after 50 lines.
func (h *testHarness) nextLineMatching(t *testing.T, match func(map[string]any) bool) map[string]any {
	t.Helper()
	for i := 0; i < 50; i++ {
		line := h.nextLine(t)
		if match(line) {
			return line
		}
	}
	t.Fatal("no matching outbound line found within 50 lines")
	return nil
}

func TestInitializeReturnsProtocolVersionAndSlashCommands(t *testing.T) {
	h := newHarness(t, fixedTextProvider{text: "hi"})
	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "1", "method": "initialize"})

	resp := h.nextLineMatching(t, func(m map[string]any) bool { return m["result"] != nil })
	result := resp["result"].(map[string]any)
	require.Equal(t, "1.1", result["protocol_version"])
	require.Contains(t, result["slash_commands"], "help")
}

func TestInitializeExternalToolConflict(t *testing.T) {
	h := newHarness(t, fixedTextProvider{text: "hi"})
	require.NoError(t, h.server.registry.Register(toolset.FuncTool{
		BaseTool: toolset.BaseTool{NameValue: "shell", SchemaValue: json.RawMessage(`{"type":"object"}`)},
	}, false))

	h.send(t, map[string]any{
		"jsonrpc": "2.0", "id": "2", "method": "initialize",
		"params": map[string]any{
			"external_tools": []map[string]any{
				{"name": "shell", "description": "d", "schema": map[string]any{"type": "object"}},
			},
		},
	})

	resp := h.nextLineMatching(t, func(m map[string]any) bool { return m["error"] != nil })
	errObj := resp["error"].(map[string]any)
	require.Equal(t, float64(CodeExternalToolConflict), errObj["code"])
}

func TestPromptFinishesAndReturnsStatus(t *testing.T) {
	h := newHarness(t, fixedTextProvider{text: "hello"})
	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "p1", "method": "prompt", "params": map[string]any{"content": "hi"}})

	var finalResp map[string]any
	for i := 0; i < 20; i++ {
		line := h.nextLine(t)
		if line["method"] == "event" {
			continue
		}
		finalResp = line
		break
	}
	require.NotNil(t, finalResp)
	result := finalResp["result"].(map[string]any)
	require.Equal(t, "finished", result["status"])
}

func TestSecondPromptWhileInFlightIsRejected(t *testing.T) {
	h := newHarness(t, blockingStepProvider{})
	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "p1", "method": "prompt", "params": map[string]any{"content": "hi"}})

	// Give the first prompt a moment to register as active before firing
	// the second.
	time.Sleep(20 * time.Millisecond)
	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "p2", "method": "prompt", "params": map[string]any{"content": "hi"}})

	resp := h.nextLineMatching(t, func(m map[string]any) bool {
		return m["id"] == "p2" && m["error"] != nil
	})
	errObj := resp["error"].(map[string]any)
	require.Equal(t, float64(CodeInFlightPrompt), errObj["code"])

	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "c1", "method": "cancel", "params": map[string]any{"id": "p1"}})
}

// blockingStepProvider never completes until its context is cancelled.
type blockingStepProvider struct{}

func (blockingStepProvider) Stream(ctx context.Context, req step.CompletionRequest) (<-chan step.Chunk, error) {
	ch := make(chan step.Chunk, 1)
	go func() {
		<-ctx.Done()
		ch <- step.Chunk{Err: ctx.Err()}
		close(ch)
	}()
	return ch, nil
}

func TestCancelEndsInFlightPromptAsInterrupted(t *testing.T) {
	h := newHarness(t, blockingStepProvider{})
	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "p1", "method": "prompt", "params": map[string]any{"content": "hi"}})
	time.Sleep(20 * time.Millisecond)

	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "c1", "method": "cancel", "params": map[string]any{"id": "p1"}})

	cancelResp := h.nextLineMatching(t, func(m map[string]any) bool { return m["id"] == "c1" })
	require.Equal(t, map[string]any{"ok": true}, cancelResp["result"])

	promptResp := h.nextLineMatching(t, func(m map[string]any) bool { return m["id"] == "p1" && m["result"] != nil })
	result := promptResp["result"].(map[string]any)
	require.Equal(t, "interrupted", result["status"])
	require.Equal(t, "cancelled", result["reason"])
}

func TestApprovalRoundTripThroughRPC(t *testing.T) {
	h := newHarness(t, fixedTextProvider{text: "irrelevant"})

	var decision approval.Decision
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		decision, _, _ = h.server.approvalCoord.Request(context.Background(), "write", "write file", "agent", "tc1")
	}()

	reqLine := h.nextLineMatching(t, func(m map[string]any) bool { return m["method"] == "request" })
	id := reqLine["id"].(string)
	params := reqLine["params"].(map[string]any)
	require.Equal(t, "ApprovalRequest", params["type"])

	h.send(t, map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]any{"decision": "approve"}})

	wg.Wait()
	require.Equal(t, approval.Approve, decision)
}

func TestUnknownResponseIDYieldsInvalidRequestError(t *testing.T) {
	h := newHarness(t, fixedTextProvider{text: "irrelevant"})
	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "ghost", "result": map[string]any{"decision": "approve"}})

	resp := h.nextLineMatching(t, func(m map[string]any) bool { return m["id"] == "ghost" })
	errObj := resp["error"].(map[string]any)
	require.Equal(t, float64(CodeInvalidRequest), errObj["code"])
}

func TestMalformedJSONLineYieldsParseError(t *testing.T) {
	h := newHarness(t, fixedTextProvider{text: "irrelevant"})
	_, err := h.stdin.Write([]byte("{not json\n"))
	require.NoError(t, err)

	resp := h.nextLine(t)
	errObj := resp["error"].(map[string]any)
	require.Equal(t, float64(CodeParseError), errObj["code"])
}

func TestShutdownRespondsOK(t *testing.T) {
	h := newHarness(t, fixedTextProvider{text: "irrelevant"})
	h.send(t, map[string]any{"jsonrpc": "2.0", "id": "s1", "method": "shutdown"})

	resp := h.nextLineMatching(t, func(m map[string]any) bool { return m["id"] == "s1" })
	require.Equal(t, map[string]any{"ok": true}, resp["result"])

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop after shutdown")
	}
}

func TestToValidUTF8PassesThroughCleanInput(t *testing.T) {
	require.Equal(t, []byte("hello"), toValidUTF8([]byte("hello")))
}

func TestToValidUTF8RepairsInvalidBytes(t *testing.T) {
	repaired := toValidUTF8([]byte{0xff, 0xfe, 'h', 'i'})
	require.True(t, strings.Contains(string(repaired), "hi"))
}
