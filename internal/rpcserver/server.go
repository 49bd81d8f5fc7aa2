package rpcserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/agentcore/soul/internal/approval"
	"github.com/agentcore/soul/internal/toolset"
	"github.com/agentcore/soul/internal/turn"
	"github.com/agentcore/soul/internal/wire"
)

const protocolVersion = "1.1"

// externalToolSpec is one entry of initialize's externally-registered tool
// list (spec §4.10).
type externalToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

type initializeParams struct {
	ExternalTools []externalToolSpec `json:"external_tools,omitempty"`
}

type promptParams struct {
	Content json.RawMessage `json:"content"`
}

type cancelParams struct {
	ID json.RawMessage `json:"id"`
}

// Server is the line-delimited JSON-RPC server (spec §4.10). One Server
// serves one session's worth of a single turn driver.
type Server struct {
	in     *bufio.Scanner
	out    io.Writer
	outMu  sync.Mutex
	logger *slog.Logger

	registry      *toolset.Registry
	externalCoord *ExternalToolCoordinator
	approvalCoord *approval.Coordinator
	bus           *wire.Bus
	turnDriver    *turn.Driver
	slashCommands []string

	mu              sync.Mutex
	activeID        string
	activeCancel    context.CancelFunc
	sentRequests    map[string]string // outbound request id -> "approval" | "toolcall"
	seenFirstPrompt bool
	shutdown        bool
}

// New builds a Server reading requests from in and writing responses/
// notifications to out.
func New(
	in io.Reader,
	out io.Writer,
	logger *slog.Logger,
	registry *toolset.Registry,
	externalCoord *ExternalToolCoordinator,
	approvalCoord *approval.Coordinator,
	bus *wire.Bus,
	turnDriver *turn.Driver,
	slashCommands []string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Server{
		in:            scanner,
		out:           out,
		logger:        logger,
		registry:      registry,
		externalCoord: externalCoord,
		approvalCoord: approvalCoord,
		bus:           bus,
		turnDriver:    turnDriver,
		slashCommands: slashCommands,
		sentRequests:  make(map[string]string),
	}
}

// Run starts the bus-forwarding subscriber and reads requests until EOF or
// shutdown. It never returns an error for malformed input (spec §4.10:
// "never crash the server on malformed input"); it returns nil on a clean
// EOF or shutdown, or a scanner error if the underlying reader faults.
func (s *Server) Run(ctx context.Context) error {
	sub := s.bus.Subscribe(wire.DefaultSubscriberBuffer)
	defer s.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go s.forwardWire(sub, done)
	defer func() { <-done }()

	for s.in.Scan() {
		line := toValidUTF8(s.in.Bytes())
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		s.handleLine(ctx, line)

		s.mu.Lock()
		stop := s.shutdown
		s.mu.Unlock()
		if stop {
			break
		}
	}
	return s.in.Err()
}

// toValidUTF8 lossily repairs invalid byte sequences instead of erroring
// (spec §4.10: "UTF-8 with lossy decoding for invalid byte sequences").
func toValidUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	return bytes.ToValidUTF8(b, []byte("�"))
}

// forwardWire projects every wire envelope onto the JSON-RPC transport: a
// bus request (ApprovalRequest/ToolCallRequest) becomes an id-bearing
// outbound JSON-RPC request so the client's reply can be correlated by id
// (spec §8: "a response with an unknown id ... yields a -32600 error
// reply" presumes exactly this correlation); everything else becomes a
// plain "event" notification.
func (s *Server) forwardWire(sub *wire.Subscription, done chan struct{}) {
	defer close(done)
	for env := range sub.C() {
		switch env.Type {
		case wire.RequestApprovalRequest:
			var p wire.ApprovalRequestPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			s.trackOutboundRequest(p.ID, "approval")
			s.writeRequest(p.ID, env)
		case wire.RequestToolCallRequest:
			var p wire.ToolCallRequestPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			s.trackOutboundRequest(p.ID, "toolcall")
			s.writeRequest(p.ID, env)
		default:
			s.writeNotification("event", env)
		}
	}
}

func (s *Server) trackOutboundRequest(id, kind string) {
	s.mu.Lock()
	s.sentRequests[id] = kind
	s.mu.Unlock()
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var probe struct {
		Method *string         `json:"method"`
		ID     json.RawMessage `json:"id,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
		Error  *rpcError       `json:"error,omitempty"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		s.writeResponse(nil, nil, newError(CodeParseError, err.Error()))
		return
	}

	if probe.Method == nil {
		s.handleInboundResponse(probe.ID, probe.Result)
		return
	}

	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResponse(nil, nil, newError(CodeParseError, err.Error()))
		return
	}
	s.handleRequest(ctx, req)
}

// handleInboundResponse resolves an approval or external-tool-call reply by
// the id we sent it out under (spec §8).
func (s *Server) handleInboundResponse(id json.RawMessage, result json.RawMessage) {
	idStr := rawID(id)

	s.mu.Lock()
	kind, ok := s.sentRequests[idStr]
	if ok {
		delete(s.sentRequests, idStr)
	}
	s.mu.Unlock()

	if !ok {
		s.writeResponse(id, nil, newError(CodeInvalidRequest, fmt.Sprintf("unknown response id %q", idStr)))
		return
	}

	switch kind {
	case "approval":
		var p struct {
			Decision string `json:"decision"`
			Reason   string `json:"reason,omitempty"`
		}
		if err := json.Unmarshal(result, &p); err != nil {
			return
		}
		s.approvalCoord.Resolve(idStr, approval.Decision(p.Decision), p.Reason)
	case "toolcall":
		var p ToolCallResultPayload
		if err := json.Unmarshal(result, &p); err != nil {
			return
		}
		p.ID = idStr
		s.externalCoord.Resolve(p)
	}
}

func (s *Server) handleRequest(ctx context.Context, req request) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "prompt":
		s.handlePrompt(ctx, req)
	case "cancel":
		s.handleCancel(req)
	case "shutdown":
		s.handleShutdown(req)
	default:
		s.writeResponse(req.ID, nil, newError(CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (s *Server) handleInitialize(req request) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeResponse(req.ID, nil, newError(CodeInvalidParams, err.Error()))
			return
		}
	}

	for _, spec := range params.ExternalTools {
		tool := ExternalTool{
			NameValue:        spec.Name,
			DescriptionValue: spec.Description,
			SchemaValue:      spec.Schema,
			Coordinator:      s.externalCoord,
		}
		if err := s.registry.Register(tool, true); err != nil {
			var conflict *toolset.ExternalToolConflict
			if asExternalToolConflict(err, &conflict) {
				s.writeResponse(req.ID, nil, newError(CodeExternalToolConflict, conflict.Error()))
				return
			}
			s.writeResponse(req.ID, nil, newError(CodeInvalidParams, err.Error()))
			return
		}
	}

	s.writeResponse(req.ID, map[string]any{
		"protocol_version": protocolVersion,
		"capabilities":     map[string]any{},
		"slash_commands":   s.slashCommands,
	}, nil)
}

func asExternalToolConflict(err error, target **toolset.ExternalToolConflict) bool {
	conflict, ok := err.(*toolset.ExternalToolConflict)
	if !ok {
		return false
	}
	*target = conflict
	return true
}

func (s *Server) handlePrompt(ctx context.Context, req request) {
	s.mu.Lock()
	if s.activeID != "" {
		s.mu.Unlock()
		s.writeResponse(req.ID, nil, newError(CodeInFlightPrompt, "a prompt is already in flight"))
		return
	}
	idStr := rawID(req.ID)
	s.activeID = idStr
	promptCtx, cancel := context.WithCancel(ctx)
	s.activeCancel = cancel
	isNew := !s.seenFirstPrompt
	s.seenFirstPrompt = true
	s.mu.Unlock()

	var params promptParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	userInput := contentToText(params.Content)

	go func() {
		result := s.turnDriver.RunTurn(promptCtx, idStr, userInput, isNew)

		s.mu.Lock()
		s.activeID = ""
		s.activeCancel = nil
		s.mu.Unlock()

		payload := map[string]any{"status": result.Status}
		if result.Reason != "" {
			payload["reason"] = result.Reason
		}
		s.writeResponse(req.ID, payload, nil)
	}()
}

// contentToText accepts either a bare JSON string or a content-part array
// and reduces it to plain text for the turn driver; structured content
// parts beyond text are out of scope for this build's prompt surface.
func contentToText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		out := ""
		for _, p := range parts {
			out += p.Text
		}
		return out
	}
	return ""
}

func (s *Server) handleCancel(req request) {
	var params cancelParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	targetID := rawID(params.ID)

	s.mu.Lock()
	if s.activeID != "" && s.activeID == targetID && s.activeCancel != nil {
		s.activeCancel()
	}
	s.mu.Unlock()

	s.writeResponse(req.ID, map[string]any{"ok": true}, nil)
}

func (s *Server) handleShutdown(req request) {
	s.bus.Shutdown()
	s.writeResponse(req.ID, map[string]any{"ok": true}, nil)
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.Trim(raw, `"`))
}

func (s *Server) writeResponse(id json.RawMessage, result any, rpcErr *rpcError) {
	resp := response{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}
	s.writeLine(resp)
}

func (s *Server) writeRequest(id string, env wire.Envelope) {
	idJSON, _ := json.Marshal(id)
	req := request{JSONRPC: "2.0", ID: idJSON, Method: "request", Params: mustMarshal(env)}
	s.writeLine(req)
}

func (s *Server) writeNotification(method string, payload any) {
	s.writeLine(notification{JSONRPC: "2.0", Method: method, Params: payload})
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}

func (s *Server) writeLine(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("rpcserver: marshal outbound message", "error", err)
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := s.out.Write(raw); err != nil {
		s.logger.Error("rpcserver: write outbound message", "error", err)
		return
	}
	_, _ = s.out.Write([]byte("\n"))
}
