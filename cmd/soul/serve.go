package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcore/soul/internal/approval"
	"github.com/agentcore/soul/internal/compaction"
	"github.com/agentcore/soul/internal/config"
	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/internal/llm"
	"github.com/agentcore/soul/internal/observability"
	"github.com/agentcore/soul/internal/rpcserver"
	"github.com/agentcore/soul/internal/session"
	"github.com/agentcore/soul/internal/skills"
	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/internal/toolset"
	"github.com/agentcore/soul/internal/toolset/dmail"
	"github.com/agentcore/soul/internal/turn"
	"github.com/agentcore/soul/internal/wire"
	"github.com/agentcore/soul/pkg/message"
)

// runServer implements the wire-server run mode (spec §6): load config,
// resolve or open a session, wire every core package together, then serve
// the JSON-RPC protocol on stdin/stdout until shutdown or a signal.
//
// Grounded on the teacher's runServe (cmd/nexus/handlers_serve.go): the
// config-load-then-construct-then-signal.NotifyContext-then-serve shape is
// kept, retargeted from gateway.NewManagedServer's channel/HTTP servers onto
// this module's session/turn/rpcserver wiring.
func runServer(cmd *cobra.Command, f *flags) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	workDir, err := resolveWorkDir(f.workDir)
	if err != nil {
		return fmt.Errorf("soul: resolve work dir: %w", err)
	}

	shareDir, err := config.ResolveShareDir(shareDirFlag(f))
	if err != nil {
		return fmt.Errorf("soul: resolve share dir: %w", err)
	}
	if _, err := config.EnsureShareDir(shareDir); err != nil {
		return fmt.Errorf("soul: ensure share dir: %w", err)
	}

	if migratedTo, err := config.MigrateLegacy(shareDir); err != nil {
		return fmt.Errorf("soul: migrate legacy config: %w", err)
	} else if migratedTo != "" {
		slog.Info("soul: migrated legacy config.json", "to", migratedTo)
	}

	configPath := f.configFile
	if configPath == "" {
		configPath = filepath.Join(shareDir, config.CurrentConfigName)
	}
	cfg, err := loadOrDefaultConfig(configPath)
	if err != nil {
		return fmt.Errorf("soul: load config: %w", err)
	}
	applyFlagOverrides(cfg, f)

	logger := observability.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	tracer, shutdownTracer := observability.NewTracer(cfg.Observability.Tracing)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("soul: tracer shutdown", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("soul: init metrics: %w", err)
	}

	sessionID, isNewConversation, err := session.Resolve(shareDir, workDir, f.session, f.cont)
	if err != nil {
		return fmt.Errorf("soul: resolve session: %w", err)
	}
	logger.Info("soul: resolved session", "session_id", sessionID, "work_dir", workDir, "new", isNewConversation)

	sess, err := session.Open(shareDir, sessionID, workDir, logger)
	if err != nil {
		return fmt.Errorf("soul: open session: %w", err)
	}
	metrics.SessionOpened(ctx)
	defer func() {
		metrics.SessionClosed(context.Background())
		if err := sess.Close(); err != nil {
			logger.Error("soul: close session", "error", err)
		}
	}()

	observer := newBusObserver(tracer, metrics, logger)
	observerSub := sess.Bus.Subscribe(wire.DefaultSubscriberBuffer)
	go observer.run(ctx, observerSub)
	defer sess.Bus.Unsubscribe(observerSub)

	sweeper, err := session.NewSweeper(shareDir, cfg.Session.RotationRetention, cfg.Session.RotationSweepCron, logger)
	if err != nil {
		return fmt.Errorf("soul: build rotation sweeper: %w", err)
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if err := seedSystemPrompt(sess, f, isNewConversation); err != nil {
		return fmt.Errorf("soul: seed system prompt: %w", err)
	}

	llmRegistry, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("soul: init llm registry: %w", err)
	}

	model := f.model
	if model == "" {
		model = cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel
	}
	contextWindow := llm.ResolveContextWindow(model, cfg.LLM.Bedrock.DefaultContextWindow)

	approvalCoord := approval.New(sess.Bus, cfg.Tools.ApprovalPolicy())

	registry := toolset.NewRegistry()
	if err := registry.Register(dmail.New(sess), false); err != nil {
		return fmt.Errorf("soul: register send_dmail: %w", err)
	}
	dispatcher := toolset.NewDispatcher(registry, approvalCoord, sessionID)

	stepCfg := step.Config{
		MaxRetries: cfg.Session.MaxRetriesPerStep,
	}
	stepDriver := step.New(stepCfg, llmRegistry.Chain(), sess.Store, sess.Bus, dispatcher, model)

	compactionMgr := compaction.New(
		cfg.Compaction.CompactionManagerConfig(contextWindow),
		sess.Store, sess.Bus, llmRegistry.ChainSummarizer(), logger,
	)

	commands := turn.NewCommandRegistry()
	turn.RegisterBuiltins(commands)

	skillsDir := f.skillsDir
	if skillsDir == "" {
		skillsDir = cfg.Skills.Dir
	}
	skillMgr := skills.NewManager(skillsDir, logger)
	if err := skillMgr.Discover(ctx); err != nil {
		logger.Warn("soul: skill discovery", "error", err)
	}
	skillMgr.RegisterInto(commands.RegisterSkill)
	if err := skillMgr.Watch(ctx, time.Second); err != nil {
		logger.Warn("soul: skill watch", "error", err)
	}
	defer skillMgr.Close()

	turnCfg := turn.Config{
		MaxStepsPerTurn:    cfg.Session.MaxStepsPerTurn,
		FlowMode:           cfg.Session.FlowMode,
		MaxRalphIterations: cfg.Session.MaxRalphIterations,
	}
	turnDriver := turn.New(turnCfg, sess.Store, sess.Bus, approvalCoord, stepDriver, registry, compactionMgr, commands)

	externalCoord := rpcserver.NewExternalToolCoordinator(sess.Bus)
	server := rpcserver.New(os.Stdin, os.Stdout, logger, registry, externalCoord, approvalCoord, sess.Bus, turnDriver, commands.Names())

	now := time.Now()
	if err := session.Touch(shareDir, sessionID, workDir, now); err != nil {
		logger.Warn("soul: touch session metadata", "error", err)
	}

	logger.Info("soul: serving wire protocol on stdio", "session_id", sessionID)
	return server.Run(ctx)
}

func resolveWorkDir(workDir string) (string, error) {
	if strings.TrimSpace(workDir) == "" {
		return os.Getwd()
	}
	return filepath.Abs(workDir)
}

func shareDirFlag(f *flags) string {
	if f.config != "" {
		return f.config
	}
	return "~/.soul"
}

// loadOrDefaultConfig loads configPath, falling back to Defaults() when the
// file does not exist yet: a first run should not require the caller to
// have hand-written config.toml in advance.
func loadOrDefaultConfig(configPath string) (*config.Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			cfg := config.Defaults()
			return &cfg, nil
		}
		return nil, err
	}
	return config.Load(configPath)
}

// applyFlagOverrides layers CLI flags over the loaded config, for the
// per-run overrides spec §6's CLI surface names. Flags win over config.toml
// exactly for the run they're passed on; nothing is persisted.
func applyFlagOverrides(cfg *config.Config, f *flags) {
	if f.yolo {
		cfg.Tools.Yolo = true
	}
	if f.skillsDir != "" {
		cfg.Skills.Dir = f.skillsDir
	}
	if f.maxStepsPerTurn > 0 {
		cfg.Session.MaxStepsPerTurn = f.maxStepsPerTurn
	}
	if f.maxRetriesPerStep > 0 {
		cfg.Session.MaxRetriesPerStep = f.maxRetriesPerStep
	}
	if f.maxRalphIterations > 0 {
		cfg.Session.MaxRalphIterations = f.maxRalphIterations
	}
}

// seedSystemPrompt appends --agent/--agent-file's content as the session's
// first message, only for a brand-new conversation: a resumed session's
// system message, if any, is already the first entry in context.jsonl.
func seedSystemPrompt(sess *session.Session, f *flags, isNewConversation bool) error {
	if !isNewConversation {
		return nil
	}
	prompt, err := resolveAgentPrompt(f)
	if err != nil {
		return err
	}
	if prompt == "" {
		return nil
	}
	return sess.Store.Append(contextstore.MessageEntry(message.Text(message.RoleSystem, prompt)))
}

func resolveAgentPrompt(f *flags) (string, error) {
	if f.agentFile != "" {
		data, err := os.ReadFile(f.agentFile)
		if err != nil {
			return "", fmt.Errorf("read --agent-file %s: %w", f.agentFile, err)
		}
		return string(data), nil
	}
	return f.agent, nil
}
