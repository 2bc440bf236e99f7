package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/calicobot/calico/pkg/bus"
	"github.com/calicobot/calico/pkg/config"
	"github.com/calicobot/calico/pkg/cron"
	"github.com/calicobot/calico/pkg/memory"
	"github.com/calicobot/calico/pkg/providers"
	"github.com/calicobot/calico/pkg/session"
	"github.com/calicobot/calico/pkg/tools"
	"go.uber.org/zap"
)

const reflectPrompt = "Reflect on the results and decide next steps."

const helpText = "🐈 calico commands:\n/new — Start a new conversation\n/help — Show available commands"

// AgentLoop is the orchestration engine: it pulls inbound messages off
// the bus, runs the reason/act cycle against the provider, executes
// requested tools, and emits the reply.
type AgentLoop struct {
	Bus           *bus.MessageBus
	Provider      providers.LLMProvider
	Workspace     string
	Model         string
	MaxIterations int
	MemoryWindow  int
	Config        *config.Config
	CronService   *cron.Service

	Context   *ContextBuilder
	Sessions  *session.Manager
	Memory    *memory.Store
	Tools     *tools.Registry
	Subagents *SubagentManager

	sessionLocks map[string]*sync.Mutex
	lockMu       sync.Mutex
	stopChan     chan struct{}
	stopOnce     sync.Once
	log          *zap.SugaredLogger
}

// NewAgentLoop wires the loop and its default tool set.
func NewAgentLoop(
	messageBus *bus.MessageBus,
	provider providers.LLMProvider,
	workspace string,
	cfg *config.Config,
	cronService *cron.Service,
	log *zap.SugaredLogger,
) (*AgentLoop, error) {
	model := cfg.Agents.Defaults.Model
	if model == "" {
		model = provider.GetDefaultModel()
	}
	maxIterations := cfg.Agents.Defaults.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}
	memoryWindow := cfg.Agents.Defaults.MemoryWindow
	if memoryWindow <= 0 {
		memoryWindow = 50
	}

	store, err := memory.NewStore(workspace)
	if err != nil {
		return nil, err
	}

	loop := &AgentLoop{
		Bus:           messageBus,
		Provider:      provider,
		Workspace:     workspace,
		Model:         model,
		MaxIterations: maxIterations,
		MemoryWindow:  memoryWindow,
		Config:        cfg,
		CronService:   cronService,
		Context:       NewContextBuilder(workspace, store, log),
		Sessions:      session.NewManager(workspace, log),
		Memory:        store,
		Tools:         tools.NewRegistry(log),
		Subagents:     NewSubagentManager(provider, workspace, messageBus, model, cfg, log),
		sessionLocks:  make(map[string]*sync.Mutex),
		stopChan:      make(chan struct{}),
		log:           log,
	}

	loop.registerDefaultTools()
	return loop, nil
}

func (l *AgentLoop) registerDefaultTools() {
	allowedDir := ""
	if l.Config.Tools.Files.RestrictToWorkspace {
		allowedDir = l.Workspace
	}

	l.Tools.Register(tools.NewReadFileTool(allowedDir))
	l.Tools.Register(tools.NewWriteFileTool(allowedDir))
	l.Tools.Register(tools.NewAppendFileTool(allowedDir))
	l.Tools.Register(tools.NewEditFileTool(allowedDir))
	l.Tools.Register(tools.NewListDirTool(allowedDir))

	l.Tools.Register(tools.NewExecTool(l.Config.Tools.Exec.Timeout, l.Workspace, l.Config.Tools.Exec.RestrictToWorkspace))

	l.Tools.Register(tools.NewWebSearchTool(l.Config.Tools.Web.Search.APIKey, l.Config.Tools.Web.Search.MaxResults))
	l.Tools.Register(tools.NewWebFetchTool(50000))

	l.Tools.Register(tools.NewSpawnTool(l.Subagents))

	if l.CronService != nil {
		l.Tools.Register(tools.NewCronTool(l.CronService))
	}

	l.Tools.Register(tools.NewMessageTool(l.Bus))
}

// Run consumes inbound messages until the context is cancelled or Stop
// is called. Each message is processed on its own goroutine; a
// per-session lock keeps one conversation strictly ordered.
func (l *AgentLoop) Run(ctx context.Context) error {
	l.log.Info("agent loop started")
	inbound := l.Bus.ConsumeInbound()

	for {
		select {
		case msg := <-inbound:
			go l.handle(ctx, msg)
		case <-l.stopChan:
			l.log.Info("agent loop stopping")
			return nil
		case <-ctx.Done():
			l.log.Info("agent loop stopping")
			return ctx.Err()
		}
	}
}

// Stop requests a cooperative shutdown.
func (l *AgentLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

// handle is the outermost fault boundary. Whatever escapes the state
// machine becomes an apologetic reply, never a crash.
func (l *AgentLoop) handle(ctx context.Context, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorw("panic processing message", "channel", msg.Channel, "panic", r)
			l.Bus.PublishOutbound(bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: "Sorry, something went wrong while processing your message.",
			})
		}
	}()

	if err := l.processMessage(ctx, msg); err != nil {
		l.log.Errorw("error processing message", "channel", msg.Channel, "error", err)
		l.Bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: fmt.Sprintf("Sorry, I encountered an error: %v", err),
		})
	}
}

func (l *AgentLoop) sessionLock(key string) *sync.Mutex {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	lock, ok := l.sessionLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.sessionLocks[key] = lock
	}
	return lock
}

func (l *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage) error {
	if msg.Channel == "system" {
		return l.processSystemMessage(ctx, msg)
	}

	preview := msg.Content
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	l.log.Infow("processing message", "channel", msg.Channel, "sender", msg.SenderID, "preview", preview)

	sessionKey := msg.SessionKey()
	lock := l.sessionLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	sess := l.Sessions.GetOrCreate(sessionKey)

	switch strings.ToLower(strings.TrimSpace(msg.Content)) {
	case "/new":
		l.Consolidate(ctx, sess, true)
		if err := l.Sessions.Clear(sessionKey); err != nil {
			l.log.Warnw("failed to clear session", "key", sessionKey, "error", err)
		}
		l.Bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: "🐈 New session started. Memory consolidated.",
		})
		return nil
	case "/help":
		l.Bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: helpText,
		})
		return nil
	}

	if len(sess.Entries) > l.MemoryWindow {
		l.Consolidate(ctx, sess, false)
	}

	l.setToolContexts(msg.Channel, msg.ChatID)

	turns := l.Context.BuildTurns(sess.History(0), msg.Content, msg.Media, msg.Channel, msg.ChatID)
	finalContent, toolsUsed := l.runReactLoop(ctx, turns, l.Tools, l.MaxIterations)

	preview = finalContent
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	l.log.Infow("response ready", "channel", msg.Channel, "sender", msg.SenderID, "preview", preview)

	sess.AddTurn("user", msg.Content, nil)
	sess.AddTurn("assistant", finalContent, toolsUsed)
	if err := l.Sessions.Save(sess); err != nil {
		l.log.Errorw("failed to save session", "key", sessionKey, "error", err)
	}

	l.Bus.PublishOutbound(bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  finalContent,
		Metadata: msg.Metadata,
	})
	return nil
}

// runReactLoop executes the bounded reason/act cycle over a prepared
// turn list and returns the final reply plus the tools it used.
func (l *AgentLoop) runReactLoop(ctx context.Context, turns []providers.Turn, registry *tools.Registry, maxIterations int) (string, []string) {
	var finalContent string
	var toolsUsed []string
	reflect := l.Config.Agents.Defaults.InterleavedThinkingEnabled()

	iteration := 0
	for iteration < maxIterations {
		iteration++
		select {
		case <-l.stopChan:
			return "Processing interrupted by shutdown.", toolsUsed
		default:
		}

		response, err := l.Provider.Chat(ctx, turns, toolDefinitions(registry), l.Model)
		if err != nil {
			l.log.Errorw("inference error", "error", err)
			return fmt.Sprintf("Sorry, I hit an inference error: %v", err), toolsUsed
		}

		if !response.HasToolCalls() {
			finalContent = response.Content
			break
		}

		turns = append(turns, providers.Turn{
			Role:      "assistant",
			Content:   response.Content,
			Reasoning: response.Reasoning,
			ToolCalls: response.ToolCalls,
		})

		for _, tc := range response.ToolCalls {
			toolsUsed = append(toolsUsed, tc.Name)
			l.log.Infow("tool call", "name", tc.Name)
			result := registry.Execute(ctx, tc.Name, tc.Arguments)
			turns = append(turns, providers.Turn{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}

		if reflect {
			turns = append(turns, providers.Turn{Role: "user", Content: reflectPrompt})
		}
	}

	if finalContent == "" {
		if iteration >= maxIterations {
			finalContent = fmt.Sprintf("Reached %d iterations without completion.", maxIterations)
		} else {
			finalContent = "I've completed processing but have no response to give."
		}
	}
	return finalContent, toolsUsed
}

func (l *AgentLoop) setToolContexts(channel, chatID string) {
	if tool, ok := l.Tools.Get("message"); ok {
		if mt, ok := tool.(*tools.MessageTool); ok {
			mt.SetContext(channel, chatID)
		}
	}
	if tool, ok := l.Tools.Get("spawn"); ok {
		if st, ok := tool.(*tools.SpawnTool); ok {
			st.SetContext(channel, chatID)
		}
	}
	if tool, ok := l.Tools.Get("cron"); ok {
		if ct, ok := tool.(*tools.CronTool); ok {
			ct.SetContext(channel, chatID)
		}
	}
}

// ProcessDirect runs one message through the loop without the bus,
// for CLI calls and scheduled jobs. It carries the same fault boundary
// as handle: a panic anywhere below becomes an error, never a crash in
// the caller's goroutine.
func (l *AgentLoop) ProcessDirect(ctx context.Context, content, channel, chatID string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorw("panic in direct processing", "channel", channel, "panic", r)
			reply = ""
			err = fmt.Errorf("panic while processing message: %v", r)
		}
	}()

	msg := bus.InboundMessage{
		Channel:  channel,
		SenderID: "user",
		ChatID:   chatID,
		Content:  content,
	}

	sessionKey := msg.SessionKey()
	lock := l.sessionLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	sess := l.Sessions.GetOrCreate(sessionKey)
	if len(sess.Entries) > l.MemoryWindow {
		l.Consolidate(ctx, sess, false)
	}

	l.setToolContexts(channel, chatID)

	turns := l.Context.BuildTurns(sess.History(0), content, nil, channel, chatID)
	finalContent, toolsUsed := l.runReactLoop(ctx, turns, l.Tools, l.MaxIterations)

	sess.AddTurn("user", content, nil)
	sess.AddTurn("assistant", finalContent, toolsUsed)
	if err := l.Sessions.Save(sess); err != nil {
		l.log.Errorw("failed to save session", "key", sessionKey, "error", err)
	}
	return finalContent, nil
}

func toolDefinitions(registry *tools.Registry) []providers.ToolDefinition {
	defs := registry.Definitions()
	out := make([]providers.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, providers.ToolDefinition(d))
	}
	return out
}
