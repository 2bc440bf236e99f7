package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/calicobot/calico/pkg/bus"
	"github.com/calicobot/calico/pkg/config"
	"github.com/calicobot/calico/pkg/providers"
	"github.com/calicobot/calico/pkg/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const subagentMaxIterations = 15

// SubagentManager spawns detached background loops with a reduced tool
// set. Delegates report back through the bus as system messages; they
// are tracked only while live and never persisted.
type SubagentManager struct {
	Provider  providers.LLMProvider
	Workspace string
	Bus       *bus.MessageBus
	Model     string
	Config    *config.Config

	mu      sync.Mutex
	running map[string]string
	log     *zap.SugaredLogger
}

// NewSubagentManager creates a delegate manager sharing the main
// loop's provider and workspace.
func NewSubagentManager(
	provider providers.LLMProvider,
	workspace string,
	messageBus *bus.MessageBus,
	model string,
	cfg *config.Config,
	log *zap.SugaredLogger,
) *SubagentManager {
	if model == "" {
		model = provider.GetDefaultModel()
	}
	return &SubagentManager{
		Provider:  provider,
		Workspace: workspace,
		Bus:       messageBus,
		Model:     model,
		Config:    cfg,
		running:   make(map[string]string),
		log:       log,
	}
}

// Count returns the number of live delegates.
func (m *SubagentManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Spawn starts a detached delegate and returns an acknowledgement
// immediately. The result arrives later as a system message.
func (m *SubagentManager) Spawn(task, label, originChannel, originChatID string) string {
	taskID := uuid.New().String()[:8]
	if label == "" {
		label = task
		if len(label) > 30 {
			label = label[:30] + "..."
		}
	}

	m.mu.Lock()
	m.running[taskID] = label
	m.mu.Unlock()

	go m.runSubagent(taskID, task, label, originChannel, originChatID)

	m.log.Infow("spawned subagent", "id", taskID, "label", label)
	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll notify you when it completes.", label, taskID)
}

func (m *SubagentManager) runSubagent(taskID, task, label, originChannel, originChatID string) {
	defer func() {
		m.mu.Lock()
		delete(m.running, taskID)
		m.mu.Unlock()
	}()

	m.log.Infow("subagent starting", "id", taskID, "label", label)

	result, status := m.execute(taskID, task)
	m.announceResult(taskID, label, task, result, originChannel, originChatID, status)
}

// execute runs the delegate's bounded loop. Panics are recovered here
// so the caller still announces exactly once.
func (m *SubagentManager) execute(taskID, task string) (result string, status string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("subagent panic", "id", taskID, "panic", r)
			result = fmt.Sprintf("Error: panic during execution: %v", r)
			status = "error"
		}
	}()

	registry := m.buildRegistry()
	turns := []providers.Turn{
		{Role: "system", Content: m.buildSubagentPrompt(task)},
		{Role: "user", Content: task},
	}

	ctx := context.Background()
	iteration := 0
	for iteration < subagentMaxIterations {
		iteration++

		response, err := m.Provider.Chat(ctx, turns, toolDefinitions(registry), m.Model)
		if err != nil {
			m.log.Errorw("subagent inference error", "id", taskID, "error", err)
			return fmt.Sprintf("Error: %v", err), "error"
		}

		if !response.HasToolCalls() {
			result = response.Content
			break
		}

		turns = append(turns, providers.Turn{
			Role:      "assistant",
			Content:   response.Content,
			Reasoning: response.Reasoning,
			ToolCalls: response.ToolCalls,
		})
		for _, tc := range response.ToolCalls {
			m.log.Infow("subagent tool call", "id", taskID, "name", tc.Name)
			out := registry.Execute(ctx, tc.Name, tc.Arguments)
			turns = append(turns, providers.Turn{
				Role:       "tool",
				Content:    out,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	if result == "" {
		result = "Task completed but no final response was generated."
	}
	return result, "ok"
}

// buildRegistry assembles the delegate's tool subset. No message tool
// and no spawn tool: delegates report through their single
// announcement and never delegate further.
func (m *SubagentManager) buildRegistry() *tools.Registry {
	allowedDir := ""
	if m.Config.Tools.Files.RestrictToWorkspace {
		allowedDir = m.Workspace
	}

	registry := tools.NewRegistry(m.log)
	registry.Register(tools.NewReadFileTool(allowedDir))
	registry.Register(tools.NewWriteFileTool(allowedDir))
	registry.Register(tools.NewAppendFileTool(allowedDir))
	registry.Register(tools.NewEditFileTool(allowedDir))
	registry.Register(tools.NewListDirTool(allowedDir))
	registry.Register(tools.NewExecTool(m.Config.Tools.Exec.Timeout, m.Workspace, m.Config.Tools.Exec.RestrictToWorkspace))
	registry.Register(tools.NewWebSearchTool(m.Config.Tools.Web.Search.APIKey, m.Config.Tools.Web.Search.MaxResults))
	registry.Register(tools.NewWebFetchTool(50000))
	return registry
}

func (m *SubagentManager) announceResult(taskID, label, task, result, originChannel, originChatID, status string) {
	statusText := "completed successfully"
	if status != "ok" {
		statusText = "failed"
	}

	content := fmt.Sprintf(`[Subagent '%s' %s]

Task: %s

Result:
%s

Summarize this naturally for the user. Keep it brief (1-2 sentences). Do not mention technical details like "subagent" or task IDs.`, label, statusText, task, result)

	m.Bus.PublishInbound(bus.InboundMessage{
		Channel:  "system",
		SenderID: "subagent",
		ChatID:   fmt.Sprintf("%s:%s", originChannel, originChatID),
		Content:  content,
	})
	m.log.Debugw("subagent announced result", "id", taskID, "origin", originChannel+":"+originChatID)
}

func (m *SubagentManager) buildSubagentPrompt(task string) string {
	return fmt.Sprintf(`# Subagent

You are a subagent spawned by the main agent to complete a specific task.

## Your Task
%s

## Rules
1. Stay focused - complete only the assigned task, nothing else
2. Your final response will be reported back to the main agent
3. Do not initiate conversations or take on side tasks
4. Be concise but informative in your findings

## What You Can Do
- Read and write files in the workspace
- Execute shell commands
- Search the web and fetch web pages
- Complete the task thoroughly

## What You Cannot Do
- Send messages directly to users (no message tool available)
- Spawn other subagents
- Access the main agent's conversation history

## Workspace
Your workspace is at: %s

When you have completed the task, provide a clear summary of your findings or actions.`, task, m.Workspace)
}
