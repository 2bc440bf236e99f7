package agent

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/calicobot/calico/pkg/memory"
	"github.com/calicobot/calico/pkg/providers"
	"github.com/calicobot/calico/pkg/skills"
	"go.uber.org/zap"
)

// BootstrapFiles are operator-provided documents loaded into the system
// prompt, in priority order.
var BootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// ContextBuilder assembles the turn list handed to the model: identity,
// bootstrap docs, long-term memory, always-on skills, the on-demand
// skill directory, then history and the current turn.
type ContextBuilder struct {
	Workspace string
	Memory    *memory.Store
	Skills    *skills.Loader
	log       *zap.SugaredLogger
}

// NewContextBuilder creates a context builder over the given workspace.
func NewContextBuilder(workspace string, store *memory.Store, log *zap.SugaredLogger) *ContextBuilder {
	return &ContextBuilder{
		Workspace: workspace,
		Memory:    store,
		Skills:    skills.NewLoader(workspace),
		log:       log,
	}
}

// BuildSystemPrompt renders the full system prompt.
func (c *ContextBuilder) BuildSystemPrompt() string {
	var parts []string

	parts = append(parts, c.identity())

	if bootstrap := c.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}

	if mem := c.Memory.MemoryContext(); mem != "" {
		parts = append(parts, "# Memory\n\n"+mem)
	}

	alwaysSkills := c.Skills.GetAlwaysSkills()
	if len(alwaysSkills) > 0 {
		if alwaysContent := c.Skills.LoadSkillsForContext(alwaysSkills); alwaysContent != "" {
			parts = append(parts, "# Active Skills\n\n"+alwaysContent)
		}
	}

	if summary := c.Skills.BuildSkillsSummary(); summary != "" {
		parts = append(parts, fmt.Sprintf(`# Skills

The following skills extend your capabilities.
IMPORTANT: These are NOT native tools. You cannot call them directly.
To use a skill, you MUST first read its instruction file using the 'read_file' tool.
Then, follow the instructions in the file to execute the task (usually via 'exec' or 'web_search').

**Guideline**:
1. If a user request matches a skill (e.g., "weather", "summarize"), you **MUST** use the skill.
2. **Do NOT** hallucinate answers or use general knowledge for things like weather, news, or summaries if a skill is available.
3. **Actively execute** the skill instructions (e.g., run the curl command). Do not just tell the user how to do it.

%s`, summary))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (c *ContextBuilder) identity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	absWorkspace, _ := filepath.Abs(c.Workspace)
	sysInfo := fmt.Sprintf("%s %s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())

	return fmt.Sprintf(`# calico 🐈

You are calico, a helpful AI assistant. You have access to tools that allow you to:
- Read, write, append, and edit files
- Execute shell commands
- Search the web and fetch web pages
- Send messages to users on chat channels
- Schedule reminders and recurring tasks
- Spawn subagents for complex background tasks

## Current Time
%s

## Runtime
%s

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- History log: %s/memory/HISTORY.md
- Custom skills: %s/skills/{skill-name}/SKILL.md

IMPORTANT: When responding to direct questions or conversations, reply directly with your text response.
Only use the 'message' tool when you need to send a message to a specific chat channel.
For normal conversation, just respond with text - do not call the message tool.
Do NOT write content to files unless explicitly requested by the user.

Always be helpful, accurate, and concise. When using tools, explain what you're doing.

## Memory Management
You have a long-term memory file at %s/memory/MEMORY.md.
When the user provides important personal information (e.g., name, location, preferences) or explicitly asks you to remember something, you **MUST** immediately use the 'append_file' tool to save it to this file.
Do not just say "I will remember that" — you must physically write it to the file using the 'append_file' tool.

## Identity & Behavior Management
You have a soul file at %s/SOUL.md.
When the user defines your persona, character, personality, or fundamental behavioral rules, you **MUST** save this definition to %s/SOUL.md using the 'write_file' (to overwrite/initialize) or 'append_file' tool.
This ensures you maintain this personality across sessions.

## Conversation Handling
In group chats, user messages may be prefixed with '[Name]:' (e.g., '[Alice]: Hello').
- This indicates the sender's name.
- You should associate this name with the user in your context.
- When replying, address the user by this name to be more personal.`, now, sysInfo, absWorkspace, absWorkspace, absWorkspace, absWorkspace, absWorkspace, absWorkspace, absWorkspace)
}

func (c *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, filename := range BootstrapFiles {
		path := filepath.Join(c.Workspace, filename)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", filename, string(content)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildTurns assembles [system][history...][current] for one LLM call.
func (c *ContextBuilder) BuildTurns(history []providers.Turn, currentMessage string, media []string, channel, chatID string) []providers.Turn {
	systemPrompt := c.BuildSystemPrompt()
	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	turns := make([]providers.Turn, 0, len(history)+2)
	turns = append(turns, providers.Turn{Role: "system", Content: systemPrompt})
	turns = append(turns, history...)
	turns = append(turns, c.buildUserTurn(currentMessage, media))
	return turns
}

func (c *ContextBuilder) buildUserTurn(text string, media []string) providers.Turn {
	turn := providers.Turn{Role: "user", Content: text}
	for _, path := range media {
		url, ok := c.imageDataURL(path)
		if !ok {
			continue
		}
		turn.Images = append(turn.Images, url)
	}
	return turn
}

func (c *ContextBuilder) imageDataURL(path string) (string, bool) {
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if !strings.HasPrefix(mimeType, "image/") {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Warnw("failed to read media attachment", "path", path, "error", err)
		return "", false
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), true
}
