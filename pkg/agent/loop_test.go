package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/calicobot/calico/pkg/bus"
	"github.com/calicobot/calico/pkg/config"
	"github.com/calicobot/calico/pkg/logging"
	"github.com/calicobot/calico/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider replays canned responses and records every call.
type fakeProvider struct {
	mu        sync.Mutex
	responses []*providers.LLMResponse
	err       error
	calls     int
	seenTurns [][]providers.Turn
}

func (f *fakeProvider) Chat(ctx context.Context, turns []providers.Turn, tools []providers.ToolDefinition, model string) (*providers.LLMResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	copied := make([]providers.Turn, len(turns))
	copy(copied, turns)
	f.seenTurns = append(f.seenTurns, copied)

	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &providers.LLMResponse{Content: "default reply"}, nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeProvider) GetDefaultModel() string { return "fake-model" }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestLoop(t *testing.T, provider providers.LLMProvider) (*AgentLoop, *bus.MessageBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Workspace = t.TempDir()

	messageBus := bus.NewMessageBus(logging.Nop())
	t.Cleanup(messageBus.Stop)

	loop, err := NewAgentLoop(messageBus, provider, cfg.Agents.Defaults.Workspace, cfg, nil, logging.Nop())
	require.NoError(t, err)
	return loop, messageBus
}

func captureOutbound(t *testing.T, messageBus *bus.MessageBus, channel string) <-chan bus.OutboundMessage {
	t.Helper()
	out := make(chan bus.OutboundMessage, 10)
	messageBus.SubscribeOutbound(channel, func(msg bus.OutboundMessage) { out <- msg })
	go messageBus.DispatchOutbound()
	return out
}

func waitOutbound(t *testing.T, out <-chan bus.OutboundMessage) bus.OutboundMessage {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound message arrived")
		return bus.OutboundMessage{}
	}
}

func TestPureTextReplySingleInferenceCall(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{{Content: "All good."}}}
	loop, messageBus := newTestLoop(t, provider)
	out := captureOutbound(t, messageBus, "cli")

	err := loop.processMessage(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "hello",
	})
	require.NoError(t, err)

	msg := waitOutbound(t, out)
	assert.Equal(t, "All good.", msg.Content)
	assert.Equal(t, 1, provider.callCount())

	sess := loop.Sessions.GetOrCreate("cli:direct")
	require.Len(t, sess.Entries, 2)
	assert.Equal(t, "hello", sess.Entries[0].Content)
	assert.Equal(t, "All good.", sess.Entries[1].Content)
}

func TestToolErrorFedBackToModel(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{{
			ID:   "call_1",
			Name: "read_file",
			Arguments: map[string]interface{}{
				"path": "/etc/passwd",
			},
		}}},
		{Content: "I could not read that file."},
	}}
	loop, messageBus := newTestLoop(t, provider)
	out := captureOutbound(t, messageBus, "cli")

	err := loop.processMessage(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "read /etc/passwd",
	})
	require.NoError(t, err)

	msg := waitOutbound(t, out)
	assert.Equal(t, "I could not read that file.", msg.Content)
	require.Equal(t, 2, provider.callCount())

	// The second inference call must carry the refusal as a tool turn.
	second := provider.seenTurns[1]
	var toolTurn *providers.Turn
	for i := range second {
		if second[i].Role == "tool" && second[i].ToolCallID == "call_1" {
			toolTurn = &second[i]
		}
	}
	require.NotNil(t, toolTurn, "tool result turn missing from replay")
	assert.True(t, strings.HasPrefix(toolTurn.Content, "Error:"), "got %q", toolTurn.Content)

	// The steering turn follows the tool results.
	last := second[len(second)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, reflectPrompt, last.Content)
}

func TestIterationCeiling(t *testing.T) {
	// Every response asks for another tool call; the loop must stop at
	// the ceiling with at most maxIterations inference calls.
	provider := &fakeProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{{
			ID:        "call_x",
			Name:      "list_dir",
			Arguments: map[string]interface{}{"path": "."},
		}}},
	}}

	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Workspace = t.TempDir()
	cfg.Agents.Defaults.MaxToolIterations = 3

	messageBus := bus.NewMessageBus(logging.Nop())
	t.Cleanup(messageBus.Stop)
	loop, err := NewAgentLoop(messageBus, provider, cfg.Agents.Defaults.Workspace, cfg, nil, logging.Nop())
	require.NoError(t, err)

	out := captureOutbound(t, messageBus, "cli")

	err = loop.processMessage(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "loop forever",
	})
	require.NoError(t, err)

	msg := waitOutbound(t, out)
	assert.Equal(t, "Reached 3 iterations without completion.", msg.Content)
	assert.LessOrEqual(t, provider.callCount(), cfg.Agents.Defaults.MaxToolIterations+1)
}

func TestInferenceFaultBecomesTextReply(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream 500")}
	loop, messageBus := newTestLoop(t, provider)
	out := captureOutbound(t, messageBus, "cli")

	err := loop.processMessage(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "hello",
	})
	require.NoError(t, err)

	msg := waitOutbound(t, out)
	assert.Contains(t, msg.Content, "inference error")
	assert.Contains(t, msg.Content, "upstream 500")
}

func TestNewCommandArchivesAndClearsSession(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{
		{Content: `{"history_entry": "[2026-08-26 10:00] Talked about five things.", "memory_update": "User prefers short answers."}`},
	}}
	loop, messageBus := newTestLoop(t, provider)
	out := captureOutbound(t, messageBus, "cli")

	sess := loop.Sessions.GetOrCreate("cli:direct")
	for i := 0; i < 5; i++ {
		sess.AddTurn("user", "earlier message", nil)
	}
	require.NoError(t, loop.Sessions.Save(sess))

	err := loop.processMessage(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "/new",
	})
	require.NoError(t, err)

	msg := waitOutbound(t, out)
	assert.Equal(t, "🐈 New session started. Memory consolidated.", msg.Content)

	reloaded := loop.Sessions.GetOrCreate("cli:direct")
	assert.Empty(t, reloaded.Entries)

	longTerm, err := loop.Memory.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, "User prefers short answers.", longTerm)
}

func TestHelpCommandSkipsInference(t *testing.T) {
	provider := &fakeProvider{}
	loop, messageBus := newTestLoop(t, provider)
	out := captureOutbound(t, messageBus, "cli")

	err := loop.processMessage(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "/help",
	})
	require.NoError(t, err)

	msg := waitOutbound(t, out)
	assert.Contains(t, msg.Content, "/new")
	assert.Contains(t, msg.Content, "/help")
	assert.Zero(t, provider.callCount())
}

func TestSystemMessageRoutesToOrigin(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{{Content: "The research finished."}}}
	loop, messageBus := newTestLoop(t, provider)
	out := captureOutbound(t, messageBus, "telegram")

	err := loop.processMessage(context.Background(), bus.InboundMessage{
		Channel:  "system",
		SenderID: "subagent",
		ChatID:   "telegram:99",
		Content:  "[Subagent 'research' completed successfully]\n\nTask: look things up\n\nResult:\nfindings",
	})
	require.NoError(t, err)

	msg := waitOutbound(t, out)
	assert.Equal(t, "telegram", msg.Channel)
	assert.Equal(t, "99", msg.ChatID)
	assert.Equal(t, "The research finished.", msg.Content)

	sess := loop.Sessions.GetOrCreate("telegram:99")
	require.Len(t, sess.Entries, 2)
	assert.Contains(t, sess.Entries[0].Content, "[System: subagent]")
}

func TestPanicInProcessingYieldsApology(t *testing.T) {
	provider := &fakeProvider{}
	loop, messageBus := newTestLoop(t, provider)
	out := captureOutbound(t, messageBus, "cli")

	// A nil session manager forces a panic inside processing.
	loop.Sessions = nil

	loop.handle(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "boom",
	})

	msg := waitOutbound(t, out)
	assert.Contains(t, msg.Content, "Sorry, something went wrong")
}

func TestProcessDirectRecoversPanics(t *testing.T) {
	loop, _ := newTestLoop(t, &panicProvider{})

	reply, err := loop.ProcessDirect(context.Background(), "check in", "heartbeat", "heartbeat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic while processing message")
	assert.Empty(t, reply)

	// The session lock must have been released by the unwound pass.
	lock := loop.sessionLock("heartbeat:heartbeat")
	assert.True(t, lock.TryLock())
	lock.Unlock()
}

func TestProcessDirect(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{{Content: "direct answer"}}}
	loop, _ := newTestLoop(t, provider)

	reply, err := loop.ProcessDirect(context.Background(), "question", "cli", "direct")
	require.NoError(t, err)
	assert.Equal(t, "direct answer", reply)

	sess := loop.Sessions.GetOrCreate("cli:direct")
	assert.Len(t, sess.Entries, 2)
}
