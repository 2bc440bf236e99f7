package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/calicobot/calico/pkg/bus"
	"github.com/calicobot/calico/pkg/config"
	"github.com/calicobot/calico/pkg/logging"
	"github.com/calicobot/calico/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// panicProvider blows up on the first inference call.
type panicProvider struct{}

func (p *panicProvider) Chat(ctx context.Context, turns []providers.Turn, tools []providers.ToolDefinition, model string) (*providers.LLMResponse, error) {
	panic("simulated provider crash")
}

func (p *panicProvider) GetDefaultModel() string { return "fake-model" }

func newTestSubagentManager(t *testing.T, provider providers.LLMProvider) (*SubagentManager, *bus.MessageBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Workspace = t.TempDir()

	messageBus := bus.NewMessageBus(logging.Nop())
	t.Cleanup(messageBus.Stop)

	mgr := NewSubagentManager(provider, cfg.Agents.Defaults.Workspace, messageBus, "fake-model", cfg, logging.Nop())
	return mgr, messageBus
}

func waitInbound(t *testing.T, messageBus *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	select {
	case msg := <-messageBus.ConsumeInbound():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound announcement arrived")
		return bus.InboundMessage{}
	}
}

func TestSpawnAnnouncesCompletion(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{{Content: "Found three candidates."}}}
	mgr, messageBus := newTestSubagentManager(t, provider)

	ack := mgr.Spawn("research libraries", "research", "telegram", "42")
	assert.Contains(t, ack, "Subagent [research] started")

	msg := waitInbound(t, messageBus)
	assert.Equal(t, "system", msg.Channel)
	assert.Equal(t, "subagent", msg.SenderID)
	assert.Equal(t, "telegram:42", msg.ChatID)
	assert.Contains(t, msg.Content, "[Subagent 'research' completed successfully]")
	assert.Contains(t, msg.Content, "Found three candidates.")
}

func TestSpawnPanicStillAnnouncesExactlyOnce(t *testing.T) {
	mgr, messageBus := newTestSubagentManager(t, &panicProvider{})

	mgr.Spawn("doomed task", "", "cli", "direct")

	msg := waitInbound(t, messageBus)
	assert.Contains(t, msg.Content, "[Subagent 'doomed task' failed]")
	assert.Contains(t, msg.Content, "panic during execution")

	// No second announcement, and the delegate is no longer tracked.
	select {
	case extra := <-messageBus.ConsumeInbound():
		t.Fatalf("unexpected second announcement: %q", extra.Content)
	case <-time.After(150 * time.Millisecond):
	}

	require.Eventually(t, func() bool { return mgr.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSpawnDefaultLabelTruncated(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{{Content: "done"}}}
	mgr, messageBus := newTestSubagentManager(t, provider)

	long := strings.Repeat("x", 50)
	ack := mgr.Spawn(long, "", "cli", "direct")
	assert.Contains(t, ack, "Subagent ["+long[:30]+"...] started")

	waitInbound(t, messageBus)
}

func TestSubagentInferenceErrorReportsFailure(t *testing.T) {
	provider := &fakeProvider{err: assert.AnError}
	mgr, messageBus := newTestSubagentManager(t, provider)

	mgr.Spawn("flaky task", "flaky", "cli", "direct")

	msg := waitInbound(t, messageBus)
	assert.Contains(t, msg.Content, "[Subagent 'flaky' failed]")
	assert.Contains(t, msg.Content, "Error:")
}

func TestSubagentEmptyResultStillCompletes(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{{Content: ""}}}
	mgr, messageBus := newTestSubagentManager(t, provider)

	mgr.Spawn("quiet task", "quiet", "cli", "direct")

	msg := waitInbound(t, messageBus)
	assert.Contains(t, msg.Content, "[Subagent 'quiet' completed successfully]")
	assert.Contains(t, msg.Content, "Task completed but no final response was generated.")
}
