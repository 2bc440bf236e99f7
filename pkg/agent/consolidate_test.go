package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/calicobot/calico/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidateEmptySessionIsNoop(t *testing.T) {
	provider := &fakeProvider{}
	loop, _ := newTestLoop(t, provider)

	sess := loop.Sessions.GetOrCreate("cli:direct")
	loop.Consolidate(context.Background(), sess, true)

	assert.Zero(t, provider.callCount())
	longTerm, err := loop.Memory.ReadLongTerm()
	require.NoError(t, err)
	assert.Empty(t, longTerm)
}

func TestConsolidateBelowKeepThresholdIsNoop(t *testing.T) {
	provider := &fakeProvider{}
	loop, _ := newTestLoop(t, provider)

	// MemoryWindow 50 clamps keepCount to 10; 8 entries means nothing
	// old enough to retire.
	sess := loop.Sessions.GetOrCreate("cli:direct")
	for i := 0; i < 8; i++ {
		sess.AddTurn("user", "short exchange", nil)
	}
	loop.Consolidate(context.Background(), sess, false)

	assert.Zero(t, provider.callCount())
	assert.Len(t, sess.Entries, 8)
}

func TestConsolidateArchivesAndTrims(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{
		{Content: `{"history_entry": "[2026-08-26 09:00] Planned a trip to Kyoto.", "memory_update": "User is planning a trip to Kyoto in October."}`},
	}}
	loop, _ := newTestLoop(t, provider)

	sess := loop.Sessions.GetOrCreate("cli:direct")
	for i := 0; i < 15; i++ {
		sess.AddTurn("user", "talking about the trip", nil)
	}
	loop.Consolidate(context.Background(), sess, false)

	// keepCount is min(10, max(2, 50/2)) = 10.
	assert.Len(t, sess.Entries, 10)

	longTerm, err := loop.Memory.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, "User is planning a trip to Kyoto in October.", longTerm)

	prompt := provider.seenTurns[0][1].Content
	assert.Contains(t, prompt, "(empty)")
	assert.Contains(t, prompt, "talking about the trip")
}

func TestConsolidateHandlesFencedJSON(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{
		{Content: "```json\n{\"history_entry\": \"[2026-08-26 09:00] Chat.\", \"memory_update\": \"Likes tea.\"}\n```"},
	}}
	loop, _ := newTestLoop(t, provider)

	sess := loop.Sessions.GetOrCreate("cli:direct")
	sess.AddTurn("user", "I like tea", nil)
	loop.Consolidate(context.Background(), sess, true)

	longTerm, err := loop.Memory.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, "Likes tea.", longTerm)
	assert.Empty(t, sess.Entries)
}

func TestConsolidateUnchangedMemoryNotRewritten(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{
		{Content: `{"history_entry": "[2026-08-26 09:00] Small talk.", "memory_update": "Likes tea."}`},
	}}
	loop, _ := newTestLoop(t, provider)
	require.NoError(t, loop.Memory.WriteLongTerm("Likes tea."))

	before, err := loop.Memory.ReadLongTerm()
	require.NoError(t, err)

	sess := loop.Sessions.GetOrCreate("cli:direct")
	sess.AddTurn("user", "hello again", nil)
	loop.Consolidate(context.Background(), sess, true)

	after, err := loop.Memory.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConsolidateFaultLeavesSessionUntouched(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model offline")}
	loop, _ := newTestLoop(t, provider)

	sess := loop.Sessions.GetOrCreate("cli:direct")
	for i := 0; i < 15; i++ {
		sess.AddTurn("user", "a message", nil)
	}
	loop.Consolidate(context.Background(), sess, false)

	assert.Len(t, sess.Entries, 15)
	longTerm, err := loop.Memory.ReadLongTerm()
	require.NoError(t, err)
	assert.Empty(t, longTerm)
}

func TestConsolidateMalformedJSONLeavesSessionUntouched(t *testing.T) {
	provider := &fakeProvider{responses: []*providers.LLMResponse{
		{Content: "not json at all"},
	}}
	loop, _ := newTestLoop(t, provider)

	sess := loop.Sessions.GetOrCreate("cli:direct")
	for i := 0; i < 15; i++ {
		sess.AddTurn("user", "a message", nil)
	}
	loop.Consolidate(context.Background(), sess, false)

	assert.Len(t, sess.Entries, 15)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, stripCodeFences("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripCodeFences("```\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripCodeFences(`{"a": 1}`))
}
