package tools

import (
	"context"
)

// DelegateSpawner starts a detached background worker and returns an
// acknowledgement immediately.
type DelegateSpawner interface {
	Spawn(task, label, originChannel, originChatID string) string
}

// SpawnTool hands a task to a background delegate.
type SpawnTool struct {
	Manager       DelegateSpawner
	OriginChannel string
	OriginChatID  string
}

// NewSpawnTool creates a SpawnTool.
func NewSpawnTool(manager DelegateSpawner) *SpawnTool {
	return &SpawnTool{
		Manager:       manager,
		OriginChannel: "cli",
		OriginChatID:  "direct",
	}
}

// SetContext records where the delegate's announcement should route back to.
func (t *SpawnTool) SetContext(channel, chatID string) {
	t.OriginChannel = channel
	t.OriginChatID = chatID
}

func (t *SpawnTool) Name() string { return "spawn" }

func (t *SpawnTool) Description() string {
	return "Spawn a background worker to handle a task independently. Use this for complex or time-consuming work. The worker reports back when done."
}

func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The task for the worker to complete",
				"minLength":   1,
			},
			"label": map[string]interface{}{
				"type":        "string",
				"description": "Optional short label for the task (for display)",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	task, _ := args["task"].(string)
	label, _ := args["label"].(string)
	return t.Manager.Spawn(task, label, t.OriginChannel, t.OriginChatID), nil
}
