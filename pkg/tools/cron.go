package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calicobot/calico/pkg/cron"
)

// CronTool lets the model schedule reminders and recurring tasks.
type CronTool struct {
	Service *cron.Service
	Channel string
	ChatID  string
}

// NewCronTool creates a cron tool backed by the given service.
func NewCronTool(service *cron.Service) *CronTool {
	return &CronTool{Service: service}
}

// SetContext points newly created jobs at the current conversation.
func (t *CronTool) SetContext(channel, chatID string) {
	t.Channel = channel
	t.ChatID = chatID
}

func (t *CronTool) Name() string {
	return "cron"
}

func (t *CronTool) Description() string {
	return "Schedule reminders and recurring tasks. Actions: add, list, remove."
}

func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{"add", "list", "remove"},
				"description": "Action to perform",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Reminder message (for add)",
			},
			"every_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Interval in seconds (for recurring tasks)",
			},
			"run_in_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Run once after N seconds (for one-time tasks)",
			},
			"cron_expr": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression like '0 9 * * *' (for scheduled tasks)",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job ID (for remove)",
			},
		},
		"required": []interface{}{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	action, _ := args["action"].(string)
	message, _ := args["message"].(string)
	everySeconds := toFloat(args["every_seconds"])
	runInSeconds := toFloat(args["run_in_seconds"])
	cronExpr, _ := args["cron_expr"].(string)
	jobID, _ := args["job_id"].(string)

	switch action {
	case "add":
		return t.addJob(message, int(everySeconds), int(runInSeconds), cronExpr), nil
	case "list":
		return t.listJobs(), nil
	case "remove":
		return t.removeJob(jobID), nil
	default:
		return fmt.Sprintf("Unknown action: %s", action), nil
	}
}

func (t *CronTool) addJob(message string, everySeconds, runInSeconds int, cronExpr string) string {
	if message == "" {
		return "Error: message is required for add"
	}
	if t.Channel == "" || t.ChatID == "" {
		return "Error: no session context (channel/chat_id)"
	}

	var schedule cron.Schedule
	deleteAfterRun := false

	switch {
	case runInSeconds > 0:
		schedule = cron.Schedule{
			Kind: "at",
			AtMs: time.Now().UnixNano()/int64(time.Millisecond) + int64(runInSeconds)*1000,
		}
		deleteAfterRun = true
	case everySeconds > 0:
		schedule = cron.Schedule{Kind: "every", EveryMs: int64(everySeconds) * 1000}
	case cronExpr != "":
		schedule = cron.Schedule{Kind: "cron", Expr: cronExpr}
	default:
		return "Error: either every_seconds, run_in_seconds, or cron_expr is required"
	}

	name := message
	if len(name) > 30 {
		name = name[:30]
	}

	job := t.Service.AddJob(name, schedule, message, true, t.Channel, t.ChatID, deleteAfterRun)
	return fmt.Sprintf("Created job '%s' (id: %s)", job.Name, job.ID)
}

func (t *CronTool) listJobs() string {
	jobs := t.Service.ListJobs()
	if len(jobs) == 0 {
		return "No scheduled jobs."
	}

	var sb strings.Builder
	sb.WriteString("Scheduled jobs:\n")
	for _, j := range jobs {
		sb.WriteString(fmt.Sprintf("- %s (id: %s, %s)\n", j.Name, j.ID, j.Schedule.Kind))
	}
	return sb.String()
}

func (t *CronTool) removeJob(jobID string) string {
	if jobID == "" {
		return "Error: job_id is required for remove"
	}
	if t.Service.RemoveJob(jobID) {
		return fmt.Sprintf("Removed job %s", jobID)
	}
	return fmt.Sprintf("Job %s not found", jobID)
}
