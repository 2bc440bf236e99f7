package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const execOutputLimit = 10000

// ExecTool runs shell commands with a timeout and a safety guard.
type ExecTool struct {
	Timeout             time.Duration
	WorkingDir          string
	RestrictToWorkspace bool
	denyPatterns        []*regexp.Regexp
}

// NewExecTool creates an ExecTool. timeout is in seconds; zero means 60.
func NewExecTool(timeout int, workingDir string, restrict bool) *ExecTool {
	if timeout <= 0 {
		timeout = 60
	}
	deny := []string{
		`\brm\s+-[rf]{1,2}\b`,
		`\bdel\s+/[fq]\b`,
		`\brmdir\s+/s\b`,
		`\b(mkfs|diskpart)\b`,
		`\bdd\s+if=`,
		`>\s*/dev/sd`,
		`\b(shutdown|reboot|poweroff)\b`,
		`:\(\)\s*\{.*\};\s*:`,
	}
	t := &ExecTool{
		Timeout:             time.Duration(timeout) * time.Second,
		WorkingDir:          workingDir,
		RestrictToWorkspace: restrict,
	}
	for _, p := range deny {
		t.denyPatterns = append(t.denyPatterns, regexp.MustCompile(p))
	}
	return t
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Execute a shell command and return its output. Use with caution."
}

func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]interface{}{
				"type":        "string",
				"description": "Optional working directory for the command",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command, _ := args["command"].(string)

	workingDir := t.WorkingDir
	if wd, ok := args["working_dir"].(string); ok && wd != "" {
		workingDir = wd
	}
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}

	if refusal := t.guard(command, workingDir); refusal != "" {
		return refusal, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var result strings.Builder
	result.WriteString(stdout.String())
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\nSTDERR:\n")
		}
		result.WriteString(stderr.String())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: Command timed out after %s", t.Timeout), nil
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.WriteString(fmt.Sprintf("\nExit code: %d", exitErr.ExitCode()))
		} else {
			return fmt.Sprintf("Error executing command: %v", err), nil
		}
	}

	out := result.String()
	if out == "" {
		out = "(no output)"
	}
	if len(out) > execOutputLimit {
		out = out[:execOutputLimit] + fmt.Sprintf("\n... (truncated, %d more chars)", len(out)-execOutputLimit)
	}
	return out, nil
}

func (t *ExecTool) guard(command, cwd string) string {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, pattern := range t.denyPatterns {
		if pattern.MatchString(lower) {
			return "Error: Command blocked by safety guard (dangerous pattern detected)"
		}
	}
	if t.RestrictToWorkspace {
		if strings.Contains(command, "../") || strings.Contains(command, "..\\") {
			return "Error: Command blocked by safety guard (path traversal detected)"
		}
		if t.WorkingDir != "" {
			root, err := filepath.Abs(t.WorkingDir)
			if err != nil {
				return "Error: Command blocked by safety guard (bad workspace root)"
			}
			abs, err := filepath.Abs(cwd)
			if err != nil || (abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator))) {
				return "Error: Command blocked by safety guard (working dir outside workspace)"
			}
		}
	}
	return ""
}
