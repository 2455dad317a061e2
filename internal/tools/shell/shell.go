// Package shell provides the shell-execution tool. Its allow-listing
// behavior is driven by the invoking agent's models.ShellMode: strict
// agents may only run commands named in the configured allowlist,
// permissive agents may run anything.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/internal/tools"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// AgentMode resolves the shell mode and allowlist for an agent by name.
// The registry's handler closure calls back into this at invocation
// time, since a single registered tool serves every agent.
type AgentMode interface {
	ModeFor(agentName string) (mode models.ShellMode, allowlist []string)
}

const defaultTimeout = 30 * time.Second

// Register adds the run_shell_command tool to reg, consulting modes for
// each call's allow-listing decision.
func Register(reg *tools.Registry, modes AgentMode) error {
	return reg.Register(models.ToolDescriptor{
		Name:        "run_shell_command",
		Description: "Runs a shell command. Strict-mode agents may only run allow-listed commands.",
		Category:    tools.CategoryShell,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "Shell command to execute."},
				"timeout_seconds": {"type": "integer", "minimum": 0}
			},
			"required": ["command"]
		}`),
		Timeout: defaultTimeout,
		Handler: func(toolCtx models.ToolContext, input json.RawMessage) (json.RawMessage, error) {
			var params struct {
				Command        string `json:"command"`
				TimeoutSeconds int    `json:"timeout_seconds"`
			}
			if err := json.Unmarshal(input, &params); err != nil {
				return nil, errs.Wrap(errs.KindInvalidInput, err, "invalid input")
			}
			command := strings.TrimSpace(params.Command)
			if command == "" {
				return nil, errs.New(errs.KindInvalidInput, "command is required")
			}

			mode, allowlist := modes.ModeFor(toolCtx.AgentName)
			if mode == models.ShellModeStrict {
				if !allowedCommand(command, allowlist) {
					return nil, errs.New(errs.KindInvalidInput, "command not allowed: "+firstWord(command))
				}
			}

			timeout := defaultTimeout
			if params.TimeoutSeconds > 0 {
				timeout = time.Duration(params.TimeoutSeconds) * time.Second
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
			runErr := cmd.Run()

			result := map[string]any{
				"stdout":    stdout.String(),
				"stderr":    stderr.String(),
				"exit_code": cmd.ProcessState.ExitCode(),
			}
			if runErr != nil && cmd.ProcessState == nil {
				return nil, errs.Wrap(errs.KindInternal, runErr, "command failed to start")
			}
			return json.Marshal(result)
		},
	})
}

// allowedCommand reports whether command's first word (the program name)
// appears in allowlist. Strict mode is a allow-by-name check, not a full
// shell parser — it refuses before spawning anything, matching the
// "CommandNotAllowed before spawning" requirement.
func allowedCommand(command string, allowlist []string) bool {
	head := firstWord(command)
	for _, allowed := range allowlist {
		if head == allowed {
			return true
		}
	}
	return false
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
