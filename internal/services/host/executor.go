package host

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/fgeck/goworld-backup/internal/services/ssh"
)

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// SSHExecutor runs commands on a remote host.
type SSHExecutor struct {
	svc ssh.Service
	cfg models.SSHConfig
}

// NewSSHExecutor creates an executor that runs every command through svc.
func NewSSHExecutor(svc ssh.Service, cfg models.SSHConfig) *SSHExecutor {
	return &SSHExecutor{svc: svc, cfg: cfg}
}

// Execute runs the quoted command line remotely.
func (e *SSHExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	result, err := e.svc.Run(ctx, e.cfg, shellJoin(append([]string{name}, args...)))
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return []byte(result.Output), result.Error
	}
	return []byte(result.Output), nil
}

// shellJoin quotes each argument for a POSIX shell.
func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		if a != "" && strings.Trim(a, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./=:@%+,") == "" {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

// expand substitutes {key} placeholders in every argument.
func expand(argv []string, vars map[string]string) ([]string, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out, nil
}
