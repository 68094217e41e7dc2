package shaper

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// NsenterExecutor runs tc commands inside a container's network namespace
// via nsenter, using the container's PID (as supplied by
// internal/containerlab discovery). This is the production Executor;
// tests use a fake in-memory one instead. There is no library wrapping
// namespace entry, so this shells out via os/exec directly.
type NsenterExecutor struct{}

// Exec runs cmd (e.g. {"tc", "qdisc", "add", ...}) inside pid's network
// namespace.
func (NsenterExecutor) Exec(ctx context.Context, pid int, cmd []string) (string, error) {
	if len(cmd) == 0 {
		return "", fmt.Errorf("nsenter: empty command")
	}
	args := append([]string{"-t", fmt.Sprintf("%d", pid), "-n"}, cmd...)
	c := exec.CommandContext(ctx, "nsenter", args...)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return stdout.String(), fmt.Errorf("nsenter %v: %w (stderr: %s)", cmd, err, stderr.String())
	}
	return stdout.String(), nil
}
