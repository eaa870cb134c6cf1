package sre

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Compose timeouts per operation class.
const (
	composeBuildTimeout = 300 * time.Second
	composeTestTimeout  = 120 * time.Second
	composeShortTimeout = 30 * time.Second
)

// DockerCLI is the capability contract over the container runtime. Both
// concrete forms time-bound every call and run with cwd=projectRoot.
type DockerCLI interface {
	// Available reports whether the runtime can be used at all.
	Available() bool

	// Compose runs a compose subcommand and returns combined output.
	Compose(ctx context.Context, projectRoot string, timeout time.Duration, args ...string) (string, error)

	// Run executes a plain docker subcommand.
	Run(ctx context.Context, projectRoot string, timeout time.Duration, args ...string) (string, error)
}

// ErrTimedOut wraps a subprocess that hit its deadline.
var ErrTimedOut = errors.New("subprocess timed out")

// probedCLI tries `docker compose` first and falls back to the legacy
// `docker-compose` binary when the plugin form is missing.
type probedCLI struct {
	dockerPath  string
	legacyPath  string
	composeMode string // "plugin", "legacy", or ""
}

// ProbeDockerCLI detects the available container tooling.
func ProbeDockerCLI() DockerCLI {
	cli := &probedCLI{}
	if path, err := exec.LookPath("docker"); err == nil {
		cli.dockerPath = path
		// Probe the compose plugin.
		ctx, cancel := context.WithTimeout(context.Background(), composeShortTimeout)
		defer cancel()
		if err := exec.CommandContext(ctx, path, "compose", "version").Run(); err == nil {
			cli.composeMode = "plugin"
		}
	}
	if cli.composeMode == "" {
		if path, err := exec.LookPath("docker-compose"); err == nil {
			cli.legacyPath = path
			cli.composeMode = "legacy"
		}
	}
	return cli
}

func (c *probedCLI) Available() bool {
	return c.dockerPath != "" || c.legacyPath != ""
}

func (c *probedCLI) Compose(ctx context.Context, projectRoot string, timeout time.Duration, args ...string) (string, error) {
	switch c.composeMode {
	case "plugin":
		return c.exec(ctx, projectRoot, timeout, c.dockerPath, append([]string{"compose"}, args...)...)
	case "legacy":
		return c.exec(ctx, projectRoot, timeout, c.legacyPath, args...)
	default:
		return "", fmt.Errorf("no compose-capable docker CLI found")
	}
}

func (c *probedCLI) Run(ctx context.Context, projectRoot string, timeout time.Duration, args ...string) (string, error) {
	if c.dockerPath == "" {
		return "", fmt.Errorf("docker CLI not found")
	}
	return c.exec(ctx, projectRoot, timeout, c.dockerPath, args...)
}

func (c *probedCLI) exec(ctx context.Context, projectRoot string, timeout time.Duration, bin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = projectRoot

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return output.String(), fmt.Errorf("%w after %s: %s %v", ErrTimedOut, timeout, bin, args)
	}
	if err != nil {
		return output.String(), fmt.Errorf("%s %v failed: %w", bin, args, err)
	}
	return output.String(), nil
}
