package salt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// runnerFunc executes a salt CLI invocation and returns its stdout.
// The default runs the binary locally on the master; the SSH executor
// substitutes a runner that executes the same invocation remotely.
type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// CLIExecutor drives the salt or salt-ssh command line with JSON output.
// It is the transport used when tb-rollout runs on the Salt master
// itself (or, via NewSSHExecutor, on a master reached over SSH).
type CLIExecutor struct {
	mode Mode
	run  runnerFunc
	log  *slog.Logger
}

// NewCLIExecutor returns an executor that shells out to the local salt
// CLI. Requires the salt (or salt-ssh) binary on PATH and master
// privileges, which the command layer checks up front.
func NewCLIExecutor(mode Mode) *CLIExecutor {
	return &CLIExecutor{
		mode: mode,
		run:  execRun,
		log:  slog.Default().With("component", "salt-cli"),
	}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return out, fmt.Errorf("%s: %w (stderr: %s)", name, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// cliArgs builds a salt CLI argument list. The --static flag makes the
// CLI emit a single JSON document once all returns are in.
func cliArgs(list bool, tgt, fun string, args ...string) []string {
	out := []string{"--out=json", "--static"}
	if list {
		out = append(out, "-L")
	}
	out = append(out, tgt, fun)
	return append(out, args...)
}

// cmd runs one invocation and decodes the top-level node→payload map.
func (e *CLIExecutor) cmd(ctx context.Context, args []string) (map[string]json.RawMessage, error) {
	bin := e.mode.Binary()
	e.log.Debug("running salt command", "bin", bin, "args", args)

	out, err := e.run(ctx, bin, args...)
	if err != nil {
		return nil, err
	}

	var ret map[string]json.RawMessage
	if err := json.Unmarshal(out, &ret); err != nil {
		return nil, fmt.Errorf("decode %s output: %w", bin, err)
	}
	return ret, nil
}

// single runs one invocation against one node and returns its unwrapped
// payload.
func (e *CLIExecutor) single(ctx context.Context, node, fun string, args ...string) (json.RawMessage, error) {
	ret, err := e.cmd(ctx, cliArgs(false, node, fun, args...))
	if err != nil {
		return nil, err
	}
	raw, ok := ret[node]
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", fun, node, ErrNoResponse)
	}
	return unwrap(e.mode, node, raw)
}

func (e *CLIExecutor) ApplyState(ctx context.Context, node, state string, pillar map[string]any) (*StateRunResult, error) {
	args := []string{state}
	if len(pillar) > 0 {
		data, err := json.Marshal(pillar)
		if err != nil {
			return nil, fmt.Errorf("encode pillar: %w", err)
		}
		args = append(args, "pillar="+string(data))
	}

	raw, err := e.single(ctx, node, "state.sls", args...)
	if err != nil {
		return nil, err
	}
	var res StateRunResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("state.sls return from %s: %w", node, err)
	}
	return &res, nil
}

func (e *CLIExecutor) Upgrade(ctx context.Context, node string, refresh bool) (*StateRunResult, error) {
	raw, err := e.single(ctx, node, "pkg.upgrade", fmt.Sprintf("refresh=%t", refresh))
	if err != nil {
		return nil, err
	}
	var res StateRunResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("pkg.upgrade return from %s: %w", node, err)
	}
	return &res, nil
}

func (e *CLIExecutor) BoolCommand(ctx context.Context, node, fun string, args ...string) (bool, error) {
	raw, err := e.single(ctx, node, fun, args...)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("%s return from %s is not a boolean: %w", fun, node, err)
	}
	return b, nil
}

func (e *CLIExecutor) Uptime(ctx context.Context, node string) (*UptimeStatus, error) {
	raw, err := e.single(ctx, node, "status.uptime")
	if err != nil {
		return nil, err
	}
	return decodeUptime(node, raw)
}

func (e *CLIExecutor) Ping(ctx context.Context, nodes []string) (map[string]bool, error) {
	ret, err := e.cmd(ctx, cliArgs(true, strings.Join(nodes, ","), "test.ping"))
	if err != nil {
		return nil, err
	}

	up := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		up[node] = false
		raw, ok := ret[node]
		if !ok {
			continue
		}
		raw, err := unwrap(e.mode, node, raw)
		if err != nil {
			continue
		}
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			up[node] = b
		}
	}
	return up, nil
}

func (e *CLIExecutor) Reboot(ctx context.Context, node string) error {
	// The connection often drops mid-call as the host goes down, so a
	// failed return here is not treated as a failed reboot.
	if _, err := e.single(ctx, node, "system.reboot"); err != nil {
		e.log.Debug("reboot call returned an error, assuming host is going down",
			"node", node, "error", err)
	}
	return nil
}

func (e *CLIExecutor) WipeShim(ctx context.Context, node string) error {
	if e.mode != ModeSSH {
		return fmt.Errorf("shim wipe is only supported in ssh mode")
	}
	args := append([]string{"-W"}, cliArgs(false, node, "test.ping")...)
	if _, err := e.cmd(ctx, args); err != nil {
		return fmt.Errorf("wipe shim on %s: %w", node, err)
	}
	return nil
}

func (e *CLIExecutor) Mode() Mode {
	return e.mode
}
