package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tinkerbelle-io/tb-rollout/internal/config"
	"github.com/tinkerbelle-io/tb-rollout/internal/logging"
	"github.com/tinkerbelle-io/tb-rollout/internal/rollout"
	"github.com/tinkerbelle-io/tb-rollout/internal/salt"
)

var (
	// Flags
	flagNodes       string
	flagExclude     string
	flagDryRun      bool
	flagTransport   string
	flagSaltSSH     bool
	flagLogLevel    string
	flagLogDir      string
	flagConfig      string
	flagMaster      string
	flagAPIURL      string
	flagAPIUser     string
	flagAPIPassword string
	flagEAuth       string
	flagEvents      bool
)

var rootCmd = &cobra.Command{
	Use:   "tb-rollout",
	Short: "Rolling maintenance across a Salt-managed fleet",
	Long: `tb-rollout performs rolling maintenance operations across a fleet of
Salt minions, one node at a time: configuration updates, service
restarts, full system upgrades, and host reboots with reboot-completion
detection. All nodes must respond to a connectivity probe before any
action begins, and any node exhausting its retry budget halts the run.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagNodes, "nodes", "n", "", "Comma-separated list of minions to act upon")
	pf.StringVarP(&flagExclude, "exclude", "e", "", "Comma-separated list of minions to exclude")
	pf.BoolVarP(&flagDryRun, "dry-run", "t", false, "List the nodes that would be acted upon, then exit")
	pf.StringVar(&flagTransport, "transport", "cli", "How to reach salt: cli, ssh, or api")
	pf.BoolVarP(&flagSaltSSH, "salt-ssh", "s", false, "Use the salt-ssh shim transport for minion commands")
	pf.StringVarP(&flagLogLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogDir, "log-dir", "", "Directory for per-invocation log files (env: TB_ROLLOUT_LOG_DIR)")
	pf.StringVar(&flagConfig, "config", "", "Config file path (default: "+config.DefaultPath+")")
	pf.StringVar(&flagMaster, "master", "", "Salt master address user@host[:port] for the ssh transport (env: TB_ROLLOUT_MASTER)")
	pf.StringVar(&flagAPIURL, "api-url", "", "salt-api base URL for the api transport (env: TB_ROLLOUT_API_URL)")
	pf.StringVar(&flagAPIUser, "api-user", "", "salt-api username (env: TB_ROLLOUT_API_USER)")
	pf.StringVar(&flagAPIPassword, "api-password", "", "salt-api password (env: TB_ROLLOUT_API_PASSWORD)")
	pf.StringVar(&flagEAuth, "eauth", "", "salt-api external auth backend (default pam, env: TB_ROLLOUT_API_EAUTH)")
	pf.BoolVar(&flagEvents, "events", false, "Tail the salt event bus during the run (api transport only)")
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("tb-rollout %s\n", version))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// splitList splits a comma-separated flag value, dropping empty parts.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runAction is the shared body of the three action subcommands.
func runAction(action rollout.Action, reboot bool) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	logDir := flagLogDir
	if logDir == "" {
		logDir = cfg.LogDir
	}
	logPath, err := logging.Setup(flagLogLevel, logDir)
	if err != nil {
		return err
	}
	slog.Info("tb-rollout starting", "action", action, "log_file", logPath)

	nodes := splitList(flagNodes)
	if len(nodes) == 0 {
		return fmt.Errorf("no target nodes specified (use --nodes)")
	}
	exclude := splitList(flagExclude)

	if flagDryRun {
		slog.Info("dry run, targeting the following nodes:")
		for _, node := range rollout.Targets(nodes, exclude) {
			slog.Info("  " + node)
		}
		return nil
	}

	mode := salt.ModeMinion
	if flagSaltSSH {
		mode = salt.ModeSSH
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec, err := buildExecutor(ctx, cfg, mode)
	if err != nil {
		return err
	}

	orch := rollout.New(exec, rollout.Options{
		Nodes:          nodes,
		Exclude:        exclude,
		Action:         action,
		Reboot:         reboot,
		Retries:        cfg.Retries,
		ServiceRetries: cfg.ServiceRetries,
		ServiceBackoff: seconds(cfg.ServiceBackoffSeconds),
		RestartDelay:   seconds(cfg.RestartDelaySeconds),
		RebootTimeout:  seconds(cfg.RebootTimeoutSeconds),
		RebootPeriod:   seconds(cfg.RebootPeriodSeconds),
		Service:        cfg.Service,
		ConfigState:    cfg.ConfigState,
		Pillar:         cfg.Pillar,
	})

	outcome, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("all nodes completed",
		"run_id", outcome.RunID, "nodes", len(outcome.Completed), "elapsed", outcome.Elapsed)
	return nil
}

// buildExecutor wires the transport selected by --transport.
func buildExecutor(ctx context.Context, cfg *config.Config, mode salt.Mode) (salt.Executor, error) {
	switch flagTransport {
	case "cli":
		// The local CLI drives the master directly and needs its
		// privileges.
		if os.Geteuid() != 0 {
			return nil, fmt.Errorf("the cli transport needs root permissions on the salt master")
		}
		return salt.NewCLIExecutor(mode), nil

	case "ssh":
		master := flagMaster
		if master == "" {
			master = cfg.Master
		}
		if master == "" {
			return nil, fmt.Errorf("the ssh transport needs --master (or master in the config file)")
		}
		return salt.NewSSHExecutor(master, mode)

	case "api":
		url := flagAPIURL
		if url == "" {
			url = cfg.API.URL
		}
		if url == "" {
			return nil, fmt.Errorf("the api transport needs --api-url (or api.url in the config file)")
		}
		creds := salt.Credentials{
			Username: firstNonEmpty(flagAPIUser, cfg.API.Username),
			Password: firstNonEmpty(flagAPIPassword, cfg.API.Password),
			EAuth:    firstNonEmpty(flagEAuth, cfg.API.EAuth),
		}
		exec := salt.NewAPIExecutor(url, creds, mode)
		if flagEvents {
			if err := watchEvents(ctx, exec, url); err != nil {
				return nil, err
			}
		}
		return exec, nil

	default:
		return nil, fmt.Errorf("unknown transport %q (expected cli, ssh, or api)", flagTransport)
	}
}

// watchEvents starts the event bus tail in the background for the
// duration of the run.
func watchEvents(ctx context.Context, exec *salt.APIExecutor, url string) error {
	token, err := exec.Token(ctx)
	if err != nil {
		return err
	}
	watcher, err := salt.NewEventWatcher(url, token)
	if err != nil {
		return err
	}
	go func() {
		if err := watcher.Watch(ctx); err != nil {
			slog.Warn("event bus watch ended", "error", err)
		}
	}()
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
