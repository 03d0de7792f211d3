package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zskulcsar/code-duplication-scanner/internal/config"
)

// exitError carries the process exit code of a failure. Its message is
// printed as is.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func failWith(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(stderr, ee.Error())
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %s\n", err)
	return 1
}

// cli holds the flag values of one command tree.
type cli struct {
	configFile string
	logLevel   string
	format     string

	input      string
	output     string
	workers    int
	ledger     string
	preserve   []string
	policies   []string
	verify     bool
	scriptsDir string

	runID int64
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "pyobfuscate",
		Short:         "Deterministic identifier obfuscation for Python projects",
		Long:          "pyobfuscate copies a Python project and renames its identifiers consistently across every file, leaving names that come from outside the project untouched.",
		SilenceErrors: true,
		SilenceUsage:  true,
		// No Run, prints help by default.
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &exitError{code: 2, err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "configuration file (default: .pyobfuscate.yaml in the project root)")
	pf.StringVar(&c.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&c.format, "format", config.FormatText, "output format: text|json|yaml")

	root.AddCommand(c.newRunCmd())
	root.AddCommand(c.newMapCmd())
	root.AddCommand(c.newLedgerCmd())
	return root
}

// addPipelineFlags registers the flags shared by commands that build a
// rename map.
func (c *cli) addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&c.workers, "workers", 0, "files rewritten concurrently (default: one per CPU)")
	f.StringSliceVar(&c.preserve, "preserve", nil, "names that are never renamed (repeatable, comma-separated)")
	f.StringSliceVar(&c.policies, "policy", nil, "policy script path or builtin:<name> (repeatable)")
	f.StringVar(&c.scriptsDir, "scripts-dir", "", "directory relative policy paths resolve against")
}

// loadConfig reads the configuration for a command working on root.
func (c *cli) loadConfig(cmd *cobra.Command, root string) (*config.Config, error) {
	cfg, err := config.Load(c.configFile, root, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the production console logger on stderr.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	return zc.Build()
}
