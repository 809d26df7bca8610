package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/psantana5/xwrap/internal/logging"
	"github.com/psantana5/xwrap/internal/metrics"
	"github.com/psantana5/xwrap/internal/xfile"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Exit statuses
const (
	ExitOK      = 0
	ExitUsage   = 1
	ExitFailure = 2
)

// usageError is returned when the positional arguments or flags are wrong.
// line is the usage text printed to stdout.
type usageError struct {
	line  string
	cause error
}

func (e *usageError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.line
}

func newUsageError(cmd *cobra.Command, cause error) *usageError {
	return &usageError{
		line:  "Usage: " + strings.TrimSuffix(cmd.UseLine(), " [flags]"),
		cause: cause,
	}
}

// exactArgs rejects anything but n positional arguments with a usage error
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return newUsageError(cmd, nil)
		}
		return nil
	}
}

// app carries what a single invocation needs across commands
type app struct {
	v        *viper.Viper
	cfgFile  string
	logger   *logging.Logger
	recorder *metrics.Recorder
	stderr   io.Writer
}

func newApp(stderr io.Writer) *app {
	return &app{
		v:        viper.New(),
		logger:   logging.Nop(),
		recorder: metrics.NewRecorder(),
		stderr:   stderr,
	}
}

// newRootCmd builds the command tree. The root command itself performs
// the wrap.
func (a *app) newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xwrap <input.bin> <output.x>",
		Short: "Wrap a raw m68k binary in a Human68k .X executable header",
		Long: `xwrap prepends the 64-byte Human68k .X header to a raw binary payload.

The header marks the payload as relocatable text starting at offset 0. Data,
bss, relocation, symbol and line sections are left empty.

Example:
  xwrap hello.bin HELLO.X
  xwrap inspect HELLO.X
  xwrap unwrap HELLO.X hello.bin`,
		Args:              exactArgs(2),
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
		RunE:              a.runWrap,
	}
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return newUsageError(c, err)
	})
	// Input files may be named after built-in commands
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(a.newHelpCmd(rootCmd))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.xwrap/config.yaml)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("metrics-file", "", "write Prometheus counters to this textfile after the run")
	pf.Bool("check-space", false, "verify free space on the output filesystem before writing")

	rootCmd.AddCommand(a.newInspectCmd())
	rootCmd.AddCommand(a.newUnwrapCmd())

	return rootCmd
}

// newHelpCmd replaces cobra's help command. "xwrap help <output.x>" is a
// wrap of an input file named help, not a request for help.
func (a *app) newHelpCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return newUsageError(rootCmd, nil)
			}
			target, _, err := rootCmd.Find(args)
			if len(args) == 1 && (err != nil || target == rootCmd) {
				return a.runWrap(cmd, []string{cmd.Name(), args[0]})
			}
			if err != nil || target == nil {
				target = rootCmd
			}
			return target.Help()
		},
	}
}

// initConfig reads in config file and ENV variables if set
func (a *app) initConfig(cmd *cobra.Command, args []string) error {
	v := a.v
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_file", "")
	v.SetDefault("check_space", false)

	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	v.SetEnvPrefix("XWRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", a.cfgFile, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".xwrap"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	level, err := logging.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return err
	}
	format := v.GetString("log_format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	a.logger = logging.NewLogger(level, format == "json", a.stderr)
	if used := v.ConfigFileUsed(); used != "" {
		a.logger.Debug("Loaded config", map[string]interface{}{"path": used})
	}
	return nil
}

// bindFlags maps dashed flag names onto underscored config keys
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, name := range []string{"log-level", "log-format", "metrics-file", "check-space"} {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (a *app) xfileOptions() []xfile.Option {
	return []xfile.Option{
		xfile.WithLogger(a.logger),
		xfile.WithSpaceCheck(a.v.GetBool("check_space")),
	}
}

// record counts the outcome of op and flushes the counters when a
// metrics file is configured.
func (a *app) record(op string, payloadBytes int64, err error) {
	if err != nil {
		a.recorder.RecordFailure(op, xfile.KindOf(err).String())
	} else {
		a.recorder.RecordSuccess(op, payloadBytes)
	}

	path := a.v.GetString("metrics_file")
	if path == "" {
		return
	}
	if werr := a.recorder.WriteTextfile(path); werr != nil {
		a.logger.Warn("Metrics not written", map[string]interface{}{"error": werr.Error()})
	}
}

func (a *app) runWrap(cmd *cobra.Command, args []string) error {
	res, err := xfile.Wrap(args[0], args[1], a.xfileOptions()...)
	if err != nil {
		a.record("wrap", 0, err)
		return err
	}
	a.record("wrap", int64(res.PayloadSize), nil)
	fmt.Fprintln(cmd.OutOrStdout(), res.String())
	return nil
}

// Run executes xwrap with args and returns the process exit status.
func Run(args []string, stdout, stderr io.Writer) int {
	if args == nil {
		// cobra falls back to os.Args on a nil slice
		args = []string{}
	}

	a := newApp(stderr)
	rootCmd := a.newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var ue *usageError
	if errors.As(err, &ue) {
		if ue.cause != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ue.cause)
		}
		fmt.Fprintln(stdout, ue.line)
		return ExitUsage
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitFailure
}

// Execute runs xwrap against the process arguments
func Execute() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}
