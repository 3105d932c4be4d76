package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"dreamnet/internal/config"
)

// Options holds the flags shared by every command.
type Options struct {
	ConfigPath string
	ModelPath  string
	JournalDSN string
	LogLevel   string
	LogFormat  string
}

var (
	opts Options
	// cfg and logger are set up in PersistentPreRunE.
	cfg    *config.Config
	logger *slog.Logger
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "dreamnet",
	Short: "Dream up the image a digit classifier believes in",
	Long: `dreamnet trains a small digit classifier and then steers a noise image
towards a chosen digit by finite-difference gradient descent, retraining the
classifier on every step to call the image fake. Snapshots of the image are
written as PNG frames and assembled into a GIF.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)
		if err != nil {
			return err
		}
		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
		applyOverrides(cfg, opts)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		runSynth(cmd.Context(), synthOpts)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (defaults apply when omitted)")
	pf.StringVar(&opts.ModelPath, "model", "", "Persisted model path (overrides model.path)")
	pf.StringVar(&opts.JournalDSN, "journal", "", "Run journal: SQLite file or postgres:// URL (overrides journal.dsn)")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&opts.LogFormat, "log-format", "text", "Log format: text or json")

	rootCmd.Flags().IntVarP(&synthOpts.Num, "num", "n", 0, "Digit class to dream up")
	rootCmd.Flags().BoolVarP(&synthOpts.Retrain, "retrain", "s", false, "Retrain the model even if one is saved")
	rootCmd.MarkFlagRequired("num")
}

// applyOverrides copies explicitly set flags over the file configuration.
func applyOverrides(c *config.Config, o Options) {
	if o.ModelPath != "" {
		c.Model.Path = o.ModelPath
	}
	if o.JournalDSN != "" {
		c.Journal.DSN = o.JournalDSN
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("bad --log-level %q: %w", level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return nil, fmt.Errorf("bad --log-format %q: want text or json", format)
}
