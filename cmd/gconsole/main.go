// Command gconsole runs a program on a virtual console served over 9P, or
// exports the console tree to a remote client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keaganluttrell/gconsole/console"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var defaultLogFormatter = &log.TextFormatter{}

// infoFormatter prints Info events as bare messages.
type infoFormatter struct{}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

type globalFlags struct {
	config string
	debug  bool
	quiet  bool
	blind  bool
}

// loadConfig merges the config file, the environment and the flags.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (console.Config, error) {
	cfg, err := console.LoadConfig(g.config)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("blind") {
		cfg.Blind = g.blind
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = g.debug
	}
	if cfg.Debug {
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.DebugLevel)
	}
	return cfg, nil
}

func setupLogging(quiet, debug bool) error {
	log.SetFormatter(new(infoFormatter))
	log.SetLevel(log.InfoLevel)
	switch {
	case quiet && debug:
		return errors.New("can't set quiet and debug flag at the same time")
	case quiet:
		log.SetLevel(log.ErrorLevel)
	case debug:
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

func newCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:   "gconsole [flags] [-- program [args...]]",
		Short: "run a program on a 9P virtual console",
		Long: `Run a program with its standard input and output on the cons file of a
virtual console. Input typed on the terminal is fed to the console's in
stream and echoed, and everything on the out stream is shown on the
terminal. Without a program, the configured one runs, or $SHELL.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(g.quiet, g.debug)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			argv, err := programArgs(cfg, args)
			if err != nil {
				return err
			}
			return runConsole(cmd.Context(), cfg, argv, os.Stdin, os.Stdout)
		},
	}

	cmd.AddCommand(serveCmd(&g))

	cmd.PersistentFlags().StringVarP(&g.config, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&g.debug, "debug", "d", false, "Log every 9P message")
	cmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().BoolVarP(&g.blind, "blind", "b", false, "Do not echo input and refuse raw mode")

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCmd().ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
