package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	aiassistant "github.com/jcqin2022/AIAssistant"
	"github.com/jcqin2022/AIAssistant/config"
	"github.com/jcqin2022/AIAssistant/engine"
	"github.com/jcqin2022/AIAssistant/server"
)

type rootFlags struct {
	configPath string
	executor   string
}

// factory builds an assistant; tests replace it.
type factory func(ctx context.Context, cfg *config.Config) (*aiassistant.Assistant, error)

func defaultFactory(ctx context.Context, cfg *config.Config) (*aiassistant.Assistant, error) {
	return aiassistant.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(defaultFactory)
}

func newRootCmdWith(build factory) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:          "aiassistant",
		Short:        "Multi-agent assistant backed by local script execution",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (yaml)")
	root.PersistentFlags().StringVar(&flags.executor, "executor", "", "worker executor: pc or cluster (overrides config)")

	open := func(cmd *cobra.Command) (*config.Config, *aiassistant.Assistant, error) {
		cfg, err := config.Load(flags.configPath)
		if err != nil {
			return nil, nil, err
		}
		if flags.executor != "" {
			if _, err := engine.ParseWorkerKind(flags.executor); err != nil {
				return nil, nil, err
			}
			cfg.Agent.Executor = flags.executor
		}
		a, err := build(cmd.Context(), cfg)
		if err != nil {
			return nil, nil, err
		}
		return cfg, a, nil
	}

	root.AddCommand(
		chatCmd(open),
		askCmd(open),
		serveCmd(open),
		versionCmd(),
	)
	return root
}

type opener func(cmd *cobra.Command) (*config.Config, *aiassistant.Assistant, error)

func chatCmd(open opener) *cobra.Command {
	var multi, verbose bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat; enter q to quit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if verbose {
				a.Engine().RegisterCallback(engine.NewLoggingCallback(func(msg string) {
					fmt.Fprintln(cmd.ErrOrStderr(), msg)
				}))
			}
			return chat(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout(), multi)
		},
	}
	cmd.Flags().BoolVar(&multi, "multi", false, "answer through the multi-agent pipeline")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print stage transitions")
	return cmd
}

func chat(ctx context.Context, a *aiassistant.Assistant, in io.Reader, out io.Writer, multi bool) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You << ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(question, "q") {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if question == "" {
			continue
		}

		answer, err := ask(ctx, a, question, multi)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Assistant >> %s\n", answer)
	}
}

func ask(ctx context.Context, a *aiassistant.Assistant, question string, multi bool) (string, error) {
	if !multi {
		return a.Ask(ctx, question)
	}
	s, err := a.RunOrchestration(ctx, question)
	if err != nil {
		return "", err
	}
	if s.Answer == "" && s.Clarification != "" {
		return s.Clarification, nil
	}
	return s.Answer, nil
}

func askCmd(open opener) *cobra.Command {
	var multi bool
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			answer, err := ask(cmd.Context(), a, strings.Join(args, " "), multi)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().BoolVar(&multi, "multi", false, "answer through the multi-agent pipeline")
	return cmd
}

func serveCmd(open opener) *cobra.Command {
	var addr string
	var single bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := server.New(a, func(o *server.Options) {
				o.Version = aiassistant.Version
				o.Orchestrate = !single
				o.Gatherer = a.Gatherer()
				o.Logger = a.Logger()
			})
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&single, "single", false, "answer GET /Ask with the single agent")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), aiassistant.Version)
		},
	}
}
