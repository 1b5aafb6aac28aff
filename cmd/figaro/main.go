// Package main is the entry point for the Figaro CLI: a local-first
// personal assistant that plans, calls capabilities, and runs scheduled
// tasks in the background.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/figaro-ai/figaro/internal/agent"
	"github.com/figaro-ai/figaro/internal/config"
	"github.com/figaro-ai/figaro/internal/data"
	"github.com/figaro-ai/figaro/internal/llm"
	"github.com/figaro-ai/figaro/internal/logging"
	"github.com/figaro-ai/figaro/internal/planner"
	"github.com/figaro-ai/figaro/internal/scheduler"
	"github.com/figaro-ai/figaro/internal/tools"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "figaro",
		Short: "Figaro - personal assistant with planning, tools and scheduled tasks",
		Long: `Figaro is a personal assistant agent that talks to any OpenAI-compatible
model endpoint. It classifies each request, plans multi-step work, calls
capabilities (web search, browsing, HTTP, memory, scheduling), and runs
scheduled tasks in the background.

Interactive chat:   figaro chat
One-shot question:  figaro chat "what's the weather in Porto?"
Background daemon:  figaro daemon
Scheduled tasks:    figaro task list`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return chatMain(cmd.Context(), args)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.figaro/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show model reasoning and debug logs")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Figaro v%s\n", version)
		},
	})
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired application components.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	closeLog func()
	store    *data.Store
	runner   *agent.Runner
	sched    *scheduler.Scheduler
}

// newApp loads config and wires the full pipeline: store, model client,
// capability registry, executor, planner, runner, scheduler.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	log, closeLog, err := logging.Setup(logging.Options{
		Level:   level,
		Dir:     dataDir,
		FileLog: cfg.Logging.File,
		Console: verbose,
	})
	if err != nil {
		return nil, err
	}

	store, err := data.Open(dataDir)
	if err != nil {
		closeLog()
		return nil, err
	}

	client, err := llm.NewOpenAIClient(llm.ClientConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		store.Close()
		closeLog()
		return nil, err
	}

	memoryPath, err := cfg.MemoryPath()
	if err != nil {
		store.Close()
		closeLog()
		return nil, err
	}

	registry := tools.NewRegistry(logging.Component(log, "tools"))
	registry.MustRegister(
		tools.NewSearchTool(cfg.Tools.Search.MaxResults),
		tools.NewBrowseTool(cfg.Tools.Browse.MaxChars),
		tools.NewHTTPTool(),
		tools.NewMemoryTool(memoryPath),
	)

	exec := agent.NewExecutor(client, registry, store,
		cfg.Agent.MaxIterations, cfg.Agent.HistoryWindow,
		logging.Component(log, "executor"))
	plannerModel := cfg.LLM.PlannerModel
	p := planner.New(client, plannerModel, logging.Component(log, "planner"))
	runner := agent.NewRunner(exec, p, registry, memoryPath, logging.Component(log, "runner"))

	sched := scheduler.New(store, runner, cfg.Scheduler.TickInterval, logging.Component(log, "scheduler"))
	registry.MustRegister(tools.NewScheduleTool(sched))

	return &app{
		cfg:      cfg,
		log:      log,
		closeLog: closeLog,
		store:    store,
		runner:   runner,
		sched:    sched,
	}, nil
}

func (a *app) close() {
	a.sched.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close store")
	}
	a.closeLog()
}

// ---------------------------------------------------------------------------
// chat

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with Figaro (interactive, or one-shot with a prompt argument)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return chatMain(cmd.Context(), args)
		},
	}
}

func chatMain(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Scheduler.Enabled {
		a.sched.Subscribe(func(n scheduler.Notification) {
			fmt.Printf("\n[task %s] %s\n", n.TaskID, n.Result)
		})
		a.sched.Start()
	}

	conv, err := a.store.CreateConversation(ctx, firstWords(strings.Join(args, " "), 8))
	if err != nil {
		return err
	}

	if len(args) > 0 {
		return runTurn(ctx, a, conv.ID, strings.Join(args, " "))
	}

	fmt.Printf("Figaro v%s. Type your message, or /quit to exit.\n", version)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}
		if err := runTurn(ctx, a, conv.ID, input); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

// runTurn streams one turn to the terminal: tokens to stdout, tool
// activity and (with -v) reasoning to stderr.
func runTurn(ctx context.Context, a *app, conversationID, input string) error {
	inReasoning := false
	_, err := a.runner.RunTurn(ctx, conversationID, input, func(e agent.Event) {
		switch e.Type {
		case agent.EventToken:
			if inReasoning {
				fmt.Fprintln(os.Stderr)
				inReasoning = false
			}
			fmt.Print(e.Content)
		case agent.EventReasoning:
			if verbose {
				fmt.Fprint(os.Stderr, e.Content)
				inReasoning = true
			}
		case agent.EventToolStart:
			fmt.Fprintf(os.Stderr, "\n[%s] %s\n", e.Tool, e.Content)
		case agent.EventToolEnd:
			fmt.Fprintf(os.Stderr, "[%s] done\n", e.Tool)
		case agent.EventError:
			fmt.Fprintf(os.Stderr, "\n[error] %s\n", e.Content)
		case agent.EventDone:
			fmt.Println()
		}
	})
	return err
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "chat"
	}
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// ---------------------------------------------------------------------------
// daemon

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the task scheduler in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			a.sched.Subscribe(func(n scheduler.Notification) {
				a.log.Info().
					Str("task", n.TaskID).
					Str("outcome", n.Outcome).
					Str("result", n.Result).
					Msg("task notification")
			})
			a.sched.Start()
			fmt.Println("figaro daemon running, Ctrl-C to stop")

			<-cmd.Context().Done()
			fmt.Println("\nshutting down")
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// task

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage scheduled tasks",
	}
	cmd.AddCommand(taskAddCmd(), taskListCmd(), taskStatusCmd("pause"),
		taskStatusCmd("resume"), taskStatusCmd("cancel"), taskRunCmd(), taskRunsCmd())
	return cmd
}

func taskAddCmd() *cobra.Command {
	var kind, value string
	var notify bool
	cmd := &cobra.Command{
		Use:   "add <prompt>",
		Short: "Schedule a prompt (once at a time, on an interval, or by cron)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			task, err := a.sched.Create(cmd.Context(), "", strings.Join(args, " "), kind, value, notify)
			if err != nil {
				return err
			}
			fmt.Printf("task %s scheduled, first run %s\n", task.ID, task.NextRunAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "once", "schedule kind: once, interval, cron")
	cmd.Flags().StringVar(&value, "value", "", "RFC3339 time (once), milliseconds (interval), or cron expression")
	cmd.Flags().BoolVar(&notify, "notify", true, "notify when a run finishes")
	cmd.MarkFlagRequired("value")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			tasks, err := a.sched.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("no scheduled tasks")
				return nil
			}
			for _, t := range tasks {
				next := "-"
				if t.NextRunAt != nil {
					next = t.NextRunAt.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%s  %-9s %-8s next=%s  %s\n", t.ID, t.Status, t.Kind, next, t.Prompt)
			}
			return nil
		},
	}
}

func taskStatusCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <task-id>",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			var actErr error
			switch action {
			case "pause":
				actErr = a.sched.Pause(cmd.Context(), args[0])
			case "resume":
				actErr = a.sched.Resume(cmd.Context(), args[0])
			case "cancel":
				actErr = a.sched.Cancel(cmd.Context(), args[0])
			}
			if actErr != nil {
				return actErr
			}
			fmt.Printf("ok: %s %s\n", action, args[0])
			return nil
		},
	}
}

func taskRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task-id>",
		Short: "Run a scheduled task immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.sched.RunNow(cmd.Context(), args[0]); err != nil {
				return err
			}
			task, err := a.store.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(task.LastResult)
			return nil
		},
	}
}

func taskRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <task-id>",
		Short: "Show the run log of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			runs, err := a.sched.Runs(cmd.Context(), args[0], 50)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs yet")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %-7s %6dms  %s\n",
					r.RanAt.Local().Format("2006-01-02 15:04:05"), r.Outcome,
					r.Duration.Milliseconds(), r.Detail)
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// config

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				dir, err := config.DataDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "config.yaml")
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
