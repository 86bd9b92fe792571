package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pulseboard/internal/app"
	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/events"
	"pulseboard/internal/health"
	"pulseboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Pulseboard CLI",
	Long: `Pulseboard computes project analytics and produces scheduled reports.
- Workspace: a directory holding pulseboard.yml and the .pulseboard database.
- Snapshot: projects, tasks, partners and reminders imported with 'pulse import'.
- Dashboards: overview, health scores, progress and the manager view are computed on demand.
- Report configs: weekly or monthly schedules; 'pulse scheduler run' generates and delivers due reports.
- Event log: every config change, generation and delivery, view with 'pulse log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PULSEBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/pulseboard.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(schedulerCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default pulseboard.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			fmt.Println("Database:", db.Path(viper.GetString("workspace")))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a project snapshot (YAML or JSON)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			snap, err := engine.ParseSnapshot(data)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				summary, err := a.Engine.ImportSnapshot(ctx, snap, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("Imported %d projects, %d tasks (%d open), %d partners, %d reminders\n",
					summary.Projects, summary.Tasks, summary.OpenTasks, summary.Partners, summary.Reminders)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func dashboardCmd() *cobra.Command {
	dash := &cobra.Command{Use: "dashboard", Short: "Show computed dashboards"}

	var userID string
	overview := &cobra.Command{
		Use:   "overview",
		Short: "Overview metrics and distributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.GetOverview(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				o := res.Overview
				tw := newTable()
				tw.AppendHeader(table.Row{"Metric", "Value"})
				tw.AppendRows([]table.Row{
					{"Projects", o.TotalProjects},
					{"Active projects", o.ActiveProjects},
					{"Completed projects", o.CompletedProjects},
					{"Tasks", o.TotalTasks},
					{"Completed tasks", o.CompletedTasks},
					{"Pending tasks", o.PendingTasks},
					{"Overdue tasks", o.OverdueTasks},
					{"Completion rate %", o.CompletionRate},
					{"Active partners", o.ActivePartners},
					{"Pending reminders", o.PendingReminders},
				})
				tw.Render()
				return nil
			})
		},
	}
	overview.Flags().StringVar(&userID, "user", "", "only count work involving this user")

	var stats bool
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Project health scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if stats {
					s, err := a.Engine.GetHealthScoreStatistics(ctx)
					if err != nil {
						return err
					}
					return printJSON(s)
				}
				scores, err := a.Engine.GetAllProjectsHealthScores(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(scores)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Project", "Score", "Bucket", "On time %", "Completion %", "Budget %"})
				for _, s := range scores {
					tw.AppendRow(table.Row{s.ProjectName, s.TotalScore, health.BucketOf(s.TotalScore), s.OnTimeRate, s.CompletionRate, s.BudgetHealth})
				}
				tw.Render()
				return nil
			})
		},
	}
	healthCmd.Flags().BoolVar(&stats, "stats", false, "show population statistics")

	progress := &cobra.Command{
		Use:   "progress",
		Short: "Project progress and timeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.GetProjectProgress(ctx)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}

	var period string
	manager := &cobra.Command{
		Use:   "manager",
		Short: "Manager dashboard for a trailing period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.GetManagerDashboard(ctx, period)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	manager.Flags().StringVar(&period, "period", "monthly", "weekly, monthly or quarterly")

	dash.AddCommand(overview, healthCmd, progress, manager)
	return dash
}

func schedulerCmd() *cobra.Command {
	sched := &cobra.Command{Use: "scheduler", Short: "Run scheduled reports"}
	run := &cobra.Command{
		Use:   "run",
		Short: "Trigger due report configs on the configured interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return app.RunScheduler(ctx, a.Engine, a.Config.Scheduler.Interval, a.Logger)
			})
		},
	}
	sched.AddCommand(run)
	return sched
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListEvents(ctx, events.Filter{Type: evtType, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + " " + ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var withScheduler, allowActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:              viper.GetString("jwt-secret"),
					AllowLegacyActorHeader: allowActorHeader,
					AllowDevLogin:          devLogin,
					Logger:                 a.Logger,
				}
				if authCfg.JWTSecret == "" && !allowActorHeader {
					return fmt.Errorf("PULSEBOARD_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth:     authCfg,
					Metrics:  a.Metrics.Handler(),
					Logger:   a.Logger,
				})
				if err != nil {
					return err
				}
				if withScheduler {
					go app.RunScheduler(ctx, a.Engine, a.Config.Scheduler.Interval, a.Logger)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving Pulseboard API",
					slog.String("addr", addr),
					slog.String("base_path", basePath),
					slog.Bool("scheduler", withScheduler))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().BoolVar(&withScheduler, "scheduler", false, "also run the report scheduler")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept X-Actor-Id without a token (local use only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}

// --- helpers ---

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return app.NewLogger(os.Stderr, viper.GetBool("log-json"), level)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Logger:     newLogger(),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func configRow(c domain.ReportConfig) table.Row {
	next := "-"
	if c.NextRunAt != nil {
		next = c.NextRunAt.Format(time.RFC3339)
	}
	return table.Row{c.ID, c.Name, c.Period, c.SendTime, c.Format, c.Status, next}
}
