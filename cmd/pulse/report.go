package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pulseboard/internal/app"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/repo"
)

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Manage report configs and generated reports"}
	rep.AddCommand(reportConfigCmd())
	rep.AddCommand(reportTriggerCmd())
	rep.AddCommand(reportGenerateCmd())
	rep.AddCommand(reportListCmd())
	rep.AddCommand(reportShowCmd())
	rep.AddCommand(reportRedeliverCmd())
	return rep
}

func reportConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage recurring report configs"}
	cfg.AddCommand(configCreateCmd())
	cfg.AddCommand(configListCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configUpdateCmd())
	cfg.AddCommand(configDeleteCmd())
	cfg.AddCommand(configLifecycleCmd("activate", "Schedule a paused config"))
	cfg.AddCommand(configLifecycleCmd("pause", "Stop scheduling a config"))
	return cfg
}

func configCreateCmd() *cobra.Command {
	var (
		in                    engine.ReportConfigInput
		description           string
		dayOfWeek, dayOfMonth int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a report config",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Description = optionalString(description)
			if cmd.Flags().Changed("day-of-week") {
				in.DayOfWeek = &dayOfWeek
			}
			if cmd.Flags().Changed("day-of-month") {
				in.DayOfMonth = &dayOfMonth
			}
			in.ActorID = viper.GetString("actor-id")
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.CreateReportConfig(ctx, in)
				if err != nil {
					return err
				}
				return printConfig(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "config name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&in.Period, "period", domain.PeriodWeekly, "weekly or monthly")
	cmd.Flags().IntVar(&dayOfWeek, "day-of-week", 1, "0=Sunday..6=Saturday (weekly)")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 1, "1..31 (monthly)")
	cmd.Flags().StringVar(&in.SendTime, "send-time", "09:00", "HH:MM in the configured timezone")
	cmd.Flags().StringSliceVar(&in.Recipients, "recipient", nil, "recipient address (repeatable)")
	cmd.Flags().StringVar(&in.Format, "format", "", "csv, xlsx or json (default reports.default_format)")
	cmd.Flags().BoolVar(&in.Paused, "paused", false, "create without scheduling")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func configListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List report configs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListReportConfigs(ctx, repo.ReportConfigFilter{Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Period", "Send", "Format", "Status", "Next run"})
				for _, c := range items {
					tw.AppendRow(configRow(c))
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active or paused")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a report config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.GetReportConfig(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}

func configUpdateCmd() *cobra.Command {
	var (
		name, description, period, sendTime, format string
		dayOfWeek, dayOfMonth                       int
		recipients                                  []string
		clearDays                                   bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a report config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			p := engine.ReportConfigPatch{
				Recipients: recipients,
				ClearDays:  clearDays,
				ActorID:    viper.GetString("actor-id"),
			}
			if flags.Changed("name") {
				p.Name = &name
			}
			if flags.Changed("description") {
				p.Description = &description
			}
			if flags.Changed("period") {
				p.Period = &period
			}
			if flags.Changed("send-time") {
				p.SendTime = &sendTime
			}
			if flags.Changed("format") {
				p.Format = &format
			}
			if flags.Changed("day-of-week") {
				p.DayOfWeek = &dayOfWeek
			}
			if flags.Changed("day-of-month") {
				p.DayOfMonth = &dayOfMonth
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.UpdateReportConfig(ctx, args[0], p)
				if err != nil {
					return err
				}
				return printConfig(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "config name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&period, "period", "", "weekly or monthly")
	cmd.Flags().IntVar(&dayOfWeek, "day-of-week", 0, "0=Sunday..6=Saturday")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "1..31")
	cmd.Flags().StringVar(&sendTime, "send-time", "", "HH:MM")
	cmd.Flags().StringSliceVar(&recipients, "recipient", nil, "replace recipients (repeatable)")
	cmd.Flags().StringVar(&format, "format", "", "csv, xlsx or json")
	cmd.Flags().BoolVar(&clearDays, "clear-days", false, "clear both day fields first (use when switching period)")
	return cmd
}

func configDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a report config; its generated reports are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteReportConfig(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("Deleted", args[0])
				return nil
			})
		},
	}
}

func configLifecycleCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fn := a.Engine.Activate
				if action == "pause" {
					fn = a.Engine.Pause
				}
				c, err := fn(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printConfig(c)
			})
		},
	}
}

func reportTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Generate and deliver every due report config once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				summary, err := a.Engine.TriggerScheduled(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("Due %d: %d completed, %d failed, %d delivered, %d delivery failures\n",
					summary.Due, summary.Completed, summary.Failed, summary.Delivered, summary.DeliveryFailed)
				return nil
			})
		},
	}
}

func reportGenerateCmd() *cobra.Command {
	var reportType, format, from, to, out, configID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report now",
		Long: `Without --config an ad-hoc report of --type is rendered and written to --out.
With --config the config's report is generated immediately without delivery and
without moving its schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actorID := viper.GetString("actor-id")
				if configID != "" {
					rep, err := a.Engine.GenerateNow(ctx, &configID, actorID)
					if err != nil {
						return err
					}
					return printJSON(rep)
				}
				loc := a.Config.Location()
				start, err := parseDay(from, loc, false)
				if err != nil {
					return err
				}
				end, err := parseDay(to, loc, true)
				if err != nil {
					return err
				}
				file, err := a.Engine.GenerateReport(ctx, engine.ReportRequest{
					ReportType: reportType,
					Format:     format,
					StartDate:  start,
					EndDate:    end,
					ActorID:    actorID,
				})
				if err != nil {
					return err
				}
				if out == "" {
					out = file.FileName
				}
				if out == "-" {
					_, err := os.Stdout.Write(file.FileContent)
					return err
				}
				if err := os.WriteFile(out, file.FileContent, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Wrote %s (report %s)\n", out, file.Report.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reportType, "type", domain.PeriodWeekly, "weekly, monthly or custom")
	cmd.Flags().StringVar(&format, "format", "", "csv, xlsx or json (default reports.default_format)")
	cmd.Flags().StringVar(&from, "from", "", "custom range start (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "custom range end, inclusive (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default the report file name)")
	cmd.Flags().StringVar(&configID, "config", "", "generate this config's report instead")
	return cmd
}

func reportListCmd() *cobra.Command {
	var f repo.GeneratedReportFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generated reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListGeneratedReports(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Period", "Format", "Status", "Created", "Sent to"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Title, r.Period, r.Format, r.Status, r.CreatedAt.Format(time.RFC3339), len(r.SentTo)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ReportConfigID, "config", "", "only reports of this config")
	cmd.Flags().StringVar(&f.Status, "status", "", "pending, completed or failed")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum number of reports")
	return cmd
}

func reportShowCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a generated report, optionally saving its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				r, err := a.Engine.GetGeneratedReport(ctx, args[0])
				if err != nil {
					return err
				}
				if out != "" {
					if r.Status != domain.ReportCompleted {
						return fmt.Errorf("report %s is %s", r.ID, r.Status)
					}
					return os.WriteFile(out, r.Content, 0o644)
				}
				return printJSON(r)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the report content to this file")
	return cmd
}

func reportRedeliverCmd() *cobra.Command {
	var recipients []string
	cmd := &cobra.Command{
		Use:   "redeliver <id>",
		Short: "Deliver a completed report again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				r, err := a.Engine.RedeliverReport(ctx, args[0], recipients, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(r)
			})
		},
	}
	cmd.Flags().StringSliceVar(&recipients, "recipient", nil, "override recipients (repeatable)")
	return cmd
}

func printConfig(c domain.ReportConfig) error {
	if viper.GetBool("json") {
		return printJSON(c)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Period", "Send", "Format", "Status", "Next run"})
	tw.AppendRow(configRow(c))
	tw.Render()
	return nil
}

// parseDay reads a date or RFC3339 timestamp. Date-only ends cover the whole day.
func parseDay(s string, loc *time.Location, end bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", s)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
