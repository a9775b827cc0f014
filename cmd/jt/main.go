package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobtrail/internal/app"
	"jobtrail/internal/config"
	"jobtrail/internal/db"
	"jobtrail/internal/domain"
	"jobtrail/internal/engine"
	"jobtrail/internal/scheduler"
	"jobtrail/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "jt",
	Short: "JobTrail CLI",
	Long: `JobTrail tracks job applications from first save to final answer.
Core concepts:
- Workspace: your .jobtrail directory holding the database; jobtrail.yml tunes reminders.
- Application: one tracked job posting; statuses go saved -> applied -> screening ->
  interview_scheduled -> interview_completed -> offer_received -> accepted
  (rejected/withdrawn exit from any active status, stages can be skipped forward).
- Timeline: append-only diary of everything that happened to an application.
- Progress: where an application sits in the pipeline, as a weighted percentage.
- Reminders: marking applied schedules a follow-up; 'jt reminders run' delivers due ones.
- Stats: response, interview and offer rates over your whole search.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("JOBTRAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(followupsCmd())
	rootCmd.AddCommand(remindersCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func appCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "app", Short: "Manage applications"}
	cmd.AddCommand(appCreateCmd())
	cmd.AddCommand(appListCmd())
	cmd.AddCommand(appShowCmd())
	cmd.AddCommand(appStatusCmd())
	cmd.AddCommand(appDeleteCmd())
	return cmd
}

func appDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <application-id>",
		Short: "Delete an application and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteApplication(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func appCreateCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start tracking a job application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("actor-id")
				a, err := e.CreateApplication(ctx, actor, jobID, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job identifier")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func appListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListApplications(ctx, viper.GetString("actor-id"), status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Status", "Applied", "Follow-up"})
				for _, a := range items {
					followUp := ""
					if a.FollowUpDate != nil {
						followUp = *a.FollowUpDate
					}
					tw.AppendRow(table.Row{a.ID, a.JobID, a.Status, a.AppliedAt, followUp})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func appShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <application-id>",
		Short: "Show one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetApplication(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func appStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <application-id> <status>",
		Short: "Change an application's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Transition(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func noteCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "note", Short: "Manage application notes"}
	cmd.AddCommand(noteAddCmd())
	cmd.AddCommand(noteListCmd())
	cmd.AddCommand(noteEditCmd())
	cmd.AddCommand(noteDeleteCmd())
	return cmd
}

func noteAddCmd() *cobra.Command {
	var noteType, content string
	cmd := &cobra.Command{
		Use:   "add <application-id>",
		Short: "Attach a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AddNote(ctx, args[0], noteType, content, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&noteType, "type", domain.NoteGeneral, "note type (general, interview, feedback, follow-up)")
	cmd.Flags().StringVar(&content, "content", "", "note content")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func noteListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <application-id>",
		Short: "List notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListNotes(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Content", "Updated"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Type, n.Content, n.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func noteEditCmd() *cobra.Command {
	var noteType, content string
	cmd := &cobra.Command{
		Use:   "edit <application-id> <note-id>",
		Short: "Edit a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts engine.NoteUpdateOptions
			if cmd.Flags().Changed("type") {
				opts.Type = &noteType
			}
			if cmd.Flags().Changed("content") {
				opts.Content = &content
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.UpdateNote(ctx, args[0], args[1], opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&noteType, "type", "", "note type")
	cmd.Flags().StringVar(&content, "content", "", "note content")
	return cmd
}

func noteDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <application-id> <note-id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteNote(ctx, args[0], args[1], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func timelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <application-id>",
		Short: "Show the full audit trail for an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.GetTimeline(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "When", "Event", "Actor", "Metadata"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.CreatedAt, ev.EventType, ev.ActorID, ev.Metadata})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func progressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <application-id>",
		Short: "Show pipeline position and weight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ComputeProgress(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Application: %s\n", p.ApplicationID)
				fmt.Printf("Status: %s (%d%%)\n", p.CurrentStatus, p.CurrentWeight)
				if p.IsTerminal {
					fmt.Printf("Closed: %s\n", p.TerminalReason)
				}
				fmt.Println("Stages:")
				for _, status := range []string{
					domain.StatusSaved, domain.StatusApplied, domain.StatusScreening,
					domain.StatusInterviewScheduled, domain.StatusInterviewCompleted,
					domain.StatusOfferReceived, domain.StatusAccepted,
				} {
					reached := "-"
					if ts := p.StageTimestamps[status]; ts != nil {
						reached = *ts
					}
					fmt.Printf("  %-20s %s\n", status, reached)
				}
				return nil
			})
		},
	}
	return cmd
}

func followupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "followups",
		Short: "List applications with a scheduled follow-up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListFollowUps(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Status", "Follow-up", "Last reminded"})
				for _, a := range items {
					followUp, reminded := "", ""
					if a.FollowUpDate != nil {
						followUp = *a.FollowUpDate
					}
					if a.LastReminderSentAt != nil {
						reminded = *a.LastReminderSentAt
					}
					tw.AppendRow(table.Row{a.ID, a.JobID, a.Status, followUp, reminded})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "reminders", Short: "Follow-up reminders"}
	cmd.AddCommand(remindersRunCmd())
	cmd.AddCommand(remindersSendCmd())
	return cmd
}

func remindersRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deliver all due follow-up reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, err := e.RunReminders(ctx, time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(run)
				}
				fmt.Printf("examined=%d sent=%d skipped=%d failed=%d\n",
					run.Examined, run.Sent, run.Skipped, run.Failed)
				return nil
			})
		},
	}
	return cmd
}

func remindersSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <application-id>",
		Short: "Deliver a reminder for one application now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.TriggerReminder(ctx, args[0], viper.GetString("actor-id"), time.Now()); err != nil {
					return err
				}
				fmt.Println("reminder sent")
				return nil
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show search statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.ComputeStatistics(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Applications: %d\n", stats.Total)
				fmt.Println("By status:")
				for status, c := range stats.ByStatus {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Printf("Response rate: %s\n", formatRate(stats.ResponseRate))
				fmt.Printf("Interview conversion: %s\n", formatRate(stats.InterviewConversionRate))
				fmt.Printf("Offer rate: %s\n", formatRate(stats.OfferRate))
				if stats.AvgResponseTimeDays != nil {
					fmt.Printf("Avg response time: %.1f days\n", *stats.AvgResponseTimeDays)
				} else {
					fmt.Println("Avg response time: n/a")
				}
				fmt.Printf("Events in the last 30 days: %d\n", stats.RecentActivity)
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default jobtrail.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			ac, err := app.Load(workspace)
			if err != nil {
				return err
			}
			defer ac.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("JOBTRAIL_JWT_SECRET"),
				AllowLegacyActorHeader: true,
				DefaultActor:           viper.GetString("actor-id"),
				Logger:                 ac.Log,
			}
			handler, err := server.New(server.Config{Engine: ac.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}

			if withScheduler {
				interval := 24 * time.Hour
				if h := ac.Config.Reminders.IntervalHours; h > 0 {
					interval = time.Duration(h) * time.Hour
				}
				sched := scheduler.NewIntervalScheduler(interval)
				if err := sched.Start(cmd.Context(), func(t time.Time) {
					run, err := ac.Engine.RunReminders(cmd.Context(), t)
					if err != nil {
						ac.Log.Error("reminder run failed", "error", err)
						return
					}
					ac.Log.Info("reminder run finished",
						"examined", run.Examined, "sent", run.Sent,
						"skipped", run.Skipped, "failed", run.Failed)
				}); err != nil {
					return err
				}
				defer sched.Stop()
			}

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving JobTrail API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", true, "run the periodic reminder job")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ac, err := app.Load(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ac.Close()
	return fn(ctx, ac.Engine)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatRate(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v)
}
