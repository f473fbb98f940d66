package main

import (
	"bytes"
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

	"opsline/internal/config"
	"opsline/internal/db"
	"opsline/internal/domain"
	"opsline/internal/engine"
	"opsline/internal/migrate"
	"opsline/internal/repo"
	"opsline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ol",
	Short: "Opsline CLI",
	Long: `Opsline tracks operational work: SOPs, jobs, tasks and logged hours.
Core concepts:
- Workspace: your .opsline directory holding the local cache (and, for serve, the store database).
- SOPs: reusable step-by-step procedures; archive instead of delete so old task steps can still reference them.
- Jobs: units of delivery made of tasks; status and progress are derived from the tasks, never edited by hand.
- Tasks: step-bearing work items; completing steps drives task progress, task completion drives job progress.
- Hours: per-user per-day work entries with a summary view.
- Activity: the diary of who did what, written automatically on every change.
Without a remote URL in opsline.yml everything lives in the local cache; with one, writes go
to the remote store first and other devices pick them up over the change feed.`,
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
	viper.SetEnvPrefix("OPSLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("actor-name", "", "actor display name")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-name", rootCmd.PersistentFlags().Lookup("actor-name"))
}

func registerCommands() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(sopCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(hoursCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(serveCmd())
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				out := map[string]any{
					"mode":     e.Mode().String(),
					"sops":     len(e.SOPs.Items()),
					"jobs":     len(e.Jobs.Items()),
					"tasks":    len(e.Tasks.Items()),
					"hours":    len(e.Hours.Items()),
					"activity": len(e.Activity.Items()),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Mode: %s\n", e.Mode())
				fmt.Printf("SOPs: %d  Jobs: %d  Tasks: %d  Hours entries: %d  Activity: %d\n",
					out["sops"], out["jobs"], out["tasks"], out["hours"], out["activity"])
				return nil
			})
		},
	}
	return cmd
}

func sopCmd() *cobra.Command {
	sop := &cobra.Command{
		Use:   "sop",
		Short: "Manage SOPs",
		Long:  "SOPs are reusable procedures made of ordered steps. Archiving keeps them referenceable from task steps; it never deletes.",
	}
	sop.AddCommand(sopListCmd())
	sop.AddCommand(sopAddCmd())
	sop.AddCommand(sopShowCmd())
	sop.AddCommand(sopArchiveCmd())
	sop.AddCommand(sopRestoreCmd())
	return sop
}

func sopListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List SOPs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items := e.ActiveSOPs()
				if all {
					items = e.SOPs.Items()
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Steps", "Status"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Title, s.Category, len(s.Steps), s.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include archived SOPs")
	return cmd
}

func sopAddCmd() *cobra.Command {
	var title, description, category string
	var steps []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an SOP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s := domain.SOP{Title: title, Description: description, Category: category}
				for i, st := range steps {
					s.Steps = append(s.Steps, domain.Step{
						ID:    fmt.Sprintf("step-%d", i+1),
						Title: st,
					})
				}
				created, err := e.AddSOP(ctx, s)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringArrayVar(&steps, "step", []string{}, "step title (repeatable, in order)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func sopShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an SOP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, ok := e.SOPs.Get(args[0])
				if !ok {
					return fmt.Errorf("unknown sop %s", args[0])
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sopArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive an SOP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.ArchiveSOP(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sopRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an archived SOP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.RestoreSOP(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
		Long:  "Jobs aggregate tasks. Their status, progress and completion stamps are derived from the tasks; archive to freeze a job out of derivation.",
	}
	job.AddCommand(jobListCmd())
	job.AddCommand(jobAddCmd())
	job.AddCommand(jobArchiveCmd())
	job.AddCommand(jobRestoreCmd())
	return job
}

func jobListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				jobs := e.Jobs.Items()
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Tasks", "Progress"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{
						j.ID, j.Title, j.Status,
						fmt.Sprintf("%d/%d", j.CompletedTasks, j.TotalTasks),
						fmt.Sprintf("%d%%", j.Progress),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func jobAddCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				j, err := e.AddJob(ctx, domain.Job{Title: title, Description: description})
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func jobArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				j, err := e.ArchiveJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an archived job and rederive its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				j, err := e.RestoreJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage job tasks",
		Long:  "Tasks carry the completion set. Complete steps one by one, or toggle the whole task; a task without steps completes as a single unit.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStepDoneCmd())
	task.AddCommand(taskStepUndoCmd())
	task.AddCommand(taskToggleCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks := e.Tasks.Items()
				if jobID != "" {
					tasks = e.TasksForJob(jobID)
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Title", "Status", "Progress", "Steps"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{
						t.ID, t.JobID, t.Title, t.Status,
						fmt.Sprintf("%d%%", t.Progress),
						fmt.Sprintf("%d/%d", len(t.CompletedSteps), len(t.Steps)),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "filter by job id")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var jobID, title, description, dueDate string
	var steps []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task to a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t := domain.JobTask{JobID: jobID, Title: title, Description: description, DueDate: dueDate}
				for i, st := range steps {
					t.Steps = append(t.Steps, domain.Step{
						ID:    fmt.Sprintf("step-%d", i+1),
						Title: st,
					})
				}
				created, err := e.AddTask(ctx, t)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&steps, "step", []string{}, "step title (repeatable, in order)")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, ok := e.Tasks.Get(args[0])
				if !ok {
					return fmt.Errorf("unknown task %s", args[0])
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("%s  %s [%s] %d%%\n", t.ID, t.Title, t.Status, t.Progress)
				done := map[string]bool{}
				for _, s := range t.CompletedSteps {
					done[s] = true
				}
				for _, s := range t.Steps {
					mark := "[ ]"
					if done[s.ID] {
						mark = "[x]"
					}
					fmt.Printf("  %s %s  %s\n", mark, s.ID, s.Title)
				}
				return nil
			})
		},
	}
	return cmd
}

func taskStepDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step-done <task-id> <step-id>",
		Short: "Complete a step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CompleteStep(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskStepUndoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step-undo <task-id> <step-id>",
		Short: "Reopen a completed step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.UncompleteStep(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Toggle a whole task between complete and not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.ToggleTaskComplete(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func hoursCmd() *cobra.Command {
	hours := &cobra.Command{
		Use:   "hours",
		Short: "Log and review work hours",
	}
	hours.AddCommand(hoursLogCmd())
	hours.AddCommand(hoursListCmd())
	hours.AddCommand(hoursSummaryCmd())
	return hours
}

func hoursLogCmd() *cobra.Command {
	var date, note string
	var minutes int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a work entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().UTC().Format("2006-01-02")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				w, err := e.LogHours(ctx, date, minutes, note)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "minutes worked")
	cmd.Flags().StringVar(&note, "note", "", "note")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func hoursListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				entries := e.Hours.Items()
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Date", "Minutes", "Note"})
				for _, w := range entries {
					tw.AppendRow(table.Row{w.ID, w.UserID, w.Date, w.Minutes, w.Note})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func hoursSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Total minutes per user per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				summary := e.HoursSummary()
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "User", "Minutes"})
				for _, row := range summary {
					tw.AppendRow(table.Row{row.Date, row.UserID, row.Minutes})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Activity log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Newest activity entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				entries := e.RecentActivity(n)
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"At", "Actor", "Action", "Entity", "Title", "Details"})
				for _, a := range entries {
					tw.AppendRow(table.Row{a.CreatedAt, a.ActorID, a.Action,
						fmt.Sprintf("%s/%s", a.EntityKind, a.EntityID), a.EntityTitle, a.Details})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func authCmd() *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Remote store authentication",
	}
	auth.AddCommand(authTokenCmd())
	return auth
}

// authTokenCmd mints a dev token from a server started with --dev-auth
// and prints it for use in opsline.yml.
func authTokenCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := config.Load(viper.GetString("workspace"))
				if err != nil {
					return err
				}
				url = cfg.Remote.URL
			}
			if url == "" {
				return fmt.Errorf("--url or remote.url in opsline.yml required")
			}
			body, _ := json.Marshal(map[string]string{
				"actor_id":   viper.GetString("actor-id"),
				"actor_name": viper.GetString("actor-name"),
			})
			resp, err := http.Post(strings.TrimRight(url, "/")+"/v0/auth/token", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("mint token: server returned %s", resp.Status)
			}
			var out struct {
				Token     string `json:"token"`
				ExpiresAt string `json:"expires_at"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			return printJSONOrTable(out)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "server base URL (default remote.url from opsline.yml)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the remote store HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			secret := cfg.Server.JWTSecret
			if env := os.Getenv("OPSLINE_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("OPSLINE_JWT_SECRET or server.jwt_secret is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Repo:     repo.Repo{DB: conn},
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret: secret,
					DevAuth:   devAuth || cfg.Server.DevAuth,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Opsline store API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devAuth, "dev-auth", false, "enable the dev token endpoint")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e, err := engine.New(engine.Options{Workspace: workspace, Config: cfg})
	if err != nil {
		return err
	}
	defer e.Close()
	actorName := viper.GetString("actor-name")
	if actorName == "" {
		actorName = viper.GetString("actor-id")
	}
	e.Login(domain.Actor{ID: viper.GetString("actor-id"), Name: actorName}, cfg.Remote.Token)
	if err := e.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, e)
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
