package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/remindd/internal/agenda"
	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/identity"
	"github.com/sandeepkv93/remindd/internal/reconcile"
	"github.com/sandeepkv93/remindd/internal/transfer"
	"github.com/sandeepkv93/remindd/internal/update"
	"github.com/sandeepkv93/remindd/internal/views"
)

func agendaCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agenda",
		Short: "Open the interactive agenda",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgenda(cmd.Context(), flags)
		},
	}
}

func runAgenda(ctx context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	// The terminal belongs to the UI, so logs go to a file.
	out, err := logFile(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer out.Close()

	a, err := newApp(flags, appOptions{logTo: out, reminders: true})
	if err != nil {
		return err
	}
	defer a.Close()
	stop, err := a.runBackground(ctx)
	if err != nil {
		return err
	}
	defer stop()

	m := update.NewModel(a.service, update.Options{
		Context:   ctx,
		Location:  a.loc,
		Reminders: a.reminders.C(),
		Identity:  a.session.Current,
	})
	program := tea.NewProgram(m, tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("agenda: %w", err)
	}
	return nil
}

func todayCmd(flags *rootFlags) *cobra.Command {
	var (
		week    bool
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Print today's agenda",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			tasks, err := a.service.List(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now().In(a.loc)
			out := cmd.OutOrStdout()
			if week {
				fmt.Fprintln(out, views.RenderWeek(agenda.Week(tasks, now, now)))
			} else {
				fmt.Fprintln(out, views.RenderDay(agenda.Day(tasks, now, now), -1))
			}
			if summary {
				fmt.Fprintln(out, views.RenderMarkdown(views.SummaryMarkdown(agenda.Summarize(tasks, now))))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&week, "week", "w", false, "show the next seven days")
	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "append status counts")
	return cmd
}

func syncCmd(flags *rootFlags) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run sync and reminder delivery until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if token != "" {
				if a.cfg.Auth.JWTSecret == "" {
					return errors.New("sync: --token needs auth.jwt_secret")
				}
				id, err := a.session.SignInWithToken(identity.NewTokenVerifier(a.cfg.Auth.JWTSecret, "remindd"), token)
				if err != nil {
					return err
				}
				a.logger.Info("signed in", "identity", id)
			}
			if err := a.requireRemote("sync"); err != nil {
				return err
			}
			stop, err := a.runBackground(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			<-cmd.Context().Done()
			a.logger.Info("shutting down", "stats", fmt.Sprintf("%+v", a.sync.Stats()))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "signed session token carrying the identity")
	return cmd
}

func resyncCmd(flags *rootFlags) *cobra.Command {
	var (
		overwrite bool
		push      bool
	)
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Reconcile local and remote tasks once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if overwrite && push {
				return errors.New("resync: use either --overwrite-local or --push")
			}
			a, err := newApp(flags, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireRemote("resync"); err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			switch {
			case overwrite:
				n, err := a.sync.OverwriteLocalWithRemote(ctx)
				if err != nil {
					return reportOffline(out, err)
				}
				fmt.Fprintf(out, "replaced local store with %d remote tasks\n", n)
			case push:
				n, err := a.sync.PushAll(ctx)
				fmt.Fprintf(out, "pushed %d tasks\n", n)
				if err != nil {
					return err
				}
			default:
				res, err := a.sync.ResolveAll(ctx)
				if err != nil {
					return reportOffline(out, err)
				}
				fmt.Fprintf(out, "pushed %d, pulled %d, removed %d, purged %d, failed %d\n",
					res.Pushed, res.Pulled, res.Removed, res.Purged, res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite-local", false, "replace local tasks with the remote copy")
	cmd.Flags().BoolVar(&push, "push", false, "push every local task")
	return cmd
}

func reportOffline(out io.Writer, err error) error {
	var offline *reconcile.OfflineError
	if errors.As(err, &offline) {
		fmt.Fprintln(out, offline.Error())
	}
	return err
}

func importCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import tasks from an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			decoded, err := transfer.Decode(data)
			if err != nil {
				return err
			}
			a, err := newApp(flags, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			for _, recErr := range decoded.Errors {
				fmt.Fprintf(out, "skipped record: %v\n", recErr)
			}
			summary, err := a.service.Import(cmd.Context(), decoded.Tasks)
			fmt.Fprintf(out, "imported %d, unchanged %d, unreadable %d\n", summary.Written, summary.Skipped, len(decoded.Errors))
			return err
		},
	}
}

func exportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export live tasks as JSON (stdout without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			tasks, err := a.service.List(cmd.Context())
			if err != nil {
				return err
			}
			data, err := transfer.Export(tasks, time.Now())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(args[0], data, 0o644)
		},
	}
}

func shareCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "share [task] [identity...]",
		Short: "Share a task with other identities",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuick(cmd, flags, "share "+args[0]+" with "+strings.Join(args[1:], " "))
		},
	}
}

func unshareCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare [task]",
		Short: "Stop sharing a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuick(cmd, flags, "unshare "+args[0])
		},
	}
}

func doCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "do [command...]",
		Short: "Run a quick command, e.g. do add dentist at:tomorrow lead:30",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuick(cmd, flags, strings.Join(args, " "))
		},
	}
}

func runQuick(cmd *cobra.Command, flags *rootFlags, input string) error {
	parsed, err := commands.Parse(input)
	if err != nil {
		return err
	}
	a, err := newApp(flags, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	if parsed.Type == commands.TypeShare || parsed.Type == commands.TypeUnshare {
		if err := a.requireRemote(string(parsed.Type)); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	res, err := commands.Execute(parsed, a.service.CommandHandlers(ctx, a.loc, func(s commands.ShowArgs) (commands.Result, error) {
		tasks, err := a.service.List(ctx)
		if err != nil {
			return commands.Result{}, err
		}
		now := time.Now().In(a.loc)
		switch s.Subject {
		case "week":
			return commands.Result{Message: views.RenderWeek(agenda.Week(tasks, now, now))}, nil
		case "summary":
			return commands.Result{Message: views.RenderMarkdown(views.SummaryMarkdown(agenda.Summarize(tasks, now)))}, nil
		case "undated":
			return commands.Result{Message: views.RenderUndated(agenda.Undated(tasks))}, nil
		case "shared":
			return commands.Result{Message: views.RenderShared(agenda.SharedWithMe(tasks, a.session.Current(), now), -1)}, nil
		case "search":
			var b strings.Builder
			for _, t := range agenda.Search(tasks, s.Query, agenda.FilterAll, now) {
				fmt.Fprintf(&b, "%s  %s [%s]\n", t.ID, t.Title, agenda.Classify(t, now))
			}
			return commands.Result{Message: strings.TrimSuffix(b.String(), "\n")}, nil
		default:
			return commands.Result{Message: views.RenderDay(agenda.Day(tasks, now, now), -1)}, nil
		}
	}))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.Message)
	return nil
}
