package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/monitor"
)

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and terminate live conversation sessions",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List conversation sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			sessions, err := c.ListSessions(cmd.Context(), !all)
			if err != nil {
				return explain(err)
			}
			return printSessions(cmd.OutOrStdout(), sessions)
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include terminated sessions")
	cmd.AddCommand(list)

	var interval time.Duration
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Poll active sessions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			m := monitor.New(c, func(s monitor.Snapshot) {
				fmt.Fprintf(out, "\n%s\n", s.At.Local().Format("15:04:05"))
				if s.Err != nil {
					fmt.Fprintf(out, "poll failed: %v\n", explain(s.Err))
					return
				}
				_ = printSessions(out, s.Sessions)
			}, monitor.WithInterval(interval))
			if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	watch.Flags().DurationVar(&interval, "interval", monitor.DefaultInterval, "time between polls")
	cmd.AddCommand(watch)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print a session with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			s, err := c.GetSession(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "terminate <id>",
		Short: "Stop the engine from driving a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			s, err := c.TerminateSession(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s is %s\n", s.ID, s.Status)
			return nil
		},
	})
	return cmd
}

func printSessions(w io.Writer, sessions []models.ConversationSession) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTATE MACHINE\tCURRENT STATE\tSTATUS\tLAST UPDATE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.StateMachineID, s.CurrentState, s.Status,
			s.LastUpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func newTemplatesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template"},
		Short:   "Manage bulk message templates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List message templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			list, err := c.ListTemplates(cmd.Context())
			if err != nil {
				return explain(err)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tBODY")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s\t%q\n", t.ID, t.Name, t.Body)
			}
			return tw.Flush()
		},
	})

	var name, body string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a template; {{1}}, {{2}}, ... are filled from CSV columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			t, err := c.CreateTemplate(cmd.Context(), name, body)
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}
	create.Flags().StringVar(&name, "name", "", "template name")
	create.Flags().StringVar(&body, "body", "", "message body")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			return explain(c.DeleteTemplate(cmd.Context(), args[0]))
		},
	})
	return cmd
}

func newBulkSendCmd(root *rootOptions) *cobra.Command {
	var templateID, csvPath string
	cmd := &cobra.Command{
		Use:   "bulk-send",
		Short: "Send a template to every phone number of a CSV file",
		Long: `Uploads a CSV whose first column is the phone number. The remaining columns fill
{{1}}, {{2}}, ... of the template in order. The first row is a header and is skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(csvPath)
			if err != nil {
				return err
			}
			c, err := root.newClient()
			if err != nil {
				return err
			}
			summary, err := c.BulkSend(cmd.Context(), templateID, data)
			if err != nil {
				return explain(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total %d, sent %d, failed %d\n", summary.Total, summary.Sent, summary.Failed)
			for _, f := range summary.Failures {
				fmt.Fprintf(out, "  row %d (%s): %s\n", f.Row, f.Phone, f.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "template ID")
	cmd.Flags().StringVar(&csvPath, "csv", "", "recipients CSV file")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}
