package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/BTreeMap/PromptPanel/internal/client"
	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/prefs"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// explain adds the server's violation list to an APIError.
func explain(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && len(apiErr.Details) > 0 {
		return fmt.Errorf("%w\n  - %s", err, strings.Join(apiErr.Details, "\n  - "))
	}
	if errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("%w; run \"PromptPanel login\"", err)
	}
	return err
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		return string(pw), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd(root *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("PANEL_PASSWORD")
			}
			if password == "" {
				if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			resp, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in to %s as %s (%s), session expires %s\n",
				c.BaseURL(), resp.Admin.Email, resp.Admin.Role, resp.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "panel admin email")
	cmd.Flags().StringVar(&password, "password", "", "panel admin password (default $PANEL_PASSWORD, else prompted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := root.prefsStore()
			if err != nil {
				return err
			}
			if err := p.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newEnvCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "env [production|local]",
		Short: "Show or switch the API environment used by later commands",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := root.prefsStore()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				env, err := prefs.ParseEnvironment(args[0])
				if err != nil {
					return err
				}
				if err := p.SetEnvironment(env); err != nil {
					return err
				}
			}
			stored, err := p.Load()
			if err != nil {
				return err
			}
			env := stored.Environment
			if env == "" {
				env = prefs.EnvProduction
			}
			fmt.Fprintf(cmd.OutOrStdout(), "environment: %s\nbase URL:    %s\n", env, client.ResolveBaseURL(os.Getenv, stored.Environment))
			return nil
		},
	}
}

func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the panel API answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			if err := c.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is healthy\n", c.BaseURL())
			return nil
		},
	}
}

func newAdminCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage panel admins",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List panel admins",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			admins, err := c.ListPanelAdmins(cmd.Context())
			if err != nil {
				return explain(err)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE")
			for _, a := range admins {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Email, a.Role)
			}
			return tw.Flush()
		},
	})

	var req models.PanelAdminRequest
	var role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a panel admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			req.Role = models.AdminRole(role)
			admin, err := c.CreatePanelAdmin(cmd.Context(), req)
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), admin)
		},
	}
	create.Flags().StringVar(&req.Name, "name", "", "display name")
	create.Flags().StringVar(&req.Email, "email", "", "sign-in email")
	create.Flags().StringVar(&req.Password, "password", "", "initial password")
	create.Flags().StringVar(&role, "role", string(models.AdminRoleAdmin), "admin or superadmin")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a panel admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			return explain(c.DeletePanelAdmin(cmd.Context(), args[0]))
		},
	})
	return cmd
}
