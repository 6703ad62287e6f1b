package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/PromptPanel/internal/client"
	"github.com/BTreeMap/PromptPanel/internal/prefs"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	stateDir string
	apiURL   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "PromptPanel",
		Short: "PromptPanel administers businesses, providers and chatbot flows",
		Long: `PromptPanel serves the panel REST API ("serve") and acts as its admin client:
sign in, manage businesses and providers, edit state-machine configurations,
watch live conversation sessions and send bulk WhatsApp messages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv()
			level := opts.logLevel
			if level == "" {
				level = os.Getenv("PANEL_LOG_LEVEL")
			}
			initializeLogger(level)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.stateDir, "state-dir", "", "client state directory (overrides $PANEL_STATE_DIR)")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "panel API base URL (overrides $PANEL_API_URL and the stored environment)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides $PANEL_LOG_LEVEL)")

	cmd.AddCommand(
		newServeCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newEnvCmd(opts),
		newHealthCmd(opts),
		newAdminCmd(opts),
		newBusinessCmd(opts),
		newStateMachineCmd(opts),
		newSessionsCmd(opts),
		newTemplatesCmd(opts),
		newBulkSendCmd(opts),
	)
	return cmd
}

// prefsStore opens the preferences file in the selected state directory.
func (o *rootOptions) prefsStore() (*prefs.Store, error) {
	dir := o.stateDir
	if dir == "" {
		var err error
		if dir, err = prefs.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return prefs.NewStore(dir), nil
}

// newClient builds a panel client pinned to one base URL for this invocation.
func (o *rootOptions) newClient() (*client.Client, error) {
	p, err := o.prefsStore()
	if err != nil {
		return nil, err
	}
	var opts []client.Option
	if o.apiURL != "" {
		opts = append(opts, client.WithBaseURL(o.apiURL))
	}
	c, err := client.New(p, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create panel client: %w", err)
	}
	return c, nil
}
