package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/statemachine"
)

func newStateMachineCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "statemachine",
		Aliases: []string{"sm"},
		Short:   "Edit chatbot state-machine configurations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			list, err := c.ListStateMachineConfigs(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return printConfigTable(cmd.OutOrStdout(), list)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "legacy-list",
		Short: "List configurations through the legacy endpoint, using the local cache when it fails",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			list, fromCache, err := c.LegacyStateMachines(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if fromCache {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: API unreachable, showing cached configurations from %s\n", c.LegacyCachePath())
			}
			return printConfigTable(cmd.OutOrStdout(), list)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "legacy-apply <file.json>",
		Short: "Save a configuration through the legacy endpoint, keeping it locally when that fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfigFile(args[0])
			if err != nil {
				return err
			}
			c, err := root.newClient()
			if err != nil {
				return err
			}
			saved, fromCache, err := c.LegacySaveStateMachine(cmd.Context(), *cfg)
			if err != nil {
				return explain(err)
			}
			if fromCache {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: API unreachable, %s was saved to %s only\n", saved.Name, c.LegacyCachePath())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", saved.Name, saved.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "legacy-delete <id>",
		Short: "Delete a configuration through the legacy endpoint, removing it locally when that fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			fromCache, err := c.LegacyDeleteStateMachine(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			if fromCache {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: API unreachable, %s was removed from %s only\n", args[0], c.LegacyCachePath())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print a configuration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			cfg, err := c.GetStateMachineConfig(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file.json>",
		Short: "Check a configuration file without contacting the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfigFile(args[0])
			if err != nil {
				return err
			}
			statemachine.Normalize(cfg)
			if err := statemachine.Validate(cfg); err != nil {
				return err
			}
			warnUnreachable(cmd.ErrOrStderr(), cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d states, %d transitions\n", cfg.Name, len(cfg.States), len(cfg.Transitions))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "apply <file.json>",
		Short: "Create or replace a configuration from a file (an \"id\" field replaces)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfigFile(args[0])
			if err != nil {
				return err
			}
			c, err := root.newClient()
			if err != nil {
				return err
			}
			saved, err := c.SaveStateMachineConfig(cmd.Context(), *cfg)
			if err != nil {
				return explain(err)
			}
			warnUnreachable(cmd.ErrOrStderr(), saved)
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", saved.Name, saved.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a configuration no business uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			return explain(c.DeleteStateMachineConfig(cmd.Context(), args[0]))
		},
	})

	cmd.AddCommand(newStateCmd(root), newTransitionCmd(root))
	return cmd
}

func printConfigTable(w io.Writer, list []models.StateMachineConfig) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tINITIAL\tSTATES\tTRANSITIONS\tUPDATED")
	for _, cfg := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", cfg.ID, cfg.Name, cfg.InitialState,
			len(cfg.States), len(cfg.Transitions), cfg.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func readConfigFile(path string) (*models.StateMachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg models.StateMachineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

func warnUnreachable(w io.Writer, cfg *models.StateMachineConfig) {
	if unreachable := statemachine.UnreachableStates(cfg); len(unreachable) > 0 {
		fmt.Fprintf(w, "warning: unreachable from %q: %s\n", cfg.InitialState, strings.Join(unreachable, ", "))
	}
}

// editRemote fetches a configuration, applies edit and saves it. Nothing is sent when edit fails.
func editRemote(cmd *cobra.Command, root *rootOptions, id string, edit func(*models.StateMachineConfig) error) error {
	c, err := root.newClient()
	if err != nil {
		return err
	}
	cfg, err := c.GetStateMachineConfig(cmd.Context(), id)
	if err != nil {
		return explain(err)
	}
	if err := edit(cfg); err != nil {
		return err
	}
	saved, err := c.SaveStateMachineConfig(cmd.Context(), *cfg)
	if err != nil {
		return explain(err)
	}
	warnUnreachable(cmd.ErrOrStderr(), saved)
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s: %d states, %d transitions\n", saved.Name, len(saved.States), len(saved.Transitions))
	return nil
}

func newStateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Add, change or remove states of a configuration",
	}

	var s models.State
	var criticality string
	var initial bool
	add := &cobra.Command{
		Use:   "add <config-id>",
		Short: "Add a state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.Criticality = models.Criticality(criticality)
			return editRemote(cmd, root, args[0], func(cfg *models.StateMachineConfig) error {
				if err := statemachine.AddState(cfg, s); err != nil {
					return err
				}
				if initial {
					return statemachine.SetInitialState(cfg, strings.TrimSpace(s.Name))
				}
				return nil
			})
		},
	}
	add.Flags().StringVar(&s.Name, "name", "", "state name, unique within the configuration")
	add.Flags().StringVar(&s.Instructions, "instructions", "", "what the chatbot should do in this state")
	add.Flags().StringSliceVar(&s.Actions, "actions", nil, "actions the engine may run")
	add.Flags().StringVar(&criticality, "criticality", string(models.CriticalityLow), "low, medium or high")
	add.Flags().BoolVar(&initial, "initial", false, "make this the initial state")
	cmd.AddCommand(add)

	var instructions, newName, newCriticality string
	update := &cobra.Command{
		Use:   "update <config-id> <state>",
		Short: "Rename a state or change its instructions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editRemote(cmd, root, args[0], func(cfg *models.StateMachineConfig) error {
				idx := cfg.StateByName(args[1])
				if idx < 0 {
					return &statemachine.ValidationError{Field: "name", Reason: statemachine.ErrStateNotFound, Value: args[1]}
				}
				next := cfg.States[idx]
				if cmd.Flags().Changed("name") {
					next.Name = newName
				}
				if cmd.Flags().Changed("instructions") {
					next.Instructions = instructions
				}
				if cmd.Flags().Changed("criticality") {
					next.Criticality = models.Criticality(newCriticality)
				}
				return statemachine.UpdateState(cfg, args[1], next)
			})
		},
	}
	update.Flags().StringVar(&newName, "name", "", "new state name")
	update.Flags().StringVar(&instructions, "instructions", "", "new instructions")
	update.Flags().StringVar(&newCriticality, "criticality", "", "low, medium or high")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <config-id> <state>",
		Short: "Remove a state no transition references",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editRemote(cmd, root, args[0], func(cfg *models.StateMachineConfig) error {
				return statemachine.DeleteState(cfg, args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "initial <config-id> <state>",
		Short: "Choose the initial state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editRemote(cmd, root, args[0], func(cfg *models.StateMachineConfig) error {
				return statemachine.SetInitialState(cfg, args[1])
			})
		},
	})
	return cmd
}

func newTransitionCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Add or remove transitions of a configuration",
	}

	var t models.Transition
	add := &cobra.Command{
		Use:   "add <config-id>",
		Short: "Add a transition between existing states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editRemote(cmd, root, args[0], func(cfg *models.StateMachineConfig) error {
				return statemachine.AddTransition(cfg, t)
			})
		},
	}
	add.Flags().StringVar(&t.FromState, "from", "", "source state")
	add.Flags().StringVar(&t.ToState, "to", "", "target state")
	add.Flags().StringVar(&t.Condition, "condition", "", "natural-language condition")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <config-id> <index>",
		Short: "Remove the transition at index (as shown by \"statemachine get\")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index must be a number: %w", err)
			}
			return editRemote(cmd, root, args[0], func(cfg *models.StateMachineConfig) error {
				return statemachine.DeleteTransition(cfg, index)
			})
		},
	})
	return cmd
}
