package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/schedule"
)

func newBusinessCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "business",
		Aliases: []string{"businesses"},
		Short:   "Manage businesses, their providers and agendas",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List businesses",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			list, err := c.ListBusinesses(cmd.Context())
			if err != nil {
				return explain(err)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tPHONE\tSTATE MACHINE")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, b.Name, b.Phone, b.StateMachineID)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			b, err := c.GetBusiness(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	})

	var b models.Business
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a business",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			created, err := c.CreateBusiness(cmd.Context(), b)
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	create.Flags().StringVar(&b.Name, "name", "", "business name")
	create.Flags().StringVar(&b.Phone, "phone", "", "contact phone")
	create.Flags().StringVar(&b.Email, "email", "", "contact email")
	create.Flags().StringVar(&b.Address, "address", "", "street address")
	create.Flags().StringVar(&b.StateMachineID, "state-machine", "", "state-machine configuration ID")
	cmd.AddCommand(create)

	var stateMachineID string
	attach := &cobra.Command{
		Use:   "attach <id>",
		Short: "Attach a state-machine configuration to a business (empty detaches)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			current, err := c.GetBusiness(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			current.StateMachineID = stateMachineID
			updated, err := c.UpdateBusiness(cmd.Context(), *current)
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), updated)
		},
	}
	attach.Flags().StringVar(&stateMachineID, "state-machine", "", "state-machine configuration ID")
	cmd.AddCommand(attach)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a business with its providers and appointments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			return explain(c.DeleteBusiness(cmd.Context(), args[0]))
		},
	})

	cmd.AddCommand(newInstructionsCmd(root), newProvidersCmd(root), newAgendaCmd(root), newTimeslotsCmd(root))
	return cmd
}

func newInstructionsCmd(root *rootOptions) *cobra.Command {
	var set string
	cmd := &cobra.Command{
		Use:   "instructions <business-id>",
		Short: "Show or replace a business's provider instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("set") {
				if err := c.UpdateProviderInstructions(cmd.Context(), args[0], set); err != nil {
					return explain(err)
				}
			}
			text, err := c.GetProviderInstructions(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "replace the instructions with this text")
	return cmd
}

func newProvidersCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers <business-id>",
		Short: "List a business's providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			list, err := c.ListProviders(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tSPECIALTY\tHOURS\tSLOT")
			for _, p := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s-%s\t%dm\n", p.ID, p.Name, p.Specialty,
					p.WorkingHours.Start, p.WorkingHours.End, p.WorkingHours.SlotMinutes)
			}
			return tw.Flush()
		},
	}

	var p models.Provider
	add := &cobra.Command{
		Use:   "add <business-id>",
		Short: "Add a provider to a business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.newClient()
			if err != nil {
				return err
			}
			created, err := c.CreateProvider(cmd.Context(), args[0], p)
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	add.Flags().StringVar(&p.Name, "name", "", "provider name")
	add.Flags().StringVar(&p.Specialty, "specialty", "", "specialty shown to customers")
	add.Flags().StringVar(&p.Phone, "phone", "", "provider phone")
	add.Flags().StringVar(&p.WorkingHours.Start, "start", "09:00", "first bookable time, HH:MM")
	add.Flags().StringVar(&p.WorkingHours.End, "end", "18:00", "end of the working day, HH:MM")
	add.Flags().IntVar(&p.WorkingHours.SlotMinutes, "slot-minutes", 30, "appointment length in minutes")
	add.Flags().IntSliceVar(&p.WorkingHours.Weekdays, "weekdays", nil, "working weekdays, 0=Sunday (default Monday to Friday)")
	cmd.AddCommand(add)
	return cmd
}

// parseDay reads a YYYY-MM-DD argument; only its calendar date reaches the server.
func parseDay(s string) (time.Time, error) {
	return schedule.ParseDate(s, time.UTC)
}

func newAgendaCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agenda <business-id> <provider-id> <YYYY-MM-DD>",
		Short: "List a provider's appointments on a day",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(args[2])
			if err != nil {
				return err
			}
			c, err := root.newClient()
			if err != nil {
				return err
			}
			list, err := c.Agenda(cmd.Context(), args[0], args[1], day)
			if err != nil {
				return explain(err)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tSTART\tEND\tCUSTOMER\tSTATUS")
			for _, a := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Start.Format("15:04"), a.End.Format("15:04"), a.CustomerName, a.Status)
			}
			return tw.Flush()
		},
	}
}

func newTimeslotsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "timeslots <business-id> <provider-id> <YYYY-MM-DD>",
		Short: "List a provider's slots on a day and whether each is free",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(args[2])
			if err != nil {
				return err
			}
			c, err := root.newClient()
			if err != nil {
				return err
			}
			slots, err := c.TimeSlots(cmd.Context(), args[0], args[1], day)
			if err != nil {
				return explain(err)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "START\tEND\tAVAILABLE")
			for _, s := range slots {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", s.Start.Format("15:04"), s.End.Format("15:04"), s.Available)
			}
			return tw.Flush()
		},
	}
}
