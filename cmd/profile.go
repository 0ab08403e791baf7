package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mcpgateway/internal/cli"
	"mcpgateway/internal/config"
	"mcpgateway/internal/profile"
)

// profileDir locates profiles.yaml. Tests point it at a temp dir.
var profileDir = func() (string, error) {
	return config.DefaultConfigPath()
}

func profileStorage() (*profile.Storage, error) {
	dir, err := profileDir()
	if err != nil {
		return nil, err
	}
	return profile.NewStorage(dir), nil
}

// applyProfile fills the endpoint and default output from the selected
// profile unless they were given explicitly.
func applyProfile(cmd *cobra.Command, flags *cli.CommandFlags) error {
	if cmd.Flags().Changed("endpoint") {
		return nil
	}
	storage, err := profileStorage()
	if err != nil {
		if flags.Profile != "" {
			return err
		}
		return nil
	}
	p, err := storage.Resolve(flags.Profile)
	if err != nil || p == nil {
		return err
	}
	flags.Endpoint = p.Endpoint
	if p.Output != "" && !cmd.Flags().Changed("output") {
		flags.OutputFormat = p.Output
	}
	return nil
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage named gateway endpoints",
		Long: `Profiles store gateway endpoints so client commands can target them by
name. The current profile is used when neither --endpoint nor --profile is
given.`,
	}
	cmd.AddCommand(
		newProfileListCmd(),
		newProfileSetCmd(),
		newProfileUseCmd(),
		newProfileDeleteCmd(),
	)
	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := profileStorage()
			if err != nil {
				return err
			}
			cfg, err := storage.Load()
			if err != nil {
				return err
			}
			if len(cfg.Profiles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No profiles configured. Add one with: mcpgateway profile set <name> <endpoint>")
				return nil
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Current", "Name", "Endpoint", "Output"})
			for _, p := range cfg.Profiles {
				current := ""
				if p.Name == cfg.Current {
					current = "*"
				}
				t.AppendRow(table.Row{current, p.Name, p.Endpoint, p.Output})
			}
			t.Render()
			return nil
		},
	}
}

func newProfileSetCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set <name> <endpoint>",
		Short: "Add or update a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				if _, err := cli.ValidateOutputFormat(output); err != nil {
					return err
				}
			}
			storage, err := profileStorage()
			if err != nil {
				return err
			}
			if err := storage.Set(profile.Profile{Name: args[0], Endpoint: args[1], Output: output}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile %s set to %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "default-output", "", "Default output format for this profile")
	return cmd
}

func newProfileUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Make a profile current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := profileStorage()
			if err != nil {
				return err
			}
			if err := storage.Use(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %s\n", args[0])
			return nil
		},
	}
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := profileStorage()
			if err != nil {
				return err
			}
			if err := storage.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile %s deleted\n", args[0])
			return nil
		},
	}
}
