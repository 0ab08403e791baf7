package cmd

import (
	"github.com/spf13/cobra"

	"mcpgateway/internal/cli"
	"mcpgateway/internal/client"
	pkgstrings "mcpgateway/pkg/strings"
)

func newToolsCmd(flags *cli.CommandFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tools",
		Aliases: []string{"tool"},
		Short:   "Browse the unified tool catalog",
	}
	cmd.AddCommand(
		newToolsSearchCmd(flags, "search [query]", "Search tools by name, description and skill", cobra.MaximumNArgs(1)),
		newToolsSearchCmd(flags, "list", "List every tool in the catalog", cobra.NoArgs),
	)
	return cmd
}

type searchOptions struct {
	servers            string
	noExternal         bool
	includeUnavailable bool
	limit              int
}

func newToolsSearchCmd(flags *cli.CommandFlags, use, short string, args cobra.PositionalArgs) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

By default only tools of available (CONNECTED or DEGRADED) servers and local
tools are returned; --include-unavailable adds tools of other servers.`,
		Args: args,
		RunE: withEnv(flags, func(env *commandEnv, args []string) error {
			query := ""
			if len(args) > 0 {
				query = args[0]
			}
			external := !opts.noExternal
			res, err := env.client.Search(env.ctx, query, client.SearchOptions{
				IncludeExternal:    &external,
				ServerFilter:       pkgstrings.SplitList(opts.servers),
				IncludeUnavailable: opts.includeUnavailable,
				Limit:              opts.limit,
			})
			if err != nil {
				return err
			}
			return env.printer.SearchResults(res)
		}),
	}
	cmd.Flags().StringVar(&opts.servers, "server", "", "Comma-separated server IDs or names to restrict results to")
	cmd.Flags().BoolVar(&opts.noExternal, "no-external", false, "Only return local tools")
	cmd.Flags().BoolVar(&opts.includeUnavailable, "include-unavailable", false, "Include tools of unavailable servers")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum number of results (0 for the gateway default)")
	return cmd
}
