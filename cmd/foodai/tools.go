package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to a caller",
	Long: `Lists the local kitchen tools and, for every configured provider, the remote tools the
caller can reach with their credential. Unreachable providers are reported and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, _, err := newEngine(ctx, cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		caller, _ := cmd.Flags().GetString("caller")
		local := eng.Registry.Descriptors(eng.Registry.Names())

		var remote []domain.ToolDescriptor
		for _, name := range eng.Pool.Providers() {
			tools, err := eng.Pool.ListTools(ctx, caller, name)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "provider %s: %v\n", name, err)
				continue
			}
			remote = append(remote, tools...)
		}
		return printTools(cmd.OutOrStdout(), append(local, remote...))
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().String("caller", "1", "Caller whose credentials are used for remote providers")
}

func printTools(w io.Writer, tools []domain.ToolDescriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tPROVIDER\tDESCRIPTION")
	for _, t := range tools {
		provider := t.Provider
		if provider == "" {
			provider = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Kind, provider, t.Description)
	}
	return tw.Flush()
}
