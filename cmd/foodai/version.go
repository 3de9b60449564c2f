package main

import (
	"fmt"
	"strings"

	"github.com/dengzhuofu/foodai-agent"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of foodai",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "foodai version %s\n", strings.TrimSpace(foodai.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
