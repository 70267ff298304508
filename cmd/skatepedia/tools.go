package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/skatepedia/internal/catalog"
	"github.com/fyrsmithlabs/skatepedia/internal/config"
	"github.com/fyrsmithlabs/skatepedia/pkg/auth"
)

func newTricksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tricks",
		Short: "Print the trick catalog",
		Long: `Print the trick catalog by section, with each trick's prerequisites.

Examples:
  # Print the embedded catalog
  skatepedia tricks

  # Check a custom catalog file
  skatepedia tricks --catalog ./tricks.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, sec := range cat.Sections() {
				fmt.Fprintf(tw, "%s\n", sec.Name)
				for _, t := range sec.Tricks {
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.ID, t.Name, t.TricksToLearnFirst)
				}
			}
			return tw.Flush()
		},
	}
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user",
		Long: `Mint an HS256 bearer token signed with auth.secret.

Examples:
  skatepedia token --config config.yaml u1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokens(cfg.Auth.Secret.Value(), cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration())
			if err != nil {
				return err
			}
			token, err := tokens.Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
