package main

import (
	"fmt"

	"trackdrop/internal/auth"

	"github.com/spf13/cobra"
)

var hashCodeCmd = &cobra.Command{
	Use:   "hash-code <code>",
	Short: "Print the bcrypt hash of an access code",
	Long: `Print the bcrypt hash of an access code for use as upload_code_hash or
editor_code_hash in the config file (or TRACKDROP_UPLOAD_CODE_HASH /
TRACKDROP_EDITOR_CODE_HASH in the environment).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashCode(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCodeCmd)
}
