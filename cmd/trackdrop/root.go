package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "trackdrop",
	Short: "trackdrop serves an album catalog with ID3-tagged MP3 downloads",
	Long: `trackdrop keeps albums and tracks in SQLite and their files in
S3-compatible storage, and serves downloads with freshly written
ID3v2.3 tags (title, artist, album, track number and cover art).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.toml", "path to the TOML config file")
}
