package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "toolshelf",
	Short: "Toolshelf: shared team tool shelves",
	Long:  "Toolshelf lets teams keep a shared shelf of the tools they use, drawn from a curated catalog or added inline, with per-user pins and recently-used lists.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults and environment)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
