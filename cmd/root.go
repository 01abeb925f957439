package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags (wired to config at startup)
	cfgFile string
	addr    string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "tablechat",
	Short: "TableChat: chat with a CSV file through a hosted analysis agent",
	Long: `TableChat serves a small single-page app for exploring a CSV file in
plain language. Upload a file, ask questions; a hosted LLM agent writes
and executes the analysis code remotely and answers with text, tables,
and charts.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tablechat/config.yaml)")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
}
