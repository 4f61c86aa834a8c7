package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╗ ╦═╗╔═╗╔═╗╔╦╗╦ ╦╔═╗╦ ╦
  ╠╩╗╠╦╝║ ║╠═╣ ║║║║║╠═╣╚╦╝
  ╚═╝╩╚═╚═╝╩ ╩═╩╝╚╩╝╩ ╩ ╩
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "broadwayd",
		Short: "HTML5 display server for web browsers",
		Long: `Broadwayd serves application windows to web browsers.

Browsers load a single-page client over HTTP and receive window
frames over a WebSocket; pointer and keyboard input flows back the
same way. Features include:

  • In-memory client, no files to deploy
  • Text and binary WebSocket framing
  • Damage-tracked updates: full frames and XOR patches
  • Pointer grabs with implicit grab on button press
  • Optional bcrypt password auth with hot reload
  • Prometheus metrics and on-demand display captures`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands
	rootCmd.AddCommand(
		serveCmd(),
		hashCmd(),
		versionCmd(),
	)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the Broadway ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
