package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mementolabs/memento/internal/cli"
	"github.com/mementolabs/memento/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mementod",
		Short: "Memento daemon and CLI",
		Long:  "Memento daemon for running the conversational memory API server and managing documents",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.AskCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
