package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillcapital/coursebot/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coursebotd",
		Short: "SkillCapital course advisor daemon and CLI",
		Long:  "Course advisor daemon for serving the chat API and managing the knowledge index",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.IndexCmd())
	rootCmd.AddCommand(cli.ChatCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
