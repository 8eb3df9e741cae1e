package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskdesk",
	Short: "TaskDesk - task modification negotiation CLI",
	Long:  `TaskDesk runs a two-party approval workflow for task edits, deletes and due-date extensions between an admin and an employee.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr   string
	actorID   string
	actorRole string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7521", "API server address")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "", "Actor ID sent with API calls (defaults to cli@hostname)")
	rootCmd.PersistentFlags().StringVar(&actorRole, "role", "admin", "Actor role: admin or employee")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(employeeCmd)
	rootCmd.AddCommand(tuiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
