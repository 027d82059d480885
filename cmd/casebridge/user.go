package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user <name-or-email>",
	Short: "Look up a Slack user's details",
	Args:  cobra.ExactArgs(1),
	RunE:  runUser,
}

func init() {
	rootCmd.AddCommand(userCmd)
}

func runUser(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	user, err := a.dir.UserByNameOrEmail(cmd.Context(), args[0], true)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s not found", args[0])
	}

	fmt.Printf("ID:           %s\n", user.ID)
	fmt.Printf("Name:         %s\n", user.Name)
	fmt.Printf("Real name:    %s\n", user.RealName)
	fmt.Printf("Display name: %s\n", user.DisplayName)
	fmt.Printf("Email:        %s\n", user.Email)
	return nil
}
