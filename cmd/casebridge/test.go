package main

import (
	"fmt"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/casebridge/casebridge/internal/slackapi"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify Slack and host connectivity",
	Long: `Authenticates against Slack and, when a dedicated channel is
configured, posts a test message to it.`,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	auth, err := a.bot.AuthTest()
	if err != nil {
		return fmt.Errorf("slack authentication failed: %w", err)
	}
	fmt.Printf("Authenticated to Slack as %s (%s)\n", auth.User, auth.UserID)

	if _, err := a.host.URLs(ctx); err != nil {
		return fmt.Errorf("case host unreachable: %w", err)
	}
	fmt.Println("Case host reachable.")

	if a.cfg.DedicatedChannel != "" {
		conv, err := a.dir.ConversationByName(ctx, a.cfg.DedicatedChannel)
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("dedicated channel %s not found", a.cfg.DedicatedChannel)
		}
		message := "Hi there! This is a test message."
		if _, _, err := a.bot.PostMessage(conv.ID, slack.MsgOptionText(message, false)); err != nil {
			if slackapi.IsMembershipError(err) {
				return fmt.Errorf("bot is not a member of %s: %w", a.cfg.DedicatedChannel, err)
			}
			return err
		}
		fmt.Printf("Test message sent to %s.\n", a.cfg.DedicatedChannel)
	}
	return nil
}
