package main

import (
	"fmt"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/slackapi"
)

var channelFlag string

var topicCmd = &cobra.Command{
	Use:   "topic <topic>",
	Short: "Set a channel topic",
	Long: `Sets the topic of the named channel, or of the current
investigation's mirror channel when --channel is omitted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.mirrors.SetTopic(cmd.Context(), channelFlag, args[0]); err != nil {
			return err
		}
		fmt.Println("Topic successfully set.")
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive a mirror channel and stop its mirroring",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.mirrors.Close(cmd.Context(), channelFlag); err != nil {
			return err
		}
		fmt.Println("Channel successfully archived.")
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <new-name>",
	Short: "Rename a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.mirrors.Rename(cmd.Context(), channelFlag, args[0]); err != nil {
			return err
		}
		fmt.Println("Channel renamed successfully.")
		return nil
	},
}

var inviteCmd = &cobra.Command{
	Use:   "invite <user>...",
	Short: "Invite users to a channel",
	Long:  `Invites Slack users, given by name or email, to the channel.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.mirrors.InviteUsers(cmd.Context(), channelFlag, args); err != nil {
			return err
		}
		fmt.Println("Successfully invited users to the channel.")
		return nil
	},
}

var kickCmd = &cobra.Command{
	Use:   "kick <user>...",
	Short: "Remove users from a channel",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.mirrors.KickUsers(cmd.Context(), channelFlag, args); err != nil {
			return err
		}
		fmt.Println("Successfully removed users from the channel.")
		return nil
	},
}

var (
	createPrivate bool
	createTopic   string
	createUsers   []string
)

var createChannelCmd = &cobra.Command{
	Use:   "create-channel <name>",
	Short: "Create a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreateChannel,
}

func init() {
	rootCmd.AddCommand(topicCmd, archiveCmd, renameCmd, inviteCmd, kickCmd, createChannelCmd)
	for _, cmd := range []*cobra.Command{topicCmd, archiveCmd, renameCmd, inviteCmd, kickCmd} {
		cmd.Flags().StringVar(&channelFlag, "channel", "", "channel name (default: the current investigation's mirror)")
	}

	createChannelCmd.Flags().BoolVar(&createPrivate, "private", false, "create a private channel")
	createChannelCmd.Flags().StringVar(&createTopic, "topic", "", "channel topic")
	createChannelCmd.Flags().StringSliceVar(&createUsers, "users", nil, "users to invite (names or emails)")
}

func runCreateChannel(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	name := args[0]

	channel, err := a.admin.CreateConversation(slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   createPrivate,
	})
	if err != nil {
		if slackapi.IsNameTakenError(err) {
			return fmt.Errorf("channel %s already exists", name)
		}
		return fmt.Errorf("create channel %s: %w", name, err)
	}

	if createTopic != "" {
		if _, err := a.admin.SetTopicOfConversation(channel.ID, createTopic); err != nil {
			return fmt.Errorf("set topic: %w", err)
		}
	}
	if _, err := a.store.Update(ctx, func(s *contextstore.Snapshot) error {
		s.CacheConversation(contextstore.CachedConversation{ID: channel.ID, Name: channel.Name})
		return nil
	}); err != nil {
		return err
	}
	if len(createUsers) > 0 {
		if err := a.mirrors.InviteUsers(ctx, name, createUsers); err != nil {
			return err
		}
	}

	kind := "Channel"
	if createPrivate {
		kind = "Private channel"
	}
	fmt.Printf("%s %s was created successfully.\n", kind, channel.Name)
	return nil
}
