package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casebridge/casebridge/internal/mirror"
)

var (
	mirrorType      string
	mirrorDirection string
	mirrorTo        string
	mirrorName      string
	mirrorTopic     string
	mirrorAutoClose bool
	mirrorKickAdmin bool
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Create or update the mirror for an investigation",
	Long: `Binds the current investigation (or the one named by
--investigation) to a Slack channel. A fresh binding creates the channel;
re-running updates only the mirroring policy. The channel name, topic and
destination kind of an existing mirror cannot be changed.`,
	RunE: runMirror,
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
	mirrorCmd.Flags().StringVar(&mirrorType, "type", "all", "what to mirror: all, chat, case or none")
	mirrorCmd.Flags().StringVar(&mirrorDirection, "direction", "both", "mirror direction: both, to-slack or to-case")
	mirrorCmd.Flags().StringVar(&mirrorTo, "mirror-to", "group", "channel kind: group (private) or channel (public)")
	mirrorCmd.Flags().StringVar(&mirrorName, "name", "", "channel name (default: incident-<id>)")
	mirrorCmd.Flags().StringVar(&mirrorTopic, "topic", "", "channel topic (default: auto-derived incident list)")
	mirrorCmd.Flags().BoolVar(&mirrorAutoClose, "auto-close", true, "archive the mirror when the investigation closes")
	mirrorCmd.Flags().BoolVar(&mirrorKickAdmin, "kick-admin", false, "remove the admin user after creating the channel")
}

func runMirror(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	req := mirror.Request{
		MirrorType:   mirrorType,
		Direction:    mirrorDirection,
		MirrorTo:     mirrorTo,
		ChannelName:  mirrorName,
		ChannelTopic: mirrorTopic,
		KickAdmin:    mirrorKickAdmin,
	}
	if cmd.Flags().Changed("auto-close") {
		req.AutoClose = &mirrorAutoClose
	}

	name, err := a.mirrors.Mirror(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Printf("Investigation mirrored successfully, channel: %s\n", name)
	return nil
}
