package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/casebridge/casebridge/internal/sender"
)

var sendReq sender.Request

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to a user, group or channel",
	RunE:  runSend,
}

var (
	fileReq  sender.FileRequest
	filePath string
)

var sendFileCmd = &cobra.Command{
	Use:   "send-file",
	Short: "Upload a file to a user, group or channel",
	Long: `Uploads a file. Without a destination the file goes to the mirror
channel of the current investigation.`,
	RunE: runSendFile,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendReq.To, "to", "", "user to message (name or email)")
	sendCmd.Flags().StringVar(&sendReq.Channel, "channel", "", "channel name")
	sendCmd.Flags().StringVar(&sendReq.ChannelID, "channel-id", "", "channel ID, bypassing name resolution")
	sendCmd.Flags().StringVar(&sendReq.Group, "group", "", "private channel name")
	sendCmd.Flags().StringVar(&sendReq.Message, "message", "", "message text (may carry an entitlement envelope)")
	sendCmd.Flags().StringVar(&sendReq.Blocks, "blocks", "", "Block Kit JSON array")
	sendCmd.Flags().StringVar(&sendReq.Entry, "entry", "", "war-room entry ID to link back to")
	sendCmd.Flags().StringVar(&sendReq.ThreadID, "thread", "", "thread timestamp to reply under")
	sendCmd.Flags().BoolVar(&sendReq.IgnoreAddURL, "ignore-url", false, "do not append the case link")
	sendCmd.Flags().StringVar(&sendReq.MessageType, "message-type", "", "host message type (mirrorEntry, incidentOpened)")
	sendCmd.Flags().StringVar(&sendReq.OriginalMessage, "original-message", "", "original host entry, used for echo suppression")
	sendCmd.Flags().Float64Var(&sendReq.Severity, "severity", 0, "incident severity for notification gating")
	sendCmd.Flags().StringSliceVar(&sendReq.EntryTags, "tags", nil, "entry tags for filtered-tag gating")

	rootCmd.AddCommand(sendFileCmd)
	sendFileCmd.Flags().StringVar(&fileReq.To, "to", "", "user to send to (name or email)")
	sendFileCmd.Flags().StringVar(&fileReq.Channel, "channel", "", "channel name")
	sendFileCmd.Flags().StringVar(&fileReq.ChannelID, "channel-id", "", "channel ID, bypassing name resolution")
	sendFileCmd.Flags().StringVar(&fileReq.Group, "group", "", "private channel name")
	sendFileCmd.Flags().StringVar(&filePath, "file", "", "path of the file to upload")
	sendFileCmd.Flags().StringVar(&fileReq.Name, "name", "", "file name shown in Slack (default: base name)")
	sendFileCmd.Flags().StringVar(&fileReq.Comment, "comment", "", "initial comment")
	sendFileCmd.Flags().StringVar(&fileReq.ThreadID, "thread", "", "thread timestamp to attach under")
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	threadID, err := a.sender.Send(cmd.Context(), sendReq)
	if errors.Is(err, sender.ErrSkipped) {
		fmt.Println("Message not sent.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Message sent to Slack successfully.\nThread ID is: %s\n", threadID)
	return nil
}

func runSendFile(cmd *cobra.Command, args []string) error {
	if filePath == "" {
		return errors.New("a file path is required (--file)")
	}
	a, err := newApp()
	if err != nil {
		return err
	}

	fileReq.Path = filePath
	if fileReq.Name == "" {
		fileReq.Name = filepath.Base(filePath)
	}
	if err := a.sender.SendFile(cmd.Context(), fileReq); err != nil {
		return err
	}
	fmt.Println("File sent to Slack successfully.")
	return nil
}
