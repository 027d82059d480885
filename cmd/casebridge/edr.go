package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casebridge/casebridge/internal/edrparse"
)

var edrCmd = &cobra.Command{
	Use:   "edr <filemod|modload|regmod|crossproc> [data]",
	Short: "Decode EDR process-event fields to JSON",
	Long: `Decode a Carbon-Black-style process-event field into structured JSON.
The data is read from the argument, or from stdin when omitted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runEDR,
}

func init() {
	rootCmd.AddCommand(edrCmd)
}

func runEDR(cmd *cobra.Command, args []string) error {
	data := ""
	if len(args) > 1 {
		data = args[1]
	} else {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		data = strings.TrimSpace(string(raw))
	}

	var events []edrparse.Event
	switch args[0] {
	case "filemod":
		events = edrparse.ParseFilemod(data)
	case "modload":
		events = edrparse.ParseModload(data)
	case "regmod":
		events = edrparse.ParseRegmod(data)
	case "crossproc":
		events = edrparse.ParseCrossproc(data)
	default:
		return fmt.Errorf("unknown event kind %q", args[0])
	}

	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
