// Package edrparse decodes the delimited process-event microformat used by
// Carbon-Black-style EDR sensors. Each event field is a comma-separated
// list of pipe-delimited entries with a fixed grammar per event kind.
// Entries with missing fields are skipped, not fatal: one malformed entry
// must never poison the rest of the batch.
package edrparse

import (
	"fmt"
	"log"
	"strings"
)

var filemodOperations = map[string]string{
	"1": "Created the file",
	"2": "First wrote to the file",
	"4": "Deleted the file",
	"8": "Last wrote to the file",
}

var regmodOperations = map[string]string{
	"1": "Created the registry key",
	"2": "First wrote to the file",
	"4": "Deleted the key",
	"8": "Deleted the value",
}

var crossprocSubTypes = map[string]string{
	"1": "handle open to process",
	"2": "handle open to thread in process",
}

// Event is one decoded process event; keys follow the vendor's report
// field names.
type Event map[string]string

// splitEntries yields the pipe-delimited entries of one event field.
func splitEntries(data string) []string {
	if strings.TrimSpace(data) == "" {
		return nil
	}
	return strings.Split(data, ",")
}

// fields splits one entry and verifies the expected arity. A short entry
// is reported to the caller so it can be skipped with a debug log.
func fields(entry string, want int) ([]string, error) {
	parts := strings.Split(entry, "|")
	if len(parts) < want {
		return nil, fmt.Errorf("missing details in entry: %s", entry)
	}
	return parts, nil
}

func skip(entry string) {
	log.Printf("edrparse: missing details, ignoring entry: %s", entry)
}

// ParseFilemod decodes a filemod field:
// operation|time|path|md5_after_last_write|file_type|tamper_flag.
func ParseFilemod(data string) []Event {
	var events []Event
	for _, entry := range splitEntries(data) {
		parts, err := fields(entry, 6)
		if err != nil {
			skip(entry)
			continue
		}
		events = append(events, Event{
			"operation_type":                      filemodOperations[parts[0]],
			"event_time":                          parts[1],
			"file_path":                           parts[2],
			"md5_after_last_write":                parts[3],
			"file_type":                           parts[4],
			"flagged_as_potential_tamper_attempt": parts[5],
		})
	}
	return events
}

// ParseModload decodes a modload field: time|md5|path.
func ParseModload(data string) []Event {
	var events []Event
	for _, entry := range splitEntries(data) {
		parts, err := fields(entry, 3)
		if err != nil {
			skip(entry)
			continue
		}
		events = append(events, Event{
			"event_time":              parts[0],
			"loaded_module_md5":       parts[1],
			"loaded_module_full_path": parts[2],
		})
	}
	return events
}

// ParseRegmod decodes a regmod field: operation|time|registry_key_path.
func ParseRegmod(data string) []Event {
	var events []Event
	for _, entry := range splitEntries(data) {
		parts, err := fields(entry, 3)
		if err != nil {
			skip(entry)
			continue
		}
		events = append(events, Event{
			"operation_type":    regmodOperations[parts[0]],
			"event_time":        parts[1],
			"registry_key_path": parts[2],
		})
	}
	return events
}

// ParseCrossproc decodes a crossproc field:
// type|time|target_unique_id|target_md5|target_path|sub_type|privileges|tamper_flag.
// The sub-type key is prefixed with the access type, matching the vendor's
// report layout.
func ParseCrossproc(data string) []Event {
	var events []Event
	for _, entry := range splitEntries(data) {
		parts, err := fields(entry, 8)
		if err != nil {
			skip(entry)
			continue
		}
		accessType := parts[0]
		events = append(events, Event{
			"cross-process_access_type":           accessType,
			"event_time":                          parts[1],
			"targeted_process_unique_id":          parts[2],
			"targeted_process_md5":                parts[3],
			"targeted_process_path":               parts[4],
			accessType + "_sub-type":              crossprocSubTypes[parts[5]],
			"requested_access_priviledges":        parts[6],
			"flagged_as_potential_tamper_attempt": parts[7],
		})
	}
	return events
}

// IsolationStatus maps a sensor's isolation configuration pair to the
// human-readable status the console shows.
func IsolationStatus(isolationActivated, isIsolated bool) string {
	switch {
	case isolationActivated && isIsolated:
		return "Yes"
	case isolationActivated:
		return "Pending isolation"
	case isIsolated:
		return "Pending unisolation"
	default:
		return "No"
	}
}
