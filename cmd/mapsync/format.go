package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"mapsync/internal/audit"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *audit.ListResponse:
		return formatHistoryHuman(v), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func formatHistoryHuman(resp *audit.ListResponse) string {
	var b strings.Builder
	if len(resp.Events) == 0 {
		b.WriteString("No changes recorded.\n")
		return b.String()
	}
	for _, ev := range resp.Events {
		fmt.Fprintf(&b, "%s  #%-5d %-10s %s\n",
			ev.At.Local().Format("2006-01-02 15:04:05"), ev.SyncID, ev.User, describeEvent(ev))
	}
	fmt.Fprintf(&b, "\nShowing %d of %d changes\n", len(resp.Events), resp.TotalCount)
	return b.String()
}

func describeEvent(ev audit.Event) string {
	switch ev.Kind {
	case "rename":
		if ev.BeforeName != "" {
			return fmt.Sprintf("renamed %s %s from %s to %s", ev.EntryKind, ev.Entry, ev.BeforeName, ev.TargetName)
		}
		return fmt.Sprintf("renamed %s %s to %s", ev.EntryKind, ev.Entry, ev.TargetName)
	case "change_docs":
		if ev.Docs == "" {
			return fmt.Sprintf("cleared docs of %s %s", ev.EntryKind, ev.Entry)
		}
		return fmt.Sprintf("edited docs of %s %s", ev.EntryKind, ev.Entry)
	case "remove_mapping":
		return fmt.Sprintf("removed mapping of %s %s", ev.EntryKind, ev.Entry)
	case "mark_deobfuscated":
		if ev.TargetName == "" {
			return fmt.Sprintf("unmarked %s %s", ev.EntryKind, ev.Entry)
		}
		return fmt.Sprintf("marked %s %s as deobfuscated", ev.EntryKind, ev.Entry)
	default:
		return ev.Kind + " " + ev.Entry
	}
}
