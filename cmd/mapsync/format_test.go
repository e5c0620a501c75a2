package main

import (
	"strings"
	"testing"
	"time"

	"mapsync/internal/audit"
)

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   audit.Event
		want string
	}{
		{"rename", audit.Event{Kind: "rename", EntryKind: "class", Entry: "a.b.C", TargetName: "Widget"},
			"renamed class a.b.C to Widget"},
		{"rename with previous", audit.Event{Kind: "rename", EntryKind: "class", Entry: "a.b.C", BeforeName: "Old", TargetName: "Widget"},
			"renamed class a.b.C from Old to Widget"},
		{"docs", audit.Event{Kind: "change_docs", EntryKind: "field", Entry: "a.b.C.d", Docs: "x"},
			"edited docs of field a.b.C.d"},
		{"docs cleared", audit.Event{Kind: "change_docs", EntryKind: "field", Entry: "a.b.C.d"},
			"cleared docs of field a.b.C.d"},
		{"remove", audit.Event{Kind: "remove_mapping", EntryKind: "method", Entry: "a.b.C.foo()V"},
			"removed mapping of method a.b.C.foo()V"},
		{"mark", audit.Event{Kind: "mark_deobfuscated", EntryKind: "class", Entry: "a.b.C", TargetName: "a.b.C"},
			"marked class a.b.C as deobfuscated"},
		{"unmark", audit.Event{Kind: "mark_deobfuscated", EntryKind: "class", Entry: "a.b.C"},
			"unmarked class a.b.C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeEvent(tt.ev); got != tt.want {
				t.Errorf("describeEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatResponse_History(t *testing.T) {
	resp := &audit.ListResponse{
		Events: []audit.Event{{
			SyncID: 3, User: "alice", Kind: "rename", EntryKind: "class", Entry: "a.b.C",
			TargetName: "Widget", At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}},
		TotalCount: 10,
	}

	human, err := FormatResponse(resp, FormatHuman)
	if err != nil {
		t.Fatalf("FormatResponse(human) error = %v", err)
	}
	for _, want := range []string{"#3", "alice", "renamed class a.b.C to Widget", "Showing 1 of 10 changes"} {
		if !strings.Contains(human, want) {
			t.Errorf("human output missing %q:\n%s", want, human)
		}
	}

	js, err := FormatResponse(resp, FormatJSON)
	if err != nil {
		t.Fatalf("FormatResponse(json) error = %v", err)
	}
	if !strings.Contains(js, `"totalCount": 10`) || !strings.Contains(js, `"targetName": "Widget"`) {
		t.Errorf("unexpected json output:\n%s", js)
	}

	empty, _ := FormatResponse(&audit.ListResponse{}, FormatHuman)
	if !strings.Contains(empty, "No changes recorded.") {
		t.Errorf("unexpected empty output: %q", empty)
	}

	if _, err := FormatResponse(resp, OutputFormat("xml")); err == nil {
		t.Error("FormatResponse should reject unknown formats")
	}
}
