package schema

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestItemJSONRoundTrip(t *testing.T) {
	exitCode := 0
	item := NewItem("item-1", &CommandExecutionItem{
		Command:          "go test ./...",
		AggregatedOutput: "ok",
		ExitCode:         &exitCode,
		Status:           StatusCompleted,
	})
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Item
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != "item-1" || decoded.Kind != ItemCommandExecution {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}
	payload, ok := decoded.Payload.(*CommandExecutionItem)
	if !ok {
		t.Fatalf("payload type %T", decoded.Payload)
	}
	if payload.Command != "go test ./..." || payload.Status != StatusCompleted {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.ExitCode == nil || *payload.ExitCode != 0 {
		t.Fatalf("exit code lost: %+v", payload.ExitCode)
	}
}

func TestItemMarshalFlattensPayload(t *testing.T) {
	item := NewItem("m1", &AgentMessageItem{Text: "hello"})
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}
	if flat["kind"] != "agentMessage" || flat["id"] != "m1" || flat["text"] != "hello" {
		t.Fatalf("payload not flattened: %v", flat)
	}
}

func TestItemUnknownKindRejected(t *testing.T) {
	var item Item
	err := json.Unmarshal([]byte(`{"kind":"somethingNew","text":"x"}`), &item)
	if err == nil {
		t.Fatalf("unknown kind accepted")
	}
}

func TestOpaquePayloadRoundTrip(t *testing.T) {
	native := []byte(`{"query":{"nested":[1,2,{"deep":true}]},"limit":10}`)
	reparsed, err := ReparseJSON("mcp arguments", native)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	item := NewItem("tool-1", &McpToolCallItem{
		Server:    "search",
		Tool:      "lookup",
		Status:    StatusInProgress,
		Arguments: reparsed,
	})
	wire, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Item
	if err := json.Unmarshal(wire, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	payload := decoded.Payload.(*McpToolCallItem)

	var want, got any
	if err := json.Unmarshal(native, &want); err != nil {
		t.Fatalf("unmarshal native: %v", err)
	}
	if err := json.Unmarshal(payload.Arguments, &got); err != nil {
		t.Fatalf("unmarshal round-tripped: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("opaque payload not structurally equal:\nwant %v\ngot  %v", want, got)
	}
}

func TestReparseJSONRejectsInvalid(t *testing.T) {
	if _, err := ReparseJSON("blob", []byte(`{"unterminated`)); err == nil {
		t.Fatalf("invalid JSON accepted")
	}
	if out, err := ReparseJSON("blob", nil); err != nil || out != nil {
		t.Fatalf("empty input should pass through as nil, got %v %v", out, err)
	}
}

func TestItemText(t *testing.T) {
	cases := []struct {
		payload ItemPayload
		want    string
	}{
		{&UserMessageItem{Text: "u"}, "u"},
		{&AgentMessageItem{Text: "a"}, "a"},
		{&ErrorItem{Message: "boom"}, "boom"},
		{&WebSearchItem{Query: "q"}, ""},
	}
	for _, tc := range cases {
		item := NewItem("", tc.payload)
		if got := item.Text(); got != tc.want {
			t.Fatalf("Text() for %T = %q, want %q", tc.payload, got, tc.want)
		}
	}
}
