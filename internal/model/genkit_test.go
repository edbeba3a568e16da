package model

import (
	"reflect"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/jsonschema-go/jsonschema"
)

func TestToGenkitMessages(t *testing.T) {
	msgs := []Message{
		UserMessage("what time is it in Tokyo?"),
		AssistantMessage("I should check the clock.", &ToolCall{
			ID:   "c1",
			Name: "current_time",
			Args: map[string]any{"timezone": "Asia/Tokyo"},
		}),
		ToolMessage(ToolResult{CallID: "c1", Name: "current_time", Output: "2026-08-29T19:00:00+09:00"}),
		{Role: RoleSystem, Content: "ignored, travels via WithSystem"},
	}

	out := toGenkitMessages(msgs)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3 (system dropped)", len(out))
	}

	if out[0].Role != ai.RoleUser {
		t.Errorf("message 0 role = %v", out[0].Role)
	}

	if out[1].Role != ai.RoleModel {
		t.Errorf("message 1 role = %v", out[1].Role)
	}
	var foundRequest bool
	for _, p := range out[1].Content {
		if p.ToolRequest != nil {
			foundRequest = true
			if p.ToolRequest.Name != "current_time" || p.ToolRequest.Ref != "c1" {
				t.Errorf("tool request = %+v", p.ToolRequest)
			}
		}
	}
	if !foundRequest {
		t.Error("assistant message missing tool request part")
	}

	if out[2].Role != ai.RoleTool {
		t.Errorf("message 2 role = %v", out[2].Role)
	}
	if out[2].Content[0].ToolResponse == nil {
		t.Fatal("tool message missing tool response part")
	}
	if out[2].Content[0].ToolResponse.Ref != "c1" {
		t.Errorf("tool response ref = %q", out[2].Content[0].ToolResponse.Ref)
	}
}

func TestToGenkitMessagesEmptyAssistant(t *testing.T) {
	out := toGenkitMessages([]Message{AssistantMessage("", nil)})
	if len(out) != 1 || len(out[0].Content) == 0 {
		t.Fatal("empty assistant message must still carry a part")
	}
}

func TestArgsToMap(t *testing.T) {
	direct := map[string]any{"query": "x"}
	if got := argsToMap(direct); !reflect.DeepEqual(got, direct) {
		t.Errorf("map passthrough = %v", got)
	}

	if got := argsToMap(nil); got != nil {
		t.Errorf("nil input = %v, want nil", got)
	}

	type input struct {
		Query string `json:"query"`
	}
	got := argsToMap(input{Query: "structured"})
	if got["query"] != "structured" {
		t.Errorf("struct round trip = %v", got)
	}

	if got := argsToMap("not an object"); got != nil {
		t.Errorf("scalar input = %v, want nil", got)
	}
}

func TestBridgeSchema(t *testing.T) {
	type searchInput struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}
	src, err := jsonschema.For[searchInput](nil)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	bridged, err := bridgeSchema(src)
	if err != nil {
		t.Fatalf("bridgeSchema() error = %v", err)
	}
	if bridged == nil {
		t.Fatal("bridged schema is nil")
	}
	props, ok := bridged["properties"].(map[string]any)
	if !ok {
		t.Fatalf("bridged schema lost properties: %v", bridged)
	}
	if _, ok := props["query"]; !ok {
		t.Error("bridged schema missing query property")
	}

	nilOut, err := bridgeSchema(nil)
	if err != nil || nilOut != nil {
		t.Errorf("bridgeSchema(nil) = %v, %v", nilOut, err)
	}
}
