package agent

import (
	"errors"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Decision
	}{
		{
			name: "nested args",
			raw:  `{"action":"search_and_open_app","args":{"app_name":"Notepad"}}`,
			want: Decision{Action: "search_and_open_app", Args: map[string]any{"app_name": "Notepad"}},
		},
		{
			name: "sibling args",
			raw:  `{"action":"finish","reason":"done"}`,
			want: Decision{Action: "finish", Args: map[string]any{"reason": "done"}},
		},
		{
			name: "nested args override siblings",
			raw:  `{"action":"press_key","key":"tab","args":{"key":"enter","window_title":"Chats"}}`,
			want: Decision{Action: "press_key", Args: map[string]any{"key": "enter", "window_title": "Chats"}},
		},
		{
			name: "keys are case-insensitive",
			raw:  `{"Action":"PRESS_KEY","ARGS":{"Window_Title":"Chats","Key":"Enter"}}`,
			want: Decision{Action: "PRESS_KEY", Args: map[string]any{"window_title": "Chats", "key": "Enter"}},
		},
		{
			name: "call suffix stripped",
			raw:  `{"action":" LIST_OPEN_WINDOWS() "}`,
			want: Decision{Action: "LIST_OPEN_WINDOWS", Args: map[string]any{}},
		},
		{
			name: "markdown fence",
			raw:  "Here is my answer:\n```json\n{\"action\": \"open_url\", \"args\": {\"url\": \"google.com\"}}\n```",
			want: Decision{Action: "open_url", Args: map[string]any{"url": "google.com"}},
		},
		{
			name: "braces inside strings",
			raw:  `{"action":"interact_with_element","args":{"window_title":"Notepad","action":"type","value":"if (x) { y(\"}\") }"}}`,
			want: Decision{Action: "interact_with_element", Args: map[string]any{"window_title": "Notepad", "action": "type", "value": `if (x) { y("}") }`}},
		},
		{
			name: "prose with an invalid brace span",
			raw:  `I considered {this} but chose {"action":"finish"}`,
			want: Decision{Action: "finish", Args: map[string]any{}},
		},
		{
			name: "one fenced block among several objects",
			raw:  "Previously {\"action\":\"list_open_windows\"}.\n```json\n{\"action\":\"finish\",\"reason\":\"ok\"}\n```",
			want: Decision{Action: "finish", Args: map[string]any{"reason": "ok"}},
		},
		{
			name: "null args",
			raw:  `{"action":"list_open_windows","args":null}`,
			want: Decision{Action: "list_open_windows", Args: map[string]any{}},
		},
		{
			name: "non-string values kept",
			raw:  `{"action":"click_cell","args":{"cell":"C4","retries":2}}`,
			want: Decision{Action: "click_cell", Args: map[string]any{"cell": "C4", "retries": float64(2)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.raw)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseDecision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDecision_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantMsg string
	}{
		{"empty", "", "no JSON object found"},
		{"prose", "I would open notepad next.", "no JSON object found"},
		{"truncated", `{"action":"finish"`, "no JSON object found"},
		{"single quotes", `{'action': 'finish'}`, "no JSON object found"},
		{"missing action", `{"args":{"reason":"done"}}`, "missing 'action' key"},
		{"blank action", `{"action":"  () "}`, "missing 'action' key"},
		{"non-string action", `{"action":7}`, "missing 'action' key"},
		{"two objects", `{"action":"a"} {"action":"b"}`, "2 JSON objects"},
		{"two fenced blocks", "```json\n{\"action\":\"a\"}\n```\n```json\n{\"action\":\"b\"}\n```", "2 JSON objects"},
		{"args not an object", `{"action":"finish","args":"done"}`, "'args' must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecision(tt.raw)
			var formatErr *DecisionFormatError
			require.True(t, errors.As(err, &formatErr), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseDecision_LongReplyTruncated(t *testing.T) {
	_, err := ParseDecision(strings.Repeat("x", 1000))
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 300)
}

func FuzzParseDecision(f *testing.F) {
	f.Add([]byte(`{"action":"finish","args":{"reason":"done"}}`))
	f.Add([]byte("```json\n{\"ACTION\":\"x\"}\n```"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		prefix, err := consumer.GetString()
		if err != nil {
			return
		}
		body, err := consumer.GetString()
		if err != nil {
			return
		}

		d, err := ParseDecision(prefix + body)
		if err != nil {
			var formatErr *DecisionFormatError
			require.True(t, errors.As(err, &formatErr))
			return
		}
		assert.NotEmpty(t, d.Action)
		for k := range d.Args {
			assert.Equal(t, strings.ToLower(k), k)
		}
	})
}
