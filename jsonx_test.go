package omniagent

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantKey string
		wantVal string
		wantErr bool
	}{
		{"plain", `{"mode":"text_only"}`, "mode", "text_only", false},
		{"fenced", "```json\n{\"mode\":\"tools_only\"}\n```", "mode", "tools_only", false},
		{"bare fence", "```\n{\"mode\":\"text_only\"}\n```", "mode", "text_only", false},
		{"prose wrapped", `Here is the plan: {"mode":"text_plus_tools"} hope that helps`, "mode", "text_plus_tools", false},
		{"empty", "", "", "", true},
		{"no object", "I cannot answer that.", "", "", true},
		{"broken json", `{"mode": `, "", "", true},
	}
	for _, tt := range tests {
		data, err := ExtractJSON(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %v", tt.name, data)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got := jsonString(data, tt.wantKey); got != tt.wantVal {
			t.Errorf("%s: %s = %q, want %q", tt.name, tt.wantKey, got, tt.wantVal)
		}
	}
}

func TestJSONBoolMap(t *testing.T) {
	data, err := ExtractJSON(`{"flags":{"needs_web":true,"needs_rag":false,"junk":"yes"}}`)
	if err != nil {
		t.Fatal(err)
	}
	flags := jsonBoolMap(data, "flags")
	if !flags["needs_web"] || flags["needs_rag"] || flags["junk"] {
		t.Errorf("flags = %v", flags)
	}
	if m := jsonBoolMap(data, "missing"); len(m) != 0 {
		t.Errorf("missing key should yield empty map, got %v", m)
	}
}
