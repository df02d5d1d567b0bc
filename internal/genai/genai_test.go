package genai

import (
	"errors"
	"testing"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

func TestParseLeads_PlainArray(t *testing.T) {
	raw := `[{"id":1,"title":"The Hidden Cause","content":"What if..."},{"id":2,"title":"The 3am Wakeup","content":"Every night..."}]`
	leads, err := ParseLeads(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	if leads[0].ID != 1 || leads[0].Title != "The Hidden Cause" {
		t.Errorf("first lead not parsed correctly: %+v", leads[0])
	}
}

func TestParseLeads_FencedPayload(t *testing.T) {
	raw := "Here are your options:\n```json\n[{\"id\":1,\"title\":\"A\",\"content\":\"a\"}]\n```\nLet me know!"
	leads, err := ParseLeads(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 1 || leads[0].Content != "a" {
		t.Errorf("fenced payload not parsed: %+v", leads)
	}
}

func TestParseLeads_Malformed(t *testing.T) {
	for _, raw := range []string{"", "no json here", "[{\"id\": oops]", "{\"id\":1}"} {
		if _, err := ParseLeads(raw); !errors.Is(err, models.ErrMalformedLeadPayload) {
			t.Errorf("ParseLeads(%q): expected ErrMalformedLeadPayload, got %v", raw, err)
		}
	}
}

func TestParseLeads_EmptyArray(t *testing.T) {
	if _, err := ParseLeads("[]"); !errors.Is(err, models.ErrNoLeadsGenerated) {
		t.Errorf("expected ErrNoLeadsGenerated, got %v", err)
	}
}
