package attachment

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

func TestEncode_RoundTrip(t *testing.T) {
	enc := NewEncoder()
	raw := []byte("proof screenshot bytes")
	att, err := enc.Encode("proof.png", "image/png", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.Name != "proof.png" || att.MediaType != "image/png" {
		t.Errorf("metadata not preserved: %+v", att)
	}
	decoded, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Errorf("payload does not round-trip: got %q", decoded)
	}
}

func TestEncode_AtLimit(t *testing.T) {
	enc := NewEncoder(WithMaxSize(16))
	att, err := enc.Encode("exact.txt", "text/plain", strings.NewReader(strings.Repeat("a", 16)))
	if err != nil {
		t.Fatalf("file exactly at the limit must be accepted: %v", err)
	}
	if att.Data == "" {
		t.Error("expected non-empty payload")
	}
}

func TestEncode_OverLimit(t *testing.T) {
	// A 5 MiB file against the default 4 MiB ceiling.
	enc := NewEncoder()
	big := bytes.Repeat([]byte("x"), 5*1024*1024)
	_, err := enc.Encode("big.pdf", "application/pdf", bytes.NewReader(big))
	if !errors.Is(err, models.ErrAttachmentTooLarge) {
		t.Fatalf("expected ErrAttachmentTooLarge, got %v", err)
	}
}

func TestEncode_DefaultLimit(t *testing.T) {
	enc := NewEncoder()
	if enc.MaxSize() != models.MaxAttachmentSize {
		t.Errorf("expected default limit %d, got %d", models.MaxAttachmentSize, enc.MaxSize())
	}
}
