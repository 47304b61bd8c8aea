package webui

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLogBufferCapturesZerolog(t *testing.T) {
	lb := NewLogBuffer(10)
	log := zerolog.New(lb).With().Timestamp().Str("component", "poller").Logger()

	log.Info().Msg("Alert poller started")
	log.Warn().Str("entity", "-200").Msg("No reachable admins")

	entries := lb.GetEntries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Message != "Alert poller started" || entries[0].Level != "info" || entries[0].Component != "poller" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Level != "warn" {
		t.Errorf("entry 1 level = %q", entries[1].Level)
	}
}

func TestLogBufferWrapsInOrder(t *testing.T) {
	lb := NewLogBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		lb.Write([]byte(`{"level":"info","message":"` + msg + `"}` + "\n"))
	}

	entries := lb.GetEntries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	for i, want := range []string{"c", "d", "e"} {
		if entries[i].Message != want {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Message, want)
		}
	}

	lb.Clear()
	if len(lb.GetEntries()) != 0 {
		t.Error("Clear() left entries behind")
	}
}

func TestLogBufferRecentFiltersByLevel(t *testing.T) {
	lb := NewLogBuffer(10)
	lb.Write([]byte(`{"level":"debug","message":"one"}`))
	lb.Write([]byte(`{"level":"warn","message":"two"}`))
	lb.Write([]byte(`{"level":"error","message":"three"}`))
	lb.Write([]byte("plain text line\n"))

	got := lb.GetRecentEntries(10, "warn")
	if len(got) != 2 || got[0].Message != "two" || got[1].Message != "three" {
		t.Errorf("warn+ = %+v", got)
	}

	got = lb.GetRecentEntries(2, "")
	if len(got) != 2 || got[1].Message != "plain text line" {
		t.Errorf("last 2 = %+v", got)
	}
}
