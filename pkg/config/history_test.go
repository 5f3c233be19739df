package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := OpenHistory(t.TempDir())
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRecordAppends(t *testing.T) {
	h := openTestHistory(t)

	first := validGCPConfig()
	if err := h.Record(first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	second := validGCPConfig()
	second.NodeCount = 3
	if err := h.Record(second); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := h.Entries(0)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// newest first
	cfg, err := entries[0].Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if got := cfg.(*GCPConfig).NodeCount; got != 3 {
		t.Errorf("expected newest entry first, got node_count=%d", got)
	}
}

func TestHistoryEntriesLimit(t *testing.T) {
	h := openTestHistory(t)
	for i := 0; i < 5; i++ {
		if err := h.Record(validAWSConfig()); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	entries, err := h.Entries(2)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected limit of 2, got %d", len(entries))
	}
}

func TestHistorySkipsCorruptLines(t *testing.T) {
	h := openTestHistory(t)
	if err := h.Record(validAWSConfig()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// simulate a crash mid-write
	if _, err := h.log.WriteString("{\"timestamp\": \"2026-01-\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := h.Record(validAWSConfig()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := h.Entries(0)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected corrupt line to be skipped, got %d entries", len(entries))
	}
}

func TestHistoryRedactsSecretsOnDisk(t *testing.T) {
	h := openTestHistory(t)
	cfg := validAWSConfig()
	cfg.EncryptionKey = "deadbeefdeadbeefdeadbeefdeadbeef"
	if err := h.Record(cfg); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := h.SetCurrent(cfg); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}

	for _, name := range []string{HistoryFileName, CurrentFileName} {
		data, err := os.ReadFile(filepath.Join(h.dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if strings.Contains(string(data), "deadbeef") {
			t.Errorf("%s contains cleartext secret", name)
		}
		if !strings.Contains(string(data), RedactedPlaceholder) {
			t.Errorf("%s missing redaction placeholder", name)
		}
	}
}

func TestHistoryCurrentPointer(t *testing.T) {
	h := openTestHistory(t)

	if _, err := h.Current(); err == nil {
		t.Fatal("expected NOT_FOUND before any deployment")
	}

	cfg := validGCPConfig()
	if err := h.SetCurrent(cfg); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}

	entry, err := h.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if entry.Provider != ProviderGCP {
		t.Errorf("expected gcp, got %s", entry.Provider)
	}

	// overwrite with a different provider; the pointer is single-record
	if err := h.SetCurrent(validAWSConfig()); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	entry, err = h.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if entry.Provider != ProviderAWS {
		t.Errorf("expected aws after overwrite, got %s", entry.Provider)
	}

	if err := h.ClearCurrent(); err != nil {
		t.Fatalf("ClearCurrent: %v", err)
	}
	if _, err := h.Current(); err == nil {
		t.Error("expected NOT_FOUND after ClearCurrent")
	}
	// clearing twice is fine
	if err := h.ClearCurrent(); err != nil {
		t.Errorf("second ClearCurrent should be a no-op: %v", err)
	}
}
