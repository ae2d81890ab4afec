package storage

import (
	"testing"
	"time"

	"github.com/soullab/oracle-choreography/core"
)

func openTestArchive(t *testing.T) *BadgerArchive {
	t.Helper()
	cfg := DefaultArchiveConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	a, err := OpenArchive(cfg)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchive_SaveAndReadTurns(t *testing.T) {
	a := openTestArchive(t)

	for i := 1; i <= 3; i++ {
		rec := core.ResponseRecord{
			ID:        "rec",
			AgentID:   "fire",
			UserID:    "user-1",
			Payload:   core.ResponsePayload{Text: "hello"},
			Timestamp: time.Unix(int64(1000+i), 0).UTC(),
		}
		if err := a.SaveTurn("user-1|s-1", i, rec); err != nil {
			t.Fatalf("SaveTurn %d: %v", i, err)
		}
	}

	records, err := a.SessionTurns("user-1|s-1")
	if err != nil {
		t.Fatalf("SessionTurns: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.Before(records[i-1].Timestamp) {
			t.Error("records out of sequence order")
		}
	}
}

func TestArchive_SessionsIsolated(t *testing.T) {
	a := openTestArchive(t)

	if err := a.SaveTurn("user-1|s-1", 1, core.ResponseRecord{ID: "a"}); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}
	if err := a.SaveTurn("user-1|s-2", 1, core.ResponseRecord{ID: "b"}); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	records, err := a.SessionTurns("user-1|s-1")
	if err != nil {
		t.Fatalf("SessionTurns: %v", err)
	}
	if len(records) != 1 || records[0].ID != "a" {
		t.Errorf("session s-1 records = %v", records)
	}
}

func TestArchive_SessionIndex(t *testing.T) {
	a := openTestArchive(t)

	if err := a.SaveSession("user-1|s-1", "user-1"); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := a.SaveSession("user-2|s-9", "user-2"); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	sessions, err := a.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions["user-1|s-1"] != "user-1" {
		t.Errorf("sessions = %v", sessions)
	}
}

func TestArchive_EmptySession(t *testing.T) {
	a := openTestArchive(t)
	records, err := a.SessionTurns("nobody|nothing")
	if err != nil {
		t.Fatalf("SessionTurns: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}
