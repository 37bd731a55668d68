package service

import (
	"testing"
	"time"

	"github.com/couchplay/server/game/session"
)

func record(roomID string, finished time.Time) session.MatchRecord {
	return session.MatchRecord{
		RoomID: roomID,
		GameID: "pong",
		Players: []session.PlayerResult{
			{UserID: "u1", Name: "Ada", Score: 3},
			{UserID: "u2", Name: "Ben", Score: 1},
		},
		WinnerUserID: "u1",
		DurationMs:   42000,
		FinishedAt:   finished,
	}
}

func TestRecordAndGetMatch(t *testing.T) {
	store := NewInMemoryMatchStore()

	if err := store.RecordMatch(record("room-1", time.Now())); err != nil {
		t.Fatalf("RecordMatch failed: %v", err)
	}

	matches := store.List(0)
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}

	got, ok := store.Get(matches[0].ID)
	if !ok {
		t.Fatal("Get missed a recorded match")
	}
	if got.WinnerUserID != "u1" || len(got.Players) != 2 {
		t.Errorf("Match payload mangled: %+v", got)
	}

	if _, ok := store.Get("nope"); ok {
		t.Error("Expected miss for unknown id")
	}
}

func TestListByRoom(t *testing.T) {
	store := NewInMemoryMatchStore()
	now := time.Now()

	store.RecordMatch(record("room-1", now))
	store.RecordMatch(record("room-2", now.Add(time.Minute)))
	store.RecordMatch(record("room-1", now.Add(2*time.Minute)))

	matches := store.ListByRoom("room-1")
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches for room-1, got %d", len(matches))
	}
	if !matches[0].FinishedAt.Before(matches[1].FinishedAt) {
		t.Error("ListByRoom must be oldest first")
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	store := NewInMemoryMatchStore()
	now := time.Now()

	for i := 0; i < 5; i++ {
		store.RecordMatch(record("room-1", now.Add(time.Duration(i)*time.Minute)))
	}

	matches := store.List(3)
	if len(matches) != 3 {
		t.Fatalf("Expected limit of 3, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].FinishedAt.After(matches[i-1].FinishedAt) {
			t.Error("List must be newest first")
		}
	}
}
