package board

import (
	"errors"
	"strings"
	"testing"

	"flowboard/api/internal/store"
)

func TestCanMove(t *testing.T) {
	open := store.Column{ID: "c1"}
	exitLocked := store.Column{ID: "c2", IsExitLocked: true}
	entryLocked := store.Column{ID: "c3", IsEntryLocked: true}

	cases := []struct {
		name string
		from store.Column
		to   store.Column
		want error
	}{
		{"open to open", open, store.Column{ID: "c4"}, nil},
		{"exit locked source", exitLocked, open, ErrExitLocked},
		{"entry locked target", open, entryLocked, ErrEntryLocked},
		{"exit lock wins over entry lock", exitLocked, entryLocked, ErrExitLocked},
		{"same column ignores locks", exitLocked, exitLocked, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanMove(tc.from, tc.to); !errors.Is(got, tc.want) {
				t.Fatalf("CanMove() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestReassignTypeFallback(t *testing.T) {
	b := &store.Board{TaskTypes: []store.TaskType{
		{ID: "t1", Label: "Feature"},
		{ID: "t2", Label: "Bug"},
	}}

	if got := ReassignTypeFallback(b, "t1"); got != "t2" {
		t.Fatalf("fallback = %q, want t2", got)
	}
	if got := ReassignTypeFallback(b, "t2"); got != "t1" {
		t.Fatalf("fallback = %q, want t1", got)
	}

	single := &store.Board{TaskTypes: []store.TaskType{{ID: "t1"}}}
	if got := ReassignTypeFallback(single, "t1"); got != FallbackTypeID {
		t.Fatalf("fallback = %q, want %q", got, FallbackTypeID)
	}
}

func TestDefaults(t *testing.T) {
	columns := DefaultColumns()
	if len(columns) != 3 {
		t.Fatalf("got %d default columns, want 3", len(columns))
	}
	wantTitles := []string{"To Do", "In Progress", "Done"}
	for i, column := range columns {
		if column.Title != wantTitles[i] || column.Order != i {
			t.Fatalf("column %d = %+v, want title %q order %d", i, column, wantTitles[i], i)
		}
		if column.IsEntryLocked || column.IsExitLocked {
			t.Fatalf("default column %q must start unlocked", column.Title)
		}
	}

	taskTypes := DefaultTaskTypes()
	if len(taskTypes) != 3 {
		t.Fatalf("got %d default types, want 3", len(taskTypes))
	}
	if taskTypes[0].Label != "Feature" || taskTypes[0].Color != "#3b82f6" {
		t.Fatalf("first default type = %+v", taskTypes[0])
	}
}

func TestNewInviteCode(t *testing.T) {
	code := NewInviteCode()
	if !strings.HasPrefix(code, "invite-") {
		t.Fatalf("code %q missing prefix", code)
	}
	if parts := strings.Split(code, "-"); len(parts) != 3 {
		t.Fatalf("code %q should have three segments", code)
	}
	if NewInviteCode() == code {
		t.Fatal("two invite codes should not collide")
	}
}

func TestColumnHasTasks(t *testing.T) {
	b := &store.Board{Tasks: []store.Task{{ID: "task1", ColumnID: "c1"}}}
	if !ColumnHasTasks(b, "c1") {
		t.Fatal("expected tasks in c1")
	}
	if ColumnHasTasks(b, "c2") {
		t.Fatal("expected no tasks in c2")
	}
}
