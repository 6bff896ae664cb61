package export

import (
	"context"
	"strings"
	"testing"

	"flowboard/api/internal/store"
)

type fakeStore struct {
	board store.Board
	users []store.User
}

func (f *fakeStore) GetBoard(ctx context.Context, boardID string) (store.Board, error) {
	return f.board, nil
}

func (f *fakeStore) GetUsersByIDs(ctx context.Context, ids []string) ([]store.User, error) {
	return f.users, nil
}

func testBoard() store.Board {
	return store.Board{
		ID:          "b-1",
		Title:       "Roadmap Q4",
		Description: "Planning board",
		OwnerID:     "u-1",
		Columns: []store.Column{
			{ID: "c-1", Title: "To Do", Order: 0},
			{ID: "c-2", Title: "Done", Order: 1, IsEntryLocked: true},
		},
		TaskTypes: []store.TaskType{
			{ID: "t-1", Label: "Feature", Color: "#3b82f6"},
		},
		Tasks: []store.Task{
			{ID: "task-1", ColumnID: "c-1", Title: "Ship login", Description: "OAuth flow", TypeID: "t-1", AssigneeIDs: []string{"u-2"}},
			{ID: "task-2", ColumnID: "c-2", Title: "Set up CI", TypeID: "t-1"},
		},
	}
}

func testUsers() []store.User {
	return []store.User{
		{ID: "u-1", DisplayName: "Owner"},
		{ID: "u-2", DisplayName: "Avery"},
	}
}

func TestRenderBoardHTML(t *testing.T) {
	svc := NewService(&fakeStore{board: testBoard(), users: testUsers()})
	data, err := svc.buildTemplateData(context.Background(), testBoard())
	if err != nil {
		t.Fatalf("buildTemplateData() error = %v", err)
	}

	html, err := RenderBoardHTML(data)
	if err != nil {
		t.Fatalf("RenderBoardHTML() error = %v", err)
	}

	for _, want := range []string{"Roadmap Q4", "To Do", "Done", "Ship login", "Feature", "#3b82f6", "Avery", "(locked)"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewService(&fakeStore{board: testBoard(), users: testUsers()})

	result, err := svc.Export(context.Background(), Request{BoardID: "b-1", Format: FormatCSV})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if result.MimeType != "text/csv" {
		t.Errorf("MimeType = %q, want text/csv", result.MimeType)
	}
	if !strings.HasSuffix(result.Filename, ".csv") {
		t.Errorf("Filename = %q, want .csv suffix", result.Filename)
	}

	csv := string(result.Data)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d csv lines, want 3 (header + 2 tasks):\n%s", len(lines), csv)
	}
	if !strings.HasPrefix(lines[0], "Column,Task") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(csv, "To Do,Ship login,OAuth flow,Feature,Avery") {
		t.Errorf("csv missing task row:\n%s", csv)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewService(&fakeStore{board: testBoard(), users: testUsers()})
	if _, err := svc.Export(context.Background(), Request{BoardID: "b-1", Format: "xlsx"}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Roadmap Q4", "Roadmap-Q4"},
		{"weird/chars?*", "weirdchars"},
		{"", "board"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
