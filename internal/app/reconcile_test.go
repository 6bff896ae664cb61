package app

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"flowboard/api/internal/perm"
	"flowboard/api/internal/store"
)

// fakeBoardTx records every mutation so tests can assert on the exact
// upsert-insert-delete split the reconciler produced.
type fakeBoardTx struct {
	remoteColumnIDs []string
	remoteTypeIDs   []string
	remoteTaskIDs   []string
	remoteMemberIDs []string
	remoteInviteIDs []string

	updatedBoard         *store.Board
	upsertedColumns      []store.Column
	insertedColumns      []store.Column
	deletedColumnIDs     []string
	upsertedTypes        []store.TaskType
	upsertedTypeOrders   []int
	insertedTypes        []store.TaskType
	deletedTypeIDs       []string
	upsertedTasks        []store.Task
	insertedTasks        []store.Task
	deletedTaskIDs       []string
	upsertedMembers      []store.BoardMember
	deletedMemberIDs     []string
	insertedInviteIDs    []string
	deletedInviteIDs     []string
	cleanedNotifications []string

	nextID int
}

func (f *fakeBoardTx) assignID(kind string) string {
	f.nextID++
	return fmt.Sprintf("%s-server-%d", kind, f.nextID)
}

func (f *fakeBoardTx) UpdateBoardRow(_ context.Context, b store.Board) error {
	f.updatedBoard = &b
	return nil
}

func (f *fakeBoardTx) ListColumnIDs(context.Context, string) ([]string, error) {
	return f.remoteColumnIDs, nil
}
func (f *fakeBoardTx) UpsertColumns(_ context.Context, _ string, columns []store.Column) error {
	f.upsertedColumns = append(f.upsertedColumns, columns...)
	return nil
}
func (f *fakeBoardTx) InsertColumn(_ context.Context, _ string, column store.Column) (store.Column, error) {
	column.ID = f.assignID("col")
	f.insertedColumns = append(f.insertedColumns, column)
	return column, nil
}
func (f *fakeBoardTx) DeleteColumns(_ context.Context, _ string, ids []string) error {
	f.deletedColumnIDs = append(f.deletedColumnIDs, ids...)
	return nil
}

func (f *fakeBoardTx) ListTaskTypeIDs(context.Context, string) ([]string, error) {
	return f.remoteTypeIDs, nil
}
func (f *fakeBoardTx) UpsertTaskTypes(_ context.Context, _ string, taskTypes []store.TaskType, orders []int) error {
	f.upsertedTypes = append(f.upsertedTypes, taskTypes...)
	f.upsertedTypeOrders = append(f.upsertedTypeOrders, orders...)
	return nil
}
func (f *fakeBoardTx) InsertTaskType(_ context.Context, _ string, taskType store.TaskType, _ int) (store.TaskType, error) {
	taskType.ID = f.assignID("type")
	f.insertedTypes = append(f.insertedTypes, taskType)
	return taskType, nil
}
func (f *fakeBoardTx) DeleteTaskTypes(_ context.Context, _ string, ids []string) error {
	f.deletedTypeIDs = append(f.deletedTypeIDs, ids...)
	return nil
}

func (f *fakeBoardTx) ListTaskIDs(context.Context, string) ([]string, error) {
	return f.remoteTaskIDs, nil
}
func (f *fakeBoardTx) UpsertTasks(_ context.Context, _ string, tasks []store.Task) error {
	f.upsertedTasks = append(f.upsertedTasks, tasks...)
	return nil
}
func (f *fakeBoardTx) InsertTask(_ context.Context, _ string, task store.Task) (store.Task, error) {
	task.ID = f.assignID("task")
	f.insertedTasks = append(f.insertedTasks, task)
	return task, nil
}
func (f *fakeBoardTx) DeleteTasks(_ context.Context, _ string, ids []string) error {
	f.deletedTaskIDs = append(f.deletedTaskIDs, ids...)
	return nil
}

func (f *fakeBoardTx) ListMemberUserIDs(context.Context, string) ([]string, error) {
	return f.remoteMemberIDs, nil
}
func (f *fakeBoardTx) UpsertMembers(_ context.Context, _ string, members []store.BoardMember) error {
	f.upsertedMembers = append(f.upsertedMembers, members...)
	return nil
}
func (f *fakeBoardTx) DeleteMembers(_ context.Context, _ string, userIDs []string) error {
	f.deletedMemberIDs = append(f.deletedMemberIDs, userIDs...)
	return nil
}

func (f *fakeBoardTx) ListInvitedUserIDs(context.Context, string) ([]string, error) {
	return f.remoteInviteIDs, nil
}
func (f *fakeBoardTx) InsertInvites(_ context.Context, _ string, userIDs []string) error {
	f.insertedInviteIDs = append(f.insertedInviteIDs, userIDs...)
	return nil
}
func (f *fakeBoardTx) DeleteInvites(_ context.Context, _ string, userIDs []string) error {
	f.deletedInviteIDs = append(f.deletedInviteIDs, userIDs...)
	return nil
}
func (f *fakeBoardTx) DeleteInviteNotification(_ context.Context, _ string, toUserID string) error {
	f.cleanedNotifications = append(f.cleanedNotifications, toUserID)
	return nil
}

func reconcileFixture() (*fakeStore, *fakeBoardTx) {
	current := testBoard()
	tx := &fakeBoardTx{
		remoteColumnIDs: []string{
			"11111111-1111-1111-1111-111111111111",
			"22222222-2222-2222-2222-222222222222",
		},
		remoteTypeIDs: []string{
			"33333333-3333-3333-3333-333333333333",
			"44444444-4444-4444-4444-444444444444",
		},
		remoteTaskIDs:   []string{"55555555-5555-5555-5555-555555555555"},
		remoteMemberIDs: []string{ownerID, memberID},
	}
	fs := boardStore(current)
	fs.tx = tx
	return fs, tx
}

func TestUpdateBoardSyncsCollections(t *testing.T) {
	fs, tx := reconcileFixture()
	svc := newTestService(fs)

	incoming := testBoard()
	// Keep the first column, drop the second, add a brand new one with a
	// client-generated id.
	incoming.Columns = []store.Column{
		incoming.Columns[0],
		{ID: "local-col-1", Title: "Review", Order: 1},
	}
	// New task in the new column, with a client id for both.
	incoming.Tasks = append(incoming.Tasks, store.Task{
		ID:       "local-task-1",
		ColumnID: "local-col-1",
		Title:    "Review PRs",
		TypeID:   "33333333-3333-3333-3333-333333333333",
	})

	if _, err := svc.UpdateBoard(context.Background(), ownerSession(), incoming); err != nil {
		t.Fatalf("UpdateBoard() error = %v", err)
	}

	if len(tx.upsertedColumns) != 1 || tx.upsertedColumns[0].ID != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("expected one recognized column upserted, got %+v", tx.upsertedColumns)
	}
	if len(tx.insertedColumns) != 1 || tx.insertedColumns[0].Title != "Review" {
		t.Fatalf("expected the new column inserted, got %+v", tx.insertedColumns)
	}
	if len(tx.deletedColumnIDs) != 1 || tx.deletedColumnIDs[0] != "22222222-2222-2222-2222-222222222222" {
		t.Fatalf("expected the dropped column deleted, got %v", tx.deletedColumnIDs)
	}

	if len(tx.insertedTasks) != 1 {
		t.Fatalf("expected the new task inserted, got %+v", tx.insertedTasks)
	}
	if tx.insertedTasks[0].ColumnID != tx.insertedColumns[0].ID {
		t.Fatalf("expected task column rewritten to the stored id %q, got %q",
			tx.insertedColumns[0].ID, tx.insertedTasks[0].ColumnID)
	}
	if len(tx.upsertedTasks) != 1 || tx.upsertedTasks[0].ID != "55555555-5555-5555-5555-555555555555" {
		t.Fatalf("expected the existing task upserted, got %+v", tx.upsertedTasks)
	}
	if len(tx.deletedTaskIDs) != 0 {
		t.Fatalf("expected no task deletions, got %v", tx.deletedTaskIDs)
	}
}

func TestUpdateBoardRewritesProvisionalTypeReferences(t *testing.T) {
	fs, tx := reconcileFixture()
	svc := newTestService(fs)

	incoming := testBoard()
	incoming.TaskTypes = append(incoming.TaskTypes, store.TaskType{ID: "local-type-1", Label: "Chore", Color: "#999999"})
	incoming.Tasks[0].TypeID = "local-type-1"

	if _, err := svc.UpdateBoard(context.Background(), ownerSession(), incoming); err != nil {
		t.Fatalf("UpdateBoard() error = %v", err)
	}

	if len(tx.insertedTypes) != 1 || tx.insertedTypes[0].Label != "Chore" {
		t.Fatalf("expected the new type inserted, got %+v", tx.insertedTypes)
	}
	if len(tx.upsertedTasks) != 1 {
		t.Fatalf("expected one upserted task, got %+v", tx.upsertedTasks)
	}
	if tx.upsertedTasks[0].TypeID != tx.insertedTypes[0].ID {
		t.Fatalf("expected task type rewritten to %q, got %q", tx.insertedTypes[0].ID, tx.upsertedTasks[0].TypeID)
	}
	if len(tx.upsertedTypes) != 2 {
		t.Fatalf("expected both existing types upserted, got %+v", tx.upsertedTypes)
	}
	if len(tx.upsertedTypeOrders) != 2 || tx.upsertedTypeOrders[0] != 0 || tx.upsertedTypeOrders[1] != 1 {
		t.Fatalf("expected list positions as orders, got %v", tx.upsertedTypeOrders)
	}
}

func TestUpdateBoardDiffsInvitesBothWays(t *testing.T) {
	fs, tx := reconcileFixture()
	tx.remoteInviteIDs = []string{"u-old", "u-kept"}
	svc := newTestService(fs)

	incoming := testBoard()
	incoming.PendingInvites = []string{"u-kept", "u-new"}

	if _, err := svc.UpdateBoard(context.Background(), ownerSession(), incoming); err != nil {
		t.Fatalf("UpdateBoard() error = %v", err)
	}

	if len(tx.insertedInviteIDs) != 1 || tx.insertedInviteIDs[0] != "u-new" {
		t.Fatalf("expected only the new invite inserted, got %v", tx.insertedInviteIDs)
	}
	if len(tx.deletedInviteIDs) != 1 || tx.deletedInviteIDs[0] != "u-old" {
		t.Fatalf("expected only the withdrawn invite deleted, got %v", tx.deletedInviteIDs)
	}
	if len(tx.cleanedNotifications) != 1 || tx.cleanedNotifications[0] != "u-old" {
		t.Fatalf("expected the withdrawn invite's notification cleaned, got %v", tx.cleanedNotifications)
	}
}

func TestUpdateBoardPinsOwnership(t *testing.T) {
	fs, tx := reconcileFixture()
	svc := newTestService(fs)

	// The snapshot drops the owner row and tries to crown the member.
	incoming := testBoard()
	incoming.OwnerID = memberID
	incoming.Members = []store.BoardMember{
		{UserID: memberID, Role: "owner", Permissions: []string{"can_view", "not_a_capability"}},
	}

	if _, err := svc.UpdateBoard(context.Background(), ownerSession(), incoming); err != nil {
		t.Fatalf("UpdateBoard() error = %v", err)
	}

	if len(tx.upsertedMembers) != 2 {
		t.Fatalf("expected member plus re-pinned owner, got %+v", tx.upsertedMembers)
	}
	byUser := map[string]store.BoardMember{}
	for _, member := range tx.upsertedMembers {
		byUser[member.UserID] = member
	}
	if byUser[memberID].Role != "member" {
		t.Fatalf("expected the member demoted back, got role %q", byUser[memberID].Role)
	}
	for _, p := range byUser[memberID].Permissions {
		if p == "not_a_capability" {
			t.Fatal("expected unknown capability strings dropped")
		}
	}
	owner, ok := byUser[ownerID]
	if !ok {
		t.Fatal("expected the owner row restored")
	}
	if owner.Role != "owner" || len(owner.Permissions) != 7 {
		t.Fatalf("expected owner with full capabilities, got %+v", owner)
	}
	if len(tx.deletedMemberIDs) != 0 {
		t.Fatalf("expected no member deletions, got %v", tx.deletedMemberIDs)
	}
}

func TestUpdateBoardGatesMemberEdits(t *testing.T) {
	tests := []struct {
		name string
		edit func(b *store.Board)
	}{
		{
			name: "self-granted capabilities",
			edit: func(b *store.Board) {
				b.Members = []store.BoardMember{
					{UserID: ownerID, Role: "owner"},
					{UserID: memberID, Role: "member", Permissions: perm.Strings(perm.All)},
				}
			},
		},
		{
			name: "invite added",
			edit: func(b *store.Board) {
				b.PendingInvites = []string{"u-new"}
			},
		},
		{
			name: "member dropped",
			edit: func(b *store.Board) {
				b.Members = []store.BoardMember{
					{UserID: ownerID, Role: "owner"},
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs, tx := reconcileFixture()
			svc := newTestService(fs)

			incoming := testBoard()
			tc.edit(&incoming)

			_, err := svc.UpdateBoard(context.Background(), memberSession(), incoming)
			assertDomainError(t, err, http.StatusForbidden, "Missing permission: can_manage_users")
			if tx.updatedBoard != nil {
				t.Fatalf("expected no board write, got %+v", tx.updatedBoard)
			}
			if len(tx.upsertedMembers) != 0 || len(tx.insertedInviteIDs) != 0 {
				t.Fatalf("expected no member writes, got members %+v invites %v",
					tx.upsertedMembers, tx.insertedInviteIDs)
			}
		})
	}
}

func TestUpdateBoardAllowsViewerWithoutMemberEdits(t *testing.T) {
	fs, tx := reconcileFixture()
	svc := newTestService(fs)

	// The snapshot echoes members and invites untouched and only edits a task.
	incoming := testBoard()
	incoming.Tasks[0].Title = "Ship login v2"

	if _, err := svc.UpdateBoard(context.Background(), memberSession(), incoming); err != nil {
		t.Fatalf("UpdateBoard() error = %v", err)
	}
	if len(tx.upsertedTasks) != 1 || tx.upsertedTasks[0].Title != "Ship login v2" {
		t.Fatalf("expected the edited task upserted, got %+v", tx.upsertedTasks)
	}
}

func TestUpdateBoardRequiresMembership(t *testing.T) {
	fs, _ := reconcileFixture()
	svc := newTestService(fs)

	incoming := testBoard()
	_, err := svc.UpdateBoard(context.Background(), Session{UserID: "stranger"}, incoming)
	assertDomainError(t, err, http.StatusForbidden, "Not a member")
}

func TestUpdateBoardWritesMetadata(t *testing.T) {
	fs, tx := reconcileFixture()
	svc := newTestService(fs)

	incoming := testBoard()
	incoming.Title = "Launch v2"
	incoming.Description = "Post-release cleanup"

	if _, err := svc.UpdateBoard(context.Background(), ownerSession(), incoming); err != nil {
		t.Fatalf("UpdateBoard() error = %v", err)
	}
	if tx.updatedBoard == nil {
		t.Fatal("expected the board row updated")
	}
	if tx.updatedBoard.Title != "Launch v2" || tx.updatedBoard.Description != "Post-release cleanup" {
		t.Fatalf("unexpected board row %+v", tx.updatedBoard)
	}
}
