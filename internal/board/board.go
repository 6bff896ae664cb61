// Package board holds the pure domain rules of a kanban board: default
// content seeded into new boards, column lock policy, and the type deletion
// cascade. Nothing here touches storage.
package board

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"flowboard/api/internal/store"
)

// FallbackTypeID is assigned to tasks whose type is deleted when no other
// type remains on the board.
const FallbackTypeID = "undefined"

var (
	ErrExitLocked  = errors.New("column is exit locked")
	ErrEntryLocked = errors.New("column is entry locked")
)

// DefaultColumns returns the three starter columns for a fresh board.
func DefaultColumns() []store.Column {
	return []store.Column{
		{Title: "To Do", Order: 0},
		{Title: "In Progress", Order: 1},
		{Title: "Done", Order: 2},
	}
}

// DefaultTaskTypes returns the starter task types for a fresh board.
func DefaultTaskTypes() []store.TaskType {
	return []store.TaskType{
		{Label: "Feature", Color: "#3b82f6"},
		{Label: "Bug", Color: "#ef4444"},
		{Label: "Improvement", Color: "#10b981"},
	}
}

// NewInviteCode builds a shareable join code. The random middle segment and
// the base36 timestamp suffix together make collisions implausible without a
// uniqueness round-trip.
func NewInviteCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("board: crypto/rand failed: " + err.Error())
	}
	return "invite-" + hex.EncodeToString(buf) + "-" + strconv.FormatInt(time.Now().UnixMilli(), 36)
}

// CanMove checks the lock policy for moving a task from one column to
// another. Exit locks block picking a task up, entry locks block dropping it.
// Moves within the same column are never lock-gated.
func CanMove(from, to store.Column) error {
	if from.ID == to.ID {
		return nil
	}
	if from.IsExitLocked {
		return ErrExitLocked
	}
	if to.IsEntryLocked {
		return ErrEntryLocked
	}
	return nil
}

// FindColumn returns the column with the given id, or false.
func FindColumn(b *store.Board, columnID string) (store.Column, bool) {
	for _, column := range b.Columns {
		if column.ID == columnID {
			return column, true
		}
	}
	return store.Column{}, false
}

// FindTask returns the task with the given id, or false.
func FindTask(b *store.Board, taskID string) (store.Task, bool) {
	for _, task := range b.Tasks {
		if task.ID == taskID {
			return task, true
		}
	}
	return store.Task{}, false
}

// FindTaskType returns the task type with the given id, or false.
func FindTaskType(b *store.Board, typeID string) (store.TaskType, bool) {
	for _, taskType := range b.TaskTypes {
		if taskType.ID == typeID {
			return taskType, true
		}
	}
	return store.TaskType{}, false
}

// FindMember returns the membership record for the given user, or false.
func FindMember(b *store.Board, userID string) (store.BoardMember, bool) {
	for _, member := range b.Members {
		if member.UserID == userID {
			return member, true
		}
	}
	return store.BoardMember{}, false
}

// ColumnHasTasks reports whether any task currently sits in the column.
func ColumnHasTasks(b *store.Board, columnID string) bool {
	for _, task := range b.Tasks {
		if task.ColumnID == columnID {
			return true
		}
	}
	return false
}

// ReassignTypeFallback returns the type id orphaned tasks should move to
// after deleting the given type: the first remaining type on the board, or
// FallbackTypeID when none remain.
func ReassignTypeFallback(b *store.Board, deletedTypeID string) string {
	for _, taskType := range b.TaskTypes {
		if taskType.ID != deletedTypeID {
			return taskType.ID
		}
	}
	return FallbackTypeID
}

// TasksWithType returns the tasks currently referencing the given type.
func TasksWithType(b *store.Board, typeID string) []store.Task {
	var tasks []store.Task
	for _, task := range b.Tasks {
		if task.TypeID == typeID {
			tasks = append(tasks, task)
		}
	}
	return tasks
}
