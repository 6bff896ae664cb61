package store

import "time"

type User struct {
	ID           string
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Telegram     string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Column struct {
	ID            string
	Title         string
	Order         int
	IsEntryLocked bool
	IsExitLocked  bool
}

type TaskType struct {
	ID    string
	Label string
	Color string
}

type Task struct {
	ID          string
	ColumnID    string
	Title       string
	Description string
	AssigneeIDs []string
	TypeID      string
	CreatedAt   time.Time
	History     []string
}

type BoardMember struct {
	UserID      string
	Role        string
	Permissions []string
}

// Board is the aggregate root. Child collections are always loaded together;
// PendingInvites holds user ids invited but not yet accepted, disjoint from
// Members.
type Board struct {
	ID             string
	Title          string
	Description    string
	CoverURL       string
	OwnerID        string
	InviteCode     string
	Members        []BoardMember
	PendingInvites []string
	Columns        []Column
	Tasks          []Task
	TaskTypes      []TaskType
}

// BoardPreview is the public shape returned for an invite-code lookup.
type BoardPreview struct {
	ID        string
	Title     string
	OwnerName string
}

type Notification struct {
	ID           string
	Type         string
	FromUserID   string
	FromUsername string
	ToUserID     string
	BoardID      string
	BoardTitle   string
	Read         bool
	CreatedAt    time.Time
}
