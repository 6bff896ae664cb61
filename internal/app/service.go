package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"flowboard/api/internal/auth"
	"flowboard/api/internal/authpw"
	"flowboard/api/internal/board"
	"flowboard/api/internal/config"
	"flowboard/api/internal/email"
	"flowboard/api/internal/export"
	"flowboard/api/internal/media"
	"flowboard/api/internal/perm"
	"flowboard/api/internal/search"
	"flowboard/api/internal/store"
	"flowboard/api/internal/suggest"
	"flowboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

type TaskInput struct {
	ColumnID    string   `json:"columnId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AssigneeIDs []string `json:"assigneeIds"`
	TypeID      string   `json:"typeId"`
}

type ColumnInput struct {
	Title         *string `json:"title"`
	Order         *int    `json:"order"`
	IsEntryLocked *bool   `json:"isEntryLocked"`
	IsExitLocked  *bool   `json:"isExitLocked"`
}

type TaskTypeInput struct {
	Label *string `json:"label"`
	Color *string `json:"color"`
}

type ProfileInput struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"displayName"`
	Email       *string `json:"email"`
	Telegram    *string `json:"telegram"`
	AvatarURL   *string `json:"avatarUrl"`
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]store.User, error)
	UpdateProfile(ctx context.Context, userID string, updates store.ProfileUpdate) (store.User, error)

	ListBoardsForUser(ctx context.Context, userID string) ([]store.Board, error)
	GetBoard(ctx context.Context, boardID string) (store.Board, error)
	InsertBoard(ctx context.Context, b store.Board) (store.Board, error)
	UpdateBoardRow(ctx context.Context, b store.Board) error
	DeleteBoard(ctx context.Context, boardID string) error
	GetBoardByInviteCode(ctx context.Context, inviteCode string) (store.BoardPreview, error)
	JoinBoardByInviteCode(ctx context.Context, inviteCode, userID string) (string, error)
	InBoardTx(ctx context.Context, fn func(store.BoardTx) error) error

	InsertColumn(ctx context.Context, boardID string, column store.Column) (store.Column, error)
	UpdateColumn(ctx context.Context, columnID string, updates store.ColumnUpdate) error
	DeleteColumn(ctx context.Context, columnID string) error

	InsertTaskType(ctx context.Context, boardID string, taskType store.TaskType, order int) (store.TaskType, error)
	UpdateTaskType(ctx context.Context, typeID string, updates store.TaskTypeUpdate) error
	DeleteTaskType(ctx context.Context, typeID string) error
	ReorderTaskTypes(ctx context.Context, boardID string, typeIDs []string) error
	ReassignTaskType(ctx context.Context, boardID, fromTypeID, toTypeID string) error

	InsertTask(ctx context.Context, boardID string, task store.Task) (store.Task, error)
	UpdateTask(ctx context.Context, task store.Task) (store.Task, error)
	MoveTask(ctx context.Context, taskID, newColumnID string) error
	DeleteTask(ctx context.Context, taskID string) error

	UpsertMembers(ctx context.Context, boardID string, members []store.BoardMember) error
	DeleteMembers(ctx context.Context, boardID string, userIDs []string) error
	InsertInvites(ctx context.Context, boardID string, userIDs []string) error
	DeleteInvite(ctx context.Context, boardID, userID string) error

	InsertNotification(ctx context.Context, notification store.Notification) error
	ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID, toUserID string) error
	DeleteInviteNotification(ctx context.Context, boardID, toUserID string) error

	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	search   *search.Service
	media    *media.Service
	suggest  *suggest.Service
	email    *email.Service
	export   *export.Service
}

// Options carries the optional collaborators; any may be nil.
type Options struct {
	Sessions sessionStore
	Accounts *authpw.Service
	Search   *search.Service
	Media    *media.Service
	Suggest  *suggest.Service
	Email    *email.Service
	Export   *export.Service
}

func New(cfg config.Config, dataStore dataStore, opts Options) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: opts.Sessions,
		accounts: opts.Accounts,
		search:   opts.Search,
		media:    opts.Media,
		suggest:  opts.Suggest,
		email:    opts.Email,
		export:   opts.Export,
	}
}

// --- Authentication ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusBadRequest, "signup_failed", err.Error(), nil)
	}
	if s.search != nil {
		s.search.IndexUser(search.UserRecord{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
		})
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.accounts.SignIn(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "signin_failed", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "invalid_refresh", "Session expired", nil)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Refresh sessions may carry a stale username; re-read the profile.
	if fresh, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = fresh
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.SessionTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:       token,
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// --- Profiles ---

func (s *Service) GetUsersByIDs(ctx context.Context, ids []string) ([]store.User, error) {
	return s.store.GetUsersByIDs(ctx, ids)
}

func (s *Service) SearchUsers(query string, limit int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.UserRecord{}, Query: query}
	}
	return s.search.Search(search.Query{Text: query, Limit: limit})
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input ProfileInput) (store.User, error) {
	user, err := s.store.UpdateProfile(ctx, session.UserID, store.ProfileUpdate{
		Username:    input.Username,
		DisplayName: input.DisplayName,
		Email:       input.Email,
		Telegram:    input.Telegram,
		AvatarURL:   input.AvatarURL,
	})
	if err != nil {
		return store.User{}, domainError(http.StatusBadRequest, "profile_update_failed", "Could not update profile", nil)
	}
	if s.search != nil {
		s.search.IndexUser(search.UserRecord{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
		})
	}
	return user, nil
}

// --- Boards ---

func (s *Service) ListBoards(ctx context.Context, session Session) ([]store.Board, error) {
	return s.store.ListBoardsForUser(ctx, session.UserID)
}

func (s *Service) CreateBoard(ctx context.Context, session Session, title, description string) (store.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Board{}, domainError(http.StatusBadRequest, "invalid_board", "Board title is required", nil)
	}

	created, err := s.store.InsertBoard(ctx, store.Board{
		Title:       title,
		Description: strings.TrimSpace(description),
		OwnerID:     session.UserID,
		InviteCode:  board.NewInviteCode(),
	})
	if err != nil {
		return store.Board{}, fmt.Errorf("create board: %w", err)
	}

	owner := store.BoardMember{
		UserID:      session.UserID,
		Role:        string(perm.RoleOwner),
		Permissions: perm.Strings(perm.All),
	}
	if err := s.store.UpsertMembers(ctx, created.ID, []store.BoardMember{owner}); err != nil {
		return store.Board{}, fmt.Errorf("seed owner: %w", err)
	}
	for _, column := range board.DefaultColumns() {
		if _, err := s.store.InsertColumn(ctx, created.ID, column); err != nil {
			return store.Board{}, fmt.Errorf("seed column: %w", err)
		}
	}
	for order, taskType := range board.DefaultTaskTypes() {
		if _, err := s.store.InsertTaskType(ctx, created.ID, taskType, order); err != nil {
			return store.Board{}, fmt.Errorf("seed task type: %w", err)
		}
	}

	return s.store.GetBoard(ctx, created.ID)
}

func (s *Service) GetBoard(ctx context.Context, session Session, boardID string) (store.Board, error) {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanView); err != nil {
		return store.Board{}, err
	}
	return b, nil
}

func (s *Service) DeleteBoard(ctx context.Context, session Session, boardID string) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if b.OwnerID != session.UserID {
		return domainError(http.StatusForbidden, "forbidden", "Only the owner can delete a board", nil)
	}
	return s.store.DeleteBoard(ctx, boardID)
}

// --- Invitations ---

func (s *Service) SendInvite(ctx context.Context, session Session, boardID, toUserID string) (store.Board, error) {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageUsers); err != nil {
		return store.Board{}, err
	}

	if _, isMember := board.FindMember(&b, toUserID); isMember {
		return store.Board{}, domainError(http.StatusConflict, "already_member", "User is already a member", nil)
	}
	for _, invited := range b.PendingInvites {
		if invited == toUserID {
			return store.Board{}, domainError(http.StatusConflict, "already_invited", "Invitation already sent", nil)
		}
	}
	if _, err := s.store.GetUserByID(ctx, toUserID); err != nil {
		return store.Board{}, domainError(http.StatusNotFound, "user_not_found", "User not found", nil)
	}

	if err := s.store.InsertInvites(ctx, boardID, []string{toUserID}); err != nil {
		return store.Board{}, fmt.Errorf("insert invite: %w", err)
	}
	if err := s.store.InsertNotification(ctx, store.Notification{
		Type:       "invite",
		FromUserID: session.UserID,
		ToUserID:   toUserID,
		BoardID:    boardID,
		BoardTitle: b.Title,
	}); err != nil {
		return store.Board{}, fmt.Errorf("insert notification: %w", err)
	}
	s.notifyInviteByEmail(ctx, session, b, toUserID)

	return s.loadBoard(ctx, boardID)
}

func (s *Service) notifyInviteByEmail(ctx context.Context, session Session, b store.Board, toUserID string) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	invitee, err := s.store.GetUserByID(ctx, toUserID)
	if err != nil || invitee.Email == "" {
		return
	}
	go func() {
		boardURL := strings.TrimSuffix(s.cfg.CORSOrigin, "/") + "/boards/" + b.ID
		if err := s.email.SendBoardInviteEmail(invitee.Email, invitee.DisplayName, session.DisplayName, b.Title, boardURL); err != nil {
			log.Printf("app: invite email to %s: %v", invitee.ID, err)
		}
	}()
}

func (s *Service) RevokeInvite(ctx context.Context, session Session, boardID, toUserID string) (store.Board, error) {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageUsers); err != nil {
		return store.Board{}, err
	}

	if err := s.store.DeleteInvite(ctx, boardID, toUserID); err != nil {
		return store.Board{}, fmt.Errorf("delete invite: %w", err)
	}
	if err := s.store.DeleteInviteNotification(ctx, boardID, toUserID); err != nil {
		log.Printf("app: clean invite notification: %v", err)
	}
	return s.loadBoard(ctx, boardID)
}

// AcceptInvite joins the caller to the board. Idempotent: accepting twice, or
// accepting while already a member, returns the board unchanged.
func (s *Service) AcceptInvite(ctx context.Context, session Session, boardID string) (store.Board, error) {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}

	if _, isMember := board.FindMember(&b, session.UserID); isMember {
		if err := s.store.DeleteInviteNotification(ctx, boardID, session.UserID); err != nil {
			log.Printf("app: clean invite notification: %v", err)
		}
		return b, nil
	}

	if err := s.store.DeleteInvite(ctx, boardID, session.UserID); err != nil {
		return store.Board{}, fmt.Errorf("delete invite: %w", err)
	}
	member := store.BoardMember{
		UserID:      session.UserID,
		Role:        string(perm.RoleMember),
		Permissions: []string{string(perm.CanView)},
	}
	if err := s.store.UpsertMembers(ctx, boardID, []store.BoardMember{member}); err != nil {
		return store.Board{}, fmt.Errorf("insert member: %w", err)
	}
	if err := s.store.DeleteInviteNotification(ctx, boardID, session.UserID); err != nil {
		log.Printf("app: clean invite notification: %v", err)
	}

	return s.loadBoard(ctx, boardID)
}

// DeclineInvite is best-effort: a board deleted since the invite was sent is
// not an error, the stale notification is removed either way.
func (s *Service) DeclineInvite(ctx context.Context, session Session, boardID string) error {
	if err := s.store.DeleteInvite(ctx, boardID, session.UserID); err != nil {
		log.Printf("app: decline invite on board %s: %v", boardID, err)
	}
	if err := s.store.DeleteInviteNotification(ctx, boardID, session.UserID); err != nil {
		log.Printf("app: clean invite notification: %v", err)
	}
	return nil
}

func (s *Service) LeaveBoard(ctx context.Context, session Session, boardID string) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if _, isMember := board.FindMember(&b, session.UserID); !isMember {
		return domainError(http.StatusConflict, "not_member", "Not a member", nil)
	}
	if b.OwnerID == session.UserID {
		return domainError(http.StatusConflict, "owner_cannot_leave", "Owner cannot leave board", nil)
	}
	return s.store.DeleteMembers(ctx, boardID, []string{session.UserID})
}

func (s *Service) PreviewInviteCode(ctx context.Context, inviteCode string) (store.BoardPreview, error) {
	preview, err := s.store.GetBoardByInviteCode(ctx, inviteCode)
	if errors.Is(err, sql.ErrNoRows) {
		return store.BoardPreview{}, domainError(http.StatusNotFound, "invalid_invite_code", "Invite code not found", nil)
	}
	if err != nil {
		return store.BoardPreview{}, err
	}
	return preview, nil
}

// JoinByInviteCode is the shareable-link path: it grants membership directly,
// without a pending invite.
func (s *Service) JoinByInviteCode(ctx context.Context, session Session, inviteCode string) (store.Board, error) {
	boardID, err := s.store.JoinBoardByInviteCode(ctx, inviteCode, session.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Board{}, domainError(http.StatusNotFound, "invalid_invite_code", "Invite code not found", nil)
	}
	if err != nil {
		return store.Board{}, err
	}
	if err := s.store.DeleteInviteNotification(ctx, boardID, session.UserID); err != nil {
		log.Printf("app: clean invite notification: %v", err)
	}
	return s.loadBoard(ctx, boardID)
}

// --- Tasks ---

func (s *Service) CreateTask(ctx context.Context, session Session, boardID string, input TaskInput) (store.Task, error) {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return store.Task{}, err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanEditTask); err != nil {
		return store.Task{}, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return store.Task{}, domainError(http.StatusBadRequest, "invalid_task", "Task title is required", nil)
	}
	if _, ok := board.FindColumn(&b, input.ColumnID); !ok {
		return store.Task{}, domainError(http.StatusNotFound, "column_not_found", "Column not found", nil)
	}

	task := store.Task{
		ColumnID:    input.ColumnID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		AssigneeIDs: input.AssigneeIDs,
		TypeID:      input.TypeID,
		History:     []string{"Created by " + session.DisplayName},
	}
	created, err := s.store.InsertTask(ctx, boardID, task)
	if err != nil {
		return store.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return created, nil
}

func (s *Service) UpdateTask(ctx context.Context, session Session, boardID, taskID string, input TaskInput) (store.Task, error) {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return store.Task{}, err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanEditTask); err != nil {
		return store.Task{}, err
	}
	existing, ok := board.FindTask(&b, taskID)
	if !ok {
		return store.Task{}, domainError(http.StatusNotFound, "task_not_found", "Task not found", nil)
	}

	existing.Title = strings.TrimSpace(input.Title)
	existing.Description = input.Description
	existing.AssigneeIDs = input.AssigneeIDs
	existing.TypeID = input.TypeID
	existing.History = append(existing.History,
		fmt.Sprintf("Edited by %s at %s", session.DisplayName, time.Now().Format("Jan 2, 2006 3:04 PM")))

	updated, err := s.store.UpdateTask(ctx, existing)
	if err != nil {
		return store.Task{}, fmt.Errorf("update task: %w", err)
	}
	return updated, nil
}

func (s *Service) MoveTask(ctx context.Context, session Session, boardID, taskID, toColumnID string) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanMoveTask); err != nil {
		return err
	}
	task, ok := board.FindTask(&b, taskID)
	if !ok {
		return domainError(http.StatusNotFound, "task_not_found", "Task not found", nil)
	}
	from, ok := board.FindColumn(&b, task.ColumnID)
	if !ok {
		return domainError(http.StatusNotFound, "column_not_found", "Source column not found", nil)
	}
	to, ok := board.FindColumn(&b, toColumnID)
	if !ok {
		return domainError(http.StatusNotFound, "column_not_found", "Target column not found", nil)
	}

	switch err := board.CanMove(from, to); {
	case errors.Is(err, board.ErrExitLocked):
		return domainError(http.StatusConflict, "column_exit_locked", "Source column is locked", nil)
	case errors.Is(err, board.ErrEntryLocked):
		return domainError(http.StatusConflict, "column_entry_locked", "Target column is locked", nil)
	case err != nil:
		return err
	}

	return s.store.MoveTask(ctx, taskID, toColumnID)
}

func (s *Service) DeleteTask(ctx context.Context, session Session, boardID, taskID string) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanDeleteTask); err != nil {
		return err
	}
	if _, ok := board.FindTask(&b, taskID); !ok {
		return domainError(http.StatusNotFound, "task_not_found", "Task not found", nil)
	}
	return s.store.DeleteTask(ctx, taskID)
}

// --- Columns ---

func (s *Service) CreateColumn(ctx context.Context, session Session, boardID, title string) (store.Column, error) {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return store.Column{}, err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageColumns); err != nil {
		return store.Column{}, err
	}
	if strings.TrimSpace(title) == "" {
		return store.Column{}, domainError(http.StatusBadRequest, "invalid_column", "Column title is required", nil)
	}

	column := store.Column{Title: strings.TrimSpace(title), Order: len(b.Columns)}
	created, err := s.store.InsertColumn(ctx, boardID, column)
	if err != nil {
		return store.Column{}, fmt.Errorf("insert column: %w", err)
	}
	return created, nil
}

func (s *Service) UpdateColumn(ctx context.Context, session Session, boardID, columnID string, input ColumnInput) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageColumns); err != nil {
		return err
	}
	if _, ok := board.FindColumn(&b, columnID); !ok {
		return domainError(http.StatusNotFound, "column_not_found", "Column not found", nil)
	}
	return s.store.UpdateColumn(ctx, columnID, store.ColumnUpdate{
		Title:         input.Title,
		Order:         input.Order,
		IsEntryLocked: input.IsEntryLocked,
		IsExitLocked:  input.IsExitLocked,
	})
}

func (s *Service) DeleteColumn(ctx context.Context, session Session, boardID, columnID string) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageColumns); err != nil {
		return err
	}
	if _, ok := board.FindColumn(&b, columnID); !ok {
		return domainError(http.StatusNotFound, "column_not_found", "Column not found", nil)
	}
	if board.ColumnHasTasks(&b, columnID) {
		return domainError(http.StatusConflict, "column_not_empty", "Column still contains tasks", nil)
	}
	return s.store.DeleteColumn(ctx, columnID)
}

// --- Task types ---

func (s *Service) CreateTaskType(ctx context.Context, session Session, boardID, label, color string) (store.TaskType, error) {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return store.TaskType{}, err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageTypes); err != nil {
		return store.TaskType{}, err
	}
	if strings.TrimSpace(label) == "" {
		return store.TaskType{}, domainError(http.StatusBadRequest, "invalid_type", "Type label is required", nil)
	}

	taskType := store.TaskType{Label: strings.TrimSpace(label), Color: color}
	created, err := s.store.InsertTaskType(ctx, boardID, taskType, len(b.TaskTypes))
	if err != nil {
		return store.TaskType{}, fmt.Errorf("insert task type: %w", err)
	}
	return created, nil
}

func (s *Service) UpdateTaskType(ctx context.Context, session Session, boardID, typeID string, input TaskTypeInput) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageTypes); err != nil {
		return err
	}
	if _, ok := board.FindTaskType(&b, typeID); !ok {
		return domainError(http.StatusNotFound, "type_not_found", "Task type not found", nil)
	}
	return s.store.UpdateTaskType(ctx, typeID, store.TaskTypeUpdate{
		Label: input.Label,
		Color: input.Color,
	})
}

// DeleteTaskType removes a type and reassigns every task that referenced it
// to the first remaining type, or to the sentinel when the board has no types
// left.
func (s *Service) DeleteTaskType(ctx context.Context, session Session, boardID, typeID string) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageTypes); err != nil {
		return err
	}
	if _, ok := board.FindTaskType(&b, typeID); !ok {
		return domainError(http.StatusNotFound, "type_not_found", "Task type not found", nil)
	}

	fallback := board.ReassignTypeFallback(&b, typeID)
	if err := s.store.ReassignTaskType(ctx, boardID, typeID, fallback); err != nil {
		return err
	}
	return s.store.DeleteTaskType(ctx, typeID)
}

func (s *Service) ReorderTaskTypes(ctx context.Context, session Session, boardID string, typeIDs []string) error {
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanManageTypes); err != nil {
		return err
	}
	for _, typeID := range typeIDs {
		if _, ok := board.FindTaskType(&b, typeID); !ok {
			return domainError(http.StatusNotFound, "type_not_found", "Task type not found", nil)
		}
	}
	return s.store.ReorderTaskTypes(ctx, boardID, typeIDs)
}

// --- Notifications ---

func (s *Service) ListNotifications(ctx context.Context, session Session) ([]store.Notification, error) {
	return s.store.ListNotificationsForUser(ctx, session.UserID, 50)
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	err := s.store.MarkNotificationRead(ctx, notificationID, session.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "notification_not_found", "Notification not found", nil)
	}
	return err
}

// --- Suggestions / export / media ---

func (s *Service) ImproveText(ctx context.Context, text, tone string) (string, error) {
	if s.suggest == nil || !s.suggest.IsConfigured() {
		return "", domainError(http.StatusServiceUnavailable, "suggest_unavailable", "Suggestions are not configured", nil)
	}
	return s.suggest.Improve(ctx, text, tone)
}

func (s *Service) SummarizeTask(ctx context.Context, session Session, boardID, taskID string) (string, error) {
	if s.suggest == nil || !s.suggest.IsConfigured() {
		return "", domainError(http.StatusServiceUnavailable, "suggest_unavailable", "Suggestions are not configured", nil)
	}
	b, err := s.GetBoard(ctx, session, boardID)
	if err != nil {
		return "", err
	}
	task, ok := board.FindTask(&b, taskID)
	if !ok {
		return "", domainError(http.StatusNotFound, "task_not_found", "Task not found", nil)
	}
	return s.suggest.Summarize(ctx, task.Title, task.Description)
}

func (s *Service) ExportBoard(ctx context.Context, session Session, boardID string, format export.Format) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "export_unavailable", "Export is not configured", nil)
	}
	b, err := s.loadBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCapability(b, session.UserID, perm.CanView); err != nil {
		return nil, err
	}
	return s.export.Export(ctx, export.Request{BoardID: boardID, Format: format})
}

// Media returns the object storage service, or nil when not configured.
func (s *Service) Media() *media.Service {
	return s.media
}

// --- Health ---

func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- helpers ---

func (s *Service) loadBoard(ctx context.Context, boardID string) (store.Board, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Board{}, domainError(http.StatusNotFound, "board_not_found", "Board not found", nil)
	}
	if err != nil {
		return store.Board{}, err
	}
	return b, nil
}

func (s *Service) requireCapability(b store.Board, userID string, capability perm.Capability) error {
	member, ok := board.FindMember(&b, userID)
	if !ok {
		return domainError(http.StatusForbidden, "forbidden", "Not a member", nil)
	}
	if !perm.Allows(perm.Normalize(member.Role), member.Permissions, capability) {
		return domainError(http.StatusForbidden, "forbidden", "Missing permission: "+string(capability), nil)
	}
	return nil
}
