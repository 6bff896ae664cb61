package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *sql.DB
	q  querier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BoardTx exposes the per-collection reconciliation primitives. During a
// full board update every call runs inside one transaction so a failure
// partway leaves the remote board untouched.
type BoardTx interface {
	UpdateBoardRow(ctx context.Context, board Board) error

	ListColumnIDs(ctx context.Context, boardID string) ([]string, error)
	UpsertColumns(ctx context.Context, boardID string, columns []Column) error
	InsertColumn(ctx context.Context, boardID string, column Column) (Column, error)
	DeleteColumns(ctx context.Context, boardID string, ids []string) error

	ListTaskTypeIDs(ctx context.Context, boardID string) ([]string, error)
	UpsertTaskTypes(ctx context.Context, boardID string, taskTypes []TaskType, orders []int) error
	InsertTaskType(ctx context.Context, boardID string, taskType TaskType, order int) (TaskType, error)
	DeleteTaskTypes(ctx context.Context, boardID string, ids []string) error

	ListTaskIDs(ctx context.Context, boardID string) ([]string, error)
	UpsertTasks(ctx context.Context, boardID string, tasks []Task) error
	InsertTask(ctx context.Context, boardID string, task Task) (Task, error)
	DeleteTasks(ctx context.Context, boardID string, ids []string) error

	ListMemberUserIDs(ctx context.Context, boardID string) ([]string, error)
	UpsertMembers(ctx context.Context, boardID string, members []BoardMember) error
	DeleteMembers(ctx context.Context, boardID string, userIDs []string) error

	ListInvitedUserIDs(ctx context.Context, boardID string) ([]string, error)
	InsertInvites(ctx context.Context, boardID string, userIDs []string) error
	DeleteInvites(ctx context.Context, boardID string, userIDs []string) error
	DeleteInviteNotification(ctx context.Context, boardID, toUserID string) error
}

// InBoardTx runs fn against a transaction-bound view of the store.
func (s *PostgresStore) InBoardTx(ctx context.Context, fn func(BoardTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin board tx: %w", err)
	}
	if err := fn(&PostgresStore{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit board tx: %w", err)
	}
	return nil
}

// --- Profiles ---

const userColumns = `id, username, display_name, email, password_hash, COALESCE(telegram, ''), COALESCE(avatar_url, ''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Telegram, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO profiles (username, display_name, email, password_hash, telegram, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns+`
	`, user.Username, user.DisplayName, user.Email, user.PasswordHash, user.Telegram, user.AvatarURL)
	created, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("insert profile: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM profiles WHERE id=$1`, userID)
	user, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM profiles WHERE LOWER(email)=LOWER($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM profiles WHERE LOWER(username)=LOWER($1)`, username)
	user, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	query := `SELECT ` + userColumns + ` FROM profiles WHERE id = ANY(` + placeholderArray(1, ids) + `::uuid[])`
	rows, err := s.q.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ProfileUpdate carries optional profile fields; nil means leave unchanged.
type ProfileUpdate struct {
	Username    *string
	DisplayName *string
	Email       *string
	Telegram    *string
	AvatarURL   *string
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, updates ProfileUpdate) (User, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	n := 1
	appendSet := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, n))
		args = append(args, *value)
		n++
	}
	appendSet("username", updates.Username)
	appendSet("display_name", updates.DisplayName)
	appendSet("email", updates.Email)
	appendSet("telegram", updates.Telegram)
	appendSet("avatar_url", updates.AvatarURL)

	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE id = $%d RETURNING `+userColumns, strings.Join(sets, ", "), n)
	user, err := scanUser(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// --- Sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (User, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT p.id, p.username, p.display_name, p.email, p.password_hash, COALESCE(p.telegram, ''), COALESCE(p.avatar_url, ''), p.created_at, p.updated_at
		FROM sessions se
		JOIN profiles p ON p.id = se.user_id
		WHERE se.token_hash = $1
			AND se.revoked_at IS NULL
			AND se.expires_at > NOW()
	`, tokenHash)
	user, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// --- Boards ---

func (s *PostgresStore) InsertBoard(ctx context.Context, board Board) (Board, error) {
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO boards (title, description, cover_url, owner_id, invite_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, title, description, cover_url, owner_id, COALESCE(invite_code, '')
	`, board.Title, board.Description, board.CoverURL, board.OwnerID, nullIfEmpty(board.InviteCode))
	var created Board
	if err := row.Scan(&created.ID, &created.Title, &created.Description, &created.CoverURL, &created.OwnerID, &created.InviteCode); err != nil {
		return Board{}, fmt.Errorf("insert board: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateBoardRow(ctx context.Context, board Board) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE boards
		SET title=$2, description=$3, cover_url=$4, invite_code=$5, updated_at=NOW()
		WHERE id=$1
	`, board.ID, board.Title, board.Description, board.CoverURL, nullIfEmpty(board.InviteCode))
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return nil
}

// GetBoard loads the board row and fans out the five child collection reads
// concurrently; the collections are disjoint so read order does not matter.
func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.q.QueryRowContext(ctx, `
		SELECT id, title, description, cover_url, owner_id, COALESCE(invite_code, '')
		FROM boards WHERE id=$1
	`, boardID).Scan(&board.ID, &board.Title, &board.Description, &board.CoverURL, &board.OwnerID, &board.InviteCode)
	if err != nil {
		return Board{}, err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		columns, err := s.listColumns(groupCtx, boardID)
		if err != nil {
			return err
		}
		board.Columns = columns
		return nil
	})
	group.Go(func() error {
		taskTypes, err := s.listTaskTypes(groupCtx, boardID)
		if err != nil {
			return err
		}
		board.TaskTypes = taskTypes
		return nil
	})
	group.Go(func() error {
		tasks, err := s.listTasks(groupCtx, boardID)
		if err != nil {
			return err
		}
		board.Tasks = tasks
		return nil
	})
	group.Go(func() error {
		members, err := s.listMembers(groupCtx, boardID)
		if err != nil {
			return err
		}
		board.Members = members
		return nil
	})
	group.Go(func() error {
		invited, err := s.ListInvitedUserIDs(groupCtx, boardID)
		if err != nil {
			return err
		}
		board.PendingInvites = invited
		return nil
	})
	if err := group.Wait(); err != nil {
		return Board{}, err
	}
	return board, nil
}

func (s *PostgresStore) ListBoardsForUser(ctx context.Context, userID string) ([]Board, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT b.id
		FROM board_members m
		JOIN boards b ON b.id = m.board_id
		WHERE m.user_id = $1
		ORDER BY b.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	var boardIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan board id: %w", err)
		}
		boardIDs = append(boardIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	boards := []Board{}
	for _, id := range boardIDs {
		board, err := s.GetBoard(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		boards = append(boards, board)
	}
	return boards, nil
}

func (s *PostgresStore) GetBoardByInviteCode(ctx context.Context, inviteCode string) (BoardPreview, error) {
	var preview BoardPreview
	err := s.q.QueryRowContext(ctx, `
		SELECT b.id, b.title, COALESCE(p.display_name, 'Unknown')
		FROM boards b
		LEFT JOIN profiles p ON p.id = b.owner_id
		WHERE b.invite_code = $1
	`, inviteCode).Scan(&preview.ID, &preview.Title, &preview.OwnerName)
	if err != nil {
		return BoardPreview{}, err
	}
	return preview, nil
}

// JoinBoardByInviteCode is the atomic link-join path: membership is granted
// and any pending invite removed inside one transaction, bypassing the
// pending-invite flow entirely.
func (s *PostgresStore) JoinBoardByInviteCode(ctx context.Context, inviteCode, userID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin join tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var boardID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM boards WHERE invite_code=$1 FOR UPDATE`, inviteCode).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("lookup invite code: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM board_invites WHERE board_id=$1 AND user_id=$2`, boardID, userID); err != nil {
		return "", fmt.Errorf("clear pending invite: %w", err)
	}

	permissions, err := json.Marshal([]string{"can_view"})
	if err != nil {
		return "", fmt.Errorf("marshal permissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role, permissions)
		VALUES ($1, $2, 'member', $3::jsonb)
		ON CONFLICT (board_id, user_id) DO NOTHING
	`, boardID, userID, string(permissions)); err != nil {
		return "", fmt.Errorf("insert member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit join tx: %w", err)
	}
	return boardID, nil
}

// --- Columns ---

func (s *PostgresStore) listColumns(ctx context.Context, boardID string) ([]Column, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, title, "order", is_entry_locked, is_exit_locked
		FROM columns WHERE board_id=$1 ORDER BY "order"
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	defer rows.Close()

	columns := []Column{}
	for rows.Next() {
		var column Column
		if err := rows.Scan(&column.ID, &column.Title, &column.Order, &column.IsEntryLocked, &column.IsExitLocked); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

func (s *PostgresStore) ListColumnIDs(ctx context.Context, boardID string) ([]string, error) {
	return s.listChildIDs(ctx, `SELECT id FROM columns WHERE board_id=$1`, boardID)
}

func (s *PostgresStore) UpsertColumns(ctx context.Context, boardID string, columns []Column) error {
	if len(columns) == 0 {
		return nil
	}
	values := make([]string, 0, len(columns))
	args := []any{boardID}
	n := 2
	for _, column := range columns {
		values = append(values, fmt.Sprintf("($%d::uuid, $1::uuid, $%d, $%d, $%d, $%d)", n, n+1, n+2, n+3, n+4))
		args = append(args, column.ID, column.Title, column.Order, column.IsEntryLocked, column.IsExitLocked)
		n += 5
	}
	query := `
		INSERT INTO columns (id, board_id, title, "order", is_entry_locked, is_exit_locked)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title, "order"=EXCLUDED."order",
			is_entry_locked=EXCLUDED.is_entry_locked, is_exit_locked=EXCLUDED.is_exit_locked
	`
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert columns: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertColumn(ctx context.Context, boardID string, column Column) (Column, error) {
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO columns (board_id, title, "order", is_entry_locked, is_exit_locked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, title, "order", is_entry_locked, is_exit_locked
	`, boardID, column.Title, column.Order, column.IsEntryLocked, column.IsExitLocked)
	var created Column
	if err := row.Scan(&created.ID, &created.Title, &created.Order, &created.IsEntryLocked, &created.IsExitLocked); err != nil {
		return Column{}, fmt.Errorf("insert column: %w", err)
	}
	return created, nil
}

// ColumnUpdate carries optional column fields; nil means leave unchanged.
type ColumnUpdate struct {
	Title         *string
	Order         *int
	IsEntryLocked *bool
	IsExitLocked  *bool
}

func (s *PostgresStore) UpdateColumn(ctx context.Context, columnID string, updates ColumnUpdate) error {
	sets := []string{}
	args := []any{}
	n := 1
	if updates.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", n))
		args = append(args, *updates.Title)
		n++
	}
	if updates.Order != nil {
		sets = append(sets, fmt.Sprintf(`"order" = $%d`, n))
		args = append(args, *updates.Order)
		n++
	}
	if updates.IsEntryLocked != nil {
		sets = append(sets, fmt.Sprintf("is_entry_locked = $%d", n))
		args = append(args, *updates.IsEntryLocked)
		n++
	}
	if updates.IsExitLocked != nil {
		sets = append(sets, fmt.Sprintf("is_exit_locked = $%d", n))
		args = append(args, *updates.IsExitLocked)
		n++
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, columnID)
	query := fmt.Sprintf(`UPDATE columns SET %s WHERE id = $%d`, strings.Join(sets, ", "), n)
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update column: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteColumn(ctx context.Context, columnID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM columns WHERE id=$1`, columnID)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteColumns(ctx context.Context, boardID string, ids []string) error {
	return s.deleteChildren(ctx, "columns", boardID, ids)
}

// --- Task types ---

func (s *PostgresStore) listTaskTypes(ctx context.Context, boardID string) ([]TaskType, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, label, color FROM task_types WHERE board_id=$1 ORDER BY "order"
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("load task types: %w", err)
	}
	defer rows.Close()

	taskTypes := []TaskType{}
	for rows.Next() {
		var taskType TaskType
		if err := rows.Scan(&taskType.ID, &taskType.Label, &taskType.Color); err != nil {
			return nil, fmt.Errorf("scan task type: %w", err)
		}
		taskTypes = append(taskTypes, taskType)
	}
	return taskTypes, rows.Err()
}

func (s *PostgresStore) ListTaskTypeIDs(ctx context.Context, boardID string) ([]string, error) {
	return s.listChildIDs(ctx, `SELECT id FROM task_types WHERE board_id=$1`, boardID)
}

// UpsertTaskTypes persists labels and colors along with the slice index as
// the display order.
func (s *PostgresStore) UpsertTaskTypes(ctx context.Context, boardID string, taskTypes []TaskType, orders []int) error {
	if len(taskTypes) == 0 {
		return nil
	}
	values := make([]string, 0, len(taskTypes))
	args := []any{boardID}
	n := 2
	for i, taskType := range taskTypes {
		values = append(values, fmt.Sprintf("($%d::uuid, $1::uuid, $%d, $%d, $%d)", n, n+1, n+2, n+3))
		args = append(args, taskType.ID, taskType.Label, taskType.Color, orders[i])
		n += 4
	}
	query := `
		INSERT INTO task_types (id, board_id, label, color, "order")
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (id) DO UPDATE SET
			label=EXCLUDED.label, color=EXCLUDED.color, "order"=EXCLUDED."order"
	`
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert task types: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertTaskType(ctx context.Context, boardID string, taskType TaskType, order int) (TaskType, error) {
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO task_types (board_id, label, color, "order")
		VALUES ($1, $2, $3, $4)
		RETURNING id, label, color
	`, boardID, taskType.Label, taskType.Color, order)
	var created TaskType
	if err := row.Scan(&created.ID, &created.Label, &created.Color); err != nil {
		return TaskType{}, fmt.Errorf("insert task type: %w", err)
	}
	return created, nil
}

// TaskTypeUpdate carries optional task type fields; nil means leave unchanged.
type TaskTypeUpdate struct {
	Label *string
	Color *string
}

func (s *PostgresStore) UpdateTaskType(ctx context.Context, typeID string, updates TaskTypeUpdate) error {
	sets := []string{}
	args := []any{}
	n := 1
	if updates.Label != nil {
		sets = append(sets, fmt.Sprintf("label = $%d", n))
		args = append(args, *updates.Label)
		n++
	}
	if updates.Color != nil {
		sets = append(sets, fmt.Sprintf("color = $%d", n))
		args = append(args, *updates.Color)
		n++
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, typeID)
	query := fmt.Sprintf(`UPDATE task_types SET %s WHERE id = $%d`, strings.Join(sets, ", "), n)
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update task type: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTaskType(ctx context.Context, typeID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM task_types WHERE id=$1`, typeID)
	if err != nil {
		return fmt.Errorf("delete task type: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTaskTypes(ctx context.Context, boardID string, ids []string) error {
	return s.deleteChildren(ctx, "task_types", boardID, ids)
}

// ReassignTaskType rewrites every task referencing one type to another in a
// single statement. toTypeID may be a sentinel rather than a real type id.
func (s *PostgresStore) ReassignTaskType(ctx context.Context, boardID, fromTypeID, toTypeID string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE tasks SET type_id=$3 WHERE board_id=$1 AND type_id=$2
	`, boardID, fromTypeID, toTypeID)
	if err != nil {
		return fmt.Errorf("reassign task type: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReorderTaskTypes(ctx context.Context, boardID string, typeIDs []string) error {
	for index, typeID := range typeIDs {
		if _, err := s.q.ExecContext(ctx, `
			UPDATE task_types SET "order"=$1 WHERE id=$2 AND board_id=$3
		`, index, typeID, boardID); err != nil {
			return fmt.Errorf("reorder task type %s: %w", typeID, err)
		}
	}
	return nil
}

// --- Tasks ---

func (s *PostgresStore) listTasks(ctx context.Context, boardID string) ([]Task, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, column_id, title, description, assignee_ids, type_id, history, created_at
		FROM tasks WHERE board_id=$1 ORDER BY created_at
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var task Task
	var assigneesRaw, historyRaw []byte
	if err := row.Scan(&task.ID, &task.ColumnID, &task.Title, &task.Description, &assigneesRaw, &task.TypeID, &historyRaw, &task.CreatedAt); err != nil {
		return Task{}, fmt.Errorf("scan task: %w", err)
	}
	task.AssigneeIDs = []string{}
	task.History = []string{}
	_ = json.Unmarshal(assigneesRaw, &task.AssigneeIDs)
	_ = json.Unmarshal(historyRaw, &task.History)
	return task, nil
}

func (s *PostgresStore) ListTaskIDs(ctx context.Context, boardID string) ([]string, error) {
	return s.listChildIDs(ctx, `SELECT id FROM tasks WHERE board_id=$1`, boardID)
}

func (s *PostgresStore) UpsertTasks(ctx context.Context, boardID string, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	values := make([]string, 0, len(tasks))
	args := []any{boardID}
	n := 2
	for _, task := range tasks {
		assignees, err := encodeList(task.AssigneeIDs)
		if err != nil {
			return fmt.Errorf("marshal assignees: %w", err)
		}
		history, err := encodeList(task.History)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		values = append(values, fmt.Sprintf("($%d::uuid, $1::uuid, $%d::uuid, $%d, $%d, $%d::jsonb, $%d, $%d::jsonb, $%d)", n, n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		args = append(args, task.ID, task.ColumnID, task.Title, task.Description, assignees, task.TypeID, history, task.CreatedAt)
		n += 8
	}
	query := `
		INSERT INTO tasks (id, board_id, column_id, title, description, assignee_ids, type_id, history, created_at)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (id) DO UPDATE SET
			column_id=EXCLUDED.column_id, title=EXCLUDED.title, description=EXCLUDED.description,
			assignee_ids=EXCLUDED.assignee_ids, type_id=EXCLUDED.type_id, history=EXCLUDED.history
	`
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert tasks: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, boardID string, task Task) (Task, error) {
	assignees, err := encodeList(task.AssigneeIDs)
	if err != nil {
		return Task{}, fmt.Errorf("marshal assignees: %w", err)
	}
	history, err := encodeList(task.History)
	if err != nil {
		return Task{}, fmt.Errorf("marshal history: %w", err)
	}
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO tasks (board_id, column_id, title, description, assignee_ids, type_id, history)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7::jsonb)
		RETURNING id, column_id, title, description, assignee_ids, type_id, history, created_at
	`, boardID, task.ColumnID, task.Title, task.Description, assignees, task.TypeID, history)
	created, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) (Task, error) {
	assignees, err := encodeList(task.AssigneeIDs)
	if err != nil {
		return Task{}, fmt.Errorf("marshal assignees: %w", err)
	}
	history, err := encodeList(task.History)
	if err != nil {
		return Task{}, fmt.Errorf("marshal history: %w", err)
	}
	row := s.q.QueryRowContext(ctx, `
		UPDATE tasks
		SET column_id=$2, title=$3, description=$4, assignee_ids=$5::jsonb, type_id=$6, history=$7::jsonb
		WHERE id=$1
		RETURNING id, column_id, title, description, assignee_ids, type_id, history, created_at
	`, task.ID, task.ColumnID, task.Title, task.Description, assignees, task.TypeID, history)
	updated, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) MoveTask(ctx context.Context, taskID, newColumnID string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE tasks SET column_id=$2 WHERE id=$1`, taskID, newColumnID)
	if err != nil {
		return fmt.Errorf("move task: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTasks(ctx context.Context, boardID string, ids []string) error {
	return s.deleteChildren(ctx, "tasks", boardID, ids)
}

// --- Members ---

func (s *PostgresStore) listMembers(ctx context.Context, boardID string) ([]BoardMember, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT user_id, role, permissions FROM board_members WHERE board_id=$1
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	members := []BoardMember{}
	for rows.Next() {
		var member BoardMember
		var permissionsRaw []byte
		if err := rows.Scan(&member.UserID, &member.Role, &permissionsRaw); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		member.Permissions = []string{}
		_ = json.Unmarshal(permissionsRaw, &member.Permissions)
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *PostgresStore) ListMemberUserIDs(ctx context.Context, boardID string) ([]string, error) {
	return s.listChildIDs(ctx, `SELECT user_id FROM board_members WHERE board_id=$1`, boardID)
}

func (s *PostgresStore) UpsertMembers(ctx context.Context, boardID string, members []BoardMember) error {
	if len(members) == 0 {
		return nil
	}
	values := make([]string, 0, len(members))
	args := []any{boardID}
	n := 2
	for _, member := range members {
		permissions, err := encodeList(member.Permissions)
		if err != nil {
			return fmt.Errorf("marshal permissions: %w", err)
		}
		values = append(values, fmt.Sprintf("($1::uuid, $%d::uuid, $%d, $%d::jsonb)", n, n+1, n+2))
		args = append(args, member.UserID, member.Role, permissions)
		n += 3
	}
	query := `
		INSERT INTO board_members (board_id, user_id, role, permissions)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (board_id, user_id) DO UPDATE SET
			role=EXCLUDED.role, permissions=EXCLUDED.permissions
	`
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert members: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMembers(ctx context.Context, boardID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `DELETE FROM board_members WHERE board_id=$1 AND user_id = ANY(` + placeholderArray(2, userIDs) + `::uuid[])`
	args := append([]any{boardID}, stringArgs(userIDs)...)
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	return nil
}

// --- Invites ---

func (s *PostgresStore) ListInvitedUserIDs(ctx context.Context, boardID string) ([]string, error) {
	return s.listChildIDs(ctx, `SELECT user_id FROM board_invites WHERE board_id=$1`, boardID)
}

func (s *PostgresStore) InsertInvites(ctx context.Context, boardID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	values := make([]string, 0, len(userIDs))
	args := []any{boardID}
	n := 2
	for _, userID := range userIDs {
		values = append(values, fmt.Sprintf("($1::uuid, $%d::uuid)", n))
		args = append(args, userID)
		n++
	}
	query := `
		INSERT INTO board_invites (board_id, user_id)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (board_id, user_id) DO NOTHING
	`
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert invites: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteInvites(ctx context.Context, boardID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `DELETE FROM board_invites WHERE board_id=$1 AND user_id = ANY(` + placeholderArray(2, userIDs) + `::uuid[])`
	args := append([]any{boardID}, stringArgs(userIDs)...)
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete invites: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteInvite(ctx context.Context, boardID, userID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM board_invites WHERE board_id=$1 AND user_id=$2`, boardID, userID)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

// --- Notifications ---

func (s *PostgresStore) InsertNotification(ctx context.Context, notification Notification) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO notifications (type, from_user_id, to_user_id, board_id, board_title, read)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, notification.Type, notification.FromUserID, notification.ToUserID, notification.BoardID, nullIfEmpty(notification.BoardTitle), notification.Read)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT n.id, n.type, n.from_user_id, COALESCE(p.display_name, p.username, 'Unknown'),
			n.to_user_id, n.board_id, COALESCE(n.board_title, ''), n.read, n.created_at
		FROM notifications n
		LEFT JOIN profiles p ON p.id = n.from_user_id
		WHERE n.to_user_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.FromUserID, &n.FromUsername, &n.ToUserID, &n.BoardID, &n.BoardTitle, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flips the read flag, scoped to the recipient so a
// caller can never touch someone else's notification. sql.ErrNoRows signals
// that no notification matched both id and recipient.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, toUserID string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE notifications SET read=TRUE WHERE id=$1 AND to_user_id=$2`,
		notificationID, toUserID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteInviteNotification(ctx context.Context, boardID, toUserID string) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM notifications WHERE type='invite' AND board_id=$1 AND to_user_id=$2
	`, boardID, toUserID)
	if err != nil {
		return fmt.Errorf("delete invite notification: %w", err)
	}
	return nil
}

// --- helpers ---

func (s *PostgresStore) listChildIDs(ctx context.Context, query, boardID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) deleteChildren(ctx context.Context, table, boardID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM ` + table + ` WHERE board_id=$1 AND id = ANY(` + placeholderArray(2, ids) + `::uuid[])`
	args := append([]any{boardID}, stringArgs(ids)...)
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func placeholderArray(start int, values []string) string {
	placeholders := make([]string, 0, len(values))
	for i := range values {
		placeholders = append(placeholders, fmt.Sprintf("$%d", start+i))
	}
	return "ARRAY[" + strings.Join(placeholders, ", ") + "]"
}

func stringArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
