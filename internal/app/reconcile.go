package app

import (
	"context"
	"fmt"

	"flowboard/api/internal/perm"
	"flowboard/api/internal/store"
	"flowboard/api/internal/util"
)

// UpdateBoard reconciles a client-edited board snapshot against the stored
// board. Each child collection is synced by upsert-and-delete-by-difference:
// rows whose ids the server recognizes are upserted in one batch, rows with
// client-generated provisional ids are inserted fresh, and rows present
// remotely but absent from the snapshot are deleted. Invites carry no id of
// their own and are diffed both ways on the (board, user) pair. The whole
// update runs in one transaction, so a failure partway leaves the stored
// board untouched, and the returned board is re-read afterwards as the
// authoritative result.
func (s *Service) UpdateBoard(ctx context.Context, session Session, incoming store.Board) (store.Board, error) {
	current, err := s.loadBoard(ctx, incoming.ID)
	if err != nil {
		return store.Board{}, err
	}
	if err := s.requireCapability(current, session.UserID, perm.CanView); err != nil {
		return store.Board{}, err
	}

	incoming.OwnerID = current.OwnerID
	incoming.Members = sanitizeMembers(incoming.Members, current.OwnerID)

	// Membership and invite edits are a can_manage_users operation no matter
	// which endpoint carries them; otherwise a snapshot would let a member
	// rewrite their own permission row. Both sides are compared in sanitized
	// form so normalization alone never counts as an edit.
	if !membersEqual(incoming.Members, sanitizeMembers(current.Members, current.OwnerID)) ||
		!idSetEqual(incoming.PendingInvites, current.PendingInvites) {
		if err := s.requireCapability(current, session.UserID, perm.CanManageUsers); err != nil {
			return store.Board{}, err
		}
	}

	err = s.store.InBoardTx(ctx, func(tx store.BoardTx) error {
		if err := tx.UpdateBoardRow(ctx, store.Board{
			ID:          incoming.ID,
			Title:       incoming.Title,
			Description: incoming.Description,
			CoverURL:    incoming.CoverURL,
			InviteCode:  incoming.InviteCode,
		}); err != nil {
			return err
		}

		// Columns and types go first so tasks can reference fresh rows.
		columnIDs, err := reconcileColumns(ctx, tx, incoming.ID, incoming.Columns)
		if err != nil {
			return err
		}
		typeIDs, err := reconcileTaskTypes(ctx, tx, incoming.ID, incoming.TaskTypes)
		if err != nil {
			return err
		}
		if err := reconcileTasks(ctx, tx, incoming.ID, incoming.Tasks, columnIDs, typeIDs); err != nil {
			return err
		}
		if err := reconcileMembers(ctx, tx, incoming.ID, incoming.Members); err != nil {
			return err
		}
		return reconcileInvites(ctx, tx, incoming.ID, incoming.PendingInvites)
	})
	if err != nil {
		return store.Board{}, fmt.Errorf("update board %s: %w", incoming.ID, err)
	}

	return s.loadBoard(ctx, incoming.ID)
}

// sanitizeMembers drops unknown capability tags, normalizes roles, and pins
// the ownership invariant: the stored owner stays owner, nobody else becomes
// one, and the owner row cannot be removed.
func sanitizeMembers(members []store.BoardMember, ownerID string) []store.BoardMember {
	out := make([]store.BoardMember, 0, len(members)+1)
	ownerPresent := false
	for _, member := range members {
		granted := make([]string, 0, len(member.Permissions))
		for _, p := range member.Permissions {
			if perm.IsCapability(p) {
				granted = append(granted, p)
			}
		}
		member.Permissions = granted
		if member.UserID == ownerID {
			member.Role = string(perm.RoleOwner)
			member.Permissions = perm.Strings(perm.All)
			ownerPresent = true
		} else {
			member.Role = string(perm.RoleMember)
		}
		out = append(out, member)
	}
	if !ownerPresent {
		out = append(out, store.BoardMember{
			UserID:      ownerID,
			Role:        string(perm.RoleOwner),
			Permissions: perm.Strings(perm.All),
		})
	}
	return out
}

// reconcileColumns returns a map from every incoming column id (persistent or
// provisional) to its stored id.
func reconcileColumns(ctx context.Context, tx store.BoardTx, boardID string, columns []store.Column) (map[string]string, error) {
	remoteIDs, err := tx.ListColumnIDs(ctx, boardID)
	if err != nil {
		return nil, err
	}

	idMap := make(map[string]string, len(columns))
	var recognized []store.Column
	var provisional []store.Column
	for _, column := range columns {
		if util.IsPersistentID(column.ID) {
			recognized = append(recognized, column)
			idMap[column.ID] = column.ID
		} else {
			provisional = append(provisional, column)
		}
	}

	if err := tx.UpsertColumns(ctx, boardID, recognized); err != nil {
		return nil, err
	}
	for _, column := range provisional {
		created, err := tx.InsertColumn(ctx, boardID, column)
		if err != nil {
			return nil, err
		}
		idMap[column.ID] = created.ID
	}

	if err := tx.DeleteColumns(ctx, boardID, difference(remoteIDs, idsOfColumns(recognized))); err != nil {
		return nil, err
	}
	return idMap, nil
}

func reconcileTaskTypes(ctx context.Context, tx store.BoardTx, boardID string, taskTypes []store.TaskType) (map[string]string, error) {
	remoteIDs, err := tx.ListTaskTypeIDs(ctx, boardID)
	if err != nil {
		return nil, err
	}

	idMap := make(map[string]string, len(taskTypes))
	var recognized []store.TaskType
	var recognizedOrders []int
	for index, taskType := range taskTypes {
		if util.IsPersistentID(taskType.ID) {
			recognized = append(recognized, taskType)
			recognizedOrders = append(recognizedOrders, index)
			idMap[taskType.ID] = taskType.ID
			continue
		}
		created, err := tx.InsertTaskType(ctx, boardID, taskType, index)
		if err != nil {
			return nil, err
		}
		idMap[taskType.ID] = created.ID
	}

	if err := tx.UpsertTaskTypes(ctx, boardID, recognized, recognizedOrders); err != nil {
		return nil, err
	}
	if err := tx.DeleteTaskTypes(ctx, boardID, difference(remoteIDs, idsOfTaskTypes(recognized))); err != nil {
		return nil, err
	}
	return idMap, nil
}

func reconcileTasks(ctx context.Context, tx store.BoardTx, boardID string, tasks []store.Task, columnIDs, typeIDs map[string]string) error {
	remoteIDs, err := tx.ListTaskIDs(ctx, boardID)
	if err != nil {
		return err
	}

	var recognized []store.Task
	for _, task := range tasks {
		// Rewrite references through the id maps so a task added to a
		// just-created column lands in the stored row, not the client id.
		if mapped, ok := columnIDs[task.ColumnID]; ok {
			task.ColumnID = mapped
		}
		if mapped, ok := typeIDs[task.TypeID]; ok {
			task.TypeID = mapped
		}
		if util.IsPersistentID(task.ID) {
			recognized = append(recognized, task)
			continue
		}
		if _, err := tx.InsertTask(ctx, boardID, task); err != nil {
			return err
		}
	}

	if err := tx.UpsertTasks(ctx, boardID, recognized); err != nil {
		return err
	}
	return tx.DeleteTasks(ctx, boardID, difference(remoteIDs, idsOfTasks(recognized)))
}

func reconcileMembers(ctx context.Context, tx store.BoardTx, boardID string, members []store.BoardMember) error {
	remoteIDs, err := tx.ListMemberUserIDs(ctx, boardID)
	if err != nil {
		return err
	}

	if err := tx.UpsertMembers(ctx, boardID, members); err != nil {
		return err
	}
	incoming := make([]string, 0, len(members))
	for _, member := range members {
		incoming = append(incoming, member.UserID)
	}
	return tx.DeleteMembers(ctx, boardID, difference(remoteIDs, incoming))
}

func reconcileInvites(ctx context.Context, tx store.BoardTx, boardID string, pending []string) error {
	remoteIDs, err := tx.ListInvitedUserIDs(ctx, boardID)
	if err != nil {
		return err
	}

	if err := tx.InsertInvites(ctx, boardID, difference(pending, remoteIDs)); err != nil {
		return err
	}
	revoked := difference(remoteIDs, pending)
	if err := tx.DeleteInvites(ctx, boardID, revoked); err != nil {
		return err
	}
	for _, userID := range revoked {
		if err := tx.DeleteInviteNotification(ctx, boardID, userID); err != nil {
			return err
		}
	}
	return nil
}

// membersEqual compares two member sets by user id, role, and granted
// capabilities, ignoring order.
func membersEqual(a, b []store.BoardMember) bool {
	if len(a) != len(b) {
		return false
	}
	byUser := make(map[string]store.BoardMember, len(b))
	for _, member := range b {
		byUser[member.UserID] = member
	}
	for _, member := range a {
		other, ok := byUser[member.UserID]
		if !ok || member.Role != other.Role || !idSetEqual(member.Permissions, other.Permissions) {
			return false
		}
	}
	return true
}

func idSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(b))
	for _, id := range b {
		counts[id]++
	}
	for _, id := range a {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}

// difference returns the elements of a not present in b, preserving order.
func difference(a, b []string) []string {
	present := make(map[string]bool, len(b))
	for _, id := range b {
		present[id] = true
	}
	var out []string
	for _, id := range a {
		if !present[id] {
			out = append(out, id)
		}
	}
	return out
}

func idsOfColumns(columns []store.Column) []string {
	ids := make([]string, 0, len(columns))
	for _, c := range columns {
		ids = append(ids, c.ID)
	}
	return ids
}

func idsOfTaskTypes(taskTypes []store.TaskType) []string {
	ids := make([]string, 0, len(taskTypes))
	for _, t := range taskTypes {
		ids = append(ids, t.ID)
	}
	return ids
}

func idsOfTasks(tasks []store.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
