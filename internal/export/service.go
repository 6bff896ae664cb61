package export

import (
	"context"
	"fmt"

	"flowboard/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetBoard(ctx context.Context, boardID string) (store.Board, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]store.User, error)
}

// Service provides board export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	board, err := s.store.GetBoard(ctx, req.BoardID)
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}

	data, err := s.buildTemplateData(ctx, board)
	if err != nil {
		return nil, err
	}

	switch req.Format {
	case FormatPDF:
		html, err := RenderBoardHTML(data)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(html, board.Title)
	case FormatCSV:
		return exportCSV(data, board.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (s *Service) buildTemplateData(ctx context.Context, board store.Board) (TemplateData, error) {
	userIDs := []string{board.OwnerID}
	seen := map[string]bool{board.OwnerID: true}
	for _, task := range board.Tasks {
		for _, id := range task.AssigneeIDs {
			if !seen[id] {
				seen[id] = true
				userIDs = append(userIDs, id)
			}
		}
	}
	users, err := s.store.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return TemplateData{}, fmt.Errorf("load users: %w", err)
	}
	names := map[string]string{}
	for _, user := range users {
		names[user.ID] = user.DisplayName
	}

	typesByID := map[string]store.TaskType{}
	for _, taskType := range board.TaskTypes {
		typesByID[taskType.ID] = taskType
	}

	data := TemplateData{
		Title:       board.Title,
		Description: board.Description,
		OwnerName:   names[board.OwnerID],
	}
	for _, column := range board.Columns {
		tc := TemplateColumn{
			Title:  column.Title,
			Locked: column.IsEntryLocked || column.IsExitLocked,
		}
		for _, task := range board.Tasks {
			if task.ColumnID != column.ID {
				continue
			}
			tt := TemplateTask{
				Title:       task.Title,
				Description: task.Description,
			}
			if taskType, ok := typesByID[task.TypeID]; ok {
				tt.TypeLabel = taskType.Label
				tt.TypeColor = taskType.Color
			}
			for _, id := range task.AssigneeIDs {
				if name := names[id]; name != "" {
					tt.Assignees = append(tt.Assignees, name)
				}
			}
			tc.Tasks = append(tc.Tasks, tt)
		}
		data.Columns = append(data.Columns, tc)
	}
	return data, nil
}
