package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flowboard/api/internal/auth"
	"flowboard/api/internal/authpw"
	"flowboard/api/internal/export"
	"flowboard/api/internal/feed"
	"flowboard/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	feed       *feed.Service
	corsOrigin string
}

func NewHTTPServer(service *Service, feedService *feed.Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, feed: feedService, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Health(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{"ok": status == "ready", "status": status, "checks": checks})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		var body struct {
			Username    string `json:"username"`
			DisplayName string `json:"displayName"`
			Email       string `json:"email"`
			Password    string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
			Username:    body.Username,
			DisplayName: body.DisplayName,
			Email:       body.Email,
			Password:    body.Password,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sessionJSON(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{Email: body.Email, Password: body.Password})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionJSON(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionJSON(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"username":      session.Username,
			"displayName":   session.DisplayName,
		})
		return
	}

	// Invite code preview is public so a join page can show the board name.
	parts := splitPath(r.URL.Path)
	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "invite-codes" {
		preview, err := s.service.PreviewInviteCode(r.Context(), parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        preview.ID,
			"title":     preview.Title,
			"ownerName": preview.OwnerName,
		})
		return
	}

	// Everything below requires a session.
	session, err := s.service.SessionFromToken(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	if r.Method == http.MethodPost && len(parts) == 4 && parts[0] == "api" && parts[1] == "invite-codes" && parts[3] == "join" {
		b, err := s.service.JoinByInviteCode(r.Context(), session, parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, boardJSON(b))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/users" {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		filtered := ids[:0]
		for _, id := range ids {
			if strings.TrimSpace(id) != "" {
				filtered = append(filtered, strings.TrimSpace(id))
			}
		}
		users, err := s.service.GetUsersByIDs(r.Context(), filtered)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(users))
		for _, user := range users {
			payload = append(payload, publicUserJSON(user))
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/users/search" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, s.service.SearchUsers(r.URL.Query().Get("q"), limit))
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/api/profile" {
		var body ProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.UpdateProfile(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profileJSON(user))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/profile/avatar" {
		s.handleAvatarUpload(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notifications" {
		notifications, err := s.service.ListNotifications(r.Context(), session)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(notifications))
		for _, n := range notifications {
			payload = append(payload, notificationJSON(n))
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notifications/stream" {
		s.handleNotificationStream(w, r, session)
		return
	}

	if r.Method == http.MethodPost && len(parts) == 4 && parts[0] == "api" && parts[1] == "notifications" && parts[3] == "read" {
		if err := s.service.MarkNotificationRead(r.Context(), session, parts[2]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/suggest/improve" {
		var body struct {
			Text string `json:"text"`
			Tone string `json:"tone"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		improved, err := s.service.ImproveText(r.Context(), body.Text, body.Tone)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"text": improved})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/boards" {
		boards, err := s.service.ListBoards(r.Context(), session)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(boards))
		for _, b := range boards {
			payload = append(payload, boardJSON(b))
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/boards" {
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		b, err := s.service.CreateBoard(r.Context(), session, body.Title, body.Description)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, boardJSON(b))
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "boards" {
		s.handleBoard(w, r, session, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleBoard routes /api/boards/{id}/... with rest[0] = board id.
func (s *HTTPServer) handleBoard(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	boardID := rest[0]
	tail := rest[1:]

	switch {
	case len(tail) == 0 && r.Method == http.MethodGet:
		b, err := s.service.GetBoard(r.Context(), session, boardID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, boardJSON(b))

	case len(tail) == 0 && r.Method == http.MethodPut:
		var body boardPayload
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		incoming := body.toBoard()
		incoming.ID = boardID
		b, err := s.service.UpdateBoard(r.Context(), session, incoming)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, boardJSON(b))

	case len(tail) == 0 && r.Method == http.MethodDelete:
		if err := s.service.DeleteBoard(r.Context(), session, boardID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 1 && tail[0] == "invites" && r.Method == http.MethodPost:
		var body struct {
			UserID string `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		b, err := s.service.SendInvite(r.Context(), session, boardID, body.UserID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, boardJSON(b))

	case len(tail) == 2 && tail[0] == "invites" && tail[1] == "accept" && r.Method == http.MethodPost:
		b, err := s.service.AcceptInvite(r.Context(), session, boardID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, boardJSON(b))

	case len(tail) == 2 && tail[0] == "invites" && tail[1] == "decline" && r.Method == http.MethodPost:
		if err := s.service.DeclineInvite(r.Context(), session, boardID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 2 && tail[0] == "invites" && r.Method == http.MethodDelete:
		b, err := s.service.RevokeInvite(r.Context(), session, boardID, tail[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, boardJSON(b))

	case len(tail) == 1 && tail[0] == "leave" && r.Method == http.MethodPost:
		if err := s.service.LeaveBoard(r.Context(), session, boardID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 1 && tail[0] == "tasks" && r.Method == http.MethodPost:
		var body TaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		task, err := s.service.CreateTask(r.Context(), session, boardID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, taskJSON(task))

	case len(tail) == 2 && tail[0] == "tasks" && r.Method == http.MethodPut:
		var body TaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		task, err := s.service.UpdateTask(r.Context(), session, boardID, tail[1], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, taskJSON(task))

	case len(tail) == 3 && tail[0] == "tasks" && tail[2] == "move" && r.Method == http.MethodPost:
		var body struct {
			ColumnID string `json:"columnId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.MoveTask(r.Context(), session, boardID, tail[1], body.ColumnID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 3 && tail[0] == "tasks" && tail[2] == "summarize" && r.Method == http.MethodPost:
		summary, err := s.service.SummarizeTask(r.Context(), session, boardID, tail[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary})

	case len(tail) == 2 && tail[0] == "tasks" && r.Method == http.MethodDelete:
		if err := s.service.DeleteTask(r.Context(), session, boardID, tail[1]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 1 && tail[0] == "columns" && r.Method == http.MethodPost:
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		column, err := s.service.CreateColumn(r.Context(), session, boardID, body.Title)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, columnJSON(column))

	case len(tail) == 2 && tail[0] == "columns" && r.Method == http.MethodPut:
		var body ColumnInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateColumn(r.Context(), session, boardID, tail[1], body); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 2 && tail[0] == "columns" && r.Method == http.MethodDelete:
		if err := s.service.DeleteColumn(r.Context(), session, boardID, tail[1]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 1 && tail[0] == "types" && r.Method == http.MethodPost:
		var body struct {
			Label string `json:"label"`
			Color string `json:"color"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		taskType, err := s.service.CreateTaskType(r.Context(), session, boardID, body.Label, body.Color)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, taskTypeJSON(taskType))

	case len(tail) == 2 && tail[0] == "types" && tail[1] == "reorder" && r.Method == http.MethodPost:
		var body struct {
			TypeIDs []string `json:"typeIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ReorderTaskTypes(r.Context(), session, boardID, body.TypeIDs); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 2 && tail[0] == "types" && r.Method == http.MethodPut:
		var body TaskTypeInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateTaskType(r.Context(), session, boardID, tail[1], body); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 2 && tail[0] == "types" && r.Method == http.MethodDelete:
		if err := s.service.DeleteTaskType(r.Context(), session, boardID, tail[1]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(tail) == 1 && tail[0] == "export" && r.Method == http.MethodGet:
		format := export.Format(r.URL.Query().Get("format"))
		if format == "" {
			format = export.FormatPDF
		}
		result, err := s.service.ExportBoard(r.Context(), session, boardID, format)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	case len(tail) == 1 && tail[0] == "cover" && r.Method == http.MethodPost:
		s.handleCoverUpload(w, r, session, boardID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAvatarUpload(w http.ResponseWriter, r *http.Request, session Session) {
	if s.service.Media() == nil {
		writeError(w, http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Object storage is not configured", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	objectName, err := s.service.Media().UploadAvatar(r.Context(), session.UserID, header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeError(w, http.StatusBadRequest, "UPLOAD_FAILED", err.Error(), nil)
		return
	}
	url, err := s.service.Media().PresignedURL(r.Context(), objectName, 0)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if _, err := s.service.UpdateProfile(r.Context(), session, ProfileInput{AvatarURL: &objectName}); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"objectName": objectName, "url": url})
}

func (s *HTTPServer) handleCoverUpload(w http.ResponseWriter, r *http.Request, session Session, boardID string) {
	if s.service.Media() == nil {
		writeError(w, http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Object storage is not configured", nil)
		return
	}
	b, err := s.service.GetBoard(r.Context(), session, boardID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	objectName, err := s.service.Media().UploadCover(r.Context(), boardID, header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeError(w, http.StatusBadRequest, "UPLOAD_FAILED", err.Error(), nil)
		return
	}
	b.CoverURL = objectName
	if _, err := s.service.UpdateBoard(r.Context(), session, b); err != nil {
		writeMappedError(w, err)
		return
	}
	url, err := s.service.Media().PresignedURL(r.Context(), objectName, 0)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"objectName": objectName, "url": url})
}

// handleNotificationStream pushes notification batches over SSE until the
// client disconnects.
func (s *HTTPServer) handleNotificationStream(w http.ResponseWriter, r *http.Request, session Session) {
	if s.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "FEED_UNAVAILABLE", "Notification stream is not configured", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.feed.Subscribe(session.UserID)
	defer s.feed.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case batch, ok := <-sub.C:
			if !ok {
				return
			}
			payload := make([]map[string]any, 0, len(batch))
			for _, n := range batch {
				payload = append(payload, notificationJSON(n))
			}
			encoded, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", encoded)
			flusher.Flush()
		}
	}
}

// --- wire shapes ---

type boardPayload struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	CoverURL       string          `json:"coverUrl"`
	InviteCode     string          `json:"inviteCode"`
	Members        []memberPayload `json:"members"`
	PendingInvites []string        `json:"pendingInvites"`
	Columns        []columnPayload `json:"columns"`
	Tasks          []taskPayload   `json:"tasks"`
	TaskTypes      []typePayload   `json:"taskTypes"`
}

type memberPayload struct {
	UserID      string   `json:"userId"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type columnPayload struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Order         int    `json:"order"`
	IsEntryLocked bool   `json:"isEntryLocked"`
	IsExitLocked  bool   `json:"isExitLocked"`
}

type taskPayload struct {
	ID          string   `json:"id"`
	ColumnID    string   `json:"columnId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AssigneeIDs []string `json:"assigneeIds"`
	TypeID      string   `json:"typeId"`
	History     []string `json:"history"`
}

type typePayload struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

func (p boardPayload) toBoard() store.Board {
	b := store.Board{
		Title:          p.Title,
		Description:    p.Description,
		CoverURL:       p.CoverURL,
		InviteCode:     p.InviteCode,
		PendingInvites: p.PendingInvites,
	}
	for _, m := range p.Members {
		b.Members = append(b.Members, store.BoardMember{UserID: m.UserID, Role: m.Role, Permissions: m.Permissions})
	}
	for _, c := range p.Columns {
		b.Columns = append(b.Columns, store.Column{ID: c.ID, Title: c.Title, Order: c.Order, IsEntryLocked: c.IsEntryLocked, IsExitLocked: c.IsExitLocked})
	}
	for _, t := range p.Tasks {
		b.Tasks = append(b.Tasks, store.Task{ID: t.ID, ColumnID: t.ColumnID, Title: t.Title, Description: t.Description, AssigneeIDs: t.AssigneeIDs, TypeID: t.TypeID, History: t.History})
	}
	for _, t := range p.TaskTypes {
		b.TaskTypes = append(b.TaskTypes, store.TaskType{ID: t.ID, Label: t.Label, Color: t.Color})
	}
	return b
}

func sessionJSON(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"username":     session.Username,
		"displayName":  session.DisplayName,
		"expiresAt":    session.ExpiresAt.Format(time.RFC3339),
	}
}

func boardJSON(b store.Board) map[string]any {
	members := make([]map[string]any, 0, len(b.Members))
	for _, m := range b.Members {
		members = append(members, map[string]any{"userId": m.UserID, "role": m.Role, "permissions": nonNilStrings(m.Permissions)})
	}
	columns := make([]map[string]any, 0, len(b.Columns))
	for _, c := range b.Columns {
		columns = append(columns, columnJSON(c))
	}
	tasks := make([]map[string]any, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		tasks = append(tasks, taskJSON(t))
	}
	taskTypes := make([]map[string]any, 0, len(b.TaskTypes))
	for _, t := range b.TaskTypes {
		taskTypes = append(taskTypes, taskTypeJSON(t))
	}
	return map[string]any{
		"id":             b.ID,
		"title":          b.Title,
		"description":    b.Description,
		"coverUrl":       b.CoverURL,
		"ownerId":        b.OwnerID,
		"inviteCode":     b.InviteCode,
		"members":        members,
		"pendingInvites": nonNilStrings(b.PendingInvites),
		"columns":        columns,
		"tasks":          tasks,
		"taskTypes":      taskTypes,
	}
}

func columnJSON(c store.Column) map[string]any {
	return map[string]any{
		"id":            c.ID,
		"title":         c.Title,
		"order":         c.Order,
		"isEntryLocked": c.IsEntryLocked,
		"isExitLocked":  c.IsExitLocked,
	}
}

func taskJSON(t store.Task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"columnId":    t.ColumnID,
		"title":       t.Title,
		"description": t.Description,
		"assigneeIds": nonNilStrings(t.AssigneeIDs),
		"typeId":      t.TypeID,
		"history":     nonNilStrings(t.History),
		"createdAt":   t.CreatedAt.Format(time.RFC3339),
	}
}

func taskTypeJSON(t store.TaskType) map[string]any {
	return map[string]any{"id": t.ID, "label": t.Label, "color": t.Color}
}

func notificationJSON(n store.Notification) map[string]any {
	return map[string]any{
		"id":           n.ID,
		"type":         n.Type,
		"fromUserId":   n.FromUserID,
		"fromUsername": n.FromUsername,
		"toUserId":     n.ToUserID,
		"boardId":      n.BoardID,
		"boardTitle":   n.BoardTitle,
		"read":         n.Read,
		"createdAt":    n.CreatedAt.Format(time.RFC3339),
	}
}

func publicUserJSON(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"username":    user.Username,
		"displayName": user.DisplayName,
		"avatarUrl":   user.AvatarURL,
	}
}

func profileJSON(user store.User) map[string]any {
	payload := publicUserJSON(user)
	payload["email"] = user.Email
	payload["telegram"] = user.Telegram
	return payload
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// --- middleware and helpers ---

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
