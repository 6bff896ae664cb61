package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowboard/api/internal/auth"
	"flowboard/api/internal/store"
)

const testSecret = "test-secret"

func newTestHTTPServer(fs *fakeStore) *HTTPServer {
	svc := newTestService(fs)
	svc.cfg.TokenSecret = testSecret
	svc.cfg.AccessTTL = time.Hour
	return NewHTTPServer(svc, nil, "*")
}

func tokenFor(t *testing.T, userID, username string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:      userID,
		Username: username,
		JTI:      "jti-test",
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func knownUsers(fs *fakeStore) *fakeStore {
	fs.getUserByIDFn = func(_ context.Context, userID string) (store.User, error) {
		switch userID {
		case ownerID:
			return store.User{ID: ownerID, Username: "avery", DisplayName: "Avery"}, nil
		case memberID:
			return store.User{ID: memberID, Username: "blake", DisplayName: "Blake"}, nil
		}
		return store.User{}, auth.ErrInvalidToken
	}
	return fs
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestPreflightSetsCORSHeaders(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})
	req := httptest.NewRequest(http.MethodOptions, "/api/boards", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS origin header, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["authenticated"] != false {
		t.Fatalf("expected authenticated false, got %v", payload["authenticated"])
	}
}

func TestBoardRoutesRequireToken(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestGetBoardContract(t *testing.T) {
	server := newTestHTTPServer(knownUsers(boardStore(testBoard())))
	req := httptest.NewRequest(http.MethodGet, "/api/boards/board-1", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, ownerID, "avery"))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["id"] != "board-1" || payload["ownerId"] != ownerID {
		t.Fatalf("unexpected board payload %v", payload)
	}
	columns, _ := payload["columns"].([]any)
	if len(columns) != 2 {
		t.Fatalf("expected 2 columns, got %v", payload["columns"])
	}
	if _, ok := payload["pendingInvites"].([]any); !ok {
		t.Fatalf("expected pendingInvites to serialize as an array, got %v", payload["pendingInvites"])
	}
}

func TestGetBoardForbiddenForStranger(t *testing.T) {
	fs := boardStore(testBoard())
	fs.getUserByIDFn = func(_ context.Context, userID string) (store.User, error) {
		return store.User{ID: userID, Username: "sam"}, nil
	}
	server := newTestHTTPServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/boards/board-1", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "stranger", "sam"))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["error"] != "Not a member" {
		t.Fatalf("expected error message, got %v", payload["error"])
	}
}

func TestMoveTaskLockedColumnReturnsConflict(t *testing.T) {
	b := testBoard()
	b.Columns[0].IsExitLocked = true
	server := newTestHTTPServer(knownUsers(boardStore(b)))

	body := bytes.NewBufferString(`{"columnId":"22222222-2222-2222-2222-222222222222"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/boards/board-1/tasks/55555555-5555-5555-5555-555555555555/move", body)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, ownerID, "avery"))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "column_exit_locked" || payload["error"] != "Source column is locked" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestCreateBoardRejectsInvalidBody(t *testing.T) {
	server := newTestHTTPServer(knownUsers(&fakeStore{}))
	req := httptest.NewRequest(http.MethodPost, "/api/boards", bytes.NewBufferString(`{"title":`))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, ownerID, "avery"))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPreviewInviteCodeIsPublic(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/api/invite-codes/invite-nope", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "invalid_invite_code" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	server := newTestHTTPServer(knownUsers(&fakeStore{}))
	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, ownerID, "avery"))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
