package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	insecure := false
	cfg.Auth.CookieSecure = &insecure
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, []byte("access-secret"), []byte("refresh-secret"))
	handler, err := New(e)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	jar, _ := cookiejar.New(nil)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{Jar: jar},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.close() }
}

func seedUser(t *testing.T, e *engine.Engine, name, email, password string, role domain.Role) domain.Identity {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	id := domain.Identity{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         role,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		PasswordHash: string(hash),
	}
	ctx := context.Background()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertIdentity(ctx, tx, id); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return id
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, data, &env)
	return env.Error.Code
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func login(t *testing.T, srv *testServer, email, password string) SessionResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email": email, "password": password,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, res.StatusCode, data)
	}
	var sess SessionResponse
	decode(t, data, &sess)
	return sess
}

func TestSignupLoginRefreshLogout(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/signup", map[string]any{
		"name": "Ada", "email": "ada@example.com", "password": "Str0ng!pw",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("signup: status %d body %s", res.StatusCode, data)
	}
	var sess SessionResponse
	decode(t, data, &sess)
	if sess.AccessToken == "" || sess.Email != "ada@example.com" {
		t.Fatalf("signup session: %+v", sess)
	}
	var sawCookie bool
	for _, c := range res.Cookies() {
		if c.Name == "jwt" && c.Value != "" && c.HttpOnly {
			sawCookie = true
		}
	}
	if !sawCookie {
		t.Fatal("signup should set the jwt cookie")
	}

	// Bearer token authenticates /me.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, bearer(sess.AccessToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d body %s", res.StatusCode, data)
	}
	var me UserResponse
	decode(t, data, &me)
	if me.Role != "user" {
		t.Fatalf("signup role = %s, want user", me.Role)
	}

	// The cookie jar holds the refresh session; no bearer needed.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/refresh", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", res.StatusCode, data)
	}
	var refreshed SessionResponse
	decode(t, data, &refreshed)
	if refreshed.AccessToken == "" {
		t.Fatal("refresh should mint an access token")
	}

	// Logout revokes the session; refresh now fails.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/logout", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d body %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/refresh", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status %d body %s", res.StatusCode, data)
	}
}

func TestUnauthenticatedVersusForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	seedUser(t, srv.Engine, "Uma", "uma@example.com", "S3cret!pw", domain.RoleUser)
	seedUser(t, srv.Engine, "Alice", "alice@example.com", "S3cret!pw", domain.RoleAdmin)

	// No credentials at all: 401.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthenticated" {
		t.Fatalf("anonymous list: status %d body %s", res.StatusCode, data)
	}

	// Authenticated but below the required tier: 403.
	user := login(t, srv, "uma@example.com", "S3cret!pw")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": "nope"}, bearer(user.AccessToken))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("user create: status %d body %s", res.StatusCode, data)
	}

	// Admin passes.
	admin := login(t, srv, "alice@example.com", "S3cret!pw")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": "ok"}, bearer(admin.AccessToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("admin create: status %d body %s", res.StatusCode, data)
	}

	// Garbage bearer: 401, not 403.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, bearer("garbage"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage bearer: status %d body %s", res.StatusCode, data)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	seedUser(t, srv.Engine, "Alice", "alice@example.com", "S3cret!pw", domain.RoleAdmin)
	seedUser(t, srv.Engine, "Bob", "bob@example.com", "S3cret!pw", domain.RoleAdmin)
	target := seedUser(t, srv.Engine, "Uma", "uma@example.com", "S3cret!pw", domain.RoleUser)

	alice := login(t, srv, "alice@example.com", "S3cret!pw")
	bob := login(t, srv, "bob@example.com", "S3cret!pw")
	uma := login(t, srv, "uma@example.com", "S3cret!pw")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title": "Ship the release", "description": "bits and bobs",
	}, bearer(alice.AccessToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d body %s", res.StatusCode, data)
	}
	var task TaskResponse
	decode(t, data, &task)

	// Another admin cannot touch Alice's task.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID, map[string]any{"title": "mine now"}, bearer(bob.AccessToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("bob patch: status %d body %s", res.StatusCode, data)
	}

	// The owner can.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID, map[string]any{"title": "Ship it"}, bearer(alice.AccessToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("alice patch: status %d body %s", res.StatusCode, data)
	}

	// Assign Uma; the response is the resolved assignee set.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/assignees", map[string]any{
		"user_ids": []string{target.ID},
	}, bearer(alice.AccessToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign: status %d body %s", res.StatusCode, data)
	}
	var assignees []AssigneeResponse
	decode(t, data, &assignees)
	if len(assignees) != 1 || assignees[0].Name != "Uma" {
		t.Fatalf("assignees: %+v", assignees)
	}

	// Uma's listing now contains the task; Bob's does not.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, bearer(uma.AccessToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("uma list: status %d body %s", res.StatusCode, data)
	}
	var umaTasks []TaskResponse
	decode(t, data, &umaTasks)
	if len(umaTasks) != 1 || umaTasks[0].ID != task.ID {
		t.Fatalf("uma tasks: %+v", umaTasks)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, bearer(bob.AccessToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bob list: status %d body %s", res.StatusCode, data)
	}
	var bobTasks []TaskResponse
	decode(t, data, &bobTasks)
	if len(bobTasks) != 0 {
		t.Fatalf("bob tasks: %+v", bobTasks)
	}

	// Unassign and delete.
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+task.ID+"/assignees/"+target.ID, nil, bearer(alice.AccessToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unassign: status %d body %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+task.ID, nil, bearer(alice.AccessToken))
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d body %s", res.StatusCode, data)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	seedUser(t, srv.Engine, "Alice", "alice@example.com", "S3cret!pw", domain.RoleAdmin)
	alice := login(t, srv, "alice@example.com", "S3cret!pw")

	// Malformed identifier.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/not-a-uuid", nil, bearer(alice.AccessToken))
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "invalid_identifier" {
		t.Fatalf("bad id: status %d body %s", res.StatusCode, data)
	}

	// Well-formed but unknown.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+uuid.NewString(), nil, bearer(alice.AccessToken))
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "task_not_found" {
		t.Fatalf("missing task: status %d body %s", res.StatusCode, data)
	}

	// Bad credentials at login.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email": "alice@example.com", "password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("bad login: status %d body %s", res.StatusCode, data)
	}
}

func TestUserAdministrationOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	seedUser(t, srv.Engine, "Ruth", "ruth@example.com", "S3cret!pw", domain.RoleRoot)
	target := seedUser(t, srv.Engine, "Uma", "uma@example.com", "S3cret!pw", domain.RoleUser)

	root := login(t, srv, "ruth@example.com", "S3cret!pw")
	uma := login(t, srv, "uma@example.com", "S3cret!pw")

	// Plain users cannot list users.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/users", nil, bearer(uma.AccessToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("user list as user: status %d body %s", res.StatusCode, data)
	}

	// Root promotes Uma; the change shows up on her next request.
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/users/"+target.ID+"/role", map[string]any{"role": "admin"}, bearer(root.AccessToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set role: status %d body %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": "now allowed"}, bearer(uma.AccessToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("promoted create: status %d body %s", res.StatusCode, data)
	}

	// Root deletes the account; her token stops working entirely.
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/users/"+target.ID, nil, bearer(root.AccessToken))
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete user: status %d body %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, bearer(uma.AccessToken))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deleted user me: status %d body %s", res.StatusCode, data)
	}
}
