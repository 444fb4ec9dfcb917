package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"contentline/internal/app"
	"contentline/internal/config"
	"contentline/internal/db"
	"contentline/internal/engine"
	"contentline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.AllowLegacyActorHeader = true
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if err := app.SeedRoster(context.Background(), e.Repo, cfg); err != nil {
		t.Fatalf("seed roster: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              cfg.Server.JWTSecret,
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
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

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Error.Code != "unauthorized" {
		t.Fatalf("expected code unauthorized, got %q", env.Error.Code)
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":   "Hiring post",
		"channel": "LINKEDIN",
	}, asActor("writer-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if created.CurrentStage != "SCRIPT" || created.AssignedRole != "WRITER" {
		t.Fatalf("unexpected initial state: %s/%s", created.CurrentStage, created.AssignedRole)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/"+created.ID+"/data", map[string]any{
		"script": "Hello LinkedIn",
	}, asActor("writer-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch data status %d: %s", res.StatusCode, string(data))
	}
	var patched ProjectResponse
	_ = json.Unmarshal(data, &patched)
	if patched.Status != "IN_PROGRESS" {
		t.Fatalf("expected IN_PROGRESS after writer edit, got %s", patched.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/submit", nil, asActor("writer-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var submitted ProjectResponse
	_ = json.Unmarshal(data, &submitted)
	if submitted.CurrentStage != "SCRIPT_REVIEW_L1" || submitted.Status != "WAITING_APPROVAL" {
		t.Fatalf("unexpected state after submit: %s/%s", submitted.CurrentStage, submitted.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/approve", map[string]any{
		"comment": "solid draft",
	}, asActor("cmo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	var approved ProjectResponse
	_ = json.Unmarshal(data, &approved)
	if approved.CurrentStage != "SCRIPT_REVIEW_L2" || approved.AssignedRole != "CEO" {
		t.Fatalf("unexpected state after approve: %s/%s", approved.CurrentStage, approved.AssignedRole)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/reject", map[string]any{
		"target_stage": "SCRIPT",
		"comment":      "tone is off",
	}, asActor("ceo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject status %d: %s", res.StatusCode, string(data))
	}
	var rejected ProjectResponse
	_ = json.Unmarshal(data, &rejected)
	if rejected.CurrentStage != "SCRIPT" || rejected.Status != "REJECTED" || rejected.AssignedRole != "WRITER" {
		t.Fatalf("unexpected state after reject: %s/%s/%s", rejected.CurrentStage, rejected.Status, rejected.AssignedRole)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+created.ID+"/history", nil, asActor("ops-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history []HistoryEventResponse
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(history))
	}
	wantActions := []string{"CREATED", "SUBMITTED", "APPROVED", "REJECTED"}
	for i, want := range wantActions {
		if history[i].Action != want {
			t.Fatalf("history[%d]: expected %s, got %s", i, want, history[i].Action)
		}
	}
}

func TestRejectWithoutCommentBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":   "Needs review",
		"channel": "LINKEDIN",
	}, asActor("writer-1"))
	var created ProjectResponse
	_ = json.Unmarshal(data, &created)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/submit", nil, asActor("writer-1"))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/reject", map[string]any{
		"target_stage": "SCRIPT",
	}, asActor("cmo-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "comment_required" {
		t.Fatalf("expected code comment_required, got %q", env.Error.Code)
	}
}

func TestApproveByWrongReviewerForbiddenOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":   "Reel",
		"channel": "INSTAGRAM",
	}, asActor("writer-1"))
	var created ProjectResponse
	_ = json.Unmarshal(data, &created)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/submit", nil, asActor("writer-1"))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/approve", map[string]any{}, asActor("ceo-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "forbidden" {
		t.Fatalf("expected code forbidden, got %q", env.Error.Code)
	}
}

func TestCreateProjectUnknownChannel(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":   "Nowhere",
		"channel": "TIKTOK",
	}, asActor("writer-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
}

func TestReworkOptionsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":   "Post",
		"channel": "LINKEDIN",
	}, asActor("writer-1"))
	var created ProjectResponse
	_ = json.Unmarshal(data, &created)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/submit", nil, asActor("writer-1"))

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+created.ID+"/rework-options", nil, asActor("cmo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rework options status %d: %s", res.StatusCode, string(data))
	}
	var opts ReworkOptionsResponse
	if err := json.Unmarshal(data, &opts); err != nil {
		t.Fatalf("unmarshal options: %v", err)
	}
	if opts.CurrentStage != "SCRIPT_REVIEW_L1" {
		t.Fatalf("unexpected stage %s", opts.CurrentStage)
	}
	if len(opts.Targets) != 1 || opts.Targets[0] != "SCRIPT" {
		t.Fatalf("unexpected targets %v", opts.Targets)
	}
}

func TestListProjectsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, title := range []string{"one", "two", "three"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
			"title":   title,
			"channel": "LINKEDIN",
		}, asActor("writer-1"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", title, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects?limit=2", nil, asActor("writer-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var first ProjectListResponse
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(first.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(first.Items))
	}
	if first.NextCursor == "" {
		t.Fatalf("expected next cursor")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects?limit=2&cursor="+first.NextCursor, nil, asActor("writer-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	var second ProjectListResponse
	_ = json.Unmarshal(data, &second)
	if len(second.Items) != 1 {
		t.Fatalf("expected 1 item on second page, got %d", len(second.Items))
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "writer-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("expected a token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.ActorID != "writer-1" || who.Role != "WRITER" {
		t.Fatalf("unexpected identity: %s/%s", who.ActorID, who.Role)
	}
}

func TestChannelsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/channels", nil, asActor("observer"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("channels status %d: %s", res.StatusCode, string(data))
	}
	var channels []ChannelResponse
	if err := json.Unmarshal(data, &channels); err != nil {
		t.Fatalf("unmarshal channels: %v", err)
	}
	if len(channels) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(channels))
	}
	for _, ch := range channels {
		last := ch.Sequence[len(ch.Sequence)-1]
		if last.Stage != "COMPLETED" || last.Role != "OPS" {
			t.Fatalf("channel %s: unexpected final step %s/%s", ch.Channel, last.Stage, last.Role)
		}
	}
}
