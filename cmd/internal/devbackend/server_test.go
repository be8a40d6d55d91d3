package devbackend

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"studydeck/cmd/security/password"
)

func do(t *testing.T, srv *httptest.Server, method, path, bearer, contentType string, body io.Reader) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func postJSON(t *testing.T, srv *httptest.Server, path, bearer string, v any) (int, []byte) {
	t.Helper()
	b, _ := json.Marshal(v)
	return do(t, srv, http.MethodPost, path, bearer, "application/json", bytes.NewReader(b))
}

func TestLoginAndProtectedAccess(t *testing.T) {
	t.Parallel()

	be := New(Options{})
	be.AddUser("alice", "pw")
	srv := httptest.NewServer(be)
	defer srv.Close()

	status, body := postJSON(t, srv, "/api/token/", "", map[string]string{"username": "alice", "password": "bad"})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad login status=%d body=%s", status, body)
	}

	status, body = postJSON(t, srv, "/api/token/", "", map[string]string{"username": "alice", "password": "pw"})
	if status != http.StatusOK {
		t.Fatalf("login status=%d body=%s", status, body)
	}
	var pair Pair
	if err := json.Unmarshal(body, &pair); err != nil || pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("pair=%+v err=%v", pair, err)
	}

	if status, _ := do(t, srv, http.MethodGet, "/api/topics/", "", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("anonymous topics status=%d", status)
	}
	if status, body := do(t, srv, http.MethodGet, "/api/topics/", pair.Access, "", nil); status != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("topics status=%d body=%s", status, body)
	}

	be.ExpireAccess(pair.Access)
	if status, _ := do(t, srv, http.MethodGet, "/api/topics/", pair.Access, "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expired access status=%d", status)
	}

	rec, ok := be.LastRequest(http.MethodGet, "/api/topics/")
	if !ok || rec.Bearer() != pair.Access {
		t.Fatalf("last request=%+v", rec)
	}
}

func TestBadLoginStatusConfigurable(t *testing.T) {
	t.Parallel()

	be := New(Options{BadLoginStatus: http.StatusBadRequest})
	srv := httptest.NewServer(be)
	defer srv.Close()

	status, _ := postJSON(t, srv, "/api/token/", "", map[string]string{"username": "nobody", "password": "x"})
	if status != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", status)
	}
}

func TestAccessTokenExpiresWithClock(t *testing.T) {
	t.Parallel()

	var nowNanos atomic.Int64
	nowNanos.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, nowNanos.Load()) }

	be := New(Options{AccessTTL: time.Minute, Now: clock})
	pair, err := be.IssueFor("alice")
	if err != nil {
		t.Fatalf("IssueFor: %v", err)
	}
	srv := httptest.NewServer(be)
	defer srv.Close()

	if status, _ := do(t, srv, http.MethodGet, "/api/topics/", pair.Access, "", nil); status != http.StatusOK {
		t.Fatalf("fresh token status=%d", status)
	}
	nowNanos.Add(int64(2 * time.Minute))
	if status, _ := do(t, srv, http.MethodGet, "/api/topics/", pair.Access, "", nil); status != http.StatusUnauthorized {
		t.Fatalf("stale token status=%d", status)
	}
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()

	be := New(Options{RotateRefresh: true})
	pair, _ := be.IssueFor("alice")
	srv := httptest.NewServer(be)
	defer srv.Close()

	status, body := postJSON(t, srv, "/api/token/refresh/", "", map[string]string{"refresh": pair.Refresh})
	if status != http.StatusOK {
		t.Fatalf("refresh status=%d body=%s", status, body)
	}
	var out refreshResponse
	_ = json.Unmarshal(body, &out)
	if out.Access == "" || out.Refresh == "" || out.Refresh == pair.Refresh {
		t.Fatalf("refresh response=%+v", out)
	}

	if status, _ := postJSON(t, srv, "/api/token/refresh/", "", map[string]string{"refresh": pair.Refresh}); status != http.StatusUnauthorized {
		t.Fatalf("reused refresh status=%d", status)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	be := New(Options{})
	srv := httptest.NewServer(be)
	defer srv.Close()

	status, body := postJSON(t, srv, "/api/user/register/", "", map[string]string{"username": "bob", "password": "pw2"})
	if status != http.StatusCreated || !strings.Contains(string(body), `"username":"bob"`) {
		t.Fatalf("register status=%d body=%s", status, body)
	}
	status, body = postJSON(t, srv, "/api/user/register/", "", map[string]string{"username": "bob", "password": "pw2"})
	if status != http.StatusBadRequest || !strings.Contains(string(body), "already exists") {
		t.Fatalf("duplicate register status=%d body=%s", status, body)
	}
}

func TestUploadDerivesFlashcards(t *testing.T) {
	t.Parallel()

	be := New(Options{})
	pair, _ := be.IssueFor("alice")
	srv := httptest.NewServer(be)
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "Cells")
	fw, _ := mw.CreateFormFile("file", "cells.txt")
	_, _ = io.WriteString(fw, "What is a cell? The basic unit of life\n\nmitochondria\n")
	_ = mw.Close()

	status, body := do(t, srv, http.MethodPost, "/api/topics/", pair.Access, mw.FormDataContentType(), &buf)
	if status != http.StatusCreated {
		t.Fatalf("upload status=%d body=%s", status, body)
	}
	var topic Topic
	_ = json.Unmarshal(body, &topic)

	status, body = do(t, srv, http.MethodGet, "/api/flashcards/"+strconv.Itoa(topic.ID)+"/", pair.Access, "", nil)
	if status != http.StatusOK {
		t.Fatalf("flashcards status=%d", status)
	}
	var cards []Flashcard
	_ = json.Unmarshal(body, &cards)
	if len(cards) != 2 || cards[0].Question != "What is a cell?" || cards[0].Answer != "The basic unit of life" {
		t.Fatalf("cards=%+v", cards)
	}

	if status, _ := do(t, srv, http.MethodDelete, "/api/topic/delete/"+strconv.Itoa(topic.ID), pair.Access, "", nil); status != http.StatusNoContent {
		t.Fatalf("delete status=%d", status)
	}
	if status, _ := do(t, srv, http.MethodDelete, "/api/topic/delete/"+strconv.Itoa(topic.ID), pair.Access, "", nil); status != http.StatusNotFound {
		t.Fatalf("second delete status=%d", status)
	}
}

func TestOverride(t *testing.T) {
	t.Parallel()

	be := New(Options{})
	pair, _ := be.IssueFor("alice")
	srv := httptest.NewServer(be)
	defer srv.Close()

	be.Override(http.MethodGet, "/api/topics/", http.StatusBadGateway, `{"detail":"upstream"}`)
	if status, _ := do(t, srv, http.MethodGet, "/api/topics/", pair.Access, "", nil); status != http.StatusBadGateway {
		t.Fatalf("override status=%d", status)
	}
	if status, _ := do(t, srv, http.MethodGet, "/api/topics/", pair.Access, "", nil); status != http.StatusOK {
		t.Fatalf("override must apply once, status=%d", status)
	}
}

func TestPasswordsStoredHashed(t *testing.T) {
	t.Parallel()

	weak := password.New(password.Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	be := New(Options{Passwords: weak})
	be.AddUser("carol", "s3cret")

	be.mu.Lock()
	stored := be.users["carol"].PasswordHash
	be.mu.Unlock()
	if stored == "s3cret" || !strings.HasPrefix(stored, "$argon2id$") {
		t.Fatalf("stored=%q, want argon2id hash", stored)
	}

	// A stronger hasher upgrades the stored hash on the next good login.
	be.opts.Passwords = password.New(password.Params{MemoryKiB: 8 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	srv := httptest.NewServer(be)
	defer srv.Close()

	if status, body := postJSON(t, srv, "/api/token/", "", map[string]string{"username": "carol", "password": "s3cret"}); status != http.StatusOK {
		t.Fatalf("login status=%d body=%s", status, body)
	}
	be.mu.Lock()
	upgraded := be.users["carol"].PasswordHash
	be.mu.Unlock()
	if upgraded == stored || !strings.Contains(upgraded, "t=2") {
		t.Fatalf("hash not upgraded: %q", upgraded)
	}
}
