package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNewClient(t *testing.T) {
	client := NewClient("test-token", "owner", "repo")

	if client.Token != "test-token" {
		t.Errorf("Token = %q, want %q", client.Token, "test-token")
	}
	if client.BaseURL != DefaultAPIEndpoint {
		t.Errorf("BaseURL = %q, want %q", client.BaseURL, DefaultAPIEndpoint)
	}
	if client.HTTPClient == nil {
		t.Error("HTTPClient is nil, want non-nil default client")
	}
}

func TestCreatePullRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/repos/owner/repo/pulls" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("Authorization = %q", auth)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body["head"] != "feature/x" || body["base"] != "main" {
			t.Errorf("body = %v", body)
		}

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1,"number":42,"title":"Add retry state","state":"open","html_url":"https://github.com/owner/repo/pull/42","head":{"ref":"feature/x"},"base":{"ref":"main"}}`)
	}))
	defer server.Close()

	client := NewClient("tok", "owner", "repo").WithBaseURL(server.URL)
	pr, err := client.CreatePullRequest(context.Background(), "Add retry state", "body", "feature/x", "main", false)
	if err != nil {
		t.Fatalf("CreatePullRequest failed: %v", err)
	}
	if pr.Number != 42 {
		t.Errorf("Number = %d, want 42", pr.Number)
	}
	if pr.Head.Ref != "feature/x" {
		t.Errorf("Head.Ref = %q", pr.Head.Ref)
	}
}

func TestListPullRequestsPagination(t *testing.T) {
	var calls atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/owner/repo/pulls?page=2>; rel="next"`, server.URL))
			fmt.Fprint(w, `[{"id":1,"number":1,"title":"one","state":"open"}]`)
			return
		}
		fmt.Fprint(w, `[{"id":2,"number":2,"title":"two","state":"open"}]`)
	}))
	defer server.Close()

	client := NewClient("tok", "owner", "repo").WithBaseURL(server.URL)
	prs, err := client.ListPullRequests(context.Background(), "open")
	if err != nil {
		t.Fatalf("ListPullRequests failed: %v", err)
	}
	if len(prs) != 2 {
		t.Fatalf("got %d PRs, want 2", len(prs))
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestDoRequestRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"id":7,"number":7,"title":"ok","state":"open"}`)
	}))
	defer server.Close()

	client := NewClient("tok", "owner", "repo").WithBaseURL(server.URL)
	pr, err := client.FetchPullRequest(context.Background(), 7)
	if err != nil {
		t.Fatalf("FetchPullRequest failed: %v", err)
	}
	if pr.Number != 7 {
		t.Errorf("Number = %d, want 7", pr.Number)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestDoRequestAPIErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"Validation Failed"}`)
	}))
	defer server.Close()

	client := NewClient("tok", "owner", "repo").WithBaseURL(server.URL)
	_, err := client.CreatePullRequest(context.Background(), "t", "b", "h", "main", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 422") {
		t.Errorf("error = %v, want status 422", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestHasNextPage(t *testing.T) {
	headers := http.Header{}
	if _, ok := hasNextPage(headers); ok {
		t.Error("empty Link header should have no next page")
	}

	headers.Set("Link", `<https://api.github.com/repos/o/r/pulls?page=2>; rel="next", <https://api.github.com/repos/o/r/pulls?page=5>; rel="last"`)
	next, ok := hasNextPage(headers)
	if !ok {
		t.Fatal("expected next page")
	}
	if !strings.Contains(next, "page=2") {
		t.Errorf("next = %q", next)
	}
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "primary")
	t.Setenv("GH_TOKEN", "fallback")
	if got := TokenFromEnv(); got != "primary" {
		t.Errorf("TokenFromEnv = %q, want primary", got)
	}

	t.Setenv("GITHUB_TOKEN", "")
	if got := TokenFromEnv(); got != "fallback" {
		t.Errorf("TokenFromEnv = %q, want fallback", got)
	}
}
