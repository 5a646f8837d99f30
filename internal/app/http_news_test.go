package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"gazette/api/internal/moderation"
	"gazette/api/internal/store"
)

func TestHomeFeedEndpoint(t *testing.T) {
	fs := &fakeStore{
		listRecentNewsFn: func(_ context.Context, limit int) ([]store.NewsItem, error) {
			return []store.NewsItem{
				{ID: "n1", Title: "First", Date: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
				{ID: "n2", Title: "Second", Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
			}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/news", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	news := decodeResponse(t, rr)["news"].([]any)
	if len(news) != 2 {
		t.Fatalf("expected two articles, got %d", len(news))
	}
	first := news[0].(map[string]any)
	if first["id"] != "n1" {
		t.Fatalf("expected newest article first, got %v", first["id"])
	}
}

func TestNewsDetailCommentFormVisibility(t *testing.T) {
	fs := &fakeStore{
		getNewsItemFn: func(_ context.Context, newsID string) (store.NewsItem, error) {
			return store.NewsItem{ID: newsID, Title: "Article", Date: time.Now()}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(t, server, http.MethodGet, "/api/news/n1", "", "")
	if visible := decodeResponse(t, rr)["commentFormVisible"]; visible != false {
		t.Fatalf("anonymous reader must not see the comment form, got %v", visible)
	}

	token := issueTestToken(t, "bob", "Bob")
	rr = doRequest(t, server, http.MethodGet, "/api/news/n1", token, "")
	if visible := decodeResponse(t, rr)["commentFormVisible"]; visible != true {
		t.Fatalf("authenticated reader should see the comment form, got %v", visible)
	}
}

func TestAnonymousCommentRedirectsAndSavesNothing(t *testing.T) {
	inserted := false
	fs := &fakeStore{
		insertCommentFn: func(_ context.Context, comment store.Comment) (store.Comment, error) {
			inserted = true
			return comment, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(t, server, http.MethodPost, "/api/news/n1/comments", "", `{"text":"nice read"}`)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if location := rr.Header().Get("Location"); location != "/login?next=%2Fapi%2Fnews%2Fn1%2Fcomments" {
		t.Fatalf("unexpected Location %q", location)
	}
	if inserted {
		t.Fatal("anonymous comment must not reach the store")
	}
}

func TestSubmitCommentEndpoint(t *testing.T) {
	var saved store.Comment
	fs := &fakeStore{
		getNewsItemFn: func(_ context.Context, newsID string) (store.NewsItem, error) {
			return store.NewsItem{ID: newsID, Title: "Article", Date: time.Now()}, nil
		},
		insertCommentFn: func(_ context.Context, comment store.Comment) (store.Comment, error) {
			comment.ID = 12
			comment.Created = time.Now()
			saved = comment
			return comment, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "bob", "Bob")
	rr := doRequest(t, server, http.MethodPost, "/api/news/n1/comments", token, `{"text":"nice read"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	if saved.AuthorID != "bob" || saved.NewsID != "n1" {
		t.Fatalf("unexpected saved comment: %+v", saved)
	}
}

func TestForbiddenCommentGetsFixedWarning(t *testing.T) {
	fs := &fakeStore{
		getNewsItemFn: func(_ context.Context, newsID string) (store.NewsItem, error) {
			return store.NewsItem{ID: newsID, Date: time.Now()}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "bob", "Bob")
	rr := doRequest(t, server, http.MethodPost, "/api/news/n1/comments", token, `{"text":"what a rascal"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "TEXT_REJECTED" {
		t.Fatalf("expected code TEXT_REJECTED, got %v", response["code"])
	}
	if response["error"] != moderation.Warning {
		t.Fatalf("expected the fixed warning, got %v", response["error"])
	}
}

func TestDeleteCommentByNonAuthorIs404(t *testing.T) {
	deleted := false
	fs := &fakeStore{
		getCommentFn: func(_ context.Context, commentID int64) (store.Comment, error) {
			return store.Comment{ID: commentID, NewsID: "n1", AuthorID: "alice", Text: "mine"}, nil
		},
		deleteCommentFn: func(context.Context, int64) error {
			deleted = true
			return nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "bob", "Bob")
	rr := doRequest(t, server, http.MethodDelete, "/api/comments/12", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if deleted {
		t.Fatal("the comment must survive a non-author delete")
	}
}

func TestEditCommentByAuthor(t *testing.T) {
	updatedText := ""
	fs := &fakeStore{
		getCommentFn: func(_ context.Context, commentID int64) (store.Comment, error) {
			return store.Comment{ID: commentID, NewsID: "n1", AuthorID: "bob", Text: "before"}, nil
		},
		updateCommentFn: func(_ context.Context, commentID int64, text string) error {
			updatedText = text
			return nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "bob", "Bob")
	rr := doRequest(t, server, http.MethodPut, "/api/comments/12", token, `{"text":"after"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if updatedText != "after" {
		t.Fatalf("expected updated text, got %q", updatedText)
	}
}

func TestFeedIngestRequiresToken(t *testing.T) {
	inserted := 0
	fs := &fakeStore{
		insertNewsItemFn: func(context.Context, store.NewsItem) error {
			inserted++
			return nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := doRequest(t, server, http.MethodPost, "/api/internal/news", "", `{"items":[{"title":"Breaking","date":"2025-06-01"}]}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without feed token, got %d", rr.Code)
	}
	if inserted != 0 {
		t.Fatal("unauthorized ingest must not insert")
	}

	req := doRequestWithHeader(t, server, http.MethodPost, "/api/internal/news",
		"x-gazette-feed-token", "test-feed-token",
		`{"items":[{"title":"Breaking","date":"2025-06-01"}]}`)
	if req.Code != http.StatusOK {
		t.Fatalf("expected 200 with feed token, got %d (%s)", req.Code, req.Body.String())
	}
	if inserted != 1 {
		t.Fatalf("expected one ingested article, got %d", inserted)
	}
}
