package app

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"gazette/api/internal/slug"
	"gazette/api/internal/store"
)

func TestNotesAnonymousRedirectsToLogin(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	paths := []struct {
		method string
		path   string
		next   string
	}{
		{http.MethodGet, "/api/notes", "%2Fapi%2Fnotes"},
		{http.MethodPost, "/api/notes", "%2Fapi%2Fnotes"},
		{http.MethodGet, "/api/notes/groceries", "%2Fapi%2Fnotes%2Fgroceries"},
		{http.MethodPut, "/api/notes/groceries", "%2Fapi%2Fnotes%2Fgroceries"},
		{http.MethodDelete, "/api/notes/groceries", "%2Fapi%2Fnotes%2Fgroceries"},
	}
	for _, tc := range paths {
		rr := doRequest(t, server, tc.method, tc.path, "", "")
		if rr.Code != http.StatusFound {
			t.Fatalf("%s %s: expected 302, got %d", tc.method, tc.path, rr.Code)
		}
		location := rr.Header().Get("Location")
		if location != "/login?next="+tc.next {
			t.Fatalf("%s %s: unexpected Location %q", tc.method, tc.path, location)
		}
	}
}

func TestCreateNote(t *testing.T) {
	var saved store.Note
	fs := &fakeStore{
		insertNoteFn: func(_ context.Context, note store.Note) error {
			saved = note
			return nil
		},
		getNoteBySlugFn: func(_ context.Context, noteSlug string) (store.Note, error) {
			return saved, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "alice", "Alice")
	rr := doRequest(t, server, http.MethodPost, "/api/notes", token, `{"title":"Weekend Plans","text":"hiking"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	if saved.AuthorID != "alice" {
		t.Fatalf("expected author alice, got %q", saved.AuthorID)
	}
	if saved.Slug != "weekend-plans" {
		t.Fatalf("expected derived slug weekend-plans, got %q", saved.Slug)
	}
}

func TestCreateNoteDuplicateSlugAPIResponse(t *testing.T) {
	fs := &fakeStore{
		noteSlugExistsFn: func(_ context.Context, noteSlug string) (bool, error) {
			return true, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "alice", "Alice")
	rr := doRequest(t, server, http.MethodPost, "/api/notes", token, `{"title":"Second","text":"x","slug":"groceries"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "DUPLICATE_SLUG" {
		t.Fatalf("expected code DUPLICATE_SLUG, got %v", response["code"])
	}
	message, _ := response["error"].(string)
	if !strings.HasPrefix(message, "groceries") || !strings.Contains(message, slug.Warning) {
		t.Fatalf("expected the offending slug plus warning, got %q", message)
	}
}

func TestGetNoteByNonAuthorIs404(t *testing.T) {
	fs := &fakeStore{
		getNoteBySlugFn: func(_ context.Context, noteSlug string) (store.Note, error) {
			return store.Note{ID: "note-1", AuthorID: "alice", Slug: noteSlug}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "bob", "Bob")
	rr := doRequest(t, server, http.MethodGet, "/api/notes/groceries", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-author detail, got %d", rr.Code)
	}
	if code := decodeResponse(t, rr)["code"]; code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", code)
	}
}

func TestListNotesOnlyOwn(t *testing.T) {
	fs := &fakeStore{
		listNotesByAuthorFn: func(_ context.Context, authorID string) ([]store.Note, error) {
			if authorID != "alice" {
				t.Fatalf("expected listing scoped to alice, got %q", authorID)
			}
			return []store.Note{{ID: "note-1", AuthorID: authorID, Title: "Groceries", Slug: "groceries"}}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "alice", "Alice")
	rr := doRequest(t, server, http.MethodGet, "/api/notes", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	notes := decodeResponse(t, rr)["notes"].([]any)
	if len(notes) != 1 {
		t.Fatalf("expected one note, got %d", len(notes))
	}
}

func TestDeleteNoteByAuthor(t *testing.T) {
	deletedID := ""
	fs := &fakeStore{
		getNoteBySlugFn: func(_ context.Context, noteSlug string) (store.Note, error) {
			return store.Note{ID: "note-1", AuthorID: "alice", Slug: noteSlug}, nil
		},
		deleteNoteFn: func(_ context.Context, noteID string) error {
			deletedID = noteID
			return nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	token := issueTestToken(t, "alice", "Alice")
	rr := doRequest(t, server, http.MethodDelete, "/api/notes/groceries", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if deletedID != "note-1" {
		t.Fatalf("expected note-1 deleted, got %q", deletedID)
	}
}
