package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"gazette/api/internal/access"
	"gazette/api/internal/auth"
	"gazette/api/internal/authpw"
	"gazette/api/internal/config"
	"gazette/api/internal/moderation"
	"gazette/api/internal/search"
	"gazette/api/internal/slug"
	"gazette/api/internal/store"
	"gazette/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// NoteInput is the request body for creating and editing notes.
type NoteInput struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Slug  string `json:"slug"`
}

// NewsInput is the request body for the feed ingest channel.
type NewsInput struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	Date  string `json:"date"`
}

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(context.Context, store.User) error
	GetUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertNote(context.Context, store.Note) error
	GetNoteBySlug(context.Context, string) (store.Note, error)
	ListNotesByAuthor(context.Context, string) ([]store.Note, error)
	NoteSlugExists(context.Context, string) (bool, error)
	UpdateNote(context.Context, store.Note) error
	DeleteNote(context.Context, string) error

	InsertNewsItem(context.Context, store.NewsItem) error
	GetNewsItem(context.Context, string) (store.NewsItem, error)
	ListRecentNews(context.Context, int) ([]store.NewsItem, error)
	CountNews(context.Context) (int, error)

	InsertComment(context.Context, store.Comment) (store.Comment, error)
	GetComment(context.Context, int64) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	UpdateComment(context.Context, int64, string) error
	DeleteComment(context.Context, int64) error
}

// sessionStore holds refresh tokens. Redis in production, the Postgres
// store works as a fallback when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexArticle(a search.ArticleRecord)
	ReindexAllFromPG(ctx context.Context)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   searchService
	passwd   *authpw.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchSvc *search.Service) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		passwd:   authpw.NewService(dataStore),
	}
	if sessions == nil {
		svc.sessions = dataStore
	}
	if searchSvc != nil {
		svc.search = searchSvc
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// FeedToken guards the internal news ingest endpoint.
func (s *Service) FeedToken() string {
	return s.cfg.FeedToken
}

// Bootstrap seeds the home feed on an empty database and warms the
// search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountNews(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		day := 24 * time.Hour
		now := time.Now()
		seeds := []store.NewsItem{
			{ID: "welcome", Title: "Welcome to the Gazette", Text: "The Gazette is live. Sign up to comment on articles and keep personal notes.", Date: now},
			{ID: "city-archive", Title: "City archive opens reading room", Text: "The municipal archive opens its reading room to the public after renovation.", Date: now.Add(-1 * day)},
			{ID: "river-cleanup", Title: "Volunteers clear river bank", Text: "A weekend cleanup removed two tonnes of debris from the river bank.", Date: now.Add(-2 * day)},
		}
		for _, item := range seeds {
			if err := s.store.InsertNewsItem(ctx, item); err != nil {
				return err
			}
		}
	}
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// ── Sessions ──

func (s *Service) SignUp(ctx context.Context, userName, password string) (Session, error) {
	user, err := s.passwd.Register(ctx, authpw.RegisterRequest{
		UserName: userName,
		Password: password,
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNameTaken) {
			return Session{}, domainError(http.StatusConflict, "USERNAME_TAKEN", "User name already registered", nil)
		}
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, userName, password string) (Session, error) {
	user, err := s.passwd.Authenticate(ctx, userName, password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid user name or password", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if user.UserName == "" {
		// the Redis backend stores only the user ID
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.UserName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.UserName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.UserName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func principalOf(session Session) access.Principal {
	if session.UserID == "" {
		return access.Anonymous
	}
	return access.Authenticated(session.UserID)
}

// ── Notes ──

func (s *Service) ListMyNotes(ctx context.Context, session Session) (map[string]any, error) {
	if !access.Can(principalOf(session), access.ActionViewList, nil) {
		return nil, auth.ErrInvalidToken
	}
	notes, err := s.store.ListNotesByAuthor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, noteView(note))
	}
	return map[string]any{"notes": items}, nil
}

func (s *Service) CreateNote(ctx context.Context, session Session, input NoteInput) (map[string]any, error) {
	if !access.Can(principalOf(session), access.ActionCreate, nil) {
		return nil, auth.ErrInvalidToken
	}

	title := strings.TrimSpace(input.Title)
	text := strings.TrimSpace(input.Text)
	if title == "" || text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and text are required", nil)
	}

	noteSlug, err := s.resolveSlug(ctx, strings.TrimSpace(input.Slug), title)
	if err != nil {
		return nil, err
	}

	note := store.Note{
		ID:       util.NewID("note"),
		AuthorID: session.UserID,
		Title:    title,
		Text:     text,
		Slug:     noteSlug,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return nil, err
	}

	saved, err := s.store.GetNoteBySlug(ctx, noteSlug)
	if err != nil {
		return nil, err
	}
	return map[string]any{"note": noteView(saved)}, nil
}

// resolveSlug picks the slug for a note. An explicit candidate is checked
// for uniqueness up front so the caller gets the duplicate warning; a
// derived slug goes in unchecked and relies on the unique index.
func (s *Service) resolveSlug(ctx context.Context, candidate, title string) (string, error) {
	var lookupErr error
	exists := func(value string) bool {
		taken, err := s.store.NoteSlugExists(ctx, value)
		if err != nil {
			lookupErr = err
		}
		return taken
	}
	resolved, err := slug.Generate(candidate, title, exists)
	if lookupErr != nil {
		return "", lookupErr
	}
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// GetNote returns a note to its author. Anyone else gets not-found, so
// the slug namespace leaks nothing about other users' notes.
func (s *Service) GetNote(ctx context.Context, session Session, noteSlug string) (map[string]any, error) {
	note, err := s.store.GetNoteBySlug(ctx, noteSlug)
	if err != nil {
		return nil, err
	}
	if !access.Can(principalOf(session), access.ActionViewDetail, note) {
		return nil, sql.ErrNoRows
	}
	return map[string]any{"note": noteView(note)}, nil
}

func (s *Service) EditNote(ctx context.Context, session Session, noteSlug string, input NoteInput) (map[string]any, error) {
	note, err := s.store.GetNoteBySlug(ctx, noteSlug)
	if err != nil {
		return nil, err
	}
	if !access.Can(principalOf(session), access.ActionEdit, note) {
		return nil, sql.ErrNoRows
	}

	title := strings.TrimSpace(input.Title)
	text := strings.TrimSpace(input.Text)
	if title == "" || text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and text are required", nil)
	}

	newSlug := strings.TrimSpace(input.Slug)
	if newSlug == "" {
		newSlug = note.Slug
	}
	if newSlug != note.Slug {
		newSlug, err = s.resolveSlug(ctx, newSlug, title)
		if err != nil {
			return nil, err
		}
	}

	note.Title = title
	note.Text = text
	note.Slug = newSlug
	if err := s.store.UpdateNote(ctx, note); err != nil {
		return nil, err
	}

	updated, err := s.store.GetNoteBySlug(ctx, newSlug)
	if err != nil {
		return nil, err
	}
	return map[string]any{"note": noteView(updated)}, nil
}

func (s *Service) DeleteNote(ctx context.Context, session Session, noteSlug string) error {
	note, err := s.store.GetNoteBySlug(ctx, noteSlug)
	if err != nil {
		return err
	}
	if !access.Can(principalOf(session), access.ActionDelete, note) {
		return sql.ErrNoRows
	}
	return s.store.DeleteNote(ctx, note.ID)
}

func noteView(note store.Note) map[string]any {
	return map[string]any{
		"id":        note.ID,
		"title":     note.Title,
		"text":      note.Text,
		"slug":      note.Slug,
		"createdAt": note.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt": note.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ── News ──

func (s *Service) Home(ctx context.Context) (map[string]any, error) {
	pageSize := s.cfg.HomePageSize
	items, err := s.store.ListRecentNews(ctx, pageSize)
	if err != nil {
		return nil, err
	}
	page := recentNews(items, pageSize)
	views := make([]map[string]any, 0, len(page))
	for _, item := range page {
		views = append(views, newsView(item, true))
	}
	return map[string]any{"news": views}, nil
}

// recentNews orders a feed page newest first and truncates it to
// pageSize. The sort is stable so items sharing a date keep store order.
func recentNews(items []store.NewsItem, pageSize int) []store.NewsItem {
	ordered := make([]store.NewsItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.After(ordered[j].Date)
	})
	if pageSize > 0 && len(ordered) > pageSize {
		ordered = ordered[:pageSize]
	}
	return ordered
}

// NewsDetail returns an article with its comment thread. The comment form
// is only offered to authenticated readers.
func (s *Service) NewsDetail(ctx context.Context, session Session, newsID string) (map[string]any, error) {
	item, err := s.store.GetNewsItem(ctx, newsID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, newsID)
	if err != nil {
		return nil, err
	}

	views := make([]map[string]any, 0, len(comments))
	for _, comment := range orderComments(comments) {
		views = append(views, commentView(comment))
	}

	return map[string]any{
		"news":               newsView(item, false),
		"comments":           views,
		"commentFormVisible": !principalOf(session).IsAnonymous(),
	}, nil
}

// orderComments sorts a thread oldest first, the serial id breaking
// created-time ties by insertion order.
func orderComments(comments []store.Comment) []store.Comment {
	ordered := make([]store.Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Created.Equal(ordered[j].Created) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Created.Before(ordered[j].Created)
	})
	return ordered
}

// IngestNews accepts articles from the feed channel and pushes them to
// the search index.
func (s *Service) IngestNews(ctx context.Context, inputs []NewsInput) (map[string]any, error) {
	ingested := 0
	for _, input := range inputs {
		title := strings.TrimSpace(input.Title)
		if title == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
		}
		date := time.Now()
		if raw := strings.TrimSpace(input.Date); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "date must be YYYY-MM-DD", nil)
			}
			date = parsed
		}
		id := strings.TrimSpace(input.ID)
		if id == "" {
			id = util.NewID("news")
		}
		item := store.NewsItem{
			ID:    id,
			Title: title,
			Text:  input.Text,
			Date:  date,
		}
		if err := s.store.InsertNewsItem(ctx, item); err != nil {
			return nil, err
		}
		if s.search != nil {
			s.search.IndexArticle(search.ArticleRecord{
				ID:    item.ID,
				Title: item.Title,
				Text:  item.Text,
				Date:  item.Date.Format("2006-01-02"),
			})
		}
		ingested++
	}
	return map[string]any{"ingested": ingested}, nil
}

func (s *Service) Search(ctx context.Context, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{Text: text, Limit: limit, Offset: offset}), nil
}

func newsView(item store.NewsItem, preview bool) map[string]any {
	text := item.Text
	if preview {
		text = previewText(text)
	}
	return map[string]any{
		"id":    item.ID,
		"title": item.Title,
		"text":  text,
		"date":  item.Date.Format("2006-01-02"),
	}
}

const previewRunes = 160

func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:previewRunes])) + "…"
}

// ── Comments ──

func (s *Service) SubmitComment(ctx context.Context, session Session, newsID, text string) (map[string]any, error) {
	if !access.Can(principalOf(session), access.ActionCreate, nil) {
		return nil, auth.ErrInvalidToken
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	if err := moderation.Screen(trimmed, s.cfg.ForbiddenWords); err != nil {
		return nil, err
	}

	if _, err := s.store.GetNewsItem(ctx, newsID); err != nil {
		return nil, err
	}

	comment, err := s.store.InsertComment(ctx, store.Comment{
		NewsID:   newsID,
		AuthorID: session.UserID,
		Text:     trimmed,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"comment": commentView(comment)}, nil
}

func (s *Service) EditComment(ctx context.Context, session Session, commentID int64, text string) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(principalOf(session), access.ActionEdit, comment) {
		return nil, sql.ErrNoRows
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	if err := moderation.Screen(trimmed, s.cfg.ForbiddenWords); err != nil {
		return nil, err
	}

	if err := s.store.UpdateComment(ctx, commentID, trimmed); err != nil {
		return nil, err
	}
	comment.Text = trimmed
	return map[string]any{"comment": commentView(comment)}, nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, commentID int64) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if !access.Can(principalOf(session), access.ActionDelete, comment) {
		return sql.ErrNoRows
	}
	return s.store.DeleteComment(ctx, commentID)
}

func commentView(comment store.Comment) map[string]any {
	return map[string]any{
		"id":       comment.ID,
		"newsId":   comment.NewsID,
		"authorId": comment.AuthorID,
		"text":     comment.Text,
		"created":  comment.Created.UTC().Format(time.RFC3339),
	}
}
