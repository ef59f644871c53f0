package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/editor"
	"inkwell/api/internal/email"
	"inkwell/api/internal/export"
	"inkwell/api/internal/generation"
	"inkwell/api/internal/observe"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// DataStore is the Postgres surface the service uses.
type DataStore interface {
	authpw.UserStore
	RefreshStore
	ListUsers(context.Context) ([]store.User, error)
	SetUserActive(context.Context, string, bool) error
	GetPreferences(context.Context, string) (string, error)
	SavePreferences(context.Context, string, string) error

	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	UpsertDocument(context.Context, store.Document) (store.Document, error)
	GetDocument(context.Context, string, string) (store.Document, error)
	ListDocuments(context.Context, string) ([]store.Document, error)
	DeleteDocument(context.Context, string, string) (int64, error)

	CreateSnapshot(context.Context, string, string, time.Time) (store.Snapshot, error)
	ListSnapshots(context.Context, string, string) ([]store.Snapshot, error)
	GetSnapshot(context.Context, string, string) (store.Snapshot, error)

	Ping(context.Context) error
}

// RefreshStore keeps refresh tokens. Both the Postgres and Redis stores
// satisfy it.
type RefreshStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

// HistoryStore versions saved document content.
type HistoryStore interface {
	Commit(userID, filename string, content []byte, author, message string) (store.CommitInfo, error)
	History(userID, filename string, limit int) ([]store.CommitInfo, error)
	ContentAt(userID, filename, hash string) ([]byte, error)
	Remove(userID, filename string) error
}

// SearchIndex is the full-text search side.
type SearchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexDocument(store.Document)
	DeleteDocument(int64)
	ReindexAll(context.Context) (int, error)
}

// Deps are the collaborators of a Service. Store and Router are required.
// A nil Refresh keeps refresh tokens in Store, a nil Busy keeps generation
// leases in process memory.
type Deps struct {
	Store   DataStore
	Refresh RefreshStore
	History HistoryStore
	Search  SearchIndex
	Export  *export.Service
	Mailer  email.Sender
	Router  *generation.Router
	Busy    editor.BusyRegistry
	// Pingers are extra readiness checks keyed by name, e.g. "redis".
	Pingers map[string]func(context.Context) error
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

type Service struct {
	cfg     config.Config
	store   DataStore
	refresh RefreshStore
	history HistoryStore
	search  SearchIndex
	export  *export.Service
	mailer  email.Sender
	users   *authpw.Service
	router  *generation.Router
	gen     generation.Generator
	editor  *editor.Manager
	pingers map[string]func(context.Context) error
	metrics *observe.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	refresh := deps.Refresh
	if refresh == nil {
		refresh = deps.Store
	}
	exporter := deps.Export
	if exporter == nil {
		exporter = export.NewService(nil)
	}
	searchIndex := deps.Search
	if searchIndex == nil {
		searchIndex = search.NewService(nil, nil, logger)
	}

	gen := generation.NewInstrumented(
		generation.NewBreaker(deps.Router, generation.BreakerConfig{
			Name:         "llm",
			MaxFailures:  cfg.Editor.BreakerFailures,
			ResetTimeout: cfg.Editor.BreakerReset,
		}),
		metrics,
		cfg.Generation.DefaultSource,
	)

	defaults := cfg.Generation.Defaults.WithDefaults(generation.DefaultMetadata())
	if defaults.Source == "" {
		defaults.Source = cfg.Generation.DefaultSource
	}
	if defaults.Model == "" {
		defaults.Model = cfg.Generation.DefaultModel
	}
	cfg.Generation.Defaults = defaults

	manager := editor.NewManager(gen, deps.Busy, metrics, logger,
		editor.WithDebounce(cfg.Editor.Debounce),
		editor.WithMetadata(defaults),
	)

	return &Service{
		cfg:     cfg,
		store:   deps.Store,
		refresh: refresh,
		history: deps.History,
		search:  searchIndex,
		export:  exporter,
		mailer:  deps.Mailer,
		users:   authpw.NewService(deps.Store, logger),
		router:  deps.Router,
		gen:     gen,
		editor:  manager,
		pingers: deps.Pingers,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Editor exposes the live session manager so callers can run its reaper.
func (s *Service) Editor() *editor.Manager {
	return s.editor
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Ready runs every readiness check. The map holds one entry per dependency.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ok := true
	checks := map[string]any{}
	record := func(name string, err error) {
		if err != nil {
			ok = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	record("database", s.store.Ping(ctx))
	for name, ping := range s.pingers {
		record(name, ping(ctx))
	}
	return ok, checks
}

func (s *Service) SignUp(ctx context.Context, emailAddr, password, displayName string) (map[string]any, error) {
	resp, err := s.users.SignUp(ctx, authpw.SignUpRequest{
		Email:       emailAddr,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"userId":  resp.UserID,
		"message": "Please check your email to verify your account",
	}
	if !s.SMTPConfigured() {
		payload["devVerificationToken"] = resp.VerificationToken
		payload["message"] = "Account created. Verify your email to continue."
		return payload, nil
	}

	link := s.link("/verify-email", resp.VerificationToken)
	name := displayName
	if name == "" {
		name = emailAddr
	}
	if err := s.mailer.SendVerificationEmail(emailAddr, name, link); err != nil {
		s.logger.Warn("send verification email", "user_id", resp.UserID, "err", err)
	}
	return payload, nil
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	resp, err := s.users.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Session{}, err
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	return s.users.VerifyEmail(ctx, token)
}

// RequestPasswordReset returns the reset token only when email delivery is
// disabled, so local setups can finish the flow.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (string, error) {
	token, err := s.users.RequestPasswordReset(ctx, emailAddr)
	if err != nil || token == "" {
		return "", err
	}
	if !s.SMTPConfigured() {
		return token, nil
	}
	if err := s.mailer.SendPasswordResetEmail(emailAddr, emailAddr, s.link("/reset-password", token)); err != nil {
		s.logger.Warn("send password reset email", "err", err)
	}
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.users.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
}

func (s *Service) link(path, token string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, authpw.ErrInactive
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	claims := auth.NewClaims(user.ID, user.Email, user.DisplayName, user.Role(), now, s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := auth.NewOpaqueToken()
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role(),
		JTI:          claims.JTI,
		ExpiresAt:    claims.ExpiresAt(),
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
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role(),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", "jti", session.JTI, "err", err)
		}
	}
	if refreshToken != "" {
		if err := s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh token", "err", err)
		}
	}
	return nil
}

// Preferences returns the caller's stored preferences object.
func (s *Service) Preferences(ctx context.Context, userID string) (json.RawMessage, error) {
	raw, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(raw), nil
}

func (s *Service) SavePreferences(ctx context.Context, userID string, prefs json.RawMessage) error {
	var probe map[string]any
	if len(prefs) == 0 {
		prefs = json.RawMessage("{}")
	}
	if err := json.Unmarshal(prefs, &probe); err != nil || probe == nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "preferences must be a JSON object", nil)
	}
	return s.store.SavePreferences(ctx, userID, string(prefs))
}

// PublicConfig is what the client needs to render its generation settings.
func (s *Service) PublicConfig() map[string]any {
	return map[string]any{
		"allow_custom_env_vars": s.router.AllowsCustomEnv(),
		"sources":               s.router.Sources(),
		"default_source":        s.cfg.Generation.DefaultSource,
		"default_model":         s.cfg.Generation.DefaultModel,
		"defaults":              s.cfg.Generation.Defaults,
		"context_limit":         s.contextLimit(),
		"email_enabled":         s.SMTPConfigured(),
		"export_storage":        s.export.StorageEnabled(),
	}
}

func (s *Service) contextLimit() int {
	if s.cfg.Generation.ContextLimit > 0 {
		return s.cfg.Generation.ContextLimit
	}
	return generation.DefaultContextLimit
}

func (s *Service) ListUsers(ctx context.Context, session Session) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionManageUsers) {
		return nil, errForbidden
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, map[string]any{
			"id":          u.ID,
			"email":       u.Email,
			"displayName": u.DisplayName,
			"isActive":    u.IsActive,
			"isSuperuser": u.IsSuperuser,
			"isVerified":  u.IsVerified,
			"createdAt":   u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}

func (s *Service) SetUserActive(ctx context.Context, session Session, emailAddr string, active bool) error {
	if !s.Can(session.Role, rbac.ActionManageUsers) {
		return errForbidden
	}
	if strings.EqualFold(strings.TrimSpace(emailAddr), session.Email) && !active {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot deactivate your own account", nil)
	}
	if err := s.store.SetUserActive(ctx, emailAddr, active); err != nil {
		return err
	}
	s.logger.Info("user activation changed", "actor", session.UserID, "email", emailAddr, "active", active)
	return nil
}

// Reindex pushes every stored document to the search engine.
func (s *Service) Reindex(ctx context.Context, session Session) (int, error) {
	if !s.Can(session.Role, rbac.ActionReindex) {
		return 0, errForbidden
	}
	return s.search.ReindexAll(ctx)
}
