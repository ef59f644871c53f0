package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/generation"
	"inkwell/api/internal/gitrepo"
	"inkwell/api/internal/store"
)

// memStore is an in-memory DataStore.
type memStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	verify    map[string]string
	resets    map[string]string
	refresh   map[string]string
	revoked   map[string]bool
	prefs     map[string]string
	docs      map[string]store.Document
	snapshots []store.Snapshot
	nextID    int64
	pingErr   error
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]store.User{},
		verify:  map[string]string{},
		resets:  map[string]string{},
		refresh: map[string]string{},
		revoked: map[string]bool{},
		prefs:   map[string]string{},
		docs:    map[string]store.Document{},
	}
}

func docKey(userID, filename string) string { return userID + "/" + filename }

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return nil
}

func (m *memStore) UpdateUserVerificationToken(_ context.Context, userID, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify[token] = userID
	return nil
}

func (m *memStore) VerifyUserEmail(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.verify[token]
	if !ok {
		return store.ErrNotFound
	}
	u := m.users[id]
	u.IsVerified = true
	m.users[id] = u
	delete(m.verify, token)
	return nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.PasswordHash = hash
	m.users[userID] = u
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = userID
	return nil
}

func (m *memStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.resets[token]
	if !ok {
		return "", store.ErrNotFound
	}
	return id, nil
}

func (m *memStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resets, token)
	return nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[hash] = userID
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, hash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.refresh[hash]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return m.users[id], nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, hash)
	return nil
}

func (m *memStore) ListUsers(context.Context) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memStore) SetUserActive(_ context.Context, email string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Email == strings.ToLower(email) {
			u.IsActive = active
			m.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) GetPreferences(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return "", store.ErrNotFound
	}
	return m.prefs[userID], nil
}

func (m *memStore) SavePreferences(_ context.Context, userID, prefs string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = prefs
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

func (m *memStore) UpsertDocument(_ context.Context, doc store.Document) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	key := docKey(doc.UserID, doc.Filename)
	if existing, ok := m.docs[key]; ok {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		doc.ID = m.nextID
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.Size = len(doc.Content)
	m.docs[key] = doc
	return doc, nil
}

func (m *memStore) GetDocument(_ context.Context, userID, filename string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docKey(userID, filename)]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) ListDocuments(_ context.Context, userID string) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Document
	for _, d := range m.docs {
		if d.UserID == userID {
			d.Content = ""
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) DeleteDocument(_ context.Context, userID, filename string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := docKey(userID, filename)
	doc, ok := m.docs[key]
	if !ok {
		return 0, store.ErrNotFound
	}
	delete(m.docs, key)
	kept := m.snapshots[:0]
	for _, s := range m.snapshots {
		if s.DocumentID != doc.ID {
			kept = append(kept, s)
		}
	}
	m.snapshots = kept
	return doc.ID, nil
}

func (m *memStore) CreateSnapshot(_ context.Context, userID, filename string, now time.Time) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docKey(userID, filename)]
	if !ok {
		return store.Snapshot{}, store.ErrNotFound
	}
	snap := store.Snapshot{
		ID:         int64(len(m.snapshots) + 1),
		DocumentID: doc.ID,
		Filename:   filename,
		Name:       store.SnapshotName(filename, now),
		Content:    doc.Content,
		Size:       len(doc.Content),
		CreatedAt:  now,
	}
	m.snapshots = append(m.snapshots, snap)
	return snap, nil
}

func (m *memStore) ListSnapshots(_ context.Context, userID, filename string) ([]store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docKey(userID, filename)]
	if !ok {
		return nil, nil
	}
	var out []store.Snapshot
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].DocumentID == doc.ID {
			s := m.snapshots[i]
			s.Content = ""
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetSnapshot(_ context.Context, userID, name string) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snapshots {
		if s.Name != name {
			continue
		}
		for _, d := range m.docs {
			if d.ID == s.DocumentID && d.UserID == userID {
				return s, nil
			}
		}
	}
	return store.Snapshot{}, store.ErrNotFound
}

func (m *memStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

type sentMail struct {
	kind, to, link string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeMailer) IsConfigured() bool { return true }

func (f *fakeMailer) SendVerificationEmail(to, _, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{kind: "verify", to: to, link: link})
	return nil
}

func (f *fakeMailer) SendPasswordResetEmail(to, _, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{kind: "reset", to: to, link: link})
	return nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		PublicURL:  "http://inkwell.test",
		Generation: config.Generation{
			DefaultSource:  "openai",
			DefaultModel:   "test-model",
			AllowCustomEnv: true,
		},
		Editor: config.Editor{Debounce: 5 * time.Millisecond},
	}
}

type testEnv struct {
	store  *memStore
	mock   *generation.Mock
	svc    *Service
	server http.Handler
}

type envOption func(*config.Config, *Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := testConfig()
	ms := newMemStore()
	mock := &generation.Mock{Response: "generated"}

	deps := Deps{
		Store:   ms,
		History: gitrepo.New(t.TempDir()),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(&cfg, &deps)
	}
	if deps.Router == nil {
		deps.Router = generation.NewRouter(cfg.Generation.DefaultSource, generation.WithCustomEnv(cfg.Generation.AllowCustomEnv))
		deps.Router.Add("openai", mock)
	}
	svc := New(cfg, deps)
	t.Cleanup(svc.Editor().CloseAll)
	return &testEnv{
		store:  ms,
		mock:   mock,
		svc:    svc,
		server: NewHTTPServer(svc, "*").Handler(),
	}
}

// signUp creates a verified account and returns a bearer token for it.
func (e *testEnv) signUp(t *testing.T, email string, superuser bool) Session {
	t.Helper()
	resp, err := e.svc.users.SignUp(context.Background(), signUpVerified(email, superuser))
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	user, err := e.store.GetUserByID(context.Background(), resp.UserID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	session, err := e.svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

const testPassword = "correct-horse"

func signUpVerified(email string, superuser bool) authpw.SignUpRequest {
	return authpw.SignUpRequest{
		Email:     email,
		Password:  testPassword,
		Verified:  true,
		Superuser: superuser,
	}
}
