package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plan2tasks/plan2tasks/internal/connect"
	"github.com/plan2tasks/plan2tasks/internal/google"
	"github.com/plan2tasks/plan2tasks/internal/models"
	"github.com/plan2tasks/plan2tasks/internal/store"
)

// memStore is a minimal in-memory store.Store for handler tests.
type memStore struct {
	connections memConnections
	invites     memInvites
}

func newMemStore() *memStore {
	return &memStore{
		connections: memConnections{rows: map[string]*models.Connection{}},
		invites:     memInvites{rows: map[string]*models.Invite{}},
	}
}

func (s *memStore) Planners() store.PlannerStore       { return nil }
func (s *memStore) Connections() store.ConnectionStore { return &s.connections }
func (s *memStore) Invites() store.InviteStore         { return &s.invites }
func (s *memStore) Ping(ctx context.Context) error     { return nil }
func (s *memStore) Close() error                       { return nil }
func (s *memStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(s)
}

type memConnections struct {
	rows map[string]*models.Connection
}

func key(plannerEmail, userEmail string) string {
	return models.NormalizeEmail(plannerEmail) + "|" + models.NormalizeEmail(userEmail)
}

func (m *memConnections) Upsert(ctx context.Context, conn *models.Connection) error {
	cp := *conn
	cp.UpdatedAt = time.Now()
	m.rows[key(conn.PlannerEmail, conn.UserEmail)] = &cp
	return nil
}

func (m *memConnections) Get(ctx context.Context, plannerEmail, userEmail string) (*models.Connection, error) {
	conn, ok := m.rows[key(plannerEmail, userEmail)]
	if !ok {
		return nil, nil
	}
	cp := *conn
	return &cp, nil
}

func (m *memConnections) GetLatestByUserEmail(ctx context.Context, userEmail string) (*models.Connection, error) {
	var latest *models.Connection
	for _, conn := range m.rows {
		if models.NormalizeEmail(conn.UserEmail) != models.NormalizeEmail(userEmail) || conn.Status == models.StatusDeleted {
			continue
		}
		if latest == nil || conn.UpdatedAt.After(latest.UpdatedAt) {
			latest = conn
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memConnections) GetLatestConnectedByUserEmail(ctx context.Context, userEmail string) (*models.Connection, error) {
	var latest *models.Connection
	for _, conn := range m.rows {
		if models.NormalizeEmail(conn.UserEmail) != models.NormalizeEmail(userEmail) || conn.Status != models.StatusConnected {
			continue
		}
		if latest == nil || conn.UpdatedAt.After(latest.UpdatedAt) {
			latest = conn
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memConnections) UpdateTokens(ctx context.Context, plannerEmail, userEmail, accessToken, tokenType, scope string, expiry time.Time) error {
	row, ok := m.rows[key(plannerEmail, userEmail)]
	if !ok || row.Status == models.StatusDeleted {
		return nil
	}
	row.AccessToken = accessToken
	row.TokenType = tokenType
	row.Scope = scope
	row.TokenExpiry = expiry
	row.UpdatedAt = time.Now()
	return nil
}

func (m *memConnections) SetStatus(ctx context.Context, plannerEmail, userEmail string, status models.ConnectionStatus) error {
	if row, ok := m.rows[key(plannerEmail, userEmail)]; ok {
		row.Status = status
	}
	return nil
}

func (m *memConnections) Delete(ctx context.Context, plannerEmail, userEmail string) error {
	delete(m.rows, key(plannerEmail, userEmail))
	return nil
}

func (m *memConnections) ListByPlanner(ctx context.Context, plannerEmail string) ([]*models.Connection, error) {
	var out []*models.Connection
	for _, conn := range m.rows {
		if models.NormalizeEmail(conn.PlannerEmail) == models.NormalizeEmail(plannerEmail) && conn.Status != models.StatusDeleted {
			cp := *conn
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memInvites struct {
	rows map[string]*models.Invite
}

func (m *memInvites) Create(ctx context.Context, invite *models.Invite) error {
	if invite.ID == "" {
		invite.ID = uuid.New().String()
	}
	invite.CreatedAt = time.Now()
	cp := *invite
	m.rows[invite.ID] = &cp
	return nil
}

func (m *memInvites) GetByID(ctx context.Context, id string) (*models.Invite, error) {
	invite, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *invite
	return &cp, nil
}

func (m *memInvites) GetPendingByEmails(ctx context.Context, plannerEmail, userEmail string) (*models.Invite, error) {
	for _, invite := range m.rows {
		if invite.IsPending() &&
			models.NormalizeEmail(invite.PlannerEmail) == models.NormalizeEmail(plannerEmail) &&
			models.NormalizeEmail(invite.UserEmail) == models.NormalizeEmail(userEmail) {
			cp := *invite
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memInvites) MarkUsed(ctx context.Context, id string) error {
	if invite, ok := m.rows[id]; ok && invite.UsedAt == nil {
		now := time.Now()
		invite.UsedAt = &now
	}
	return nil
}

func (m *memInvites) DeletePending(ctx context.Context, plannerEmail, userEmail string) (int64, error) {
	var n int64
	for id, invite := range m.rows {
		if invite.IsPending() &&
			models.NormalizeEmail(invite.PlannerEmail) == models.NormalizeEmail(plannerEmail) &&
			models.NormalizeEmail(invite.UserEmail) == models.NormalizeEmail(userEmail) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memInvites) ListByPlanner(ctx context.Context, plannerEmail string) ([]*models.Invite, error) {
	var out []*models.Invite
	for _, invite := range m.rows {
		if models.NormalizeEmail(invite.PlannerEmail) == models.NormalizeEmail(plannerEmail) {
			cp := *invite
			out = append(out, &cp)
		}
	}
	return out, nil
}

// stubOAuth is a scripted connect.OAuthClient.
type stubOAuth struct {
	exchangeTok *google.Token
	exchangeErr error
	refreshTok  *google.Token
	refreshErr  error
}

func (s *stubOAuth) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (s *stubOAuth) Exchange(ctx context.Context, code string) (*google.Token, error) {
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	cp := *s.exchangeTok
	return &cp, nil
}

func (s *stubOAuth) Refresh(ctx context.Context, refreshToken string) (*google.Token, error) {
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	cp := *s.refreshTok
	return &cp, nil
}

func googleToken(rt string) *google.Token {
	return &google.Token{
		AccessToken:  "at-secret-value",
		RefreshToken: rt,
		TokenType:    "Bearer",
		Scope:        "https://www.googleapis.com/auth/tasks",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestOAuthStartRedirects(t *testing.T) {
	svc := connect.NewService(newMemStore(), &stubOAuth{}, nil)
	h := NewOAuthHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/oauth/start?user_email=user%40example.com&invite_id=inv-1", nil)
	rec := httptest.NewRecorder()
	h.Start(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "accounts.google.com")
	assert.Contains(t, loc, "state=")
}

func TestOAuthStartRejectsBadEmail(t *testing.T) {
	svc := connect.NewService(newMemStore(), &stubOAuth{}, nil)
	h := NewOAuthHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/oauth/start?user_email=not-an-email", nil)
	rec := httptest.NewRecorder()
	h.Start(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestOAuthCallbackSuccessPage(t *testing.T) {
	st := newMemStore()
	oauth := &stubOAuth{exchangeTok: googleToken("rt-secret-value")}
	svc := connect.NewService(st, oauth, nil)
	h := NewOAuthHandler(svc, testLogger())

	invite := &models.Invite{PlannerEmail: "planner@example.com", UserEmail: "user@example.com"}
	require.NoError(t, st.Invites().Create(context.Background(), invite))

	state := google.EncodeState(google.State{UserEmail: "user@example.com", InviteID: invite.ID})
	req := httptest.NewRequest(http.MethodGet,
		"/oauth/callback?code=auth-code&state="+url.QueryEscape(state), nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "planner@example.com")

	// Tokens never leak into the page.
	assert.NotContains(t, body, "at-secret-value")
	assert.NotContains(t, body, "rt-secret-value")

	conn, err := st.Connections().Get(context.Background(), "planner@example.com", "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, models.StatusConnected, conn.Status)
}

func TestOAuthCallbackConsentDenied(t *testing.T) {
	svc := connect.NewService(newMemStore(), &stubOAuth{}, nil)
	h := NewOAuthHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "did not authorize")
}

func TestOAuthCallbackMissingCode(t *testing.T) {
	svc := connect.NewService(newMemStore(), &stubOAuth{}, nil)
	h := NewOAuthHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback", nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthCallbackUnattributed(t *testing.T) {
	oauth := &stubOAuth{exchangeTok: googleToken("rt-1")}
	svc := connect.NewService(newMemStore(), oauth, nil)
	h := NewOAuthHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=auth-code&state=garbage", nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invite")
}

func TestTokensRefreshNotConnected(t *testing.T) {
	svc := connect.NewService(newMemStore(), &stubOAuth{}, nil)
	h := NewTokensHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/tokens/refresh",
		strings.NewReader(`{"user_email": "user@example.com"}`))
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrCodeNotConnected)
}

func TestTokensRefreshInvalidGrant(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.Connections().Upsert(context.Background(), &models.Connection{
		PlannerEmail: "planner@example.com",
		UserEmail:    "user@example.com",
		Provider:     models.ProviderGoogle,
		RefreshToken: "rt-revoked",
		Status:       models.StatusConnected,
	}))

	oauth := &stubOAuth{refreshErr: &google.ProviderError{Op: "refresh", Code: "invalid_grant"}}
	svc := connect.NewService(st, oauth, nil)
	h := NewTokensHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/tokens/refresh",
		strings.NewReader(`{"user_email": "user@example.com"}`))
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "invalid_grant")
	assert.Contains(t, body, `"reauth_required":true`)
}

func TestTokensRefreshDryRunResponseOmitsToken(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.Connections().Upsert(context.Background(), &models.Connection{
		PlannerEmail: "planner@example.com",
		UserEmail:    "user@example.com",
		Provider:     models.ProviderGoogle,
		RefreshToken: "rt-1",
		Status:       models.StatusConnected,
	}))

	oauth := &stubOAuth{refreshTok: googleToken("")}
	svc := connect.NewService(st, oauth, nil)
	h := NewTokensHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/tokens/refresh",
		strings.NewReader(`{"user_email": "user@example.com", "dry_run": true}`))
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"dry_run":true`)
	assert.NotContains(t, body, "at-secret-value")
}
