package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/database"
	"github.com/thereayou/abstrio/internal/middleware"
	"github.com/thereayou/abstrio/internal/revocation"
	"github.com/thereayou/abstrio/internal/services"
	ws "github.com/thereayou/abstrio/internal/websocket"
	"github.com/thereayou/abstrio/pkg/auth"
	"github.com/thereayou/abstrio/pkg/wallet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (m *fakeMailer) SendVerification(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent[email] = token
	return nil
}

func (m *fakeMailer) tokenFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[email]
}

type fakeImages struct {
	contentType string
	body        []byte
}

func (f *fakeImages) Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error) {
	f.contentType = contentType
	f.body, _ = io.ReadAll(body)
	return "https://cdn.example/profile-images/" + filename, nil
}

type fakeIndexer struct {
	query    services.WalletQuery
	limit    int
	holdings []services.TokenHolding
	err      error
}

func (f *fakeIndexer) OwnerWallet(ctx context.Context, q services.WalletQuery) (json.RawMessage, error) {
	f.query = q
	return json.RawMessage(`[{"tokenId":"1"}]`), f.err
}

func (f *fakeIndexer) Activity(ctx context.Context, owner string, limit int) (json.RawMessage, error) {
	f.limit = limit
	return json.RawMessage(`[]`), f.err
}

func (f *fakeIndexer) WalletTokens(ctx context.Context, owner string) ([]services.TokenHolding, error) {
	return f.holdings, f.err
}

func (f *fakeIndexer) Trending(ctx context.Context) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"trending":[]}`), nil
}

func (f *fakeIndexer) OwnerFavorites(ctx context.Context, owner string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ws.EventType
}

func (p *recordingPublisher) Publish(address string, typ ws.EventType, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, typ)
	return nil
}

func (p *recordingPublisher) types() []ws.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ws.EventType(nil), p.events...)
}

type testEnv struct {
	router        *gin.Engine
	store         *database.MemoryStore
	sessions      *auth.SessionManager
	verifications *auth.VerificationManager
	mailer        *fakeMailer
	images        *fakeImages
	indexer       *fakeIndexer
	events        *recordingPublisher
	redis         *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zap.NewNop()
	e := &testEnv{
		store:         database.NewMemoryStore(),
		sessions:      auth.NewSessionManager("session-secret", time.Hour),
		verifications: auth.NewVerificationManager("email-secret"),
		mailer:        &fakeMailer{sent: make(map[string]string)},
		images:        &fakeImages{},
		indexer:       &fakeIndexer{},
		events:        &recordingPublisher{},
		redis:         mr,
	}
	revoker := revocation.New(rdb, 30*time.Second)

	e.router = gin.New()
	APIEndpoints(e.router, Routes{
		Auth:        NewAuthHandler(e.store, e.sessions, revoker, e.events, logger),
		User:        NewUserHandler(e.store, e.events, logger),
		Email:       NewEmailHandler(e.store, e.verifications, e.mailer, revoker, e.events, logger),
		Upload:      NewUploadHandler(e.images),
		Indexer:     NewIndexerHandler(e.indexer),
		SessionAuth: middleware.AuthMiddleware(e.sessions, revoker),
	})
	return e
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signIn authenticates a fresh wallet and returns it with its session token.
func (e *testEnv) signIn(t *testing.T) (*wallet.KeySigner, string) {
	t.Helper()
	signer, err := wallet.GenerateKeySigner()
	require.NoError(t, err)

	sig, err := signer.SignMessage(context.Background(), wallet.ChallengeMessage(signer.Address()))
	require.NoError(t, err)

	w := e.do(http.MethodPost, "/api/authentication?accountAddress="+signer.Address(), gin.H{"signature": sig})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Authentication success", resp.Message)
	return signer, resp.Token
}

func (e *testEnv) register(t *testing.T) (*wallet.KeySigner, string) {
	t.Helper()
	signer, token := e.signIn(t)
	w := e.do(http.MethodPost, "/api/register?accountAddress="+signer.Address(), gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return signer, token
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) (apperror.Kind, string) {
	t.Helper()
	var body struct {
		Kind    apperror.Kind `json:"kind"`
		Message string        `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Kind, body.Message
}

func TestAuthenticate_IssuesSessionToken(t *testing.T) {
	e := newTestEnv(t)
	signer, token := e.signIn(t)

	claims, err := e.sessions.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(signer.Address()), claims.AccountAddress)
	assert.Equal(t, 0, e.store.Len(), "authentication must not persist anything")
}

func TestAuthenticate_Rejects(t *testing.T) {
	e := newTestEnv(t)
	signer, err := wallet.GenerateKeySigner()
	require.NoError(t, err)
	other, err := wallet.GenerateKeySigner()
	require.NoError(t, err)

	otherSig, err := other.SignMessage(context.Background(), wallet.ChallengeMessage(signer.Address()))
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		body   any
		status int
	}{
		{"missing address", "/api/authentication", gin.H{"signature": otherSig}, http.StatusBadRequest},
		{"missing signature", "/api/authentication?accountAddress=" + signer.Address(), gin.H{}, http.StatusBadRequest},
		{"no body", "/api/authentication?accountAddress=" + signer.Address(), nil, http.StatusBadRequest},
		{"foreign signature", "/api/authentication?accountAddress=" + signer.Address(), gin.H{"signature": otherSig}, http.StatusUnauthorized},
		{"malformed signature", "/api/authentication?accountAddress=" + signer.Address(), gin.H{"signature": "0x1234"}, http.StatusUnauthorized},
		{"malformed address", "/api/authentication?accountAddress=0xnothex", gin.H{"signature": otherSig}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), `"token"`)
		})
	}
}

func TestRegister_Idempotent(t *testing.T) {
	e := newTestEnv(t)
	signer, token := e.register(t)

	w := e.do(http.MethodPost, "/api/register?accountAddress="+signer.Address(), gin.H{"token": token})
	assert.Equal(t, http.StatusConflict, w.Code)
	kind, _ := errorBody(t, w)
	assert.Equal(t, apperror.KindConflict, kind)

	assert.Equal(t, 1, e.store.Len())
	assert.Equal(t, []ws.EventType{ws.TypeUserRegistered}, e.events.types())

	user, err := e.store.FindUserByAddress(context.Background(), signer.Address())
	require.NoError(t, err)
	assert.Equal(t, token, user.Token)
}

func TestRegister_Guards(t *testing.T) {
	e := newTestEnv(t)
	signer, token := e.signIn(t)
	other, err := wallet.GenerateKeySigner()
	require.NoError(t, err)

	w := e.do(http.MethodPost, "/api/register?accountAddress="+other.Address(), gin.H{"token": token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/register", gin.H{"token": token})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/register?accountAddress="+signer.Address(), gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, 0, e.store.Len())
}

func TestRegister_CaseInsensitiveAddress(t *testing.T) {
	e := newTestEnv(t)
	signer, token := e.signIn(t)

	w := e.do(http.MethodPost, "/api/register?accountAddress="+strings.ToUpper(signer.Address()[2:]), gin.H{"token": token})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "address without 0x is a different address")

	w = e.do(http.MethodPost, "/api/register?accountAddress="+strings.ToLower(signer.Address()), gin.H{"token": token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetUser(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/api/user?accountAddress=0x0000000000000000000000000000000000000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	signer, _ := e.register(t)
	w = e.do(http.MethodGet, "/api/user?accountAddress="+signer.Address(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, strings.ToLower(signer.Address()), body["user"]["address"])
	assert.Equal(t, false, body["user"]["isVerified"])
	assert.NotContains(t, body["user"], "token")
	assert.NotContains(t, body["user"], "verificationToken")
}

func TestUpdate_PartialMerge(t *testing.T) {
	e := newTestEnv(t)
	signer, token := e.register(t)
	target := "/api/update?accountAddress=" + signer.Address()

	w := e.do(http.MethodPost, target, gin.H{"token": token, "name": "alice", "x": "@alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Update successful"}`, w.Body.String())

	w = e.do(http.MethodPost, target, gin.H{"token": token, "image": "https://cdn.example/a.png", "name": ""})
	require.Equal(t, http.StatusOK, w.Code)

	user, err := e.store.FindUserByAddress(context.Background(), signer.Address())
	require.NoError(t, err)
	require.NotNil(t, user.DisplayID)
	assert.Equal(t, "alice", *user.DisplayID)
	assert.Equal(t, "@alice", *user.X)
	assert.Equal(t, "https://cdn.example/a.png", *user.Image)
	assert.Contains(t, e.events.types(), ws.TypeUserUpdated)
}

func TestUpdate_Errors(t *testing.T) {
	e := newTestEnv(t)
	signer, token := e.signIn(t)
	other, err := wallet.GenerateKeySigner()
	require.NoError(t, err)

	w := e.do(http.MethodPost, "/api/update", gin.H{"token": token, "name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/update?accountAddress="+other.Address(), gin.H{"token": token, "name": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/update?accountAddress="+signer.Address(), gin.H{"token": token, "name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code, "not registered yet")

	w = e.do(http.MethodPost, "/api/update?accountAddress="+signer.Address(), gin.H{"token": token, "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignupAndVerify(t *testing.T) {
	e := newTestEnv(t)
	signer, _ := e.register(t)
	const email = "alice@example.com"

	w := e.do(http.MethodPost, "/api/signup", gin.H{"email": email, "address": signer.Address()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":200,"message":"Verification email sent"}`, w.Body.String())

	token := e.mailer.tokenFor(email)
	require.NotEmpty(t, token)

	w = e.do(http.MethodGet, "/api/verify-email?token="+token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Email verified successfully"}`, w.Body.String())

	user, err := e.store.FindUserByAddress(context.Background(), signer.Address())
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Equal(t, email, *user.Email)
	assert.Nil(t, user.VerificationToken)

	w = e.do(http.MethodPost, "/api/verify-email?token="+token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "token is single use")

	w = e.do(http.MethodPost, "/api/signup", gin.H{"email": email, "address": signer.Address()})
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, []ws.EventType{ws.TypeUserRegistered, ws.TypeEmailPending, ws.TypeEmailVerified}, e.events.types())
}

func TestVerifyEmail_TokenInBody(t *testing.T) {
	e := newTestEnv(t)
	signer, _ := e.register(t)

	w := e.do(http.MethodPost, "/api/signup", gin.H{"email": "bob@example.com", "address": signer.Address()})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/verify-email", gin.H{"token": e.mailer.tokenFor("bob@example.com")})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignup_Errors(t *testing.T) {
	e := newTestEnv(t)
	signer, _ := e.register(t)

	w := e.do(http.MethodPost, "/api/signup", gin.H{"email": "nope", "address": signer.Address()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/signup", gin.H{"email": "a@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/signup", gin.H{"email": "a@example.com", "address": "0x0000000000000000000000000000000000000009"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, e.redis.Set("signup:"+strings.ToLower(signer.Address()), "someone"))
	w = e.do(http.MethodPost, "/api/signup", gin.H{"email": "a@example.com", "address": signer.Address()})
	assert.Equal(t, http.StatusConflict, w.Code)
	e.redis.Del("signup:" + strings.ToLower(signer.Address()))

	e.mailer.err = apperror.Upstream("failed to send verification email", io.EOF)
	w = e.do(http.MethodPost, "/api/signup", gin.H{"email": "a@example.com", "address": signer.Address()})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, e.redis.Exists("signup:"+strings.ToLower(signer.Address())), "lock released")
}

func TestVerifyEmail_InvalidTokens(t *testing.T) {
	e := newTestEnv(t)
	_, sessionToken := e.signIn(t)
	unknown, err := e.verifications.Generate("ghost@example.com")
	require.NoError(t, err)

	for name, target := range map[string]string{
		"missing":       "/api/verify-email",
		"garbage":       "/api/verify-email?token=abc",
		"session token": "/api/verify-email?token=" + sessionToken,
		"never issued":  "/api/verify-email?token=" + unknown,
	} {
		t.Run(name, func(t *testing.T) {
			w := e.do(http.MethodGet, target, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	e := newTestEnv(t)
	signer, token := e.signIn(t)

	w := e.do(http.MethodPost, "/api/logout", gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/register?accountAddress="+signer.Address(), gin.H{"token": token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, e.store.Len())
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	e := newTestEnv(t)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, multipartRequest(t, "image", "me.PNG", []byte("png-bytes")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"imageUrl":"https://cdn.example/profile-images/me.PNG"}`, w.Body.String())
	assert.Equal(t, "image/png", e.images.contentType)
	assert.Equal(t, []byte("png-bytes"), e.images.body)

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, multipartRequest(t, "image", "anim.gif", []byte("gif")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, multipartRequest(t, "", "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexerProxies(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/getOwnerWallet?owner=0xabc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"tokenId":"1"}]`, w.Body.String())
	assert.Equal(t, services.WalletQuery{Owner: "0xabc", Limit: 100, Page: 1, Sort: "time-desc"}, e.indexer.query)

	w = e.do(http.MethodGet, "/api/getOwnerWallet?owner=0xabc&limit=20&page=3&sort=price-asc&ownerAltAddress=0xdef", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.WalletQuery{Owner: "0xabc", OwnerAltAddress: "0xdef", Limit: 20, Page: 3, Sort: "price-asc"}, e.indexer.query)

	w = e.do(http.MethodGet, "/api/getActivity?owner=0xabc&limit=oops", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, e.indexer.limit)

	floor, value := 2.0, 6.0
	e.indexer.holdings = []services.TokenHolding{{ContractAddress: "0xb", Count: 3, Floor: &floor, Value: &value}}
	w = e.do(http.MethodGet, "/api/getWalletToken?owner=0xabc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"contractAddress":"0xb","count":3,"floor":2,"value":6}]`, w.Body.String())

	w = e.do(http.MethodGet, "/api/getWalletToken", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.indexer.err = apperror.Upstream("failed to fetch data", io.EOF)
	w = e.do(http.MethodGet, "/api/getTrending", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	kind, msg := errorBody(t, w)
	assert.Equal(t, apperror.KindUpstream, kind)
	assert.Equal(t, "failed to fetch data", msg)
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
