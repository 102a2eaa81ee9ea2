package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quocanhngo/tripzi/internal/dedup"
	"github.com/quocanhngo/tripzi/internal/middleware"
	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository/memstore"
	"github.com/quocanhngo/tripzi/internal/service"
	"github.com/quocanhngo/tripzi/internal/session"
	"github.com/quocanhngo/tripzi/internal/ws"
	"github.com/quocanhngo/tripzi/pkg/auth"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
	"github.com/quocanhngo/tripzi/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	minh = &model.User{ID: "minh", DisplayName: "Minh", Email: "minh@tripzi.test"}
	ngoc = &model.User{ID: "ngoc", DisplayName: "Ngoc", Email: "ngoc@tripzi.test"}
	phuc = &model.User{ID: "phuc", DisplayName: "Phuc", Email: "phuc@tripzi.test"}
)

// memUsers is the profile store: directory, auth store and device registry
type memUsers struct {
	mu      sync.Mutex
	users   map[string]*model.User
	devices []*model.UserDevice
	online  map[string]bool
}

func newMemUsers(users ...*model.User) *memUsers {
	m := &memUsers{users: map[string]*model.User{}, online: map[string]bool{}}
	for _, u := range users {
		cp := *u
		m.users[u.ID] = &cp
	}
	return m
}

func (m *memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFound("User", nil)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	out := []model.User{}
	for _, id := range ids {
		if u, err := m.FindByID(ctx, id); err == nil {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memUsers) Upsert(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUsers) Search(_ context.Context, query, excludeUserID string, limit int) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.User{}
	for _, u := range m.users {
		if u.ID != excludeUserID && strings.Contains(strings.ToLower(u.DisplayName), strings.ToLower(query)) && len(out) < limit {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memUsers) AddDevice(_ context.Context, device *model.UserDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, device)
	return nil
}

func (m *memUsers) UpdateOnlineStatus(_ context.Context, id string, isOnline bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[id] = isOnline
	return nil
}

type stubVerifier map[string]*auth.Identity

func (v stubVerifier) Verify(_ context.Context, idToken string) (*auth.Identity, error) {
	if id, ok := v[idToken]; ok {
		return id, nil
	}
	return nil, errors.New("token rejected")
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memStorage) Put(_ context.Context, r io.Reader, size int64, key, contentType string) (*storage.UploadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return &storage.UploadResult{URL: s.GetPublicURL(key), Key: key, FileSize: size, MimeType: contentType}, nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStorage) GetPublicURL(key string) string {
	return "https://cdn.test/tripzi/" + key
}

type env struct {
	store    *memstore.Store
	users    *memUsers
	blobs    *memStorage
	jwt      *auth.JWTManager
	rdb      *redis.Client
	hub      *ws.Hub
	chats    *service.ChatService
	messages *service.MessageService
	live     *service.LiveLocationService
	deps     session.Deps
	ws       *WSHandler
	router   *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := ws.NewHub(nil, nil)
	hubCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(hubCtx)

	store := memstore.New(nil)
	users := newMemUsers(minh, ngoc, phuc)
	blobs := &memStorage{objects: map[string][]byte{}}
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	chats := service.NewChatService(store.Conversations(), users)
	messages := service.NewMessageService(store.Conversations(), store.Messages(), dedup.NewMemoryRegistry(dedup.DefaultWindow, nil), hub, nil, nil, 0)
	live := service.NewLiveLocationService(store.LiveShares(), messages, nil)
	attachments := service.NewAttachmentService(blobs, messages, nil)
	authService := service.NewAuthService(stubVerifier{
		"id-token-minh": {UID: "minh", Email: "minh@tripzi.test", Name: "Minh"},
		"id-token-new":  {UID: "lan", Email: "lan@tripzi.test"},
	}, users, jwtManager, rdb, time.Second)

	deps := session.Deps{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Shares:        store.LiveShares(),
		Chats:         chats,
		MessageSvc:    messages,
		Live:          live,
	}
	wsHandler := NewWSHandler(hub, jwtManager, rdb, users, deps, session.Config{
		SendLockRelease: 10 * time.Millisecond,
		RecordingTick:   10 * time.Millisecond,
	})

	router := gin.New()
	RegisterRoutes(router, Handlers{
		Auth:    NewAuthHandler(authService),
		Chat:    NewChatHandler(chats, users),
		Message: NewMessageHandler(chats, messages, live, users),
		Upload:  NewUploadHandler(chats, attachments, users),
		WS:      wsHandler,
	}, middleware.AuthMiddleware(jwtManager, rdb))

	return &env{
		store:    store,
		users:    users,
		blobs:    blobs,
		jwt:      jwtManager,
		rdb:      rdb,
		hub:      hub,
		chats:    chats,
		messages: messages,
		live:     live,
		deps:     deps,
		ws:       wsHandler,
		router:   router,
	}
}

func (e *env) token(t *testing.T, u *model.User) string {
	t.Helper()
	token, err := e.jwt.GenerateToken(u.ID, u.Email, u.DisplayName)
	require.NoError(t, err)
	return token
}

// do sends a JSON request as u, or anonymously when u is nil
func (e *env) do(t *testing.T, u *model.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	token := ""
	if u != nil {
		token = e.token(t, u)
	}
	return e.doWithToken(t, token, method, path, body)
}

func (e *env) doWithToken(t *testing.T, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// direct creates the direct conversation between a and b
func (e *env) direct(t *testing.T, a, b *model.User) *model.Conversation {
	t.Helper()
	conv, _, err := e.chats.GetOrCreateDirect(context.Background(), a, b.ID)
	require.NoError(t, err)
	return conv
}

func (e *env) send(t *testing.T, conv *model.Conversation, from *model.User, text string) *model.Message {
	t.Helper()
	msg, err := e.messages.SendText(context.Background(), conv, from.Sender(), text, nil)
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}
