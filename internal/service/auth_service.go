package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/pkg/auth"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// DefaultProfileTimeout bounds the profile write during sign-in
const DefaultProfileTimeout = 5 * time.Second

// UserStore is the profile and device persistence used by AuthService
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	Upsert(ctx context.Context, user *model.User) error
	Search(ctx context.Context, query, excludeUserID string, limit int) ([]model.User, error)
	AddDevice(ctx context.Context, device *model.UserDevice) error
	UpdateOnlineStatus(ctx context.Context, id string, isOnline bool) error
}

// AuthService exchanges Firebase identities for session tokens and manages profiles
type AuthService struct {
	verifier       auth.IdentityVerifier
	userRepo       UserStore
	jwtManager     *auth.JWTManager
	rdb            *redis.Client
	profileTimeout time.Duration
}

func NewAuthService(
	verifier auth.IdentityVerifier,
	userRepo UserStore,
	jwtManager *auth.JWTManager,
	rdb *redis.Client,
	profileTimeout time.Duration,
) *AuthService {
	if profileTimeout <= 0 {
		profileTimeout = DefaultProfileTimeout
	}
	return &AuthService{
		verifier:       verifier,
		userRepo:       userRepo,
		jwtManager:     jwtManager,
		rdb:            rdb,
		profileTimeout: profileTimeout,
	}
}

// ==================== Session ====================

// CreateSession verifies a Firebase ID token and issues a session JWT. The
// profile upsert is bounded by a timeout and its failure does not block
// sign-in: the profile is written again on the next session.
func (s *AuthService) CreateSession(ctx context.Context, idToken string) (*model.SessionResponse, error) {
	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, apperrors.Unauthorized("Invalid ID token", err)
	}

	user := model.User{
		ID:          identity.UID,
		DisplayName: displayName(identity),
		Email:       identity.Email,
		PhotoURL:    identity.Picture,
		Role:        "traveler",
	}

	pctx, cancel := context.WithTimeout(ctx, s.profileTimeout)
	err = s.userRepo.Upsert(pctx, &user)
	cancel()
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("⚠️ Profile write failed, continuing sign-in")
	}

	token, err := s.jwtManager.GenerateToken(user.ID, user.Email, user.DisplayName)
	if err != nil {
		return nil, apperrors.Internal("Failed to generate token", err)
	}

	log.WithField("user_id", user.ID).Info("🔑 Session created")
	return &model.SessionResponse{Token: token, User: user}, nil
}

func displayName(id *auth.Identity) string {
	if name := strings.TrimSpace(id.Name); name != "" {
		return name
	}
	if at := strings.Index(id.Email, "@"); at > 0 {
		return id.Email[:at]
	}
	return "Traveler"
}

// Logout blacklists the token until it expires and sets the user offline
func (s *AuthService) Logout(ctx context.Context, userID, tokenString string) error {
	if err := s.userRepo.UpdateOnlineStatus(ctx, userID, false); err != nil {
		log.WithError(err).Warn("⚠️ Failed to set user offline on logout")
	}

	claims, err := s.jwtManager.ValidateToken(tokenString)
	if err != nil {
		return apperrors.Unauthorized("Invalid token", err)
	}

	expiresIn := time.Until(claims.ExpiresAt.Time)
	if expiresIn <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, "blacklist:"+tokenString, "revoked", expiresIn).Err()
}

// ==================== Profile ====================

// GetProfile returns the user's profile
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

// SearchUsers finds other travelers by name or email
func (s *AuthService) SearchUsers(ctx context.Context, userID, query string, limit int) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return nil, apperrors.BadRequest("Search query must be at least 2 characters", nil)
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.userRepo.Search(ctx, query, userID, limit)
}

// RegisterDevice registers a device for push notifications
func (s *AuthService) RegisterDevice(ctx context.Context, userID string, req model.RegisterDeviceRequest) error {
	platform := req.Platform
	if platform == "" {
		platform = "unknown"
	}
	return s.userRepo.AddDevice(ctx, &model.UserDevice{
		UserID:   userID,
		Token:    req.Token,
		Provider: req.Provider,
		Platform: platform,
	})
}
