package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quocanhngo/tripzi/internal/middleware"
	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/service"
)

// AuthHandler handles authentication and profile endpoints
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// CreateSession godoc
// @Summary Sign in with a Firebase ID token
// @Description Verifies the ID token issued to the app and returns a session token. The profile is refreshed on the way; a slow profile store does not block sign-in.
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.SessionRequest true "Firebase ID token"
// @Success 200 {object} model.SessionResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/session [post]
func (h *AuthHandler) CreateSession(c *gin.Context) {
	var req model.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := h.authService.CreateSession(c.Request.Context(), req.IDToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout godoc
// @Summary Logout
// @Description Revoke the current token and set the user offline
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.KeyToken)
	if err := h.authService.Logout(c.Request.Context(), currentUserID(c), token); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Logged out successfully"})
}

// GetProfile godoc
// @Summary Get current user profile
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.User
// @Failure 404 {object} model.ErrorResponse
// @Router /auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	profile, err := h.authService.GetProfile(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// SearchUsers godoc
// @Summary Search travelers by name or email
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param q query string true "Search query (min 2 characters)"
// @Param limit query int false "Max results" default(20)
// @Success 200 {array} model.User
// @Failure 400 {object} model.ErrorResponse
// @Router /users/search [get]
func (h *AuthHandler) SearchUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	users, err := h.authService.SearchUsers(c.Request.Context(), currentUserID(c), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

// RegisterDevice godoc
// @Summary Register device for push notifications
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterDeviceRequest true "FCM or Expo push token"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /users/devices [post]
func (h *AuthHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	if err := h.authService.RegisterDevice(c.Request.Context(), currentUserID(c), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Device registered successfully"})
}
