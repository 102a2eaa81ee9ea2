package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/middleware"
	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/service"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// respondError maps service errors to their HTTP status
func respondError(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	if appErr.Status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("❌ Request failed")
	}
	c.JSON(appErr.Status, model.ErrorResponse{Error: appErr.Message, Code: appErr.Code})
}

func invalidRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Error:   "Invalid request",
		Code:    apperrors.CodeBadRequest,
		Message: err.Error(),
	})
}

func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.KeyUserID)
}

// currentUser loads the caller's profile. A missing profile means the write
// at sign-in was skipped, so the token claims stand in for it.
func currentUser(c *gin.Context, users service.UserDirectory) (*model.User, error) {
	uid := currentUserID(c)
	user, err := users.FindByID(c.Request.Context(), uid)
	if err == nil {
		return user, nil
	}
	if !apperrors.Is(err, apperrors.CodeNotFound) {
		return nil, err
	}
	return &model.User{
		ID:          uid,
		DisplayName: c.GetString(middleware.KeyName),
		Email:       c.GetString(middleware.KeyEmail),
	}, nil
}
