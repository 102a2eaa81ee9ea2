package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/service"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

// Room for the form fields next to the file part
const formOverhead = 1 << 20

// UploadHandler handles attachment uploads
type UploadHandler struct {
	chatService       *service.ChatService
	attachmentService *service.AttachmentService
	users             service.UserDirectory
}

func NewUploadHandler(chatService *service.ChatService, attachmentService *service.AttachmentService, users service.UserDirectory) *UploadHandler {
	return &UploadHandler{
		chatService:       chatService,
		attachmentService: attachmentService,
		users:             users,
	}
}

// UploadAttachment godoc
// @Summary Send an image, video or voice message
// @Description Uploads the file to chats/{id}/{kind}/ and posts the matching message. Allowed: jpg, png, gif, webp, heic, mp4, mov, webm, m4a, aac, mp3, ogg, wav (max 50MB).
// @Tags Messages
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param file formData file true "File to upload"
// @Param kind formData string true "Attachment kind" Enums(image, video, voice)
// @Param caption formData string false "Caption (image and video)"
// @Param thumbnail formData string false "Thumbnail URL (image and video)"
// @Param duration formData int false "Voice duration in seconds"
// @Success 201 {object} model.Message
// @Failure 400 {object} model.ErrorResponse
// @Failure 413 {object} model.ErrorResponse
// @Router /conversations/{id}/attachments [post]
func (h *UploadHandler) UploadAttachment(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, service.MaxAttachmentSize+formOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "File too large (max 50MB)", Code: apperrors.CodeBadRequest})
			return
		}
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "File is required", Code: apperrors.CodeBadRequest, Message: err.Error()})
		return
	}
	defer file.Close()

	kind, err := service.ParseKind(c.PostForm("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	duration := 0
	if s := c.PostForm("duration"); s != "" {
		if duration, err = strconv.Atoi(s); err != nil || duration < 0 {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid duration", Code: apperrors.CodeBadRequest})
			return
		}
	}

	conv, err := h.chatService.Get(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	me, err := currentUser(c, h.users)
	if err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.attachmentService.Send(c.Request.Context(), conv, me.Sender(), service.Upload{
		Kind:        kind,
		Reader:      file,
		Size:        header.Size,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Caption:     c.PostForm("caption"),
		Thumbnail:   c.PostForm("thumbnail"),
		Duration:    duration,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}
