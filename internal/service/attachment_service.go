package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/model"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
	"github.com/quocanhngo/tripzi/pkg/storage"
)

// MaxAttachmentSize caps a single upload
const MaxAttachmentSize = 50 << 20

// AttachmentKind is the folder an attachment is stored under
type AttachmentKind string

const (
	KindImage AttachmentKind = "images"
	KindVideo AttachmentKind = "videos"
	KindVoice AttachmentKind = "voice"
)

var allowedTypes = map[AttachmentKind][]string{
	KindImage: {"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic"},
	KindVideo: {"video/mp4", "video/quicktime", "video/webm"},
	KindVoice: {"audio/mp4", "audio/aac", "audio/mpeg", "audio/ogg", "audio/wav", "audio/x-m4a"},
}

// ParseKind maps the client's kind name to an AttachmentKind
func ParseKind(s string) (AttachmentKind, error) {
	switch strings.ToLower(s) {
	case "image", "images":
		return KindImage, nil
	case "video", "videos":
		return KindVideo, nil
	case "voice", "audio":
		return KindVoice, nil
	}
	return "", apperrors.BadRequest(fmt.Sprintf("Unsupported attachment kind %q", s), nil)
}

// Upload is one binary attachment from the client
type Upload struct {
	Kind        AttachmentKind
	Reader      io.Reader
	Size        int64
	FileName    string
	ContentType string
	Caption     string
	Thumbnail   string
	Duration    int // voice only, seconds
}

// AttachmentService uploads media to blob storage and sends the matching message
type AttachmentService struct {
	storage  storage.Storage
	messages *MessageService
	clock    Clock
}

func NewAttachmentService(store storage.Storage, messages *MessageService, clock Clock) *AttachmentService {
	return &AttachmentService{storage: store, messages: messages, clock: clock}
}

// Send uploads the attachment and posts a message of the corresponding type
func (s *AttachmentService) Send(ctx context.Context, conv *model.Conversation, sender model.Sender, up Upload) (*model.Message, error) {
	if err := requireMember(conv, sender.ID); err != nil {
		return nil, err
	}
	if up.Size <= 0 {
		return nil, apperrors.BadRequest("Empty file", nil)
	}
	if up.Size > MaxAttachmentSize {
		return nil, apperrors.BadRequest("File exceeds the 50 MB limit", nil)
	}

	ext := strings.ToLower(filepath.Ext(up.FileName))
	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeFor(ext)
	}
	if !allowed(up.Kind, contentType) {
		return nil, apperrors.BadRequest(fmt.Sprintf("Content type %s is not allowed for %s", contentType, up.Kind), nil)
	}

	key := s.ObjectKey(conv.ID, up.Kind, ext)
	result, err := s.storage.Put(ctx, up.Reader, up.Size, key, contentType)
	if err != nil {
		return nil, apperrors.Internal("Failed to upload attachment", err)
	}

	var content model.Content
	switch up.Kind {
	case KindImage:
		content = model.ImageContent{URL: result.URL, Thumbnail: up.Thumbnail, Caption: up.Caption}
	case KindVideo:
		content = model.VideoContent{URL: result.URL, Thumbnail: up.Thumbnail, Caption: up.Caption}
	case KindVoice:
		content = model.VoiceContent{URL: result.URL, Duration: up.Duration}
	}

	msg, err := s.messages.SendContent(ctx, conv, sender, content)
	if err != nil {
		// Do not leave an orphaned blob behind
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			log.WithError(delErr).WithField("key", key).Warn("⚠️ Failed to remove orphaned attachment")
		}
		return nil, err
	}
	return msg, nil
}

// ObjectKey builds chats/{chatId}/{kind}/{unixMillis}_{random}.{ext}
func (s *AttachmentService) ObjectKey(conversationID string, kind AttachmentKind, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if ext == "" {
		ext = defaultExt(kind)
	}
	return fmt.Sprintf("chats/%s/%s/%d_%s%s", conversationID, kind, s.clock.now().UnixMilli(), suffix, ext)
}

func defaultExt(kind AttachmentKind) string {
	switch kind {
	case KindImage:
		return ".jpg"
	case KindVideo:
		return ".mp4"
	default:
		return ".m4a"
	}
}

func allowed(kind AttachmentKind, contentType string) bool {
	ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, t := range allowedTypes[kind] {
		if t == ct {
			return true
		}
	}
	return false
}
