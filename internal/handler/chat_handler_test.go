package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quocanhngo/tripzi/internal/model"
)

func TestChatHandler_GetOrCreateDirect(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, minh, http.MethodPost, "/api/v1/conversations/direct", model.DirectConversationRequest{UserID: "ngoc"})
	requireStatus(t, w, http.StatusOK)
	first := decodeBody[model.DirectConversationResponse](t, w)
	assert.True(t, first.IsNew)
	assert.Equal(t, model.DirectConversationID("minh", "ngoc"), first.Conversation.ID)
	assert.Equal(t, "Ngoc", first.Conversation.ParticipantDetails["ngoc"].DisplayName)

	w = e.do(t, ngoc, http.MethodPost, "/api/v1/conversations/direct", model.DirectConversationRequest{UserID: "minh"})
	requireStatus(t, w, http.StatusOK)
	second := decodeBody[model.DirectConversationResponse](t, w)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
}

func TestChatHandler_GetOrCreateDirectRejects(t *testing.T) {
	e := newEnv(t)

	requireStatus(t, e.do(t, minh, http.MethodPost, "/api/v1/conversations/direct", model.DirectConversationRequest{UserID: "minh"}), http.StatusBadRequest)
	requireStatus(t, e.do(t, minh, http.MethodPost, "/api/v1/conversations/direct", map[string]string{}), http.StatusBadRequest)
	w := e.do(t, minh, http.MethodPost, "/api/v1/conversations/direct", model.DirectConversationRequest{UserID: "nobody"})
	assert.NotEqual(t, http.StatusOK, w.Code)
}

// A caller without a stored profile still gets a conversation, named
// after the token claims
func TestChatHandler_MissingProfileFallsBackToClaims(t *testing.T) {
	e := newEnv(t)
	lan := &model.User{ID: "lan", DisplayName: "Lan", Email: "lan@tripzi.test"}

	w := e.do(t, lan, http.MethodPost, "/api/v1/conversations/direct", model.DirectConversationRequest{UserID: "ngoc"})
	requireStatus(t, w, http.StatusOK)
	resp := decodeBody[model.DirectConversationResponse](t, w)
	assert.Equal(t, "Lan", resp.Conversation.ParticipantDetails["lan"].DisplayName)
}

func TestChatHandler_ListAndGet(t *testing.T) {
	e := newEnv(t)
	conv := e.direct(t, minh, ngoc)
	e.direct(t, minh, phuc)

	w := e.do(t, minh, http.MethodGet, "/api/v1/conversations", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Len(t, decodeBody[[]model.Conversation](t, w), 2)

	w = e.do(t, ngoc, http.MethodGet, "/api/v1/conversations", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Len(t, decodeBody[[]model.Conversation](t, w), 1)

	requireStatus(t, e.do(t, ngoc, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil), http.StatusOK)
	requireStatus(t, e.do(t, phuc, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil), http.StatusForbidden)
	requireStatus(t, e.do(t, phuc, http.MethodGet, "/api/v1/conversations/missing", nil), http.StatusNotFound)
}

func TestChatHandler_Groups(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, minh, http.MethodPost, "/api/v1/conversations", model.CreateGroupRequest{
		Name:      "Da Lat trip",
		MemberIDs: []string{"ngoc", "phuc"},
	})
	requireStatus(t, w, http.StatusCreated)
	group := decodeBody[model.Conversation](t, w)
	assert.Equal(t, model.ConversationTypeGroup, group.Type)
	assert.Equal(t, model.RoleAdmin, group.ParticipantDetails["minh"].Role)
	assert.Len(t, group.Participants, 3)

	requireStatus(t, e.do(t, ngoc, http.MethodDelete, "/api/v1/conversations/"+group.ID, nil), http.StatusForbidden)
	requireStatus(t, e.do(t, minh, http.MethodDelete, "/api/v1/conversations/"+group.ID, nil), http.StatusOK)
	requireStatus(t, e.do(t, minh, http.MethodGet, "/api/v1/conversations/"+group.ID, nil), http.StatusNotFound)

	conv := e.direct(t, minh, ngoc)
	requireStatus(t, e.do(t, minh, http.MethodDelete, "/api/v1/conversations/"+conv.ID, nil), http.StatusBadRequest)

	w = e.do(t, minh, http.MethodPost, "/api/v1/conversations", model.CreateGroupRequest{Name: "Solo", MemberIDs: []string{"minh"}})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestChatHandler_Flags(t *testing.T) {
	e := newEnv(t)
	conv := e.direct(t, minh, ngoc)
	on, off := true, false

	requireStatus(t, e.do(t, minh, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/mute", model.FlagRequest{Enabled: &on}), http.StatusOK)
	requireStatus(t, e.do(t, minh, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/pin", model.FlagRequest{Enabled: &on}), http.StatusOK)

	w := e.do(t, minh, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	got := decodeBody[model.Conversation](t, w)
	assert.True(t, got.IsMutedBy("minh"))
	assert.True(t, got.IsPinnedBy("minh"))

	requireStatus(t, e.do(t, minh, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/mute", model.FlagRequest{Enabled: &off}), http.StatusOK)
	got = decodeBody[model.Conversation](t, e.do(t, minh, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil))
	assert.False(t, got.IsMutedBy("minh"))
	assert.True(t, got.IsPinnedBy("minh"))

	requireStatus(t, e.do(t, minh, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/mute", map[string]string{}), http.StatusBadRequest)
	requireStatus(t, e.do(t, phuc, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/pin", model.FlagRequest{Enabled: &on}), http.StatusForbidden)
}
