package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/needle360/messaging/config"
	errs "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/needle360/messaging/realtime"
	"github.com/stretchr/testify/require"
)

const goodToken = "good-token"

type stubIdentity struct {
	user *models.User
}

func (s *stubIdentity) VerifyToken(token string) (*models.User, *errs.Error) {
	if token == goodToken && s.user != nil {
		return s.user, nil
	}
	return nil, errs.New("invalid or expired token", http.StatusUnauthorized)
}

func (s *stubIdentity) Lookup(id uuid.UUID) (*models.User, *errs.Error) {
	if s.user != nil && s.user.ID == id {
		return s.user, nil
	}
	return nil, errs.NotFound("user not found")
}

func (s *stubIdentity) ExistAll(ids []uuid.UUID) (bool, *errs.Error) {
	return true, nil
}

func (s *stubIdentity) SetOnline(id uuid.UUID, online bool) {}

type stubConversations struct {
	summary       *models.ConversationSummary
	created       bool
	isParticipant bool
	participants  []uuid.UUID
	apiErr        *errs.Error
}

func (s *stubConversations) FindOrCreateDirect(requesterID, participantID uuid.UUID) (*models.ConversationSummary, bool, *errs.Error) {
	return s.summary, s.created, s.apiErr
}

func (s *stubConversations) CreateGroup(creatorID uuid.UUID, memberIDs []uuid.UUID, title string) (*models.ConversationSummary, *errs.Error) {
	return s.summary, s.apiErr
}

func (s *stubConversations) ListForIdentity(userID uuid.UUID) ([]models.ConversationSummary, *errs.Error) {
	if s.summary == nil {
		return nil, s.apiErr
	}
	return []models.ConversationSummary{*s.summary}, s.apiErr
}

func (s *stubConversations) GetByID(conversationID, requesterID uuid.UUID) (*models.ConversationSummary, *errs.Error) {
	return s.summary, s.apiErr
}

func (s *stubConversations) DeleteByID(conversationID, requesterID uuid.UUID) ([]uuid.UUID, *errs.Error) {
	return s.participants, s.apiErr
}

func (s *stubConversations) IsParticipant(conversationID, requesterID uuid.UUID) (bool, *errs.Error) {
	return s.isParticipant, nil
}

func (s *stubConversations) ParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, *errs.Error) {
	return s.participants, nil
}

func (s *stubConversations) Summary(conversationID uuid.UUID) (*models.ConversationSummary, *errs.Error) {
	if s.summary == nil {
		return &models.ConversationSummary{ID: conversationID}, nil
	}
	return s.summary, nil
}

type stubMessages struct {
	gotAfter  int64
	gotLimit  int
	page      *models.MessagePage
	appendErr *errs.Error
	deleteErr *errs.Error
	deleted   *models.Message
}

func (s *stubMessages) Append(senderID, conversationID uuid.UUID, req models.SendMessageRequest) (*models.Message, *errs.Error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	return &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Seq:            1,
		Content:        req.Content,
		ClientID:       req.ClientID,
		ReadBy:         []uuid.UUID{senderID},
	}, nil
}

func (s *stubMessages) Page(requesterID, conversationID uuid.UUID, afterSeq int64, limit int) (*models.MessagePage, *errs.Error) {
	s.gotAfter = afterSeq
	s.gotLimit = limit
	if s.page == nil {
		return &models.MessagePage{}, nil
	}
	return s.page, nil
}

func (s *stubMessages) MarkRead(readerID, conversationID uuid.UUID, throughMessageID *uuid.UUID) ([]uuid.UUID, *errs.Error) {
	return nil, nil
}

func (s *stubMessages) DeleteByID(messageID, requesterID uuid.UUID) (*models.Message, *errs.Error) {
	if s.deleteErr != nil {
		return nil, s.deleteErr
	}
	return s.deleted, nil
}

type testEnv struct {
	server   *Server
	router   *gin.Engine
	user     *models.User
	convs    *stubConversations
	messages *stubMessages
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("GIN_MODE", "test")
	gin.SetMode(gin.TestMode)

	user := &models.User{ID: uuid.New(), Fullname: "Alice", Email: "alice@example.com", Role: models.RoleCustomer}
	identity := &stubIdentity{user: user}
	convs := &stubConversations{isParticipant: true}
	messages := &stubMessages{}

	hub := realtime.NewHub(convs, identity)
	coordinator := realtime.NewCoordinator(messages, convs, hub)
	relay := realtime.NewRelay(hub)

	s := &Server{
		Config:              &config.Config{EventRelayToken: "relay-secret"},
		IdentityVerifier:    identity,
		ConversationService: convs,
		MessageService:      messages,
		Hub:                 hub,
		Coordinator:         coordinator,
		Relay:               relay,
	}
	return &testEnv{
		server:   s,
		router:   s.setupRouter(),
		user:     user,
		convs:    convs,
		messages: messages,
	}
}

func (e *testEnv) request(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+goodToken)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/v1/conversations", "", false)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRejectBadToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateConversationNewPair(t *testing.T) {
	env := newTestEnv(t)
	other := uuid.New()
	env.convs.summary = &models.ConversationSummary{
		ID:           uuid.New(),
		Participants: []models.ParticipantSummary{{ID: env.user.ID}, {ID: other}},
	}
	env.convs.created = true

	w := env.request(t, http.MethodPost, "/api/v1/conversations",
		`{"participant_id":"`+other.String()+`"}`, true)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), env.convs.summary.ID.String())
}

func TestCreateConversationExistingPair(t *testing.T) {
	env := newTestEnv(t)
	env.convs.summary = &models.ConversationSummary{ID: uuid.New()}
	env.convs.created = false

	w := env.request(t, http.MethodPost, "/api/v1/conversations",
		`{"participant_id":"`+uuid.NewString()+`"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateConversationValidatesBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/conversations", `{"participant_id":"not-a-uuid"}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGroupValidatesMemberCount(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/conversations/group",
		`{"participant_ids":["`+uuid.NewString()+`"],"title":"Fittings"}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListConversations(t *testing.T) {
	env := newTestEnv(t)
	env.convs.summary = &models.ConversationSummary{ID: uuid.New()}

	w := env.request(t, http.MethodGet, "/api/v1/conversations", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), env.convs.summary.ID.String())
}

func TestGetMessagesParsesCursorQuery(t *testing.T) {
	env := newTestEnv(t)
	convID := uuid.New()

	w := env.request(t, http.MethodGet,
		"/api/v1/conversations/"+convID.String()+"/messages?after=12&limit=5", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(12), env.messages.gotAfter)
	require.Equal(t, 5, env.messages.gotLimit)
}

func TestGetMessagesRejectsBadConversationID(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/v1/conversations/nope/messages", "", true)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessageOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	convID := uuid.New()

	w := env.request(t, http.MethodPost,
		"/api/v1/conversations/"+convID.String()+"/messages",
		`{"content":"two meters of linen","client_id":"tmp-1"}`, true)
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Data models.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "two meters of linen", body.Data.Content)
	require.Equal(t, "tmp-1", body.Data.ClientID)
	require.Equal(t, env.user.ID, body.Data.SenderID)
}

func TestSendMessagePropagatesServiceError(t *testing.T) {
	env := newTestEnv(t)
	env.messages.appendErr = errs.Forbidden("you are not a participant in this conversation")

	w := env.request(t, http.MethodPost,
		"/api/v1/conversations/"+uuid.NewString()+"/messages",
		`{"content":"hi"}`, true)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestMarkReadAcceptsEmptyBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost,
		"/api/v1/conversations/"+uuid.NewString()+"/read", "", true)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteMessageForbiddenForNonSender(t *testing.T) {
	env := newTestEnv(t)
	env.messages.deleteErr = errs.Forbidden("you can only delete your own messages")

	w := env.request(t, http.MethodDelete, "/api/v1/messages/"+uuid.NewString(), "", true)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	env.messages.deleted = &models.Message{ID: uuid.New(), ConversationID: uuid.New(), SenderID: env.user.ID}

	w := env.request(t, http.MethodDelete, "/api/v1/messages/"+env.messages.deleted.ID.String(), "", true)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDomainEventRequiresRelayToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/events",
		`{"user_id":"`+uuid.NewString()+`","event_type":"orderStatusUpdated"}`, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDomainEventAccepted(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
		strings.NewReader(`{"user_id":"`+uuid.NewString()+`","event_type":"orderStatusUpdated","payload":{"order_id":"123"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer relay-secret")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestDomainEventValidatesBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"event_type":"orderDeleted"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer relay-secret")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebSocketRejectsUnauthenticatedHandshake(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketSessionRejectsUnknownOp(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + goodToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"typing","data":{}}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt struct {
		Type string `json:"type"`
		Data struct {
			Message string `json:"message"`
			Status  int    `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &evt))
	require.Equal(t, "error", evt.Type)
	require.Contains(t, evt.Data.Message, "unknown op")
}

func TestWebSocketJoinRefusedForNonParticipant(t *testing.T) {
	env := newTestEnv(t)
	env.convs.isParticipant = false
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + goodToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := `{"op":"join_room","data":{"conversation_id":"` + uuid.NewString() + `"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt struct {
		Type string `json:"type"`
		Data struct {
			Status int `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &evt))
	require.Equal(t, "error", evt.Type)
	require.Equal(t, http.StatusForbidden, evt.Data.Status)
}
