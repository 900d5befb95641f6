package services

import (
	"testing"

	"github.com/google/uuid"
	apiError "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	known map[uuid.UUID]*models.User
}

func (s *stubVerifier) VerifyToken(token string) (*models.User, *apiError.Error) {
	return nil, apiError.ErrUnauthorized
}

func (s *stubVerifier) Lookup(id uuid.UUID) (*models.User, *apiError.Error) {
	if u, ok := s.known[id]; ok {
		return u, nil
	}
	return nil, apiError.NotFound("user not found")
}

func (s *stubVerifier) ExistAll(ids []uuid.UUID) (bool, *apiError.Error) {
	for _, id := range ids {
		if _, ok := s.known[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *stubVerifier) SetOnline(id uuid.UUID, online bool) {}

func knowing(users ...uuid.UUID) *stubVerifier {
	known := make(map[uuid.UUID]*models.User, len(users))
	for _, id := range users {
		known[id] = &models.User{ID: id, Email: id.String() + "@example.com"}
	}
	return &stubVerifier{known: known}
}

func TestFindOrCreateDirectRejectsSelf(t *testing.T) {
	me := uuid.New()
	svc := NewConversationService(&stubConversationRepo{}, &stubMessageRepo{}, knowing(me))

	_, _, apiErr := svc.FindOrCreateDirect(me, me)
	require.NotNil(t, apiErr)
	require.Equal(t, 400, apiErr.Status)
}

func TestFindOrCreateDirectRejectsUnknownParticipant(t *testing.T) {
	me := uuid.New()
	svc := NewConversationService(&stubConversationRepo{}, &stubMessageRepo{}, knowing(me))

	_, _, apiErr := svc.FindOrCreateDirect(me, uuid.New())
	require.NotNil(t, apiErr)
	require.Equal(t, 400, apiErr.Status)
}

func TestFindOrCreateDirectReturnsSummary(t *testing.T) {
	me := uuid.New()
	other := uuid.New()
	conv := &models.Conversation{
		ID:           uuid.New(),
		Participants: []models.User{{ID: me}, {ID: other}},
	}
	svc := NewConversationService(&stubConversationRepo{conv: conv}, &stubMessageRepo{}, knowing(me, other))

	summary, created, apiErr := svc.FindOrCreateDirect(me, other)
	require.Nil(t, apiErr)
	require.False(t, created)
	require.Equal(t, conv.ID, summary.ID)
	require.Len(t, summary.Participants, 2)
}

func TestCreateGroupRejectsEmptyTitle(t *testing.T) {
	creator := uuid.New()
	svc := NewConversationService(&stubConversationRepo{}, &stubMessageRepo{}, knowing(creator))

	_, apiErr := svc.CreateGroup(creator, []uuid.UUID{uuid.New(), uuid.New()}, "   ")
	require.NotNil(t, apiErr)
	require.Equal(t, 400, apiErr.Status)
}

func TestCreateGroupRejectsTooFewMembers(t *testing.T) {
	creator := uuid.New()
	other := uuid.New()
	svc := NewConversationService(&stubConversationRepo{}, &stubMessageRepo{}, knowing(creator, other))

	// Duplicates and the creator's own id collapse to a pair.
	_, apiErr := svc.CreateGroup(creator, []uuid.UUID{other, other, creator}, "Alterations")
	require.NotNil(t, apiErr)
	require.Equal(t, 400, apiErr.Status)
}

func TestCreateGroupRejectsUnknownMember(t *testing.T) {
	creator := uuid.New()
	other := uuid.New()
	svc := NewConversationService(&stubConversationRepo{}, &stubMessageRepo{}, knowing(creator, other))

	_, apiErr := svc.CreateGroup(creator, []uuid.UUID{other, uuid.New()}, "Alterations")
	require.NotNil(t, apiErr)
	require.Equal(t, 400, apiErr.Status)
}

func TestCreateGroup(t *testing.T) {
	creator := uuid.New()
	a := uuid.New()
	b := uuid.New()
	repo := &stubConversationRepo{}
	svc := NewConversationService(repo, &stubMessageRepo{}, knowing(creator, a, b))

	summary, apiErr := svc.CreateGroup(creator, []uuid.UUID{a, b}, "Alterations")
	require.Nil(t, apiErr)
	require.True(t, summary.IsGroup)
	require.Equal(t, "Alterations", summary.Title)
	require.NotNil(t, repo.createdGroup)
}

func TestGetByIDRejectsNonParticipant(t *testing.T) {
	member := uuid.New()
	conv := &models.Conversation{ID: uuid.New(), Participants: []models.User{{ID: member}}}
	svc := NewConversationService(&stubConversationRepo{conv: conv}, &stubMessageRepo{}, knowing(member))

	_, apiErr := svc.GetByID(conv.ID, uuid.New())
	require.NotNil(t, apiErr)
	require.Equal(t, 403, apiErr.Status)
}

func TestGetByIDMissing(t *testing.T) {
	svc := NewConversationService(&stubConversationRepo{}, &stubMessageRepo{}, knowing())

	_, apiErr := svc.GetByID(uuid.New(), uuid.New())
	require.NotNil(t, apiErr)
	require.Equal(t, 404, apiErr.Status)
}

func TestDeleteByIDReturnsParticipantsForNotice(t *testing.T) {
	member := uuid.New()
	peer := uuid.New()
	conv := &models.Conversation{ID: uuid.New(), Participants: []models.User{{ID: member}, {ID: peer}}}
	repo := &stubConversationRepo{conv: conv}
	svc := NewConversationService(repo, &stubMessageRepo{}, knowing(member, peer))

	participants, apiErr := svc.DeleteByID(conv.ID, member)
	require.Nil(t, apiErr)
	require.ElementsMatch(t, []uuid.UUID{member, peer}, participants)
	require.Equal(t, []uuid.UUID{conv.ID}, repo.deleted)
}

func TestDeleteByIDRejectsNonParticipant(t *testing.T) {
	member := uuid.New()
	conv := &models.Conversation{ID: uuid.New(), Participants: []models.User{{ID: member}}}
	repo := &stubConversationRepo{conv: conv}
	svc := NewConversationService(repo, &stubMessageRepo{}, knowing(member))

	_, apiErr := svc.DeleteByID(conv.ID, uuid.New())
	require.NotNil(t, apiErr)
	require.Equal(t, 403, apiErr.Status)
	require.Empty(t, repo.deleted)
}

func TestListForIdentityIncludesLastMessagePreview(t *testing.T) {
	member := uuid.New()
	lastID := uuid.New()
	conv := &models.Conversation{
		ID:            uuid.New(),
		Participants:  []models.User{{ID: member}},
		LastMessageID: &lastID,
		MessageCount:  4,
	}
	msgRepo := &stubMessageRepo{byID: map[uuid.UUID]*models.Message{
		lastID: {ID: lastID, SenderID: member, Content: "latest"},
	}}
	svc := NewConversationService(&stubConversationRepo{conv: conv}, msgRepo, knowing(member))

	summaries, apiErr := svc.ListForIdentity(member)
	require.Nil(t, apiErr)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LastMessage)
	require.Equal(t, "latest", summaries[0].LastMessage.Content)
	require.Equal(t, int64(4), summaries[0].MessageCount)
}

func TestDirectPairKeyIsOrderIndependent(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	require.Equal(t, models.DirectPairKey(a, b), models.DirectPairKey(b, a))
	require.NotEqual(t, models.DirectPairKey(a, b), models.DirectPairKey(a, uuid.New()))
}
