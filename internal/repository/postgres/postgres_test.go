package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

func newMock(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewBaseRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestConversationCreate(t *testing.T) {
	base, mock := newMock(t)
	repo := NewConversationRepository(base)

	u1, a1 := uuid.New(), uuid.New()
	c := &model.Conversation{Members: []model.Membership{
		{MemberID: u1, MemberType: model.MemberTypeUser},
		{MemberID: a1, MemberType: model.MemberTypeAdmin},
	}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO conversations`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO conversation_members`)).
		WithArgs(sqlmock.AnyArg(), u1, "USER", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO conversation_members`)).
		WithArgs(sqlmock.AnyArg(), a1, "ADMIN", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), c))
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, c.ID, c.Members[1].ConversationID)
}

func TestConversationCreateRollsBack(t *testing.T) {
	base, mock := newMock(t)
	repo := NewConversationRepository(base)

	c := &model.Conversation{Members: []model.Membership{
		{MemberID: uuid.New(), MemberType: model.MemberTypeUser},
	}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO conversations`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO conversation_members`)).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	assert.Error(t, repo.Create(context.Background(), c))
}

func TestConversationGetNotFound(t *testing.T) {
	base, mock := newMock(t)
	repo := NewConversationRepository(base)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, created_at FROM conversations`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConversationGetLoadsMembers(t *testing.T) {
	base, mock := newMock(t)
	repo := NewConversationRepository(base)

	id, u1 := uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, created_at FROM conversations`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(id.String(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM conversation_members`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id", "member_id", "member_type"}).
			AddRow(id.String(), u1.String(), "USER"))

	c, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, c.Members, 1)
	assert.Equal(t, model.MemberTypeUser, c.Members[0].MemberType)
}

func TestIsMember(t *testing.T) {
	base, mock := newMock(t)
	repo := NewConversationRepository(base)

	conv, u1 := uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(conv, u1, "ADMIN").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.IsMember(context.Background(), conv, model.Participant{ID: u1, Type: model.MemberTypeAdmin})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageCreateUsesDatabaseClock(t *testing.T) {
	base, mock := newMock(t)
	repo := NewMessageRepository(base)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	m := &model.Message{
		ConversationID: uuid.New(),
		AuthorID:       uuid.New(),
		AuthorType:     model.MemberTypeUser,
		Content:        "hello",
		Type:           model.MessageTypeText,
	}
	require.NoError(t, repo.Create(context.Background(), m))
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.Equal(t, created, m.CreatedAt)
}

func TestListByConversation(t *testing.T) {
	base, mock := newMock(t)
	repo := NewMessageRepository(base)

	conv := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM messages`)).
		WithArgs(conv).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at ASC, id ASC`)).
		WithArgs(conv, 50, 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "conversation_id", "author_id", "author_type", "content", "type", "reply_to_id", "attachments", "created_at",
		}).AddRow(uuid.New().String(), conv.String(), uuid.New().String(), "USER", "hi", "TEXT", nil, []byte(`[]`), time.Now()))

	msgs, total, err := repo.ListByConversation(context.Background(), conv, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, 120, total)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].ReplyToID)
}

func TestParticipantGet(t *testing.T) {
	base, mock := newMock(t)
	repo := NewParticipantRepository(base)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name FROM admins WHERE id = $1 AND deleted_at IS NULL`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(id.String(), "Ana"))

	a, err := repo.Get(context.Background(), model.Participant{ID: id, Type: model.MemberTypeAdmin})
	require.NoError(t, err)
	assert.Equal(t, "Ana", a.Name)
	assert.Equal(t, model.MemberTypeAdmin, a.Type)
}

func TestParticipantExistsMissing(t *testing.T) {
	base, mock := newMock(t)
	repo := NewParticipantRepository(base)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	ok, err := repo.Exists(context.Background(), model.Participant{ID: uuid.New(), Type: model.MemberTypeUser})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParticipantUnknownType(t *testing.T) {
	base, _ := newMock(t)
	repo := NewParticipantRepository(base)

	_, err := repo.Get(context.Background(), model.Participant{ID: uuid.New(), Type: "BOT"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}

func TestNotificationCreateOnce(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)

	n := &model.Notification{
		UserID: uuid.New(),
		Title:  "New message from Ana",
		Body:   "hello",
		Data:   model.NotificationData{Type: model.NotificationTypeNewMessage, MessageID: uuid.New()},
	}
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (message_id, user_id) DO NOTHING`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	created, err := repo.CreateOnce(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestNotificationCreateOnceReturnsExisting(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)

	existing := uuid.New()
	n := &model.Notification{
		UserID: uuid.New(),
		Data:   model.NotificationData{Type: model.NotificationTypeNewMessage, MessageID: uuid.New()},
	}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO notifications`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM notifications`)).
		WithArgs(n.Data.MessageID, n.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "body", "data", "created_at"}).
			AddRow(existing.String(), n.UserID.String(), "t", "b", []byte(`{"type":"new_message"}`), time.Now()))

	created, err := repo.CreateOnce(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing, n.ID)
}

func TestAuditExistsForTarget(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAuditRepository(base)

	target := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM audit_actions`)).
		WithArgs(model.AuditActionPush, target).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ExistsForTarget(context.Background(), model.AuditActionPush, target)
	require.NoError(t, err)
	assert.True(t, ok)
}
