package pgportal

import (
	"context"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type ConversationCreateInput struct {
	UserID     *uint64
	GuestName  *string
	GuestEmail *string

	Title        string
	FirstMessage string
}

// CreateConversation создаёт тред вместе с первым сообщением одной
// транзакцией. Для гостя user_id NULL, сообщение несёт guest_name и
// guest_email.
func (s *Storage) CreateConversation(ctx context.Context, in ConversationCreateInput) (*models.Conversation, *models.SupportMessage, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var conv models.Conversation
	err = tx.QueryRow(ctx, `
INSERT INTO support_conversations (user_id, guest_email, title, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$5)
RETURNING id, user_id, guest_email, title, status, created_at, updated_at
`, in.UserID, in.GuestEmail, in.Title, models.ConversationStatusOpen, now).
		Scan(&conv.ID, &conv.UserID, &conv.GuestEmail, &conv.Title, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, nil, mapPgError(err, "insert conversation")
	}

	var msg models.SupportMessage
	err = tx.QueryRow(ctx, `
INSERT INTO support_messages (
  conversation_id, sender_id, is_admin, content, guest_name, guest_email,
  read_by_customer, read_by_admin, created_at
)
VALUES ($1,$2,FALSE,$3,$4,$5,TRUE,FALSE,$6)
RETURNING id, conversation_id, sender_id, is_admin, content, guest_name, guest_email,
          read_by_customer, read_by_admin, created_at
`, conv.ID, in.UserID, in.FirstMessage, in.GuestName, in.GuestEmail, now).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.IsAdmin, &msg.Content,
			&msg.GuestName, &msg.GuestEmail, &msg.ReadByCustomer, &msg.ReadByAdmin, &msg.CreatedAt)
	if err != nil {
		return nil, nil, mapPgError(err, "insert first message")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "commit tx")
	}
	return &conv, &msg, nil
}

type MessageAppendInput struct {
	ConversationID uint64

	SenderID   *uint64
	IsAdmin    bool
	Content    string
	GuestName  *string
	GuestEmail *string

	// Ответ админа владельцу треда кладёт уведомление в той же
	// транзакции, что и сообщение.
	NotifyUserID  *uint64
	NotifyTitle   string
	NotifyContent string
}

// AppendMessage вставляет сообщение и поднимает updated_at треда той же
// меткой времени — сортировка "самые активные сверху" держится на этом.
func (s *Storage) AppendMessage(ctx context.Context, in MessageAppendInput) (*models.SupportMessage, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE support_conversations SET updated_at = $2 WHERE id = $1
`, in.ConversationID, now)
	if err != nil {
		return nil, errors.Wrap(err, "bump conversation")
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.Wrap(models.ErrNotFound, "conversation for message")
	}

	// Автор видит своё сообщение сразу, флаг его стороны взводим при
	// вставке.
	var msg models.SupportMessage
	err = tx.QueryRow(ctx, `
INSERT INTO support_messages (
  conversation_id, sender_id, is_admin, content, guest_name, guest_email,
  read_by_customer, read_by_admin, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id, conversation_id, sender_id, is_admin, content, guest_name, guest_email,
          read_by_customer, read_by_admin, created_at
`, in.ConversationID, in.SenderID, in.IsAdmin, in.Content, in.GuestName, in.GuestEmail,
		!in.IsAdmin, in.IsAdmin, now).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.IsAdmin, &msg.Content,
			&msg.GuestName, &msg.GuestEmail, &msg.ReadByCustomer, &msg.ReadByAdmin, &msg.CreatedAt)
	if err != nil {
		return nil, mapPgError(err, "insert message")
	}

	if in.NotifyUserID != nil {
		_, err = tx.Exec(ctx, `
INSERT INTO notifications (user_id, title, content, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
`, *in.NotifyUserID, in.NotifyTitle, in.NotifyContent, now)
		if err != nil {
			return nil, mapPgError(err, "insert reply notification")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &msg, nil
}

func (s *Storage) GetConversation(ctx context.Context, id uint64) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRow(ctx, `
SELECT id, user_id, guest_email, title, status, created_at, updated_at
FROM support_conversations
WHERE id = $1
`, id).Scan(&conv.ID, &conv.UserID, &conv.GuestEmail, &conv.Title, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "conversation by id")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select conversation")
	}
	return &conv, nil
}

// ListConversations: userID == nil — все треды (админская консоль),
// сортировка по последней активности.
func (s *Storage) ListConversations(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Conversation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, user_id, guest_email, title, status, created_at, updated_at
FROM support_conversations
WHERE ($1::bigint IS NULL OR user_id = $1)
ORDER BY updated_at DESC, id DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select conversations")
	}
	defer rows.Close()

	out := []*models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.GuestEmail, &conv.Title, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		out = append(out, &conv)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListMessages(ctx context.Context, conversationID uint64, limit, offset int) ([]*models.SupportMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, conversation_id, sender_id, is_admin, content, guest_name, guest_email,
       read_by_customer, read_by_admin, created_at
FROM support_messages
WHERE conversation_id = $1
ORDER BY created_at ASC, id ASC
LIMIT $2 OFFSET $3
`, conversationID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select messages")
	}
	defer rows.Close()

	out := []*models.SupportMessage{}
	for rows.Next() {
		var msg models.SupportMessage
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.IsAdmin, &msg.Content,
			&msg.GuestName, &msg.GuestEmail, &msg.ReadByCustomer, &msg.ReadByAdmin, &msg.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, &msg)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// MarkMessagesRead взводит флаг стороны perspective только на чужих
// сообщениях: клиент помечает админские, админ — клиентские.
func (s *Storage) MarkMessagesRead(ctx context.Context, conversationID uint64, perspective models.Perspective) (int64, error) {
	q := `
UPDATE support_messages
SET read_by_customer = TRUE
WHERE conversation_id = $1 AND is_admin = TRUE AND read_by_customer = FALSE
`
	if perspective == models.PerspectiveAdmin {
		q = `
UPDATE support_messages
SET read_by_admin = TRUE
WHERE conversation_id = $1 AND is_admin = FALSE AND read_by_admin = FALSE
`
	}

	tag, err := s.db.Exec(ctx, q, conversationID)
	if err != nil {
		return 0, errors.Wrap(err, "mark messages read")
	}
	return tag.RowsAffected(), nil
}

// UnreadCounts — непрочитанное с точки зрения каждой из сторон.
func (s *Storage) UnreadCounts(ctx context.Context, conversationID uint64) (forCustomer, forAdmin int64, err error) {
	err = s.db.QueryRow(ctx, `
SELECT
  COUNT(*) FILTER (WHERE is_admin AND NOT read_by_customer),
  COUNT(*) FILTER (WHERE NOT is_admin AND NOT read_by_admin)
FROM support_messages
WHERE conversation_id = $1
`, conversationID).Scan(&forCustomer, &forAdmin)
	if err != nil {
		return 0, 0, errors.Wrap(err, "count unread")
	}
	return forCustomer, forAdmin, nil
}

func (s *Storage) SetConversationStatus(ctx context.Context, conversationID uint64, status string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE support_conversations SET status = $2, updated_at = now() WHERE id = $1
`, conversationID, status)
	if err != nil {
		return errors.Wrap(err, "set conversation status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "conversation for status change")
	}
	return nil
}
