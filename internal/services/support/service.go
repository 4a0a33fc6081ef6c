package support

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/broker/messages"
	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/AuroraCargo/CargoPort/internal/storage/pgportal"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateConversation(ctx context.Context, in pgportal.ConversationCreateInput) (*models.Conversation, *models.SupportMessage, error)
	AppendMessage(ctx context.Context, in pgportal.MessageAppendInput) (*models.SupportMessage, error)
	GetConversation(ctx context.Context, id uint64) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID uint64, limit, offset int) ([]*models.SupportMessage, error)
	MarkMessagesRead(ctx context.Context, conversationID uint64, perspective models.Perspective) (int64, error)
	UnreadCounts(ctx context.Context, conversationID uint64) (forCustomer, forAdmin int64, err error)
	SetConversationStatus(ctx context.Context, conversationID uint64, status string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo         Repository
	producer     Producer
	changesTopic string
}

func New(repo Repository, producer Producer, changesTopic string) *Service {
	return &Service{repo: repo, producer: producer, changesTopic: changesTopic}
}

type StartInput struct {
	Title        string
	FirstMessage string

	// Для гостя без аккаунта.
	GuestName  string
	GuestEmail string
}

// Start создаёт тред первым сообщением. Авторизованный клиент пишет от
// себя; гость обязан оставить email — это его единственный идентификатор.
func (s *Service) Start(ctx context.Context, actor models.Actor, in StartInput) (*models.Conversation, *models.SupportMessage, error) {
	if in.Title == "" {
		return nil, nil, errors.Wrap(models.ErrValidation, "title is required")
	}
	if in.FirstMessage == "" {
		return nil, nil, errors.Wrap(models.ErrValidation, "message is required")
	}

	repoIn := pgportal.ConversationCreateInput{
		Title:        in.Title,
		FirstMessage: in.FirstMessage,
	}
	if actor.IsGuest() {
		if in.GuestEmail == "" {
			return nil, nil, errors.Wrap(models.ErrValidation, "guest email is required")
		}
		repoIn.GuestEmail = &in.GuestEmail
		if in.GuestName != "" {
			repoIn.GuestName = &in.GuestName
		}
	} else {
		uid := actor.UserID
		repoIn.UserID = &uid
	}

	conv, msg, err := s.repo.CreateConversation(ctx, repoIn)
	if err != nil {
		return nil, nil, err
	}

	convID := conv.ID
	s.publishChange(ctx, messages.RowChanged{
		Table:  feed.TableConversations,
		Op:     string(feed.OpInsert),
		RowID:  conv.ID,
		UserID: conv.UserID,
	})
	s.publishChange(ctx, messages.RowChanged{
		Table:          feed.TableMessages,
		Op:             string(feed.OpInsert),
		RowID:          msg.ID,
		ConversationID: &convID,
		UserID:         conv.UserID,
	})
	return conv, msg, nil
}

// Append добавляет сообщение в тред. Ответ админа владельцу кладёт
// уведомление той же транзакцией, что и сообщение.
func (s *Service) Append(ctx context.Context, actor models.Actor, conversationID uint64, content string) (*models.SupportMessage, error) {
	if content == "" {
		return nil, errors.Wrap(models.ErrValidation, "message is required")
	}

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, conv); err != nil {
		return nil, err
	}

	in := pgportal.MessageAppendInput{
		ConversationID: conversationID,
		IsAdmin:        actor.IsAdmin,
		Content:        content,
	}
	if actor.UserID != 0 {
		uid := actor.UserID
		in.SenderID = &uid
	}
	if actor.IsAdmin && conv.UserID != nil {
		in.NotifyUserID = conv.UserID
		in.NotifyTitle = "New support reply"
		in.NotifyContent = fmt.Sprintf("Support replied in %q.", conv.Title)
	}

	msg, err := s.repo.AppendMessage(ctx, in)
	if err != nil {
		return nil, err
	}

	convID := conv.ID
	s.publishChange(ctx, messages.RowChanged{
		Table:          feed.TableMessages,
		Op:             string(feed.OpInsert),
		RowID:          msg.ID,
		ConversationID: &convID,
		UserID:         conv.UserID,
	})
	s.publishChange(ctx, messages.RowChanged{
		Table:  feed.TableConversations,
		Op:     string(feed.OpUpdate),
		RowID:  conv.ID,
		UserID: conv.UserID,
	})
	if in.NotifyUserID != nil {
		s.publishChange(ctx, messages.RowChanged{
			Table:  feed.TableNotifications,
			Op:     string(feed.OpInsert),
			UserID: in.NotifyUserID,
		})
	}
	return msg, nil
}

// AppendAsGuest — продолжение гостевого треда: вместо аккаунта
// сверяем email треда.
func (s *Service) AppendAsGuest(ctx context.Context, conversationID uint64, guestName, guestEmail, content string) (*models.SupportMessage, error) {
	if content == "" {
		return nil, errors.Wrap(models.ErrValidation, "message is required")
	}
	if guestEmail == "" {
		return nil, errors.Wrap(models.ErrValidation, "guest email is required")
	}

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != nil || conv.GuestEmail == nil || *conv.GuestEmail != guestEmail {
		return nil, errors.Wrap(models.ErrUnauthorized, "not your conversation")
	}

	in := pgportal.MessageAppendInput{
		ConversationID: conversationID,
		Content:        content,
		GuestEmail:     &guestEmail,
	}
	if guestName != "" {
		in.GuestName = &guestName
	}

	msg, err := s.repo.AppendMessage(ctx, in)
	if err != nil {
		return nil, err
	}

	convID := conv.ID
	s.publishChange(ctx, messages.RowChanged{
		Table:          feed.TableMessages,
		Op:             string(feed.OpInsert),
		RowID:          msg.ID,
		ConversationID: &convID,
	})
	s.publishChange(ctx, messages.RowChanged{
		Table: feed.TableConversations,
		Op:    string(feed.OpUpdate),
		RowID: conv.ID,
	})
	return msg, nil
}

func (s *Service) ListConversations(ctx context.Context, actor models.Actor, limit, offset int) ([]*models.Conversation, error) {
	if actor.IsAdmin {
		return s.repo.ListConversations(ctx, nil, limit, offset)
	}
	if actor.IsGuest() {
		return nil, errors.Wrap(models.ErrUnauthorized, "sign in to list conversations")
	}
	uid := actor.UserID
	return s.repo.ListConversations(ctx, &uid, limit, offset)
}

type Thread struct {
	Conversation *models.Conversation
	Messages     []*models.SupportMessage

	UnreadForCustomer int64
	UnreadForAdmin    int64
}

func (s *Service) GetThread(ctx context.Context, actor models.Actor, conversationID uint64) (*Thread, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, conv); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID, 0, 0)
	if err != nil {
		return nil, err
	}
	forCustomer, forAdmin, err := s.repo.UnreadCounts(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &Thread{Conversation: conv, Messages: msgs, UnreadForCustomer: forCustomer, UnreadForAdmin: forAdmin}, nil
}

// MarkRead помечает прочитанными сообщения противоположной стороны.
// Перспектива выводится из актора, свои сообщения не трогаются.
func (s *Service) MarkRead(ctx context.Context, actor models.Actor, conversationID uint64) error {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := s.authorize(actor, conv); err != nil {
		return err
	}

	perspective := models.PerspectiveCustomer
	if actor.IsAdmin {
		perspective = models.PerspectiveAdmin
	}
	n, err := s.repo.MarkMessagesRead(ctx, conversationID, perspective)
	if err != nil {
		return err
	}
	if n > 0 {
		convID := conv.ID
		s.publishChange(ctx, messages.RowChanged{
			Table:          feed.TableMessages,
			Op:             string(feed.OpUpdate),
			RowID:          conv.ID,
			ConversationID: &convID,
			UserID:         conv.UserID,
		})
	}
	return nil
}

func (s *Service) SetStatus(ctx context.Context, actor models.Actor, conversationID uint64, status string) error {
	if !actor.IsAdmin {
		return errors.Wrap(models.ErrUnauthorized, "conversation status is admin-only")
	}
	if status != models.ConversationStatusOpen && status != models.ConversationStatusClosed {
		return errors.Wrapf(models.ErrValidation, "unknown conversation status %q", status)
	}
	if err := s.repo.SetConversationStatus(ctx, conversationID, status); err != nil {
		return err
	}
	s.publishChange(ctx, messages.RowChanged{
		Table: feed.TableConversations,
		Op:    string(feed.OpUpdate),
		RowID: conversationID,
	})
	return nil
}

// Админ видит всё; клиент — только свой тред. Гостевой тред через
// авторизованные ручки недоступен, для него AppendAsGuest.
func (s *Service) authorize(actor models.Actor, conv *models.Conversation) error {
	if actor.IsAdmin {
		return nil
	}
	if conv.UserID != nil && actor.UserID == *conv.UserID {
		return nil
	}
	return errors.Wrap(models.ErrUnauthorized, "not your conversation")
}

func (s *Service) publishChange(ctx context.Context, rc messages.RowChanged) {
	if s.producer == nil || s.changesTopic == "" {
		return
	}
	if rc.At.IsZero() {
		rc.At = time.Now().UTC()
	}
	b, err := json.Marshal(rc)
	if err != nil {
		slog.Warn("marshal row change", "error", err.Error())
		return
	}
	key := []byte(fmt.Sprintf("%s:%d", rc.Table, rc.RowID))
	if err := s.producer.Publish(ctx, s.changesTopic, key, b); err != nil {
		slog.Warn("publish row change", "table", rc.Table, "row_id", rc.RowID, "error", err.Error())
	}
}
