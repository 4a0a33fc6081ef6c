package portalapi

import (
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
)

type shipmentView struct {
	ID             uint64  `json:"id"`
	TrackingNumber string  `json:"trackingNumber"`
	UserID         *uint64 `json:"userId,omitempty"`

	Origin           string   `json:"origin"`
	Destination      string   `json:"destination"`
	WeightKg         float64  `json:"weightKg"`
	PhysicalWeightKg *float64 `json:"physicalWeightKg,omitempty"`
	Volume           string   `json:"volume,omitempty"`
	Quantity         *int32   `json:"quantity,omitempty"`
	Term             string   `json:"term,omitempty"`

	Status          string  `json:"status"`
	CurrentLocation *string `json:"currentLocation,omitempty"`

	SenderName    string `json:"senderName"`
	SenderEmail   string `json:"senderEmail"`
	ReceiverName  string `json:"receiverName"`
	ReceiverEmail string `json:"receiverEmail"`

	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toShipmentView(m *models.Shipment) shipmentView {
	return shipmentView{
		ID:               m.ID,
		TrackingNumber:   m.TrackingNumber,
		UserID:           m.UserID,
		Origin:           m.Origin,
		Destination:      m.Destination,
		WeightKg:         m.WeightKg,
		PhysicalWeightKg: m.PhysicalWeightKg,
		Volume:           m.Volume,
		Quantity:         m.Quantity,
		Term:             m.Term,
		Status:           m.Status,
		CurrentLocation:  m.CurrentLocation,
		SenderName:       m.SenderName,
		SenderEmail:      m.SenderEmail,
		ReceiverName:     m.ReceiverName,
		ReceiverEmail:    m.ReceiverEmail,
		EstimatedDelivery: m.EstimatedDelivery,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toShipmentViews(ms []*models.Shipment) []shipmentView {
	out := make([]shipmentView, 0, len(ms))
	for _, m := range ms {
		out = append(out, toShipmentView(m))
	}
	return out
}

type eventView struct {
	ID          uint64    `json:"id"`
	ShipmentID  uint64    `json:"shipmentId"`
	EventType   string    `json:"eventType"`
	Location    *string   `json:"location,omitempty"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toEventViews(ms []*models.TrackingEvent) []eventView {
	out := make([]eventView, 0, len(ms))
	for _, m := range ms {
		out = append(out, eventView{
			ID:          m.ID,
			ShipmentID:  m.ShipmentID,
			EventType:   m.EventType,
			Location:    m.Location,
			Description: m.Description,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out
}

type notificationView struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func toNotificationViews(ms []*models.Notification) []notificationView {
	out := make([]notificationView, 0, len(ms))
	for _, m := range ms {
		out = append(out, notificationView{
			ID:        m.ID,
			Title:     m.Title,
			Content:   m.Content,
			IsRead:    m.IsRead,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

type conversationView struct {
	ID         uint64  `json:"id"`
	UserID     *uint64 `json:"userId,omitempty"`
	GuestEmail *string `json:"guestEmail,omitempty"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toConversationView(m *models.Conversation) conversationView {
	return conversationView{
		ID:         m.ID,
		UserID:     m.UserID,
		GuestEmail: m.GuestEmail,
		Title:      m.Title,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

type messageView struct {
	ID             uint64  `json:"id"`
	ConversationID uint64  `json:"conversationId"`
	SenderID       *uint64 `json:"senderId,omitempty"`
	IsAdmin        bool    `json:"isAdmin"`
	Content        string  `json:"content"`
	GuestName      *string `json:"guestName,omitempty"`

	ReadByCustomer bool `json:"readByCustomer"`
	ReadByAdmin    bool `json:"readByAdmin"`

	CreatedAt time.Time `json:"createdAt"`
}

func toMessageView(m *models.SupportMessage) messageView {
	return messageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		IsAdmin:        m.IsAdmin,
		Content:        m.Content,
		GuestName:      m.GuestName,
		ReadByCustomer: m.ReadByCustomer,
		ReadByAdmin:    m.ReadByAdmin,
		CreatedAt:      m.CreatedAt,
	}
}

func toMessageViews(ms []*models.SupportMessage) []messageView {
	out := make([]messageView, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMessageView(m))
	}
	return out
}

type paymentView struct {
	ID         uint64  `json:"id"`
	UserID     uint64  `json:"userId"`
	ShipmentID *uint64 `json:"shipmentId,omitempty"`

	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`

	PaymentMethod   string  `json:"paymentMethod"`
	PaymentProvider string  `json:"paymentProvider"`
	Reference       string  `json:"reference"`
	TransactionID   *string `json:"transactionId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toPaymentView(m *models.Payment) paymentView {
	return paymentView{
		ID:              m.ID,
		UserID:          m.UserID,
		ShipmentID:      m.ShipmentID,
		AmountMinor:     m.AmountMinor,
		Currency:        m.Currency,
		Status:          m.Status,
		PaymentMethod:   m.PaymentMethod,
		PaymentProvider: m.PaymentProvider,
		Reference:       m.Reference,
		TransactionID:   m.TransactionID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toPaymentViews(ms []*models.Payment) []paymentView {
	out := make([]paymentView, 0, len(ms))
	for _, m := range ms {
		out = append(out, toPaymentView(m))
	}
	return out
}
