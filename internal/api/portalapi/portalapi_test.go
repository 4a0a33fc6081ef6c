package portalapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/AuroraCargo/CargoPort/internal/services/notifier"
	"github.com/AuroraCargo/CargoPort/internal/services/payments"
	"github.com/AuroraCargo/CargoPort/internal/services/shipments"
	"github.com/AuroraCargo/CargoPort/internal/services/support"
	"github.com/AuroraCargo/CargoPort/internal/storage/pgportal"
	"github.com/stretchr/testify/require"
)

func uptr(v uint64) *uint64 { return &v }

// stubStore — канонические ответы для всех репозиториев сразу, чтобы
// гонять роутер поверх настоящих сервисов.
type stubStore struct {
	shipment  *models.Shipment
	events    []*models.TrackingEvent
	applyErr  error
	listedFor *uint64
}

func (s *stubStore) CreateShipment(ctx context.Context, trackingNumber string, in models.ShipmentCreateInput) (*models.Shipment, error) {
	out := *s.shipment
	out.TrackingNumber = trackingNumber
	out.UserID = in.UserID
	return &out, nil
}
func (s *stubStore) GetShipmentByID(ctx context.Context, id uint64) (*models.Shipment, error) {
	return s.shipment, nil
}
func (s *stubStore) GetShipmentByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	if trackingNumber != s.shipment.TrackingNumber {
		return nil, models.ErrNotFound
	}
	return s.shipment, nil
}
func (s *stubStore) ListShipments(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Shipment, error) {
	s.listedFor = userID
	return []*models.Shipment{s.shipment}, nil
}
func (s *stubStore) UpdateShipmentDetails(ctx context.Context, id uint64, upd pgportal.ShipmentDetailsUpdate) (*models.Shipment, error) {
	return s.shipment, nil
}
func (s *stubStore) ApplyStatusChange(ctx context.Context, chg pgportal.StatusChange) (*models.TrackingEvent, error) {
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	return &models.TrackingEvent{ID: 1, ShipmentID: chg.ShipmentID, EventType: models.EventTypeForStatus(chg.ToStatus)}, nil
}
func (s *stubStore) AppendTrackingEvent(ctx context.Context, shipmentID uint64, eventType string, location, description *string) (*models.TrackingEvent, error) {
	return &models.TrackingEvent{ID: 2, ShipmentID: shipmentID, EventType: eventType}, nil
}
func (s *stubStore) ListTrackingEvents(ctx context.Context, shipmentID uint64, order pgportal.EventOrder, limit, offset int) ([]*models.TrackingEvent, error) {
	return s.events, nil
}

func (s *stubStore) InsertNotification(ctx context.Context, userID uint64, title, content string) (*models.Notification, error) {
	return &models.Notification{ID: 1, UserID: userID, Title: title, Content: content}, nil
}
func (s *stubStore) ListNotifications(ctx context.Context, userID uint64, limit, offset int) ([]*models.Notification, error) {
	return []*models.Notification{{ID: 1, UserID: userID, Title: "hi"}}, nil
}
func (s *stubStore) MarkNotificationRead(ctx context.Context, userID, notificationID uint64) error {
	return nil
}

func (s *stubStore) CreateConversation(ctx context.Context, in pgportal.ConversationCreateInput) (*models.Conversation, *models.SupportMessage, error) {
	return &models.Conversation{ID: 1, UserID: in.UserID, GuestEmail: in.GuestEmail, Title: in.Title, Status: models.ConversationStatusOpen},
		&models.SupportMessage{ID: 1, ConversationID: 1, Content: in.FirstMessage}, nil
}
func (s *stubStore) AppendMessage(ctx context.Context, in pgportal.MessageAppendInput) (*models.SupportMessage, error) {
	return &models.SupportMessage{ID: 2, ConversationID: in.ConversationID, Content: in.Content, IsAdmin: in.IsAdmin}, nil
}
func (s *stubStore) GetConversation(ctx context.Context, id uint64) (*models.Conversation, error) {
	return &models.Conversation{ID: id, UserID: uptr(3), Title: "t", Status: models.ConversationStatusOpen}, nil
}
func (s *stubStore) ListConversations(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Conversation, error) {
	return []*models.Conversation{{ID: 1}}, nil
}
func (s *stubStore) ListMessages(ctx context.Context, conversationID uint64, limit, offset int) ([]*models.SupportMessage, error) {
	return []*models.SupportMessage{{ID: 1, ConversationID: conversationID}}, nil
}
func (s *stubStore) MarkMessagesRead(ctx context.Context, conversationID uint64, perspective models.Perspective) (int64, error) {
	return 1, nil
}
func (s *stubStore) UnreadCounts(ctx context.Context, conversationID uint64) (int64, int64, error) {
	return 1, 0, nil
}
func (s *stubStore) SetConversationStatus(ctx context.Context, conversationID uint64, status string) error {
	return nil
}

func (s *stubStore) CreatePayment(ctx context.Context, in pgportal.PaymentCreateInput) (*models.Payment, error) {
	return &models.Payment{ID: 1, UserID: in.UserID, AmountMinor: in.AmountMinor, Currency: in.Currency, Reference: in.Reference, Status: models.PaymentStatusPending}, nil
}
func (s *stubStore) GetPaymentByID(ctx context.Context, id uint64) (*models.Payment, error) {
	return &models.Payment{ID: id, UserID: 3, Status: models.PaymentStatusPending}, nil
}
func (s *stubStore) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return nil, models.ErrNotFound
}
func (s *stubStore) ListPayments(ctx context.Context, userID *uint64, limit, offset int) ([]*models.Payment, error) {
	return []*models.Payment{{ID: 1}}, nil
}
func (s *stubStore) ApplyPaymentVerify(ctx context.Context, upd pgportal.PaymentUpdate) error {
	return nil
}

func (s *stubStore) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	return &models.User{ID: id, Email: "ada@example.com"}, nil
}

type stubTokens struct {
	users map[string]*models.User
}

func (s *stubTokens) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	u, ok := s.users[token]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

type stubGateway struct{}

func (stubGateway) Initialize(ctx context.Context, in gateway.InitializeInput) (gateway.InitResult, error) {
	return gateway.InitResult{AuthorizationURL: "https://checkout/x"}, nil
}
func (stubGateway) Verify(ctx context.Context, reference string) (gateway.VerifyResult, error) {
	return gateway.VerifyResult{Status: gateway.StatusSuccess}, nil
}

func newTestServer(t *testing.T, store *stubStore) (*Server, *feed.Hub) {
	t.Helper()
	hub := feed.NewHub()
	srv := New(
		shipments.New(store, nil, nil, "", 0, 1000),
		notifier.New(store, nil, ""),
		support.New(store, nil, ""),
		payments.New(store, store, stubGateway{}, nil, "", "paystack"),
		hub,
		&stubTokens{users: map[string]*models.User{
			"tok-customer": {ID: 3, Email: "ada@example.com"},
			"tok-admin":    {ID: 1, IsAdmin: true},
		}},
	)
	return srv, hub
}

func defaultStore() *stubStore {
	return &stubStore{
		shipment: &models.Shipment{
			ID:             9,
			TrackingNumber: "AUR123456",
			UserID:         uptr(3),
			Origin:         "Lagos",
			Destination:    "London",
			WeightKg:       10.5,
			Status:         models.ShipmentStatusPending,
			SenderName:     "Ada",
			SenderEmail:    "ada@example.com",
		},
		events: []*models.TrackingEvent{{ID: 1, ShipmentID: 9, EventType: "pending"}},
	}
}

func doReq(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, defaultStore())

	// Гость не видит список грузов.
	w := doReq(t, srv, http.MethodGet, "/shipments/", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Неизвестный токен — тоже 401.
	w = doReq(t, srv, http.MethodGet, "/shipments/", "bogus", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doReq(t, srv, http.MethodGet, "/shipments/", "tok-customer", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPublicTracking(t *testing.T) {
	srv, _ := newTestServer(t, defaultStore())

	w := doReq(t, srv, http.MethodGet, "/track/AUR123456", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "AUR123456", resp["trackingNumber"])
	require.NotContains(t, w.Body.String(), "senderEmail")
	require.NotContains(t, w.Body.String(), "userId")

	w = doReq(t, srv, http.MethodGet, "/track/nope", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuoteFee(t *testing.T) {
	srv, _ := newTestServer(t, defaultStore())

	w := doReq(t, srv, http.MethodGet, "/shipments/quote?weightKg=10.5", "tok-customer", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		FeeMinor int64 `json:"feeMinor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 10500, resp.FeeMinor)
}

func TestCreateShipment(t *testing.T) {
	srv, _ := newTestServer(t, defaultStore())

	body := `{"origin":"Lagos","destination":"London","weightKg":10.5,"senderName":"Ada","senderEmail":"ada@example.com","receiverName":"Bob","receiverEmail":"bob@example.com"}`
	w := doReq(t, srv, http.MethodPost, "/shipments/", "tok-customer", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp shipmentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Regexp(t, `^AUR\d{6}$`, resp.TrackingNumber)
	require.NotNil(t, resp.UserID)
	require.EqualValues(t, 3, *resp.UserID)

	w = doReq(t, srv, http.MethodPost, "/shipments/", "", body)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTransition(t *testing.T) {
	store := defaultStore()
	srv, _ := newTestServer(t, store)

	w := doReq(t, srv, http.MethodPost, "/shipments/9/status", "tok-customer", `{"status":"Approved"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doReq(t, srv, http.MethodPost, "/shipments/9/status", "tok-admin", `{"status":"Approved"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Проигранная гонка за статус отдаётся как 409.
	store.applyErr = models.ErrConflict
	w = doReq(t, srv, http.MethodPost, "/shipments/9/status", "tok-admin", `{"status":"Approved"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	w = doReq(t, srv, http.MethodPost, "/shipments/9/status", "tok-admin", `{"status":"Teleported"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSupportFlow(t *testing.T) {
	srv, _ := newTestServer(t, defaultStore())

	w := doReq(t, srv, http.MethodPost, "/support/conversations/", "tok-customer", `{"title":"Help","message":"Where is my box?"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// Гость с email тоже может открыть тред.
	w = doReq(t, srv, http.MethodPost, "/support/conversations/", "", `{"title":"Help","message":"Hi","guestEmail":"g@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// А без email — нет.
	w = doReq(t, srv, http.MethodPost, "/support/conversations/", "", `{"title":"Help","message":"Hi"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doReq(t, srv, http.MethodGet, "/support/conversations/1", "tok-customer", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doReq(t, srv, http.MethodPost, "/support/conversations/1/status", "tok-customer", `{"status":"closed"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doReq(t, srv, http.MethodPost, "/support/conversations/1/status", "tok-admin", `{"status":"closed"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCheckout(t *testing.T) {
	srv, _ := newTestServer(t, defaultStore())

	w := doReq(t, srv, http.MethodPost, "/payments/checkout", "tok-customer", `{"amountMinor":10500}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		AuthorizationURL string      `json:"authorizationUrl"`
		Payment          paymentView `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "https://checkout/x", resp.AuthorizationURL)
	require.EqualValues(t, 10500, resp.Payment.AmountMinor)

	w = doReq(t, srv, http.MethodPost, "/payments/checkout", "", `{"amountMinor":10500}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// streamRecorder защищает тело ответа от гонки: хендлер пишет из
// своей горутины, тест читает из своей.
type streamRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *streamRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *streamRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func TestStream(t *testing.T) {
	srv, hub := newTestServer(t, defaultStore())

	// Гостю поток не положен.
	w := doReq(t, srv, http.MethodGet, "/stream", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream?tables=shipments", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok-customer")
	rec := &streamRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		srv.Router().ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	// Чужая строка отфильтровывается предикатом, своя доходит.
	hub.Publish(feed.Change{Table: feed.TableShipments, Op: feed.OpUpdate, RowID: 8, UserID: uptr(99)})
	hub.Publish(feed.Change{Table: feed.TableShipments, Op: feed.OpUpdate, RowID: 9, UserID: uptr(3)})

	require.Eventually(t, func() bool {
		return strings.Contains(rec.body(), `"rowId":9`)
	}, time.Second, 5*time.Millisecond)
	require.NotContains(t, rec.body(), `"rowId":8`)

	cancel()
	<-done
	require.Equal(t, 0, hub.SubscriberCount())
}
