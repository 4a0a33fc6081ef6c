package paystackhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL   string
	secretKey string
	httpc     *http.Client
}

func New(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type initResp struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type verifyResp struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID              int64  `json:"id"`
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		GatewayResponse string `json:"gateway_response"`
		PaidAt          string `json:"paid_at"`
	} `json:"data"`
}

func (c *Client) Initialize(ctx context.Context, in gateway.InitializeInput) (gateway.InitResult, error) {
	body, err := json.Marshal(map[string]any{
		"reference": in.Reference,
		// Paystack принимает сумму строкой в минорных единицах.
		"amount":   strconv.FormatInt(in.AmountMinor, 10),
		"currency": in.Currency,
		"email":    in.Email,
	})
	if err != nil {
		return gateway.InitResult{}, errors.Wrap(err, "marshal body")
	}

	var r initResp
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &r); err != nil {
		return gateway.InitResult{}, err
	}
	if !r.Status {
		return gateway.InitResult{}, errors.Wrapf(models.ErrExternal, "paystack initialize: %s", r.Message)
	}
	return gateway.InitResult{
		AuthorizationURL: r.Data.AuthorizationURL,
		AccessCode:       r.Data.AccessCode,
	}, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (gateway.VerifyResult, error) {
	var r verifyResp
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &r); err != nil {
		return gateway.VerifyResult{}, err
	}
	if !r.Status {
		return gateway.VerifyResult{}, errors.Wrapf(models.ErrExternal, "paystack verify: %s", r.Message)
	}

	out := gateway.VerifyResult{
		Status:          normalizeStatus(r.Data.Status),
		GatewayResponse: r.Data.GatewayResponse,
	}
	if r.Data.ID != 0 {
		id := strconv.FormatInt(r.Data.ID, 10)
		out.TransactionID = &id
	}
	if r.Data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, r.Data.PaidAt); err == nil {
			t = t.UTC()
			out.PaidAt = &t
		}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd *bytes.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.Wrapf(models.ErrExternal, "paystack http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

// Paystack отдаёт success/failed/abandoned/ongoing/pending и пару
// редких промежуточных. Всё незнакомое считаем pending и перепроверяем.
func normalizeStatus(s string) string {
	switch s {
	case "success":
		return gateway.StatusSuccess
	case "failed", "reversed":
		return gateway.StatusFailed
	case "abandoned":
		return gateway.StatusAbandoned
	default:
		return gateway.StatusPending
	}
}
