package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"pawmart-be/internal/logger"

	"go.uber.org/zap"
)

const defaultPayOSBaseURL = "https://api-merchant.payos.vn"

type payosGateway struct {
	clientID    string
	apiKey      string
	checksumKey string
	baseURL     string
	httpClient  *http.Client
	returnURL   string
	cancelURL   string
}

// ----------------- Constructor -----------------

func NewPayOSGateway(clientID, apiKey, checksumKey, returnURL, cancelURL string) Gateway {
	if clientID == "" || apiKey == "" {
		logger.L().Warn("PayOS credentials are empty")
	}

	baseURL := os.Getenv("PAYOS_BASE_URL")
	if baseURL == "" {
		baseURL = defaultPayOSBaseURL
	}

	return &payosGateway{
		clientID:    clientID,
		apiKey:      apiKey,
		checksumKey: checksumKey,
		baseURL:     baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		returnURL: returnURL,
		cancelURL: cancelURL,
	}
}

// ----------------- CreatePaymentSession -----------------

type payosCreateResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		Bin           string `json:"bin"`
		AccountNumber string `json:"accountNumber"`
		Amount        int64  `json:"amount"`
		Description   string `json:"description"`
		OrderCode     int64  `json:"orderCode"`
		Currency      string `json:"currency"`
		PaymentLinkID string `json:"paymentLinkId"`
		Status        string `json:"status"`
		CheckoutURL   string `json:"checkoutUrl"`
		QRCode        string `json:"qrCode"`
	} `json:"data"`
	Signature string `json:"signature"`
}

func (g *payosGateway) CreatePaymentSession(ctx context.Context, req SessionRequest) (*SessionResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.Int64("order_code", req.OrderCode),
		zap.Int64("amount", req.Amount),
	)

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = g.returnURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = g.cancelURL
	}

	signature := g.signCreateRequest(req.Amount, cancelURL, req.Description, req.OrderCode, returnURL)

	body := map[string]interface{}{
		"orderCode":   req.OrderCode,
		"amount":      req.Amount,
		"description": req.Description,
		"returnUrl":   returnURL,
		"cancelUrl":   cancelURL,
		"signature":   signature,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Error("Failed to marshal payment request", zap.Error(err))
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/v2/payment-requests", bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, err
	}

	httpReq.Header.Add("Content-Type", "application/json")
	httpReq.Header.Add("x-client-id", g.clientID)
	httpReq.Header.Add("x-api-key", g.apiKey)

	log.Info("Sending payment request to PayOS")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		log.Error("PayOS request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read payos response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Error("PayOS returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("payos error: %s", string(bodyBytes))
	}

	var res payosCreateResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("Failed decoding PayOS response", zap.Error(err))
		return nil, err
	}

	if res.Code != CodeSuccess {
		log.Error("PayOS rejected payment request",
			zap.String("code", res.Code),
			zap.String("desc", res.Desc),
		)
		return nil, fmt.Errorf("payos error %s: %s", res.Code, res.Desc)
	}

	log.Info("PayOS payment link created",
		zap.String("payment_link_id", res.Data.PaymentLinkID),
		zap.String("status", res.Data.Status),
	)

	return &SessionResponse{
		CheckoutURL:   res.Data.CheckoutURL,
		PaymentLinkID: res.Data.PaymentLinkID,
		Status:        res.Data.Status,
		QRCode:        res.Data.QRCode,
	}, nil
}

// ----------------- Signatures -----------------

// signCreateRequest signs the alphabetically ordered create fields, per the
// PayOS checksum scheme.
func (g *payosGateway) signCreateRequest(amount int64, cancelURL, description string, orderCode int64, returnURL string) string {
	data := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		amount, cancelURL, description, orderCode, returnURL)
	return g.hmacHex(data)
}

func (g *payosGateway) VerifyWebhookSignature(payload *WebhookPayload) error {
	if g.checksumKey == "" {
		return nil // skip in dev
	}

	if payload.Signature == "" {
		return errors.New("missing webhook signature")
	}

	signed, err := signWebhookData(&payload.Data, g.checksumKey)
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(signed), []byte(payload.Signature)) {
		return errors.New("invalid webhook signature")
	}
	return nil
}

// signWebhookData hashes the webhook data object as "k=v" pairs joined by "&"
// with keys sorted alphabetically, the transform PayOS applies before signing.
func signWebhookData(data *WebhookData, checksumKey string) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		var s string
		if v != nil {
			s = fmt.Sprintf("%v", v)
		}
		parts = append(parts, k+"="+s)
	}

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (g *payosGateway) hmacHex(data string) string {
	mac := hmac.New(sha256.New, []byte(g.checksumKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
