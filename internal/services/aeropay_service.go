package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/config"
	"github.com/skylinkair/booking-backend/internal/models"
)

// aeroPayEnvironmentURLs maps environment names to gateway endpoint URLs
var aeroPayEnvironmentURLs = map[string]string{
	"sandbox":    "https://sandbox-api.aeropay.example/v1",
	"production": "https://api.aeropay.example/v1",
}

// AeroPayService is the HTTP client for the external AeroPay gateway. It
// creates payment intents, requests refunds and verifies inbound webhook
// signatures. It holds no booking or seat state.
type AeroPayService struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
}

// NewAeroPayService creates a new AeroPay gateway client
func NewAeroPayService(cfg *config.PaymentConfig, logger *logrus.Logger) *AeroPayService {
	return &AeroPayService{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// aeroPayIntentRequest is the outbound create-intent payload
type aeroPayIntentRequest struct {
	MerchantKey string            `json:"merchantKey"`
	InvoiceID   string            `json:"invoiceId"`
	AmountCents int64             `json:"amountCents"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	ReturnURL   string            `json:"returnUrl,omitempty"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CheckValue  string            `json:"checkValue"`
}

// GatewayIntent is the gateway's representation of an in-progress charge
type GatewayIntent struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
}

// GatewayWebhookEvent is the parsed body of an inbound gateway notification
type GatewayWebhookEvent struct {
	TransactionID string `json:"transactionId"`
	EventType     string `json:"eventType"` // payment.succeeded, payment.failed, refund.completed
	AmountCents   int64  `json:"amountCents"`
	Currency      string `json:"currency"`
}

// CreateIntentParams carries everything needed to open a charge attempt
type CreateIntentParams struct {
	InvoiceID   string
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// checkValue computes the request signature the gateway expects.
// Step 1: SHA-512 of the merchant token, uppercase hex.
// Step 2: SHA-512 of "merchantKey|invoiceId|amount|currency|hash1", uppercase hex.
func (s *AeroPayService) checkValue(invoiceID string, amountCents int64, currency string) string {
	hash1 := sha512.Sum512([]byte(s.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%d|%s|%s", s.config.MerchantKey, invoiceID, amountCents, currency, hash1Hex)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// CreateIntent opens a payment intent with the gateway. No local locks may
// be held across this call.
func (s *AeroPayService) CreateIntent(ctx context.Context, params CreateIntentParams) (*GatewayIntent, error) {
	if s.config.MerchantKey == "" || s.config.MerchantToken == "" {
		return nil, fmt.Errorf("%w: merchant credentials not configured", models.ErrGatewayUnavailable)
	}

	request := &aeroPayIntentRequest{
		MerchantKey: s.config.MerchantKey,
		InvoiceID:   params.InvoiceID,
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		Description: params.Description,
		ReturnURL:   s.config.ReturnURL,
		WebhookURL:  s.config.WebhookURL,
		Metadata:    params.Metadata,
		CheckValue:  s.checkValue(params.InvoiceID, params.AmountCents, params.Currency),
	}

	var intent GatewayIntent
	if err := s.post(ctx, "/intents", request, &intent); err != nil {
		return nil, err
	}

	if intent.Status != "created" {
		msg := intent.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %q", intent.Status)
		}
		return nil, fmt.Errorf("%w: %s", models.ErrGatewayUnavailable, msg)
	}
	if intent.IntentID == "" || intent.ClientSecret == "" {
		return nil, fmt.Errorf("%w: gateway returned incomplete intent", models.ErrGatewayUnavailable)
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id": params.InvoiceID,
		"intent_id":  intent.IntentID,
		"amount":     params.AmountCents,
	}).Info("AeroPay intent created")

	return &intent, nil
}

// RefundCharge asks the gateway to reverse a captured transaction
func (s *AeroPayService) RefundCharge(ctx context.Context, transactionID string) error {
	request := map[string]string{
		"transactionId": transactionID,
		"checkValue":    s.checkValue(transactionID, 0, s.config.Currency),
	}

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	}
	if err := s.post(ctx, "/refunds", request, &resp); err != nil {
		return err
	}
	if resp.Status != "refunded" {
		return fmt.Errorf("%w: refund not confirmed: %s", models.ErrGatewayUnavailable, resp.Message)
	}

	s.logger.WithField("transaction_id", transactionID).Info("AeroPay refund confirmed")
	return nil
}

// VerifySignature checks the webhook signature header against an HMAC-SHA256
// of the raw body. This runs before any payload field is trusted.
func (s *AeroPayService) VerifySignature(body []byte, signature string) error {
	if s.config.WebhookSecret == "" {
		return fmt.Errorf("%w: webhook secret not configured", models.ErrInvalidSignature)
	}
	mac := hmac.New(sha256.New, []byte(s.config.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return models.ErrInvalidSignature
	}
	return nil
}

// ParseWebhook decodes a verified webhook body. Event types this service
// does not handle still parse; the caller records and acknowledges them so
// the gateway stops redelivering.
func (s *AeroPayService) ParseWebhook(body []byte) (*GatewayWebhookEvent, error) {
	var event GatewayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body: %v", models.ErrValidation, err)
	}
	if event.TransactionID == "" {
		return nil, fmt.Errorf("%w: webhook missing transactionId", models.ErrValidation)
	}
	return &event, nil
}

func (s *AeroPayService) post(ctx context.Context, path string, payload, out interface{}) error {
	baseURL, ok := aeroPayEnvironmentURLs[s.config.Environment]
	if !ok {
		baseURL = aeroPayEnvironmentURLs["sandbox"]
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read gateway response: %v", models.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gateway returned status %d: %s", models.ErrGatewayUnavailable, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to parse gateway response: %v", models.ErrGatewayUnavailable, err)
	}
	return nil
}
