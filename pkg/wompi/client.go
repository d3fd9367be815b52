package wompi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andresmgomez/pasarela-backend/pkg/config"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
)

var (
	errPublicKeyRequired    = errors.New("wompi public key is required")
	errPrivateKeyRequired   = errors.New("wompi private key is required")
	errIntegrityKeyRequired = errors.New("wompi integrity key is required")
	errLoggerRequired       = errors.New("wompi logger is required")
)

// Client wraps the Wompi REST API with centralized auth, logging, and error
// mapping. There is no official Go SDK, so requests go through net/http
// directly.
type Client struct {
	baseURL      string
	publicKey    string
	privateKey   string
	eventsKey    string
	integrityKey string
	http         *http.Client
	logger       *logger.Logger
}

// NewClient validates the credentials and builds the API wrapper.
func NewClient(ctx context.Context, cfg config.WompiConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	publicKey := strings.TrimSpace(cfg.PublicKey)
	if publicKey == "" {
		return nil, errPublicKeyRequired
	}
	privateKey := strings.TrimSpace(cfg.PrivateKey)
	if privateKey == "" {
		return nil, errPrivateKeyRequired
	}
	integrityKey := strings.TrimSpace(cfg.IntegrityKey)
	if integrityKey == "" {
		return nil, errIntegrityKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.APIURL, "/"),
		publicKey:    publicKey,
		privateKey:   privateKey,
		eventsKey:    strings.TrimSpace(cfg.EventsKey),
		integrityKey: integrityKey,
		http:         &http.Client{Timeout: timeout},
		logger:       logg,
	}

	logg.Info(ctx, "wompi client initialized")
	return c, nil
}

// EventsKey returns the secret used to validate webhook checksums.
func (c *Client) EventsKey() string {
	if c == nil {
		return ""
	}
	return c.eventsKey
}

// SignIntegrity computes the widget integrity signature for a checkout.
func (c *Client) SignIntegrity(reference string, amountInCents int64, currency string) string {
	return IntegritySignature(reference, amountInCents, currency, c.integrityKey)
}

// Charge creates a card transaction at the gateway and returns its initial
// state. The gateway may answer PENDING; settlement arrives via webhook.
func (c *Client) Charge(ctx context.Context, params ChargeParams) (*Transaction, error) {
	installments := params.Installments
	if installments <= 0 {
		installments = 1
	}
	signature := params.Signature
	if signature == "" {
		signature = c.SignIntegrity(params.Reference, params.AmountInCents, params.Currency)
	}

	acceptance, err := c.acceptanceToken(ctx)
	if err != nil {
		return nil, err
	}

	body := chargeRequest{
		Reference:       params.Reference,
		AmountInCents:   params.AmountInCents,
		Currency:        params.Currency,
		CustomerEmail:   params.CustomerEmail,
		Signature:       signature,
		AcceptanceToken: acceptance,
		PaymentMethod: paymentMethod{
			Type:         "CARD",
			Token:        params.PaymentToken,
			Installments: installments,
		},
	}

	c.log(ctx, "request", "charge", map[string]any{
		"reference": params.Reference,
		"amount":    params.AmountInCents,
		"currency":  params.Currency,
	})

	var envelope transactionEnvelope
	if err := c.do(ctx, http.MethodPost, "/transactions", c.privateKey, body, &envelope); err != nil {
		c.log(ctx, "error", "charge", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "charge", map[string]any{
		"gateway_id": envelope.Data.ID,
		"status":     envelope.Data.Status,
	})
	return &envelope.Data, nil
}

// QueryStatus fetches the current gateway state of a transaction.
func (c *Client) QueryStatus(ctx context.Context, gatewayID string) (*Transaction, error) {
	if strings.TrimSpace(gatewayID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway transaction id is required")
	}

	c.log(ctx, "request", "query_status", map[string]any{"gateway_id": gatewayID})

	var envelope transactionEnvelope
	if err := c.do(ctx, http.MethodGet, "/transactions/"+gatewayID, c.publicKey, nil, &envelope); err != nil {
		c.log(ctx, "error", "query_status", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "query_status", map[string]any{
		"gateway_id": envelope.Data.ID,
		"status":     envelope.Data.Status,
	})
	return &envelope.Data, nil
}

func (c *Client) acceptanceToken(ctx context.Context) (string, error) {
	var envelope merchantEnvelope
	if err := c.do(ctx, http.MethodGet, "/merchants/"+c.publicKey, "", nil, &envelope); err != nil {
		return "", err
	}
	return envelope.Data.PresignedAcceptance.AcceptanceToken, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "read gateway response")
	}

	if resp.StatusCode >= 400 {
		return c.mapAPIError(resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode gateway response")
		}
	}
	return nil
}

func (c *Client) mapAPIError(status int, payload []byte) error {
	var envelope apiErrorEnvelope
	reason := http.StatusText(status)
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Reason != "" {
		reason = envelope.Error.Reason
	}

	cause := fmt.Errorf("gateway returned %d: %s", status, reason)
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "gateway transaction not found")
	case status == http.StatusUnprocessableEntity:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "gateway rejected the request")
	case status >= 400 && status < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "gateway rejected the request")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeGateway, cause, "payment gateway unavailable")
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("wompi %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("wompi %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "card", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
