package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"pix-settlement-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	chargePath   = "/gateway/pix/receive"
	transferPath = "/gateway/transfers"
	userAgent    = "pix-settlement-go/1.0"
)

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL    string
	publicKey  string
	secretKey  string
	httpClient http.Client
}

func NewClient(cfg models.GatewayConfig) (*Client, error) {
	httpClient, err := createCustomHttpClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		publicKey:  cfg.PublicKey,
		secretKey:  cfg.SecretKey,
		httpClient: httpClient,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout + 15*time.Second,
	}, nil
}

type chargePayload struct {
	Amount            float64         `json:"amount"`
	Description       string          `json:"description"`
	Customer          customerPayload `json:"customer"`
	ExternalReference string          `json:"externalReference"`
	CallbackUrl       string          `json:"callbackUrl,omitempty"`
}

type customerPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
}

type chargeResponse struct {
	TransactionId string `json:"transactionId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Pix           struct {
		Code   string `json:"code"`
		Base64 string `json:"base64"`
		Image  string `json:"image"`
	} `json:"pix"`
	Order struct {
		Id  string `json:"id"`
		Url string `json:"url"`
	} `json:"order"`
}

// CreateCharge asks the provider for a PIX QR code. Some error responses still carry a
// usable charge; those count as success.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) Result[Charge] {
	payload := chargePayload{
		Amount:      req.Amount.InexactFloat64(),
		Description: req.Description,
		Customer: customerPayload{
			Name:     req.Customer.Name,
			Email:    req.Customer.Email,
			Document: req.Customer.Document,
		},
		ExternalReference: req.Reference,
		CallbackUrl:       req.CallbackURL,
	}

	status, body, err := c.post(ctx, chargePath, payload)
	if err != nil {
		zap.L().Error("PIX charge request failed", zap.String("reference", req.Reference), zap.Error(err))
		return failed[Charge](fmt.Sprintf("unable to reach payment gateway: %v", err), "")
	}

	var resp chargeResponse
	decodeErr := json.Unmarshal(body, &resp)
	usable := decodeErr == nil && (resp.Pix.Code != "" || resp.TransactionId != "")

	if status >= 300 && !usable {
		zap.L().Error("PIX charge rejected",
			zap.String("reference", req.Reference),
			zap.Int("status", status),
			zap.String("body", string(body)))
		return failed[Charge](errorMessage(resp.Message, "unable to generate PIX charge", status), string(body))
	}
	if decodeErr != nil {
		return failed[Charge](fmt.Sprintf("invalid gateway response: %v", decodeErr), string(body))
	}

	zap.L().Info("PIX charge created",
		zap.String("reference", req.Reference),
		zap.String("transaction_id", resp.TransactionId),
		zap.String("status", resp.Status))
	return ok(&Charge{
		TransactionId: resp.TransactionId,
		OrderId:       resp.Order.Id,
		Status:        resp.Status,
		QrCode:        resp.Pix.Code,
		QrCodeBase64:  resp.Pix.Base64,
		QrCodeImage:   resp.Pix.Image,
		OrderUrl:      resp.Order.Url,
	}, string(body))
}

type transferPayload struct {
	Identifier            string       `json:"identifier"`
	ClientIdentifier      string       `json:"clientIdentifier"`
	CallbackUrl           string       `json:"callbackUrl,omitempty"`
	Amount                float64      `json:"amount"`
	DiscountFeeOfReceiver bool         `json:"discountFeeOfReceiver"`
	Pix                   pixPayload   `json:"pix"`
	Owner                 ownerPayload `json:"owner"`
}

type pixPayload struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

type ownerPayload struct {
	Name     string          `json:"name"`
	Document documentPayload `json:"document"`
}

type documentPayload struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type transferResponse struct {
	Message  string `json:"message"`
	Withdraw struct {
		Id     string `json:"id"`
		Status string `json:"status"`
	} `json:"withdraw"`
}

func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) Result[Transfer] {
	payload := transferPayload{
		Identifier:       req.Identifier,
		ClientIdentifier: req.Identifier,
		CallbackUrl:      req.CallbackURL,
		Amount:           req.Amount.InexactFloat64(),
		Pix:              pixPayload{Type: req.PixKeyType, Key: req.PixKey},
		Owner: ownerPayload{
			Name:     req.OwnerName,
			Document: documentPayload{Type: "cpf", Number: req.OwnerCpf},
		},
	}

	status, body, err := c.post(ctx, transferPath, payload)
	if err != nil {
		zap.L().Error("PIX transfer request failed", zap.String("identifier", req.Identifier), zap.Error(err))
		return failed[Transfer](fmt.Sprintf("unable to reach payment gateway: %v", err), "")
	}

	var resp transferResponse
	decodeErr := json.Unmarshal(body, &resp)
	if status >= 300 {
		zap.L().Error("PIX transfer rejected",
			zap.String("identifier", req.Identifier),
			zap.Int("status", status),
			zap.String("body", string(body)))
		return failed[Transfer](errorMessage(resp.Message, "PIX transfer failed", status), string(body))
	}
	if decodeErr != nil {
		return failed[Transfer](fmt.Sprintf("invalid gateway response: %v", decodeErr), string(body))
	}

	zap.L().Info("PIX transfer accepted",
		zap.String("identifier", req.Identifier),
		zap.String("transaction_id", resp.Withdraw.Id),
		zap.String("status", resp.Withdraw.Status))
	return ok(&Transfer{TransactionId: resp.Withdraw.Id, Status: resp.Withdraw.Status}, string(body))
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("unable to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("x-public-key", c.publicKey)
	req.Header.Set("x-secret-key", c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("unable to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func errorMessage(message, fallback string, status int) string {
	if message != "" {
		return message
	}
	return fmt.Sprintf("%s (HTTP %d)", fallback, status)
}
