package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/payflow-labs/payflow/internal/config"
)

// Client talks to the upstream bank processor.
type Client interface {
	ProcessDeposit(ctx context.Context, req ProcessRequest) (*ProcessResponse, error)
	ProcessWithdrawal(ctx context.Context, req ProcessRequest) (*ProcessResponse, error)
}

type HTTPBankClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBankClient(cfg config.BankConfig) *HTTPBankClient {
	return &HTTPBankClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

func (c *HTTPBankClient) ProcessDeposit(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	url := fmt.Sprintf("%s/api/v1/deposits", c.baseURL)
	return sendRequest[ProcessRequest, ProcessResponse](c, ctx, http.MethodPost, url, &req, req.TransactionID)
}

func (c *HTTPBankClient) ProcessWithdrawal(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	url := fmt.Sprintf("%s/api/v1/withdrawals", c.baseURL)
	return sendRequest[ProcessRequest, ProcessResponse](c, ctx, http.MethodPost, url, &req, req.TransactionID)
}

func sendRequest[Req any, Resp any](c *HTTPBankClient, ctx context.Context, method, url string, reqBody *Req, idempotencyKey string) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var bankErrResp ErrorResponse
		if err := json.Unmarshal(body, &bankErrResp); err != nil {
			return nil, fmt.Errorf("bank returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, &BankError{
			Code:       bankErrResp.Err,
			Message:    bankErrResp.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var bankResp Resp
	if err := json.NewDecoder(resp.Body).Decode(&bankResp); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &bankResp, nil
}

// IsTimeout reports whether the error looks like a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
