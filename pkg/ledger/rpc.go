package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// RPCGateway implements Gateway against a ledger JSON-RPC endpoint.
type RPCGateway struct {
	baseURL string
	http    *http.Client
	nextID  atomic.Int64

	// submitAttempts bounds the retry loop for transient submit failures.
	submitAttempts int
	// backoffBase is doubled after each failed submit attempt.
	backoffBase time.Duration
	// pollInterval paces the confirmation loop.
	pollInterval time.Duration
}

// NewRPCGateway creates a gateway with bounded retry and polling defaults.
func NewRPCGateway(baseURL string) *RPCGateway {
	return &RPCGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		submitAttempts: 3,
		backoffBase:    500 * time.Millisecond,
		pollInterval:   2 * time.Second,
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Submit sends the transfer, retrying transient network failures with
// exponential backoff. A signer rejection is terminal and returned as is.
func (g *RPCGateway) Submit(ctx context.Context, transfer Transfer) (string, error) {
	payload := map[string]interface{}{
		"from":     transfer.From,
		"to":       transfer.To,
		"lamports": transfer.Lamports(),
	}

	var lastErr error
	backoff := g.backoffBase
	for attempt := 1; attempt <= g.submitAttempts; attempt++ {
		var signature string
		err := g.call(ctx, "sendTransaction", []interface{}{payload}, &signature)
		if err == nil {
			return signature, nil
		}
		if isRejection(err) {
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Confirm polls getSignatureStatuses until the transaction is confirmed or
// reverted, or until timeout elapses.
func (g *RPCGateway) Confirm(ctx context.Context, signature string, timeout time.Duration) (Confirmation, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		var status struct {
			Confirmations      *uint64 `json:"confirmations"`
			Slot               uint64  `json:"slot"`
			Err                any     `json:"err"`
			ConfirmationStatus string  `json:"confirmationStatus"`
		}
		err := g.call(ctx, "getSignatureStatus", []interface{}{signature}, &status)
		if err == nil {
			if status.Err != nil {
				return Confirmation{Signature: signature, Status: StatusReverted, Slot: status.Slot},
					fmt.Errorf("%w: %v", ErrReverted, status.Err)
			}
			switch status.ConfirmationStatus {
			case "confirmed", "finalized":
				return Confirmation{Signature: signature, Status: StatusConfirmed, Slot: status.Slot}, nil
			}
		}
		// Transient RPC errors and not-yet-known signatures both fall
		// through to the next poll.

		if time.Now().After(deadline) {
			return Confirmation{Signature: signature, Status: StatusTimedOut}, ErrTimedOut
		}
		select {
		case <-ctx.Done():
			return Confirmation{Signature: signature, Status: StatusTimedOut}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *RPCGateway) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	reqBody := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      g.nextID.Add(1),
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read rpc response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode rpc result: %w", err)
		}
	}
	return nil
}

// isRejection detects a signer refusal in the RPC error message.
func isRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rejected") || strings.Contains(msg, "signature verification failure")
}
