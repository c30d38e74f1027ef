// Package helius is a thin JSON-RPC client for the Helius Solana endpoint.
// The engine uses it for wallet balances and transaction submission; it is a
// collaborator of the gateway, not part of the trading core.
package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const solMint = "So11111111111111111111111111111111111111112"

// SOLMint returns the wrapped SOL mint address.
func SOLMint() string { return solMint }

// Client talks JSON-RPC 2.0 to a Solana RPC node.
type Client struct {
	rpcURL     string
	commitment string
	httpClient *http.Client
	nextID     atomic.Int64
}

// New creates a Client for the given RPC URL. The API key, when set, is
// passed as a query parameter the way Helius expects. Commitment defaults to
// "confirmed".
func New(rpcURL, apiKey, commitment string) *Client {
	if apiKey != "" {
		rpcURL = rpcURL + "/?api-key=" + apiKey
	}
	if commitment == "" {
		commitment = "confirmed"
	}
	return &Client{
		rpcURL:     rpcURL,
		commitment: commitment,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip and unmarshals the result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("helius: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("helius: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("helius: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("helius: %s: unexpected status %d: %s", method, resp.StatusCode, string(b))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("helius: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("helius: %s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("helius: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// GetSOLBalance returns the wallet's SOL balance in lamports.
func (c *Client) GetSOLBalance(ctx context.Context, pubkey string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	params := []any{pubkey, map[string]string{"commitment": c.commitment}}
	if err := c.call(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetTokenBalance returns the wallet's balance of mint in base units plus the
// ui amount (base units scaled by the token's decimals).
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint string) (uint64, float64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount   string  `json:"amount"`
								UIAmount float64 `json:"uiAmount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	params := []any{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed", "commitment": c.commitment},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, 0, err
	}

	var base uint64
	var ui float64
	for _, v := range result.Value {
		amt := v.Account.Data.Parsed.Info.TokenAmount
		var n uint64
		if _, err := fmt.Sscan(amt.Amount, &n); err == nil {
			base += n
		}
		ui += amt.UIAmount
	}
	return base, ui, nil
}

// GetTokenDecimals returns the decimals of a mint via getTokenSupply.
func (c *Client) GetTokenDecimals(ctx context.Context, mint string) (int, error) {
	var result struct {
		Value struct {
			Decimals int `json:"decimals"`
		} `json:"value"`
	}
	params := []any{mint, map[string]string{"commitment": c.commitment}}
	if err := c.call(ctx, "getTokenSupply", params, &result); err != nil {
		return 0, err
	}
	return result.Value.Decimals, nil
}

// SendTransaction submits a base64-encoded signed transaction and returns the
// signature.
func (c *Client) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	var signature string
	params := []any{
		signedTxBase64,
		map[string]any{"encoding": "base64", "maxRetries": 2, "preflightCommitment": c.commitment},
	}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// ConfirmTransaction polls signature status until the configured commitment is
// reached or ctx expires.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		var result struct {
			Value []*struct {
				ConfirmationStatus string  `json:"confirmationStatus"`
				Err                any     `json:"err"`
				Slot               uint64  `json:"slot"`
				Confirmations      *uint64 `json:"confirmations"`
			} `json:"value"`
		}
		params := []any{[]string{signature}, map[string]bool{"searchTransactionHistory": false}}
		if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
			return err
		}
		if len(result.Value) > 0 && result.Value[0] != nil {
			st := result.Value[0]
			if st.Err != nil {
				return fmt.Errorf("helius: transaction %s failed on chain: %v", signature, st.Err)
			}
			if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("helius: confirm %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}
