// Package jupiter implements the gateway.Swapper contract against the Jupiter
// swap API: quote, build, sign, and submit one swap attempt at a fixed
// slippage tolerance.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"soltrader/internal/domain"
	"soltrader/internal/gateway"
	"soltrader/internal/platform/helius"
	"soltrader/internal/wallet"
)

const lamportsPerSOL = 1e9

// Client executes swaps through Jupiter and submits the signed transaction
// through the Helius RPC. It is stateless per call apart from a decimals
// cache, so engines for multiple instruments can share one instance.
type Client struct {
	quoteURL   string
	swapURL    string
	apiKey     string
	wallet     *wallet.Wallet
	rpc        *helius.Client
	httpClient *http.Client
	logger     *slog.Logger

	decimalsMu sync.Mutex
	decimals   map[string]int // mint -> decimals
}

// New creates a Jupiter swap client.
func New(quoteURL, swapURL, apiKey string, w *wallet.Wallet, rpc *helius.Client, logger *slog.Logger) *Client {
	return &Client{
		quoteURL:   quoteURL,
		swapURL:    swapURL,
		apiKey:     apiKey,
		wallet:     w,
		rpc:        rpc,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With(slog.String("component", "jupiter")),
		decimals:   make(map[string]int),
	}
}

// Swap implements gateway.Swapper. BUY swaps intent.Size SOL into the
// instrument's token; SELL swaps intent.Size tokens back into SOL. The fill
// price is SOL per token derived from the quote amounts.
func (c *Client) Swap(ctx context.Context, intent domain.TradeIntent, slippageBps int) (domain.Fill, error) {
	dec, err := c.tokenDecimals(ctx, intent.Instrument)
	if err != nil {
		return domain.Fill{}, gateway.Retryable(err)
	}

	var inputMint, outputMint string
	var amount uint64
	switch intent.Side {
	case domain.TradeSideBuy:
		inputMint, outputMint = helius.SOLMint(), intent.Instrument
		amount = uint64(math.Round(intent.Size * lamportsPerSOL))
	case domain.TradeSideSell:
		inputMint, outputMint = intent.Instrument, helius.SOLMint()
		amount = uint64(math.Round(intent.Size * math.Pow10(dec)))
	default:
		return domain.Fill{}, gateway.Fatal(fmt.Errorf("%w: side %q", domain.ErrInvalidIntent, intent.Side))
	}
	if amount == 0 {
		return domain.Fill{}, gateway.Fatal(fmt.Errorf("%w: zero amount after conversion", domain.ErrInvalidIntent))
	}

	quote, err := c.getQuote(ctx, inputMint, outputMint, amount, slippageBps)
	if err != nil {
		return domain.Fill{}, err
	}

	signedTx, err := c.buildSignedTransaction(ctx, quote)
	if err != nil {
		return domain.Fill{}, err
	}

	signature, err := c.rpc.SendTransaction(ctx, signedTx)
	if err != nil {
		return domain.Fill{}, classifyRPCError(err)
	}
	if err := c.rpc.ConfirmTransaction(ctx, signature); err != nil {
		return domain.Fill{}, gateway.Retryable(err)
	}

	fill, err := fillFromQuote(quote, intent.Side, dec)
	if err != nil {
		return domain.Fill{}, gateway.Fatal(err)
	}
	fill.TxRef = signature
	fill.FilledAt = time.Now().UTC()
	return fill, nil
}

// tokenDecimals resolves and caches the decimals of a mint.
func (c *Client) tokenDecimals(ctx context.Context, mint string) (int, error) {
	c.decimalsMu.Lock()
	dec, ok := c.decimals[mint]
	c.decimalsMu.Unlock()
	if ok {
		return dec, nil
	}

	dec, err := c.rpc.GetTokenDecimals(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("jupiter: token decimals %s: %w", mint, err)
	}
	c.decimalsMu.Lock()
	c.decimals[mint] = dec
	c.decimalsMu.Unlock()
	return dec, nil
}

// getQuote fetches a quote for the swap at the given slippage tolerance.
func (c *Client) getQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*quoteResponse, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))
	params.Set("restrictIntermediateTokens", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, gateway.Fatal(fmt.Errorf("jupiter: create quote request: %w", err))
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gateway.Retryable(fmt.Errorf("jupiter: quote: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, gateway.Retryable(fmt.Errorf("jupiter: read quote response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyHTTPError("quote", resp.StatusCode, body)
	}

	var quote quoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, gateway.Retryable(fmt.Errorf("jupiter: decode quote: %w", err))
	}
	quote.raw = body
	return &quote, nil
}

// buildSignedTransaction asks /swap for a transaction, then signs it with the
// wallet key.
func (c *Client) buildSignedTransaction(ctx context.Context, quote *quoteResponse) (string, error) {
	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:           quote.raw,
		UserPublicKey:           c.wallet.PublicKey(),
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
		PrioritizationFeeLamports: priorityFee{
			PriorityLevelWithMaxLamports: priorityLevel{
				MaxLamports:   1_000_000,
				PriorityLevel: "veryHigh",
			},
		},
	})
	if err != nil {
		return "", gateway.Fatal(fmt.Errorf("jupiter: marshal swap request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.swapURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", gateway.Fatal(fmt.Errorf("jupiter: create swap request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", gateway.Retryable(fmt.Errorf("jupiter: swap: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", gateway.Retryable(fmt.Errorf("jupiter: read swap response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyHTTPError("swap", resp.StatusCode, body)
	}

	var swap swapResponse
	if err := json.Unmarshal(body, &swap); err != nil {
		return "", gateway.Retryable(fmt.Errorf("jupiter: decode swap response: %w", err))
	}

	signed, err := c.signTransaction(swap.SwapTransaction)
	if err != nil {
		return "", gateway.Fatal(err)
	}
	return signed, nil
}

// signTransaction signs a base64-encoded transaction whose fee payer is the
// wallet. Layout: compact-u16 signature count, 64-byte signature slots, then
// the message bytes that get signed.
func (c *Client) signTransaction(txBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("jupiter: decode transaction: %w", err)
	}

	sigCount, offset, err := decodeCompactU16(raw)
	if err != nil {
		return "", fmt.Errorf("jupiter: parse signature count: %w", err)
	}
	if sigCount != 1 {
		return "", fmt.Errorf("jupiter: expected single-signer transaction, got %d signature slots", sigCount)
	}
	msgStart := offset + 64*sigCount
	if len(raw) <= msgStart {
		return "", errors.New("jupiter: truncated transaction")
	}

	sig := c.wallet.Sign(raw[msgStart:])
	copy(raw[offset:offset+64], sig)

	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeCompactU16 decodes the shortvec length prefix used by Solana
// transactions, returning the value and the number of bytes consumed.
func decodeCompactU16(b []byte) (int, int, error) {
	var value, shift int
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, errors.New("short buffer")
		}
		value |= int(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errors.New("compact-u16 too long")
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

// fillFromQuote derives the realized price (SOL per token) and token size
// from the quoted amounts.
func fillFromQuote(quote *quoteResponse, side domain.TradeSide, decimals int) (domain.Fill, error) {
	inAmount, err := strconv.ParseUint(quote.InAmount, 10, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("jupiter: parse inAmount %q: %w", quote.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(quote.OutAmount, 10, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("jupiter: parse outAmount %q: %w", quote.OutAmount, err)
	}
	if inAmount == 0 || outAmount == 0 {
		return domain.Fill{}, errors.New("jupiter: zero quote amount")
	}

	scale := math.Pow10(decimals)
	var sol, tokens float64
	switch side {
	case domain.TradeSideBuy:
		sol = float64(inAmount) / lamportsPerSOL
		tokens = float64(outAmount) / scale
	default:
		tokens = float64(inAmount) / scale
		sol = float64(outAmount) / lamportsPerSOL
	}
	return domain.Fill{Price: sol / tokens, Size: tokens}, nil
}

// classifyHTTPError maps Jupiter API failures onto the gateway taxonomy.
// Rate limits, server errors, and slippage/price movement are retryable;
// other client errors are fatal.
func classifyHTTPError(op string, status int, body []byte) error {
	err := fmt.Errorf("jupiter: %s: status %d: %s", op, status, strings.TrimSpace(string(body)))
	if status == http.StatusTooManyRequests || status >= 500 {
		return gateway.Retryable(err)
	}
	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "slippage") || strings.Contains(lower, "price") || strings.Contains(lower, "expired") {
		return gateway.Retryable(err)
	}
	return gateway.Fatal(err)
}

// classifyRPCError maps transaction submission failures onto the gateway
// taxonomy. Insufficient funds cannot be fixed by widening slippage.
func classifyRPCError(err error) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "insufficient") {
		return gateway.Fatal(fmt.Errorf("%w: %v", domain.ErrInsufficientBalance, err))
	}
	return gateway.Retryable(err)
}
