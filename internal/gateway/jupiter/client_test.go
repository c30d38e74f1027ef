package jupiter

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mr-tron/base58"

	"soltrader/internal/domain"
	"soltrader/internal/wallet"
)

func TestDecodeCompactU16(t *testing.T) {
	cases := []struct {
		name      string
		input     []byte
		wantValue int
		wantSize  int
		wantErr   bool
	}{
		{"single byte", []byte{0x01}, 1, 1, false},
		{"max single byte", []byte{0x7f}, 127, 1, false},
		{"two bytes", []byte{0x80, 0x01}, 128, 2, false},
		{"two bytes mid", []byte{0xff, 0x01}, 255, 2, false},
		{"empty", nil, 0, 0, true},
		{"unterminated", []byte{0x80, 0x80, 0x80}, 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value, size, err := decodeCompactU16(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if value != tc.wantValue || size != tc.wantSize {
				t.Errorf("got (%d, %d), want (%d, %d)", value, size, tc.wantValue, tc.wantSize)
			}
		})
	}
}

func TestSignTransactionFillsSignatureSlot(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	w, err := wallet.FromSecretKey(base58.Encode(priv))
	if err != nil {
		t.Fatal(err)
	}
	c := New("http://quote", "http://swap", "", w, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	message := []byte("serialized transaction message")
	tx := make([]byte, 0, 1+64+len(message))
	tx = append(tx, 0x01)                // one signature slot
	tx = append(tx, make([]byte, 64)...) // empty slot
	tx = append(tx, message...)

	signedBase64, err := c.signTransaction(base64.StdEncoding.EncodeToString(tx))
	if err != nil {
		t.Fatalf("signTransaction: %v", err)
	}

	signed, err := base64.StdEncoding.DecodeString(signedBase64)
	if err != nil {
		t.Fatal(err)
	}
	if !ed25519.Verify(pub, signed[65:], signed[1:65]) {
		t.Error("signature slot does not verify against the message bytes")
	}
}

func TestSignTransactionRejectsMultiSigner(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	w, err := wallet.FromSecretKey(base58.Encode(priv))
	if err != nil {
		t.Fatal(err)
	}
	c := New("http://quote", "http://swap", "", w, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tx := append([]byte{0x02}, make([]byte, 64*2+10)...)
	if _, err := c.signTransaction(base64.StdEncoding.EncodeToString(tx)); err == nil {
		t.Error("expected rejection of multi-signer transaction")
	}
}

func TestFillFromQuote(t *testing.T) {
	// BUY: 0.5 SOL in, 1000 tokens out at 6 decimals.
	quote := &quoteResponse{InAmount: "500000000", OutAmount: "1000000000"}
	fill, err := fillFromQuote(quote, domain.TradeSideBuy, 6)
	if err != nil {
		t.Fatalf("fillFromQuote: %v", err)
	}
	if fill.Size != 1000 {
		t.Errorf("size = %v, want 1000 tokens", fill.Size)
	}
	if want := 0.5 / 1000; fill.Price != want {
		t.Errorf("price = %v, want %v SOL per token", fill.Price, want)
	}

	// SELL: 1000 tokens in, 0.4 SOL out.
	quote = &quoteResponse{InAmount: "1000000000", OutAmount: "400000000"}
	fill, err = fillFromQuote(quote, domain.TradeSideSell, 6)
	if err != nil {
		t.Fatalf("fillFromQuote: %v", err)
	}
	if fill.Size != 1000 {
		t.Errorf("size = %v, want 1000 tokens", fill.Size)
	}
	if want := 0.4 / 1000; fill.Price != want {
		t.Errorf("price = %v, want %v SOL per token", fill.Price, want)
	}
}

func TestFillFromQuoteRejectsZeroAmounts(t *testing.T) {
	if _, err := fillFromQuote(&quoteResponse{InAmount: "0", OutAmount: "100"}, domain.TradeSideBuy, 6); err == nil {
		t.Error("expected error for zero inAmount")
	}
	if _, err := fillFromQuote(&quoteResponse{InAmount: "abc", OutAmount: "100"}, domain.TradeSideBuy, 6); err == nil {
		t.Error("expected error for unparseable amount")
	}
}

func TestClassifyRPCError(t *testing.T) {
	err := classifyRPCError(errors.New("Transfer: insufficient lamports"))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance in chain", err)
	}
}
