package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxSignatureAge is how far in the past a webhook timestamp may be
// before the request is treated as a replay.
const maxSignatureAge = 5 * time.Minute

// Verifier validates Paddle webhook signatures.
type Verifier struct {
	secret string
	logger *zap.Logger
	now    func() time.Time
}

// NewVerifier creates a new webhook verifier
func NewVerifier(secret string, logger *zap.Logger) *Verifier {
	return &Verifier{
		secret: secret,
		logger: logger,
		now:    time.Now,
	}
}

// VerifySignature checks a Paddle-Signature header ("ts=<unix>;h1=<hex>")
// against the raw request body. The signed payload is "<ts>:<body>".
func (v *Verifier) VerifySignature(header string, body []byte) error {
	ts, h1, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	sent, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid signature timestamp: %w", err)
	}
	age := v.now().Sub(time.Unix(sent, 0))
	if age > maxSignatureAge || age < -maxSignatureAge {
		return fmt.Errorf("signature timestamp outside allowed window: %s", age)
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(h1)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !hmac.Equal(expected, got) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// parseSignatureHeader splits "ts=...;h1=..." into its two parts.
func parseSignatureHeader(header string) (ts, h1 string, err error) {
	for _, part := range strings.Split(header, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "h1":
			h1 = kv[1]
		}
	}
	if ts == "" || h1 == "" {
		return "", "", fmt.Errorf("malformed signature header")
	}
	return ts, h1, nil
}
