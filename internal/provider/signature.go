package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors returned while validating and decoding webhook deliveries.
// None of them carry payload or secret material.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrEventIgnored     = errors.New("webhook event ignored")
)

// SignatureHeader is the request header carrying the provider signature.
const SignatureHeader = "X-Provider-Signature"

// Verifier validates that a webhook delivery originated from the payment
// provider. The scheme is the provider's timestamped HMAC-SHA256: the header
// has the form "t=<unix>,v1=<hex digest>" and the digest is computed over
// "<unix>.<raw body>" with the shared signing secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier constructs a verifier for the given shared secret. Signatures
// older than tolerance are rejected even when the digest matches.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Verify checks the signature header against the exact raw request bytes.
// The payload must not be reparsed or reserialized before verification.
func (v *Verifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return ErrInvalidSignature
	}

	ts, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}

	issued := time.Unix(ts, 0)
	age := v.now().Sub(issued)
	if age > v.tolerance || age < -v.tolerance {
		return ErrInvalidSignature
	}

	signed := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(signed))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// Sign produces a signature header for the given payload, timestamped at.
// Used by local tooling to fabricate deliveries against a dev gateway.
func Sign(secret string, at time.Time, payload []byte) string {
	signed := fmt.Sprintf("%d.%s", at.Unix(), payload)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, errors.New("empty signature header")
	}

	var rawTimestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch strings.TrimSpace(keyValue[0]) {
		case "t":
			rawTimestamp = strings.TrimSpace(keyValue[1])
		case "v1":
			signatures = append(signatures, strings.TrimSpace(keyValue[1]))
		}
	}
	if rawTimestamp == "" || len(signatures) == 0 {
		return 0, nil, errors.New("incomplete signature header")
	}

	ts, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return 0, nil, errors.New("invalid signature timestamp")
	}
	return ts, signatures, nil
}
