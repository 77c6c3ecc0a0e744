// Package muxhook verifies and decodes Mux webhook deliveries.
package muxhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header Mux signs every delivery with.
const SignatureHeader = "Mux-Signature"

// DefaultTolerance is the accepted clock skew between Mux and us.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrNoSecret            = fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	ErrMissingHeader       = fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	ErrMalformedHeader     = fmt.Errorf("%w: malformed %s header", ErrInvalidSignature, SignatureHeader)
	ErrTimestampOutOfRange = fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	ErrSignatureMismatch   = fmt.Errorf("%w: no matching v1 signature", ErrInvalidSignature)
)

// Verifier checks Mux-Signature headers against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier. A non-positive tolerance uses DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Verify authenticates the raw body. Header format: t=<unix>,v1=<hex>[,v1=<hex>].
func (v *Verifier) Verify(body []byte, header http.Header) error {
	if len(v.secret) == 0 {
		return ErrNoSecret
	}
	raw := strings.TrimSpace(header.Get(SignatureHeader))
	if raw == "" {
		return ErrMissingHeader
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(raw, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			sigs = append(sigs, val)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrMalformedHeader
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformedHeader
	}
	skew := v.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return ErrTimestampOutOfRange
	}

	expected := v.compute(ts, body)
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign returns a Mux-Signature header value for body at the given time.
func (v *Verifier) Sign(body []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(v.compute(ts, body))
}

func (v *Verifier) compute(ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}
