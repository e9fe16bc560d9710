package signature

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/exp/slog"

	"github.com/streamkit/kickhooks"
)

// Kick delivers the event signature in one header, plus a message ID and timestamp
// that are only required (and only signed) for production-class events
const (
	SignatureHeader = "Kick-Event-Signature"
	MessageIdHeader = "Kick-Event-Message-Id"
	TimestampHeader = "Kick-Event-Message-Timestamp"
)

var (
	ErrMissingSignature            = errors.New("webhook request has no signature header")
	ErrTestWebhooksDisabled        = errors.New("test webhooks are not enabled")
	ErrInvalidTestSignature        = errors.New("test webhook signature verification failed")
	ErrMissingMessageIdOrTimestamp = errors.New("webhook request has no message ID or timestamp header")
	ErrInvalidProductionSignature  = errors.New("webhook signature verification failed")
)

// TrustContext holds the two independent trust roots used to verify inbound
// webhooks: an Ed25519 key for locally-generated test events and an RSA key for
// events signed by Kick's production infrastructure. Verification is stateless.
type TrustContext struct {
	AllowTestWebhooks bool
	TestPublicKey     ed25519.PublicKey
	ProdPublicKey     *rsa.PublicKey

	logger *slog.Logger
}

func NewTrustContext(allowTestWebhooks bool, testPublicKey ed25519.PublicKey, prodPublicKey *rsa.PublicKey, logger *slog.Logger) *TrustContext {
	return &TrustContext{
		AllowTestWebhooks: allowTestWebhooks,
		TestPublicKey:     testPublicKey,
		ProdPublicKey:     prodPublicKey,
		logger:            logger,
	}
}

// Verify checks the authenticity of an inbound webhook, routing test-class events
// (as declared by the payload's own is_test_event field, never by headers) to the
// Ed25519 test key and everything else to the production RSA key. rawBody must be
// the exact bytes that arrived on the wire: verification is byte-exact, and any
// re-serialization of the decoded payload can legally produce different bytes (e.g.
// '&' vs '&') that no longer match what was signed.
func (t *TrustContext) Verify(payload *kickhooks.EventPayload, rawBody []byte, header http.Header) error {
	signature := header.Get(SignatureHeader)
	if signature == "" {
		return ErrMissingSignature
	}

	if rawBody == nil {
		// Last-resort fallback: re-serialize the decoded payload. Expected to fail
		// for any payload whose original encoding differs from ours.
		t.logger.Warn("Raw webhook body unavailable; falling back to re-serialized payload, signature verification may fail spuriously")
		reencoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		rawBody = reencoded
	}

	if payload.IsTestEvent {
		if !t.AllowTestWebhooks {
			return ErrTestWebhooksDisabled
		}
		return t.verifyTest(rawBody, signature)
	}
	return t.verifyProduction(rawBody, header)
}

// verifyTest checks a hex-encoded detached Ed25519 signature over the raw body:
// Ed25519 hashes internally, so the message is passed through un-digested
func (t *TrustContext) verifyTest(rawBody []byte, signature string) error {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidTestSignature
	}
	if !ed25519.Verify(t.TestPublicKey, rawBody, sig) {
		return ErrInvalidTestSignature
	}
	return nil
}

// verifyProduction checks a base64-encoded RSA signature over the concatenation
// 'messageId.timestamp.rawBody', using SHA-256 digest semantics
func (t *TrustContext) verifyProduction(rawBody []byte, header http.Header) error {
	messageId := header.Get(MessageIdHeader)
	timestamp := header.Get(TimestampHeader)
	if messageId == "" || timestamp == "" {
		return ErrMissingMessageIdOrTimestamp
	}

	sig, err := base64.StdEncoding.DecodeString(header.Get(SignatureHeader))
	if err != nil {
		return ErrInvalidProductionSignature
	}

	signed := make([]byte, 0, len(messageId)+len(timestamp)+len(rawBody)+2)
	signed = append(signed, messageId...)
	signed = append(signed, '.')
	signed = append(signed, timestamp...)
	signed = append(signed, '.')
	signed = append(signed, rawBody...)

	digest := sha256.Sum256(signed)
	if err := rsa.VerifyPKCS1v15(t.ProdPublicKey, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidProductionSignature
	}
	return nil
}
