// Package webpush adapts github.com/SherClockHolmes/webpush-go to the push
// engine's Transport.
package webpush

import (
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	wp "github.com/SherClockHolmes/webpush-go"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/push"
)

var b64 = base64.RawURLEncoding

// Config carries the VAPID identity of this server.
type Config struct {
	// PrivateKey is the raw P-256 scalar, base64url encoded.
	PrivateKey string
	// PublicKey is optional; it is derived from PrivateKey when empty and
	// must match it otherwise.
	PublicKey string
	// Subject is a mailto: or https: contact for the push service operator.
	Subject string
}

// Client implements push.Transport.
type Client struct {
	http       *http.Client
	privateKey string
	publicKey  string
	subscriber string
}

var _ push.Transport = (*Client)(nil)

// New checks the VAPID key pair. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	raw, err := decodeKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode vapid private key: %w", err)
	}
	key, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse vapid private key: %w", err)
	}
	pub := b64.EncodeToString(key.PublicKey().Bytes())
	if cfg.PublicKey != "" && strings.TrimRight(cfg.PublicKey, "=") != pub {
		return nil, errors.New("vapid public key does not belong to the private key")
	}
	if cfg.Subject == "" {
		return nil, errors.New("vapid subject is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		http:       httpClient,
		privateKey: b64.EncodeToString(raw),
		publicKey:  pub,
		// webpush-go adds the mailto: scheme itself.
		subscriber: strings.TrimPrefix(cfg.Subject, "mailto:"),
	}, nil
}

// PublicKey is the applicationServerKey browsers subscribe with.
func (c *Client) PublicKey() string {
	return c.publicKey
}

// GenerateKeys returns a fresh VAPID key pair, base64url encoded.
func GenerateKeys() (privateKey, publicKey string, err error) {
	return wp.GenerateVAPIDKeys()
}

// Send posts one encrypted message to ep.
//
// Only a 404 or 410 from the push service, or subscription keys that can
// never be used, yield push.ErrEndpointGone. A payload the record cannot
// hold is push.ErrPayloadTooLarge and says nothing about the endpoint.
func (c *Client) Send(ctx context.Context, ep models.PushEndpoint, payload []byte, ttl time.Duration) error {
	if err := checkKeys(ep); err != nil {
		return fmt.Errorf("%w: %v", push.ErrEndpointGone, err)
	}

	sub := &wp.Subscription{
		Endpoint: ep.Endpoint,
		Keys:     wp.Keys{P256dh: ep.P256dh, Auth: ep.Auth},
	}
	resp, err := wp.SendNotificationWithContext(ctx, payload, sub, &wp.Options{
		HTTPClient:      c.http,
		Subscriber:      c.subscriber,
		TTL:             int(ttl.Seconds()),
		Urgency:         wp.UrgencyNormal,
		VAPIDPublicKey:  c.publicKey,
		VAPIDPrivateKey: c.privateKey,
	})
	if err != nil {
		if errors.Is(err, wp.ErrMaxPadExceeded) {
			return fmt.Errorf("%w: %d bytes", push.ErrPayloadTooLarge, len(payload))
		}
		return fmt.Errorf("send push message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("push service returned %d: %w", resp.StatusCode, push.ErrEndpointGone)
	default:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
}

// checkKeys rejects subscriptions whose keys cannot parse: an uncompressed
// P-256 point and a 16 byte auth secret.
func checkKeys(ep models.PushEndpoint) error {
	raw, err := decodeKey(ep.P256dh)
	if err != nil {
		return fmt.Errorf("decode p256dh: %w", err)
	}
	if _, err := ecdh.P256().NewPublicKey(raw); err != nil {
		return fmt.Errorf("parse p256dh: %w", err)
	}
	auth, err := decodeKey(ep.Auth)
	if err != nil {
		return fmt.Errorf("decode auth: %w", err)
	}
	if len(auth) != 16 {
		return fmt.Errorf("auth secret is %d bytes", len(auth))
	}
	return nil
}

// decodeKey accepts base64url with or without padding, and standard base64.
func decodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if b, err := b64.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
