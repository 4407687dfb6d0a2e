// Package lnurl resolves lightning addresses to BOLT11 invoices through
// LNURL-pay, attaching a signed NIP-57 zap request.
package lnurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zapboard/internal/nips"
	"zapboard/internal/util"
)

// DefaultTimeout bounds each LNURL HTTP round trip
const DefaultTimeout = 10 * time.Second

// maxBodySize caps LNURL responses
const maxBodySize = 1 << 20

var (
	// ErrInvalidAddress is returned for lightning addresses without both a name and a domain
	ErrInvalidAddress = errors.New("invalid lightning address")
	// ErrInvalidPaymentService is returned when the LNURL endpoint is not a usable payRequest
	ErrInvalidPaymentService = errors.New("invalid LNURL pay request")
	// ErrInvoiceUnavailable is returned when the callback yields no invoice
	ErrInvoiceUnavailable = errors.New("failed to get invoice from LNURL service")
	// ErrAmountOutOfRange is returned when the amount is outside the advertised sendable range
	ErrAmountOutOfRange = errors.New("amount outside sendable range")
	// ErrUnsafeURL is returned for URLs that point at internal hosts
	ErrUnsafeURL = errors.New("unsafe LNURL url")
)

// PayInfo is the first-stage LNURL-pay response
type PayInfo struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`    // millisats
	MaxSendable    int64  `json:"maxSendable"`    // millisats
	Metadata       string `json:"metadata"`       // JSON stringified metadata
	Tag            string `json:"tag"`            // should be "payRequest"
	AllowsNostr    bool   `json:"allowsNostr"`    // supports NIP-57 zaps
	NostrPubkey    string `json:"nostrPubkey"`    // pubkey for zap receipts
	CommentAllowed int    `json:"commentAllowed"` // max comment length, 0 = no comments
}

// payResponse is the callback response
type payResponse struct {
	PR string `json:"pr"` // BOLT11 invoice
}

// serviceError is the LUD-06 error body
type serviceError struct {
	Status string `json:"status"` // "ERROR"
	Reason string `json:"reason"`
}

// Client talks to LNURL services
type Client struct {
	HTTPClient *http.Client
	// Scheme for lightning address lookups; "https" unless testing
	Scheme string
	// AllowPrivateHosts disables SSRF checks on outbound URLs
	AllowPrivateHosts bool
}

// NewClient returns a client with a dedicated transport and the given timeout
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          10,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 5 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
		Scheme: "https",
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

// SplitAddress splits name@domain
func SplitAddress(address string) (name, domain string, err error) {
	name, domain, ok := strings.Cut(strings.TrimSpace(address), "@")
	if !ok || name == "" || domain == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return name, domain, nil
}

// AddressURL builds the well-known LNURL-pay endpoint for a lightning address
func (c *Client) AddressURL(address string) (string, error) {
	name, domain, err := SplitAddress(address)
	if err != nil {
		return "", err
	}
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", scheme, domain, url.PathEscape(strings.ToLower(name))), nil
}

// ResolveAddress fetches pay info for a lightning address (lud16)
func (c *Client) ResolveAddress(ctx context.Context, address string) (*PayInfo, error) {
	endpoint, err := c.AddressURL(address)
	if err != nil {
		return nil, err
	}
	return c.FetchPayInfo(ctx, endpoint)
}

// ResolveLud06 decodes a bech32 LNURL and fetches the pay info
func (c *Client) ResolveLud06(ctx context.Context, lud06 string) (*PayInfo, error) {
	endpoint, err := DecodeLud06(lud06)
	if err != nil {
		return nil, err
	}
	return c.FetchPayInfo(ctx, endpoint)
}

// DecodeLud06 returns the URL inside a bech32 "lnurl1..." string
func DecodeLud06(lud06 string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(lud06))
	if !strings.HasPrefix(lower, "lnurl1") {
		return "", fmt.Errorf("%w: lud06 must start with lnurl1", ErrInvalidAddress)
	}
	hrp, data, err := nips.Bech32Decode(lower)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if hrp != "lnurl" {
		return "", fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, hrp)
	}
	urlBytes, err := nips.Bech32ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return string(urlBytes), nil
}

// FetchPayInfo fetches and validates the first-stage response
func (c *Client) FetchPayInfo(ctx context.Context, endpoint string) (*PayInfo, error) {
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPaymentService, err)
	}

	if reason, ok := errorReason(body); ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentService, reason)
	}

	var info PayInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentService, err)
	}
	if info.Tag != "payRequest" {
		return nil, fmt.Errorf("%w: unexpected tag %q", ErrInvalidPaymentService, info.Tag)
	}
	if info.Callback == "" {
		return nil, fmt.Errorf("%w: missing callback", ErrInvalidPaymentService)
	}
	return &info, nil
}

// RequestInvoice calls the pay callback. zapRequestJSON is the signed
// kind-9734 event; empty for a plain LNURL payment.
func (c *Client) RequestInvoice(ctx context.Context, info *PayInfo, amountMsats int64, zapRequestJSON string) (string, error) {
	if info.MinSendable > 0 && amountMsats < info.MinSendable {
		return "", fmt.Errorf("%w: %d msats below minimum %d", ErrAmountOutOfRange, amountMsats, info.MinSendable)
	}
	if info.MaxSendable > 0 && amountMsats > info.MaxSendable {
		return "", fmt.Errorf("%w: %d msats above maximum %d", ErrAmountOutOfRange, amountMsats, info.MaxSendable)
	}

	callbackURL, err := url.Parse(info.Callback)
	if err != nil {
		return "", fmt.Errorf("%w: invalid callback: %v", ErrInvalidPaymentService, err)
	}

	query := callbackURL.Query()
	query.Set("amount", strconv.FormatInt(amountMsats, 10))
	if zapRequestJSON != "" {
		query.Set("nostr", zapRequestJSON)
	}
	callbackURL.RawQuery = query.Encode()

	body, err := c.get(ctx, callbackURL.String())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvoiceUnavailable, err)
	}

	if reason, ok := errorReason(body); ok {
		return "", fmt.Errorf("%w: %s", ErrInvoiceUnavailable, reason)
	}

	var resp payResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvoiceUnavailable, err)
	}
	if resp.PR == "" {
		return "", ErrInvoiceUnavailable
	}
	return resp.PR, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if !c.AllowPrivateHosts {
		if err := ValidateExternalURL(rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// LNURL services often report errors with a non-200 status and a JSON reason
		if reason, ok := errorReason(body); ok {
			return nil, errors.New(reason)
		}
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}

func errorReason(body []byte) (string, bool) {
	var se serviceError
	if err := json.Unmarshal(body, &se); err == nil && strings.EqualFold(se.Status, "ERROR") {
		return se.Reason, true
	}
	return "", false
}

// ValidateExternalURL rejects URLs that could reach internal services
func ValidateExternalURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" || host == "0.0.0.0" || util.IsPrivateHost(host) {
		return fmt.Errorf("%w: internal host", ErrUnsafeURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: private address", ErrUnsafeURL)
		}
	}
	return nil
}
