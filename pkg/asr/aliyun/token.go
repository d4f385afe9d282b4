package aliyun

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/autonomi-lab/roadscribe/pkg/asr"
)

const (
	tokenEndpoint = "https://nls-meta.cn-shanghai.aliyuncs.com/"
	tokenRegion   = "cn-shanghai"

	// tokenRefreshMargin is how long before expiry a cached token is
	// considered stale and refreshed proactively.
	tokenRefreshMargin = 5 * time.Minute
)

// Credentials holds the access key pair and project appkey for the
// recognition service. Immutable for the lifetime of a connection.
type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
	AppKey          string
}

// Validate reports whether the credential set is complete.
func (c Credentials) Validate() error {
	if c.AccessKeyID == "" || c.AccessKeySecret == "" || c.AppKey == "" {
		return asr.Errorf(asr.KindConfiguration, "access_key_id, access_key_secret and app_key are all required")
	}
	return nil
}

// Token is a time-limited access token for the recognition gateway.
type Token struct {
	ID string

	// ExpiresAt is the absolute expiry reported by the service.
	ExpiresAt time.Time
}

// tokenResponse is the JSON body returned by the CreateToken action.
type tokenResponse struct {
	Token struct {
		ID         string `json:"Id"`
		ExpireTime int64  `json:"ExpireTime"` // epoch seconds
	} `json:"Token"`
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	RequestID string `json:"RequestId"`
}

// TokenProvider fetches and caches CreateToken results. A cached token is
// reused until it comes within tokenRefreshMargin of expiry; Invalidate
// forces the next Get to fetch a fresh one.
//
// Safe for concurrent use.
type TokenProvider struct {
	creds  Credentials
	client *http.Client

	// Injectable for deterministic signature tests.
	now   func() time.Time
	nonce func() string

	mu     sync.Mutex
	cached *Token
}

// NewTokenProvider creates a TokenProvider for the given credentials.
func NewTokenProvider(creds Credentials) (*TokenProvider, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &TokenProvider{
		creds:  creds,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		nonce:  generateID,
	}, nil
}

// Get returns a token valid for at least tokenRefreshMargin, fetching a new
// one when the cache is empty or stale.
func (p *TokenProvider) Get(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && p.now().Add(tokenRefreshMargin).Before(p.cached.ExpiresAt) {
		return *p.cached, nil
	}

	tok, err := p.fetch(ctx)
	if err != nil {
		return Token{}, err
	}
	p.cached = &tok
	return tok, nil
}

// Invalidate discards the cached token. Called by the transport when the
// service reports the token invalid or expired.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// fetch performs one CreateToken request. Callers hold p.mu.
func (p *TokenProvider) fetch(ctx context.Context) (Token, error) {
	params := map[string]string{
		"AccessKeyId":      p.creds.AccessKeyID,
		"Action":           "CreateToken",
		"Format":           "JSON",
		"RegionId":         tokenRegion,
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureNonce":   p.nonce(),
		"SignatureVersion": "1.0",
		"Timestamp":        p.now().UTC().Format("2006-01-02T15:04:05Z"),
		"Version":          "2019-02-28",
	}

	query := canonicalQuery(params)
	signature := sign(query, p.creds.AccessKeySecret)
	reqURL := tokenEndpoint + "?" + query + "&Signature=" + percentEncode(signature)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Token{}, asr.WrapError(asr.KindAuth, err, "build token request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Token{}, asr.WrapError(asr.KindAuth, err, "token request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, asr.WrapError(asr.KindAuth, err, "read token response")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, asr.WrapError(asr.KindAuth, err, "decode token response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || tr.Token.ID == "" {
		if tr.Code != "" {
			return Token{}, asr.Errorf(asr.KindAuth, "CreateToken rejected: %s: %s (request %s)", tr.Code, tr.Message, tr.RequestID)
		}
		return Token{}, asr.Errorf(asr.KindAuth, "CreateToken failed with HTTP %d", resp.StatusCode)
	}

	return Token{
		ID:        tr.Token.ID,
		ExpiresAt: time.Unix(tr.Token.ExpireTime, 0),
	}, nil
}

// canonicalQuery sorts the parameter keys lexicographically, percent-encodes
// each key and value, and joins them with '&'.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+"="+percentEncode(params[k]))
	}
	return strings.Join(parts, "&")
}

// sign computes base64(HMAC-SHA1(stringToSign, secret+"&")) over the
// canonical GET string-to-sign for the given query.
func sign(canonicalQuery, secret string) string {
	stringToSign := "GET&" + percentEncode("/") + "&" + percentEncode(canonicalQuery)
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode applies the RFC 3986 variant the signature scheme requires:
// spaces become %20 (never '+'), '*' becomes %2A, and '~' stays literal.
func percentEncode(s string) string {
	enc := url.QueryEscape(s)
	enc = strings.ReplaceAll(enc, "+", "%20")
	enc = strings.ReplaceAll(enc, "*", "%2A")
	enc = strings.ReplaceAll(enc, "%7E", "~")
	return enc
}
