// Package leetcode fetches a user's public solved counts from the platform's
// GraphQL endpoint and classifies every failure into a FetchError.
package leetcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pixelcode/pixelsync/internal/domain/model"
	"github.com/pixelcode/pixelsync/pkg/logger"
	"github.com/pixelcode/pixelsync/pkg/metrics"
)

// Client defaults.
const (
	DefaultEndpoint  = "https://leetcode.com/graphql"
	DefaultUserAgent = "PixelSync/1.0"
	DefaultTimeout   = 8 * time.Second

	maxBodyBytes = 1 << 20
)

const profileQuery = `
  query userPublicProfile($username: String!) {
    matchedUser(username: $username) {
      username
      submitStatsGlobal {
        acSubmissionNum {
          difficulty
          count
        }
      }
    }
  }
`

// Fetcher is the contract the recorder depends on.
type Fetcher interface {
	FetchStats(ctx context.Context, username string) (model.Stats, error)
}

// Client is the External Stats Client.
type Client struct {
	endpoint  string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	now       func() time.Time
	log       logger.Logger
}

var _ Fetcher = (*Client)(nil)

// New creates a client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		endpoint:  DefaultEndpoint,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		http:      &http.Client{},
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

// FetchStats performs exactly one request and returns the user's counts.
// Every error is a *FetchError.
func (c *Client) FetchStats(ctx context.Context, username string) (model.Stats, error) {
	if strings.TrimSpace(username) == "" {
		return model.Stats{}, c.fail(ctx, MissingUsername())
	}

	start := time.Now()
	defer func() {
		metrics.RecordFetchLatency(float64(time.Since(start).Milliseconds()))
	}()

	body, status, header, err := c.post(ctx, username)
	if err != nil {
		return model.Stats{}, c.fail(ctx, &FetchError{
			Kind:      KindNetworkOrTimeout,
			Message:   msgUnreachable,
			Retryable: true,
			Err:       err,
		})
	}

	if status < 200 || status > 299 {
		return model.Stats{}, c.fail(ctx, c.statusError(status, header))
	}

	stats, fe := parseStats(body)
	if fe != nil {
		if fe.Status == 0 {
			fe.Status = status
		}
		return model.Stats{}, c.fail(ctx, fe)
	}
	stats.FetchedAt = c.now().UTC()
	return stats, nil
}

func (c *Client) post(ctx context.Context, username string) ([]byte, int, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(graphQLRequest{
		Query:     profileQuery,
		Variables: map[string]string{"username": username},
	})
	if err != nil {
		return nil, 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		// A body we cannot finish reading is still a transport failure.
		return nil, 0, nil, err
	}
	return body, resp.StatusCode, resp.Header, nil
}

func (c *Client) statusError(status int, header http.Header) *FetchError {
	fe := &FetchError{
		Kind:       KindServerError,
		Message:    msgUnreachable,
		Status:     status,
		RetryAfter: c.retryAfter(header.Get("Retry-After")),
	}
	switch status {
	case http.StatusTooManyRequests:
		fe.Kind = KindRateLimited
		fe.Retryable = true
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		fe.Retryable = true
	}
	return fe
}

// retryAfter parses delta-seconds or an HTTP-date relative to the client clock.
func (c *Client) retryAfter(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			n = 0
		}
		return &n
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return nil
	}
	secs := int(at.Sub(c.now()).Seconds())
	if secs < 0 {
		secs = 0
	}
	return &secs
}

func parseStats(body []byte) (model.Stats, *FetchError) {
	if !gjson.ValidBytes(body) {
		return model.Stats{}, &FetchError{Kind: KindMalformedResponse, Message: msgMalformedBody}
	}

	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		msg := errs.Array()[0].Get("message").String()
		if msg == "" {
			msg = msgPlatformErrors
		}
		return model.Stats{}, &FetchError{Kind: KindMalformedResponse, Message: msg}
	}

	user := gjson.GetBytes(body, "data.matchedUser")
	if !user.Exists() || user.Type == gjson.Null {
		return model.Stats{}, &FetchError{Kind: KindUserNotFound, Message: msgUserNotFound, Status: http.StatusNotFound}
	}

	var stats model.Stats
	user.Get("submitStatsGlobal.acSubmissionNum").ForEach(func(_, entry gjson.Result) bool {
		count := int(entry.Get("count").Int())
		switch entry.Get("difficulty").String() {
		case "All":
			stats.TotalSolved = count
		case "Easy":
			stats.EasySolved = count
		case "Medium":
			stats.MediumSolved = count
		case "Hard":
			stats.HardSolved = count
		}
		return true
	})
	return stats, nil
}

func (c *Client) fail(ctx context.Context, fe *FetchError) error {
	metrics.RecordFetchError(string(fe.Kind))
	fields := []logger.Field{
		logger.String("kind", string(fe.Kind)),
		logger.Int("status", fe.Status),
		logger.Bool("retryable", fe.Retryable),
	}
	if fe.Err != nil && !errors.Is(fe.Err, context.Canceled) {
		fields = append(fields, logger.Error(fe.Err))
	}
	c.log.Debug(ctx, "stats fetch failed", fields...)
	return fe
}
