// Package leetcode queries the LeetCode GraphQL API for per-user progress.
package leetcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/leetboard/statsync/internal/models"
)

const (
	DefaultEndpoint  = "https://leetcode.com/graphql"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// cap on response bodies; profile payloads are a few KB
	maxBodyBytes = 4 << 20
)

const profileQuery = `
  query getUserProfile($username: String!) {
    allQuestionsCount {
      difficulty
      count
    }
    matchedUser(username: $username) {
      submitStats {
        acSubmissionNum {
          difficulty
          count
          submissions
        }
      }
      submissionCalendar
    }
  }
`

// Stats is the normalized payload for one handle.
type Stats struct {
	Handle             string
	Solved             models.TierCounts
	Available          models.TierCounts
	SubmissionCalendar *string
}

// Config tunes the client.
type Config struct {
	Endpoint      string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	HTTPClient    *http.Client
}

// Client fetches user stats. It performs no retries.
type Client struct {
	endpoint   string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a stats client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		userAgent:  cfg.UserAgent,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type difficultyCount struct {
	Difficulty string `json:"difficulty"`
	Count      int    `json:"count"`
}

type profileResponse struct {
	Data *struct {
		AllQuestionsCount []difficultyCount `json:"allQuestionsCount"`
		MatchedUser       *struct {
			SubmitStats *struct {
				AcSubmissionNum []difficultyCount `json:"acSubmissionNum"`
			} `json:"submitStats"`
			SubmissionCalendar *string `json:"submissionCalendar"`
		} `json:"matchedUser"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// FetchStats looks up one handle. Failures are always *FetchError.
func (c *Client) FetchStats(ctx context.Context, handle string) (*Stats, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newError(KindTransient, handle, 0, fmt.Errorf("rate limiter: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(graphQLRequest{
		Query:     profileQuery,
		Variables: map[string]string{"username": handle},
	})
	if err != nil {
		return nil, newError(KindProtocol, handle, 0, fmt.Errorf("failed to marshal query: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindProtocol, handle, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindTransient, handle, 0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, newError(KindTransient, handle, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if kind, failed := classifyStatus(resp.StatusCode); failed {
		fetchErr := newError(kind, handle, resp.StatusCode, fmt.Errorf("unexpected response: %s", snippet(raw)))
		if kind == KindTransient {
			fetchErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		return nil, fetchErr
	}

	var parsed profileResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, newError(KindProtocol, handle, resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}

	// an error list is only a miss when it says so, with or without data
	if len(parsed.Errors) > 0 {
		message := parsed.Errors[0].Message
		if isUnknownUser(message) {
			return nil, newError(KindNotFound, handle, resp.StatusCode, ErrNotFound)
		}
		return nil, newError(KindProtocol, handle, resp.StatusCode, errors.New(message))
	}
	if parsed.Data == nil {
		return nil, newError(KindProtocol, handle, resp.StatusCode, errors.New("response carries neither data nor errors"))
	}
	if parsed.Data.MatchedUser == nil {
		return nil, newError(KindNotFound, handle, resp.StatusCode, ErrNotFound)
	}

	user := parsed.Data.MatchedUser
	stats := &Stats{
		Handle:             handle,
		Available:          tierCounts(parsed.Data.AllQuestionsCount),
		SubmissionCalendar: user.SubmissionCalendar,
	}
	if user.SubmitStats != nil {
		stats.Solved = tierCounts(user.SubmitStats.AcSubmissionNum)
	}

	c.logger.Debug("fetched leetcode stats",
		"handle", handle,
		"easy", stats.Solved.Easy,
		"medium", stats.Solved.Medium,
		"hard", stats.Solved.Hard,
	)

	return stats, nil
}

// tierCounts picks the Easy/Medium/Hard rows; missing tiers count as zero.
func tierCounts(rows []difficultyCount) models.TierCounts {
	var counts models.TierCounts
	for _, row := range rows {
		switch strings.ToLower(row.Difficulty) {
		case "easy":
			counts.Easy = row.Count
		case "medium":
			counts.Medium = row.Count
		case "hard":
			counts.Hard = row.Count
		}
	}
	return counts
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return KindTransient, true
	default:
		return KindProtocol, true
	}
}

func isUnknownUser(message string) bool {
	return strings.Contains(strings.ToLower(message), "does not exist")
}

// parseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. Unparseable or past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}

func snippet(raw []byte) string {
	const max = 200
	s := strings.TrimSpace(string(raw))
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
