package lichess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://lichess.org"
	userAgent      = "chessinsight/1.0"

	// a single export line carries the whole game with analysis.
	maxLineSize = 4 << 20
)

// Observer receives one call per finished request. endpoint is a fixed label
// ("user", "rating-history", "games"), status is 0 on transport errors.
type Observer interface {
	ObserveLichessRequest(endpoint string, status int, elapsed time.Duration)
}

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// RequestsPerSecond <= 0 disables client-side limiting.
	RequestsPerSecond float64
	Logger            *zap.Logger
	Observer          Observer
}

type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	log      *zap.Logger
	observer Observer
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		http:     opts.HTTPClient,
		log:      opts.Logger,
		observer: opts.Observer,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// PublicData fetches the public profile of a user.
func (c *Client) PublicData(ctx context.Context, id string) (User, error) {
	var u User
	err := c.getJSON(ctx, "user", "/api/user/"+url.PathEscape(id), nil, &u)
	return u, err
}

func (c *Client) RatingHistory(ctx context.Context, id string) ([]RatingSeries, error) {
	var out []RatingSeries
	err := c.getJSON(ctx, "rating-history", "/api/user/"+url.PathEscape(id)+"/rating-history", nil, &out)
	return out, err
}

// ExportQuery selects games for ExportGames. Zero Since/Until are left out.
type ExportQuery struct {
	Since   time.Time
	Until   time.Time
	Rated   bool
	Evals   bool
	Opening bool
	Max     int
}

func (q ExportQuery) values() url.Values {
	v := url.Values{}
	if !q.Since.IsZero() {
		v.Set("since", strconv.FormatInt(q.Since.UnixMilli(), 10))
	}
	if !q.Until.IsZero() {
		v.Set("until", strconv.FormatInt(q.Until.UnixMilli(), 10))
	}
	if q.Rated {
		v.Set("rated", "true")
	}
	v.Set("evals", strconv.FormatBool(q.Evals))
	v.Set("opening", strconv.FormatBool(q.Opening))
	if q.Max > 0 {
		v.Set("max", strconv.Itoa(q.Max))
	}
	v.Set("moves", "true")
	v.Set("pgnInJson", "false")
	return v
}

// ExportGames streams a user's games as NDJSON, newest first.
func (c *Client) ExportGames(ctx context.Context, id string, q ExportQuery) ([]Game, error) {
	path := "/api/games/user/" + url.PathEscape(id)
	resp, err := c.do(ctx, "games", path, q.values(), "application/x-ndjson")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var games []Game
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var g Game
		if err := json.Unmarshal(line, &g); err != nil {
			return nil, fmt.Errorf("decode game %d: %w", len(games)+1, err)
		}
		games = append(games, g)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read games: %w", err)
	}
	c.log.Debug("lichess games exported",
		zap.String("user", id),
		zap.Int("count", len(games)),
		zap.Time("since", q.Since),
		zap.Time("until", q.Until),
	)
	return games, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values, dst any) error {
	resp, err := c.do(ctx, endpoint, path, params, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do sends a GET and returns the response only for 2xx replies.
func (c *Client) do(ctx context.Context, endpoint, path string, params url.Values, accept string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, 0, start)
		c.log.Warn("lichess request failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	c.observe(endpoint, resp.StatusCode, start)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	apiErr := &APIError{Status: resp.StatusCode, Path: path, Message: errorMessage(resp.Body)}
	c.log.Warn("lichess error status",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("message", apiErr.Message),
	)
	return nil, apiErr
}

func (c *Client) observe(endpoint string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveLichessRequest(endpoint, status, time.Since(start))
	}
}

// errorMessage extracts {"error": "..."} from an error body, falling back to
// the raw text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(b))
}
