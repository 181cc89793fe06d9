package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"timetablebot/internal/timetable"
	logx "timetablebot/pkg/logx"
)

var (
	// ErrUnavailable covers timeouts, refused connections, 5xx and 429.
	ErrUnavailable = errors.New("upstream unavailable")
	ErrBadRequest  = errors.New("upstream rejected request")
	ErrMalformed   = errors.New("upstream returned malformed data")
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec int
	UserAgent  string

	// Cache is optional. TTL <= 0 disables caching even when Cache is set.
	Cache    Cache
	CacheTTL time.Duration

	HTTPClient *http.Client
}

type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	ua      string
	cache   Cache
	ttl     time.Duration
	log     logx.Logger
}

func New(opts Options, log logx.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream: invalid base url %q", opts.BaseURL)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "timetablebot/1.0"
	}
	return &Client{
		base:    u,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		ua:      ua,
		cache:   opts.Cache,
		ttl:     opts.CacheTTL,
		log:     log.With(logx.String("comp", "upstream")),
	}, nil
}

func apiType(k timetable.EntityKind) string {
	if k == timetable.EntityInstructor {
		return "person"
	}
	return "group"
}

// Search returns entities of kind whose name matches term. Results of another
// type (the API mixes them for some terms) are dropped.
func (c *Client) Search(ctx context.Context, kind timetable.EntityKind, term string) ([]timetable.Entity, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	q := url.Values{"term": {term}, "type": {apiType(kind)}}
	doc, err := c.getJSON(ctx, "search", q, false)
	if err != nil {
		return nil, err
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: search: want list, got %T", ErrMalformed, doc)
	}
	out := make([]timetable.Entity, 0, len(list))
	for _, it := range list {
		r, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := r["type"].(string); t != "" && t != apiType(kind) {
			continue
		}
		id, name := timetable.EntityID(r), timetable.EntityName(r)
		if id == "" || name == "" {
			continue
		}
		out = append(out, timetable.Entity{Kind: kind, ID: id, Name: name})
	}
	return out, nil
}

// Timetable implements timetable.Fetcher. Zero start and end request everything available.
func (c *Client) Timetable(ctx context.Context, kind timetable.EntityKind, id string, start, end time.Time) (timetable.Payload, error) {
	q := url.Values{"lng": {"1"}}
	if !start.IsZero() {
		q.Set("start", timetable.DateKey(start))
	}
	if !end.IsZero() {
		q.Set("finish", timetable.DateKey(end))
	}
	doc, err := c.getJSON(ctx, "schedule/"+apiType(kind)+"/"+url.PathEscape(id), q, true)
	if err != nil {
		return timetable.Payload{}, err
	}
	return timetable.PayloadFrom(doc), nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, cacheable bool) (any, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	u.RawQuery = q.Encode()
	key := u.String()

	if cacheable {
		if body := c.cached(ctx, key); body != nil {
			if doc, err := decodeJSON(body); err == nil {
				return doc, nil
			}
			c.log.Warn("cached body unreadable; refetching", logx.String("url", key))
		}
	}
	body, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	doc, err := decodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if cacheable {
		c.store(ctx, key, body)
	}
	return doc, nil
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// maxBody caps one response; a larger body is rejected, never truncated.
const maxBody = 8 << 20

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody+1))
	c.log.Debug("upstream request",
		logx.String("url", rawURL),
		logx.Int("status", res.StatusCode),
		logx.Duration("took", time.Since(started)),
	)
	switch {
	case res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, res.Status)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %s", ErrBadRequest, res.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if len(body) > maxBody {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformed, maxBody)
	}
	return body, nil
}

func (c *Client) cached(ctx context.Context, key string) []byte {
	if c.cache == nil || c.ttl <= 0 {
		return nil
	}
	b, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache get failed", logx.Err(err))
		return nil
	}
	if !ok {
		return nil
	}
	return b
}

func (c *Client) store(ctx context.Context, key string, body []byte) {
	if c.cache == nil || c.ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, body, c.ttl); err != nil {
		c.log.Warn("cache set failed", logx.Err(err))
	}
}
