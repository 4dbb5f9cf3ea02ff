package gateway

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

	"github.com/charmbracelet/log"

	"github.com/five82/mochiyoru/internal/model"
)

// Store defines the storage operations the core depends on. It is
// implemented by *Client and can be faked in tests.
type Store interface {
	CreateGroup(ctx context.Context, name string, members []string) (string, error)
	FetchGroup(ctx context.Context, id string) (model.Group, error)
	UpdateGroup(ctx context.Context, group model.Group) error
	ListItems(ctx context.Context, groupID string) ([]model.Item, error)
	UpsertItem(ctx context.Context, groupID string, item model.Item) error
	DeleteItem(ctx context.Context, groupID, name string) error
}

// Ensure Client implements Store at compile time.
var _ Store = (*Client)(nil)

// Client talks to the storage HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	origin    string
	logger    *log.Logger
}

const (
	defaultAPIURL    = "http://127.0.0.1:8788"
	defaultUserAgent = "mochiyoru/0.1"

	DefaultTimeout      = 5 * time.Second
	DefaultReadRetries  = 2
	DefaultRetryBackoff = 250 * time.Millisecond

	maxErrorBody = 4 << 10
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithReadRetries sets how many times a failed read is retried and the
// initial backoff, which doubles on every attempt.
func WithReadRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithOrigin tags every write with the client's origin id.
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = strings.TrimSpace(origin) }
}

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger routes retry diagnostics to logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a Client for the API rooted at apiURL.
func NewClient(apiURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(apiURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{},
		userAgent: defaultUserAgent,
		timeout:   DefaultTimeout,
		retries:   DefaultReadRetries,
		backoff:   DefaultRetryBackoff,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Origin returns the id attached to writes, if any.
func (c *Client) Origin() string {
	return c.origin
}

// CreateGroup registers a new group and returns the id assigned by the store.
func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	if members == nil {
		members = []string{}
	}
	body := GroupRecord{GroupName: name, Members: members}
	var payload CreateGroupResponse
	if err := c.do(ctx, "create group", http.MethodPost, "/api/groups", body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.GroupID) == "" {
		return "", &Error{Kind: KindServer, Op: "create group", Message: "response carried no group id"}
	}
	return payload.GroupID, nil
}

// FetchGroup reads group metadata. A missing group yields a KindNotFound
// error that also satisfies model.IsNotFound.
func (c *Client) FetchGroup(ctx context.Context, id string) (model.Group, error) {
	if c == nil {
		return model.Group{}, fmt.Errorf("client is nil")
	}
	var payload GroupRecord
	err := c.read(ctx, "fetch group", groupPath(id), &payload)
	if err != nil {
		var ge *Error
		if errors.As(err, &ge) && ge.Kind == KindNotFound {
			ge.Err = &model.NotFoundError{Resource: "group", ID: id}
		}
		return model.Group{}, err
	}
	g := payload.Group()
	if g.ID == "" {
		g.ID = id
	}
	return g, nil
}

// UpdateGroup overwrites the name and members of an existing group.
func (c *Client) UpdateGroup(ctx context.Context, group model.Group) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	members := group.Members
	if members == nil {
		members = []string{}
	}
	body := GroupRecord{GroupName: group.Name, Members: members}
	return c.do(ctx, "update group", http.MethodPost, groupPath(group.ID), body, nil)
}

// ListItems returns the group's items in store order. A missing group or
// item table is an empty list, not an error.
func (c *Client) ListItems(ctx context.Context, groupID string) ([]model.Item, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var rows []ItemRecord
	if err := c.read(ctx, "list items", itemsPath(groupID), &rows); err != nil {
		if KindOf(err) == KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	items := make([]model.Item, 0, len(rows))
	for _, row := range rows {
		it := row.Item()
		if it.Name == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// UpsertItem creates or overwrites the item keyed by (groupID, name). Writes
// are attempted exactly once.
func (c *Client) UpsertItem(ctx context.Context, groupID string, item model.Item) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, "upsert item", http.MethodPost, itemsPath(groupID), RecordFromItem(groupID, item), nil)
}

// DeleteItem removes the item keyed by (groupID, name).
func (c *Client) DeleteItem(ctx context.Context, groupID, name string) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	body := ItemRecord{ItemName: name}
	return c.do(ctx, "delete item", http.MethodDelete, itemsPath(groupID), body, nil)
}

// FeedURL returns the websocket address of the group's change feed.
func (c *Client) FeedURL(groupID string) string {
	u := c.baseURL.ResolveReference(&url.URL{Path: groupPath(groupID) + "/feed"})
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

// read performs an idempotent GET, retrying transient failures with
// exponential backoff.
func (c *Client) read(ctx context.Context, op, path string, dest any) error {
	wait := c.backoff
	for attempt := 0; ; attempt++ {
		err := c.do(ctx, op, http.MethodGet, path, nil, dest)
		if err == nil || !IsTransient(err) || attempt >= c.retries {
			return err
		}
		c.logger.Debug("retrying read", "op", op, "attempt", attempt+1, "wait", wait, "err", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		wait *= 2
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body, dest any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	reqURL := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(reqCtx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.origin != "" {
		req.Header.Set(OriginHeader, c.origin)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return statusError(op, resp.StatusCode, readErrorMessage(resp.Body))
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if reqCtx.Err() != nil {
			return transportError(op, reqCtx.Err())
		}
		return &Error{Kind: KindServer, Op: op, Status: resp.StatusCode, Message: "malformed response", Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	var body ErrorBody
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

func groupPath(id string) string {
	return "/api/groups/" + id
}

func itemsPath(id string) string {
	return groupPath(id) + "/items"
}

func parseBaseURL(apiURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiURL)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_url %q: %w", apiURL, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
