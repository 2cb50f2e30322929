package chatplatform

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

	"github.com/dalemusser/waffle/pantry/text"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// Config configures the HTTP client.
type Config struct {
	BaseURL string
	// APIKey is the platform admin key used for group and model management.
	APIKey  string
	Timeout time.Duration
}

// Client implements Platform and Directory over the platform's REST API.
type Client struct {
	base  string
	admin *http.Client // carries the admin key
	user  *http.Client // end-user credentials are set per request
	log   *zap.Logger
}

var (
	_ Platform  = (*Client)(nil)
	_ Directory = (*Client)(nil)
)

// New returns a client for the platform at cfg.BaseURL.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("chatplatform: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("chatplatform: API key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	admin := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.APIKey,
		TokenType:   "Bearer",
	}))
	admin.Timeout = timeout

	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		admin: admin,
		user:  base,
		log:   log,
	}, nil
}

// do sends one request and decodes a JSON response into out (when non-nil).
// Failures come back as *Error.
func (c *Client) do(ctx context.Context, hc *http.Client, op, method, path string, in, out any, tok *oauth2.Token) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != nil {
		tok.SetAuthHeader(req)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Warn("chat platform request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return &Error{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("chat platform request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{
			Op:        op,
			Status:    resp.StatusCode,
			Retryable: retryableStatus(resp.StatusCode),
			Detail:    errorDetail(detail),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorDetail pulls the message out of {"detail": "..."} bodies and falls
// back to the raw text.
func errorDetail(b []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(b, &payload) == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(b))
}

func (c *Client) adminDo(ctx context.Context, op, method, path string, in, out any) error {
	return c.do(ctx, c.admin, op, method, path, in, out, nil)
}

/* --- groups --- */

func (c *Client) FindGroupByName(ctx context.Context, name string) (Group, bool, error) {
	var groups []Group
	if err := c.adminDo(ctx, "find_group", http.MethodGet, "/api/v1/groups/", nil, &groups); err != nil {
		return Group{}, false, err
	}
	for _, g := range groups {
		if g.Name == name {
			return g, true, nil
		}
	}
	return Group{}, false, nil
}

func (c *Client) CreateGroup(ctx context.Context, name, ownerID, description string) (Group, error) {
	in := map[string]any{
		"name":        name,
		"description": description,
		"owner_id":    ownerID,
	}
	var g Group
	if err := c.adminDo(ctx, "create_group", http.MethodPost, "/api/v1/groups/create", in, &g); err != nil {
		return Group{}, err
	}
	return g, nil
}

func (c *Client) getGroup(ctx context.Context, op, groupID string) (Group, error) {
	var g Group
	err := c.adminDo(ctx, op, http.MethodGet, "/api/v1/groups/id/"+url.PathEscape(groupID), nil, &g)
	return g, err
}

func (c *Client) AddMemberByEmail(ctx context.Context, groupID, email string) (bool, error) {
	u, found, err := c.FindUserByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if !found {
		return false, &Error{Op: "add_member", Status: http.StatusNotFound, Err: ErrUserNotFound, Detail: email}
	}

	g, err := c.getGroup(ctx, "add_member", groupID)
	if err != nil {
		return false, err
	}
	if g.HasMember(u.ID) {
		return false, nil
	}

	in := map[string]any{"user_ids": []string{u.ID}}
	path := "/api/v1/groups/id/" + url.PathEscape(groupID) + "/users/add"
	if err := c.adminDo(ctx, "add_member", http.MethodPost, path, in, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	g, err := c.getGroup(ctx, "remove_member", groupID)
	if err != nil {
		return false, err
	}
	if !g.HasMember(userID) {
		return false, nil
	}

	in := map[string]any{"user_ids": []string{userID}}
	path := "/api/v1/groups/id/" + url.PathEscape(groupID) + "/users/remove"
	if err := c.adminDo(ctx, "remove_member", http.MethodPost, path, in, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) ListMembers(ctx context.Context, groupID string) ([]User, error) {
	var users []User
	path := "/api/v1/groups/id/" + url.PathEscape(groupID) + "/users"
	if err := c.adminDo(ctx, "list_members", http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

/* --- users --- */

// FindUserByEmail matches email case-insensitively against the search results.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (User, bool, error) {
	var users []User
	path := "/api/v1/users/search?query=" + url.QueryEscape(email)
	if err := c.adminDo(ctx, "find_user", http.MethodGet, path, nil, &users); err != nil {
		return User{}, false, err
	}
	want := text.Fold(email)
	for _, u := range users {
		if text.Fold(u.Email) == want {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

// ResolveToken returns the account that owns token. A rejected credential
// yields an error wrapping ErrInvalidToken.
func (c *Client) ResolveToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, &Error{Op: "resolve_token", Status: http.StatusUnauthorized, Err: ErrInvalidToken}
	}
	var u User
	err := c.do(ctx, c.user, "resolve_token", http.MethodGet, "/api/v1/auths/", nil, &u,
		&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) && (pe.Status == http.StatusUnauthorized || pe.Status == http.StatusForbidden) {
			pe.Err = ErrInvalidToken
		}
		return User{}, err
	}
	if u.ID == "" {
		return User{}, &Error{Op: "resolve_token", Status: http.StatusUnauthorized, Err: ErrInvalidToken}
	}
	return u, nil
}

/* --- models --- */

type accessList struct {
	GroupIDs []string `json:"group_ids"`
	UserIDs  []string `json:"user_ids"`
}

type modelForm struct {
	ID            string                `json:"id"`
	BaseModelID   *string               `json:"base_model_id"`
	Name          string                `json:"name"`
	Meta          modelMeta             `json:"meta"`
	Params        map[string]any        `json:"params"`
	AccessControl map[string]accessList `json:"access_control"`
	IsActive      bool                  `json:"is_active"`
}

type modelMeta struct {
	Description  string          `json:"description"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
	OwnerLabel   string          `json:"owner_label,omitempty"`
}

func (c *Client) getModel(ctx context.Context, op, id string) (modelForm, bool, error) {
	var m modelForm
	err := c.adminDo(ctx, op, http.MethodGet, "/api/v1/models/model?id="+url.QueryEscape(id), nil, &m)
	if StatusOf(err) == http.StatusNotFound {
		return modelForm{}, false, nil
	}
	if err != nil {
		return modelForm{}, false, err
	}
	return m, true, nil
}

func (c *Client) CreateOrUpdateModel(ctx context.Context, m Model) (bool, error) {
	existing, found, err := c.getModel(ctx, "ensure_model", m.ID)
	if err != nil {
		return false, err
	}

	form := modelForm{
		ID:   m.ID,
		Name: m.Name,
		Meta: modelMeta{
			Description:  m.Description,
			Capabilities: m.Capabilities,
			OwnerLabel:   m.OwnerLabel,
		},
		Params:   map[string]any{},
		IsActive: true,
		AccessControl: map[string]accessList{
			PermissionRead:  {GroupIDs: []string{m.GroupID}, UserIDs: []string{}},
			PermissionWrite: {GroupIDs: []string{}, UserIDs: []string{}},
		},
	}
	if !found {
		if err := c.adminDo(ctx, "ensure_model", http.MethodPost, "/api/v1/models/create", form, nil); err != nil {
			return false, err
		}
		return true, nil
	}

	// Keep grants made outside this service.
	for perm, list := range existing.AccessControl {
		merged := form.AccessControl[perm]
		for _, gid := range list.GroupIDs {
			merged.GroupIDs = appendUnique(merged.GroupIDs, gid)
		}
		for _, uid := range list.UserIDs {
			merged.UserIDs = appendUnique(merged.UserIDs, uid)
		}
		form.AccessControl[perm] = merged
	}
	path := "/api/v1/models/model/update?id=" + url.QueryEscape(m.ID)
	if err := c.adminDo(ctx, "ensure_model", http.MethodPost, path, form, nil); err != nil {
		return false, err
	}
	return false, nil
}

func (c *Client) GrantGroupPermission(ctx context.Context, modelID, groupID, permission string) (bool, error) {
	m, found, err := c.getModel(ctx, "grant_access", modelID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, &Error{Op: "grant_access", Status: http.StatusNotFound, Detail: "model " + modelID}
	}
	if m.AccessControl == nil {
		m.AccessControl = map[string]accessList{}
	}
	list := m.AccessControl[permission]
	for _, gid := range list.GroupIDs {
		if gid == groupID {
			return false, nil
		}
	}
	list.GroupIDs = append(list.GroupIDs, groupID)
	if list.UserIDs == nil {
		list.UserIDs = []string{}
	}
	m.AccessControl[permission] = list

	path := "/api/v1/models/model/update?id=" + url.QueryEscape(modelID)
	if err := c.adminDo(ctx, "grant_access", http.MethodPost, path, m, nil); err != nil {
		return false, err
	}
	return true, nil
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
