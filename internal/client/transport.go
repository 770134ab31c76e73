package client

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

	"sashi-calendar/backend/internal/dto"
)

// Transport 日程服务的写读接口
type Transport interface {
	List(ctx context.Context, start, end string) (*dto.InstanceListResponse, error)
	Create(ctx context.Context, fields Patch) (*dto.EventResponse, error)
	Update(ctx context.Context, m Mutation) (*dto.MutationResponse, error)
	Delete(ctx context.Context, m Mutation) (*dto.MutationResponse, error)
	Batch(ctx context.Context, ms []Mutation) ([]dto.MutationResponse, error)
}

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Status  int
	Code    int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api http %d (code %d): %s: %s", e.Status, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("api http %d (code %d): %s", e.Status, e.Code, e.Message)
}

// HTTPTransport 基于 net/http 的 Transport 实现
type HTTPTransport struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details string          `json:"details"`
}

func (t *HTTPTransport) List(ctx context.Context, start, end string) (*dto.InstanceListResponse, error) {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	var out dto.InstanceListResponse
	if err := t.do(ctx, http.MethodGet, "/api/v1/events", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTPTransport) Create(ctx context.Context, fields Patch) (*dto.EventResponse, error) {
	var out dto.EventResponse
	if err := t.do(ctx, http.MethodPost, "/api/v1/events", nil, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTPTransport) Update(ctx context.Context, m Mutation) (*dto.MutationResponse, error) {
	q := url.Values{"editMode": {m.scope()}}
	if m.Date != "" {
		q.Set("date", m.Date)
	}
	patch := m.Patch
	if patch == nil {
		patch = Patch{}
	}
	var out dto.MutationResponse
	if err := t.do(ctx, http.MethodPatch, "/api/v1/events/"+url.PathEscape(m.SeriesID), q, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTPTransport) Delete(ctx context.Context, m Mutation) (*dto.MutationResponse, error) {
	q := url.Values{"deleteMode": {m.scope()}}
	if m.Date != "" {
		q.Set("date", m.Date)
	}
	var out dto.MutationResponse
	if err := t.do(ctx, http.MethodDelete, "/api/v1/events/"+url.PathEscape(m.SeriesID), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTPTransport) Batch(ctx context.Context, ms []Mutation) ([]dto.MutationResponse, error) {
	type item struct {
		ID       string `json:"id"`
		EditMode string `json:"edit_mode"`
		Date     string `json:"date,omitempty"`
		Patch    Patch  `json:"patch"`
	}
	body := struct {
		Items []item `json:"items"`
	}{Items: make([]item, 0, len(ms))}
	for _, m := range ms {
		if m.Delete {
			return nil, ErrBatchDelete
		}
		p := m.Patch
		if p == nil {
			p = Patch{}
		}
		body.Items = append(body.Items, item{ID: m.SeriesID, EditMode: m.scope(), Date: m.Date, Patch: p})
	}

	var out struct {
		List []dto.MutationResponse `json:"list"`
	}
	if err := t.do(ctx, http.MethodPatch, "/api/v1/events/batch", nil, body, &out); err != nil {
		return nil, err
	}
	return out.List, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	base := strings.TrimRight(strings.TrimSpace(t.BaseURL), "/")
	if base == "" {
		return errors.New("api base url is empty")
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	resp, err := t.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message, Details: env.Details}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (t *HTTPTransport) httpClient() *http.Client {
	if t.HTTP != nil {
		return t.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
