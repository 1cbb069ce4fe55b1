package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/and161185/ovis-qbsync/internal/convert"
)

const apiPrefix = "/api/quickbooks"

// apiClient calls the sync server's admin endpoints with a session bearer.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status int
	Msg    string
}

func (e *apiError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Msg)
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var er convert.ErrorResponse
		if json.Unmarshal(raw, &er) != nil || er.Error == "" {
			er.Error = strings.TrimSpace(string(raw))
		}
		return &apiError{Status: resp.StatusCode, Msg: er.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *apiClient) status(ctx context.Context) (convert.ConnectionStatus, error) {
	var out convert.ConnectionStatus
	err := c.do(ctx, http.MethodGet, apiPrefix+"/status", nil, &out)
	return out, err
}

func (c *apiClient) importTransactions(ctx context.Context, req convert.SyncRequest) (convert.SyncResponse, error) {
	var out convert.SyncResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/sync-expenses", req, &out)
	return out, err
}

func (c *apiClient) syncItems(ctx context.Context) (convert.ItemSyncResponse, error) {
	var out convert.ItemSyncResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/sync-items", struct{}{}, &out)
	return out, err
}

func (c *apiClient) recategorize(ctx context.Context, req convert.RecategorizeRequest) (convert.RecategorizeResponse, error) {
	var out convert.RecategorizeResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/recategorize", req, &out)
	return out, err
}

func (c *apiClient) syncLog(ctx context.Context, limit int) ([]convert.SyncLogEntry, error) {
	path := apiPrefix + "/sync-log"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out struct {
		Entries []convert.SyncLogEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

func (c *apiClient) lines(ctx context.Context, typ string, limit int) ([]convert.LineEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if typ != "" {
		q.Set("type", typ)
	}
	path := apiPrefix + "/lines"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out convert.LinesResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Lines, err
}

func (c *apiClient) connectURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, http.MethodGet, apiPrefix+"/connect", nil, &out)
	return out.URL, err
}
