// Package api is the typed HTTP client for the leadtap backend. It
// covers every route the TUI and the headless commands consume,
// including the chunked extraction stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/rendis/leadtap/internal/model"
)

// BackendError carries a failure the backend reported itself, as
// opposed to a transport failure. Detail is surfaced to the user
// verbatim.
type BackendError struct {
	StatusCode int
	Detail     string
}

func (e *BackendError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("errore dal backend (HTTP %d)", e.StatusCode)
}

// Client talks to one backend instance. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-side timeout: the scrape stream runs for minutes and
		// is bounded by its context instead.
		http: &http.Client{},
	}
}

// NewWithClient lets tests and proxied setups inject the transport.
func NewWithClient(baseURL string, hc *http.Client) *Client {
	c := New(baseURL)
	if hc != nil {
		c.http = hc
	}
	return c
}

// GeocodeResult is the resolved center of a named place.
type GeocodeResult struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c *Client) Geocode(ctx context.Context, query string) (GeocodeResult, error) {
	var out GeocodeResult
	u := c.baseURL + "/api/geocode?q=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, u, &out); err != nil {
		return GeocodeResult{}, eris.Wrap(err, "api: geocode")
	}
	return out, nil
}

// Lists returns the known list filenames.
func (c *Client) Lists(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, c.baseURL+"/api/lists", &out); err != nil {
		return nil, eris.Wrap(err, "api: get lists")
	}
	return out, nil
}

// CreateList creates an empty list and returns its filename.
func (c *Client) CreateList(ctx context.Context, name string) (string, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", eris.Wrap(err, "api: encode create list")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/lists", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "api: create list request")
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Filename string `json:"filename"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return "", eris.Wrap(err, "api: create list")
	}
	return out.Filename, nil
}

func (c *Client) DeleteList(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.listURL(id, ""), nil)
	if err != nil {
		return eris.Wrap(err, "api: delete list request")
	}
	if err := c.doJSON(req, nil); err != nil {
		return eris.Wrap(err, "api: delete list")
	}
	return nil
}

// GetList fetches the full lead collection of a list.
func (c *Client) GetList(ctx context.Context, id string) ([]model.LeadRecord, error) {
	var out struct {
		Data []model.LeadRecord `json:"data"`
	}
	if err := c.getJSON(ctx, c.listURL(id, ""), &out); err != nil {
		return nil, eris.Wrap(err, "api: get list")
	}
	return out.Data, nil
}

// GetSearches fetches the extraction history of a list.
func (c *Client) GetSearches(ctx context.Context, id string) ([]model.SearchHistoryEntry, error) {
	var out []model.SearchHistoryEntry
	if err := c.getJSON(ctx, c.listURL(id, "/searches"), &out); err != nil {
		return nil, eris.Wrap(err, "api: get searches")
	}
	return out, nil
}

// UpdateRow patches a boolean flag on one row. Together with UpdateNote
// it satisfies leads.RowUpdater.
func (c *Client) UpdateRow(ctx context.Context, listID, placeID string, action model.RowAction, value bool) error {
	body, err := json.Marshal(map[string]any{
		"place_id": placeID,
		"action":   string(action),
		"value":    value,
	})
	if err != nil {
		return eris.Wrap(err, "api: encode row patch")
	}
	if err := c.putJSON(ctx, c.listURL(listID, "/row"), body); err != nil {
		return eris.Wrap(err, "api: update row")
	}
	return nil
}

func (c *Client) UpdateNote(ctx context.Context, listID, placeID, note string) error {
	body, err := json.Marshal(map[string]string{
		"place_id": placeID,
		"note":     note,
	})
	if err != nil {
		return eris.Wrap(err, "api: encode note patch")
	}
	if err := c.putJSON(ctx, c.listURL(listID, "/note"), body); err != nil {
		return eris.Wrap(err, "api: update note")
	}
	return nil
}

// Download streams the list spreadsheet. The caller owns the reader.
func (c *Client) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listURL(id, "/download"), nil)
	if err != nil {
		return nil, eris.Wrap(err, "api: download request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "api: download")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, eris.Wrap(backendError(resp), "api: download")
	}
	return resp.Body, nil
}

// OpenScrape starts an extraction and returns the raw event-stream
// body. It satisfies session.StreamOpener. The caller must Close the
// body; the server closes its end after the terminal event.
func (c *Client) OpenScrape(ctx context.Context, params model.ExtractParams) (io.ReadCloser, error) {
	body, err := json.Marshal(map[string]any{
		"city":      params.City,
		"radius":    params.Radius,
		"grid_step": params.GridStep,
		"keywords":  params.Keywords,
		"list_name": params.ListName,
	})
	if err != nil {
		return nil, eris.Wrap(err, "api: encode scrape params")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "api: scrape request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "api: open scrape stream")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, eris.Wrap(backendError(resp), "api: open scrape stream")
	}
	return resp.Body, nil
}

// Ping probes the backend root, for startup checks.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/lists", nil)
	if err != nil {
		return eris.Wrap(err, "api: ping request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "api: ping")
	}
	resp.Body.Close()
	return nil
}

func (c *Client) listURL(id, suffix string) string {
	return c.baseURL + "/api/lists/" + url.PathEscape(id) + suffix
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) putJSON(ctx context.Context, u string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, nil)
}

// doJSON runs the request, maps non-2xx responses to BackendError, and
// decodes the body into out when out is non-nil.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return backendError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

// backendError extracts the {detail} payload from an error response,
// falling back to the raw body when it is not the expected shape.
func backendError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return &BackendError{StatusCode: resp.StatusCode, Detail: payload.Detail}
	}
	detail := strings.TrimSpace(string(raw))
	return &BackendError{StatusCode: resp.StatusCode, Detail: detail}
}
