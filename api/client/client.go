// Package client is the programmatic console client used by kiosk
// machines and the editing tools.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/airpulse/console/api/models"
	"github.com/airpulse/console/store"
)

// ErrSessionExpired is returned once the server rejects the session
// token. The caller owns reauthentication; the client drops its session
// and refuses further calls until SetSession.
var ErrSessionExpired = errors.New("session expired")

// Session is the credential for one authenticated client. Expiry is
// advisory; the server remains the authority.
type Session struct {
	Token  string
	Expiry time.Time
}

type Client struct {
	baseURL string
	httpc   *http.Client
	session *Session

	chunkSize      int64
	chunkThreshold int64
}

type Option func(*Client)

// WithChunking overrides the chunked-upload size and threshold.
func WithChunking(size, threshold int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.chunkSize = size
		}
		if threshold > 0 {
			c.chunkThreshold = threshold
		}
	}
}

func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

func New(baseURL string, session Session, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpc:          &http.Client{Timeout: 30 * time.Second},
		session:        &session,
		chunkSize:      512 * 1024,
		chunkThreshold: 1024 * 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSession installs a fresh credential after reauthentication.
func (c *Client) SetSession(session Session) {
	c.session = &session
}

func (c *Client) HasSession() bool {
	return c.session != nil
}

func (c *Client) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	if c.session == nil {
		return nil, ErrSessionExpired
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
	return req, nil
}

// do runs the request and decodes the response into out. A session
// expiry sentinel from any endpoint tears down the stored session.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var errBody models.ErrorResponse
	if json.Unmarshal(data, &errBody) == nil && errBody.Error == models.ErrExpiredToken {
		c.session = nil
		return ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) get(path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	req, err := c.newRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// postForm submits an action-style form POST and checks the res
// sentinel when out is a MutationResponse.
func (c *Client) postForm(path string, form url.Values, out any) error {
	req, err := c.newRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := c.do(req, out); err != nil {
		return err
	}
	if m, ok := out.(*models.MutationResponse); ok && m.Res != models.ResOK {
		return fmt.Errorf("%s: %s", path, m.Res)
	}
	return nil
}

// ListMedia returns the shared media library.
func (c *Client) ListMedia() ([]store.MediaItem, error) {
	var resp models.MediaListResponse
	if err := c.get("/media_library", url.Values{"list": {"1"}}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// DeleteMedia removes an item and every timeline entry referencing it.
func (c *Client) DeleteMedia(id int64) error {
	var resp models.MutationResponse
	return c.postForm("/media_library", url.Values{
		"action": {"delete"},
		"id":     {strconv.FormatInt(id, 10)},
	}, &resp)
}

// DisplaySettings fetches the alternating display settings for a machine.
func (c *Client) DisplaySettings(machineID int64) (*store.DisplaySettings, error) {
	var settings store.DisplaySettings
	err := c.get("/settings/display", url.Values{
		"api": {strconv.FormatInt(machineID, 10)},
	}, &settings)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Relays fetches the relay states for a machine.
func (c *Client) Relays(machineID int64) (map[string]bool, error) {
	var resp models.RelaysResponse
	err := c.get("/relays", url.Values{
		"api": {strconv.FormatInt(machineID, 10)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Relays, nil
}

// ToggleRelay flips one relay and returns the full relay map afterwards.
func (c *Client) ToggleRelay(machineID int64, relay string) (map[string]bool, error) {
	var resp models.RelaysResponse
	err := c.get("/relays", url.Values{
		"api":   {strconv.FormatInt(machineID, 10)},
		"relay": {relay},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Relays, nil
}

// Dashboard fetches the latest sensor snapshot for a machine.
func (c *Client) Dashboard(machineID int64) (*models.DashboardResponse, error) {
	var resp models.DashboardResponse
	err := c.get("/dashboard", url.Values{
		"api": {strconv.FormatInt(machineID, 10)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportReading pushes one sensor snapshot for a machine.
func (c *Client) ReportReading(machineID int64, reading store.SensorReading) error {
	payload, err := json.Marshal(models.ReadingRequest{
		MachineID: machineID,
		Temp:      reading.Temp,
		Humidity:  reading.Humidity,
		CO2:       reading.CO2,
		PM25:      reading.PM25,
		PM10:      reading.PM10,
		TVOC:      reading.TVOC,
	})
	if err != nil {
		return err
	}
	req, err := c.newRequest(http.MethodPost, "/dashboard", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	var resp models.MutationResponse
	return c.do(req, &resp)
}
