// Package capture submits wishes to a relay and drives its admin endpoints.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/astromechza/wishboard/pkg/wish"
)

var (
	ErrInvalidName  = errors.New("invalid child name")
	ErrMissingPhoto = errors.New("photo is required")
)

// ServerError carries the message the relay returned with a failed request.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned status %d", e.Status)
	}
	return fmt.Sprintf("relay returned status %d: %s", e.Status, e.Message)
}

type Submission struct {
	ChildName string
	Photo     io.Reader
	// Filename is sent with the photo part; the relay sniffs the real type.
	Filename string
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url must be http or https, got %q", u.Scheme)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, http: httpClient}, nil
}

// Submit uploads one wish and returns it as the relay recorded it.
func (c *Client) Submit(ctx context.Context, sub Submission) (wish.Wish, error) {
	name, err := wish.NormalizeName(sub.ChildName)
	if err != nil {
		return wish.Wish{}, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	if sub.Photo == nil {
		return wish.Wish{}, ErrMissingPhoto
	}
	filename := sub.Filename
	if filename == "" {
		filename = "wish.jpg"
	}

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("childName", name); err != nil {
		return wish.Wish{}, fmt.Errorf("failed to write form: %w", err)
	}
	fw, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return wish.Wish{}, fmt.Errorf("failed to write form: %w", err)
	}
	n, err := io.Copy(fw, sub.Photo)
	if err != nil {
		return wish.Wish{}, fmt.Errorf("failed to read photo: %w", err)
	}
	if n == 0 {
		return wish.Wish{}, ErrMissingPhoto
	}
	if err := mw.Close(); err != nil {
		return wish.Wish{}, fmt.Errorf("failed to write form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath("api", "upload").String(), body)
	if err != nil {
		return wish.Wish{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return wish.Wish{}, fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	var out wish.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return wish.Wish{}, &ServerError{Status: resp.StatusCode, Message: "unreadable response"}
	}
	if !out.Success || out.Wish == nil {
		return wish.Wish{}, &ServerError{Status: resp.StatusCode, Message: out.Error}
	}
	return *out.Wish, nil
}

func (c *Client) do(ctx context.Context, method string, body any, out any, path ...string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path...).String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", strings.ToLower(method), req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e wish.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &ServerError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) List(ctx context.Context) ([]wish.Wish, error) {
	var out []wish.Wish
	if err := c.do(ctx, http.MethodGet, nil, &out, "api", "wishes"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, "api", "wishes", id)
}

// Clear removes every wish and returns how many were removed.
func (c *Client) Clear(ctx context.Context) (int, error) {
	var out wish.Cleared
	if err := c.do(ctx, http.MethodDelete, nil, &out, "api", "wishes"); err != nil {
		return 0, err
	}
	return out.Cleared, nil
}

func (c *Client) Spotlight(ctx context.Context, id string) (wish.Wish, error) {
	var out wish.Wish
	if err := c.do(ctx, http.MethodPost, nil, &out, "api", "spotlight", id); err != nil {
		return wish.Wish{}, err
	}
	return out, nil
}

func (c *Client) SpotlightOff(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, nil, nil, "api", "spotlight")
}

func (c *Client) Theme(ctx context.Context) (string, error) {
	var out wish.Theme
	if err := c.do(ctx, http.MethodGet, nil, &out, "api", "theme"); err != nil {
		return "", err
	}
	return out.Theme, nil
}

func (c *Client) SetTheme(ctx context.Context, theme string) error {
	return c.do(ctx, http.MethodPut, wish.Theme{Theme: theme}, nil, "api", "theme")
}
