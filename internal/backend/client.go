package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// Client talks to the backend over HTTP with a shared cookie jar.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithJar sets the cookie jar used for every request.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) { c.httpClient.Jar = jar }
}

// WithInsecureTLS disables certificate verification.
func WithInsecureTLS() Option {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string { return c.baseURL }

// URL returns the absolute URL of path on the backend.
func (c *Client) URL(path string) string { return c.baseURL + path }

// Jar returns the client's cookie jar, or nil.
func (c *Client) Jar() http.CookieJar { return c.httpClient.Jar }

// Me fetches the logged-in identity.
func (c *Client) Me(ctx context.Context) (MeResponse, error) {
	var out MeResponse
	if err := c.doJSON(ctx, http.MethodGet, PathMe, nil, &out); err != nil {
		return MeResponse{}, err
	}
	if out.Error != "" {
		return MeResponse{}, &ServerError{Status: http.StatusOK, Message: out.Error}
	}
	return out, nil
}

// MeWithCookies fetches the identity cookies belong to. The client's own jar
// is neither read nor changed.
func (c *Client) MeWithCookies(ctx context.Context, cookies []*http.Cookie) (MeResponse, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return MeResponse{}, fmt.Errorf("parse backend url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return MeResponse{}, fmt.Errorf("create cookie jar: %w", err)
	}
	jar.SetCookies(u, cookies)

	hc := *c.httpClient
	hc.Jar = jar
	scratch := &Client{baseURL: c.baseURL, httpClient: &hc}
	return scratch.Me(ctx)
}

// Logout asks the backend to clear the session. Any 2xx is success.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, PathLogout, nil, nil)
}

// Ask sends one text query and returns the answer.
func (c *Client) Ask(ctx context.Context, query string) (string, error) {
	var out AskResponse
	if err := c.doJSON(ctx, http.MethodPost, PathAsk, AskRequest{Query: query}, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", &ServerError{Status: http.StatusOK, Message: out.Error}
	}
	return out.Answer, nil
}

// Upload sends every file in paths as one multipart request.
func (c *Client) Upload(ctx context.Context, paths []string) (UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range paths {
		if err := addFilePart(mw, FieldFiles, p); err != nil {
			return UploadResponse{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, fmt.Errorf("close multipart: %w", err)
	}

	var out UploadResponse
	err := c.do(ctx, http.MethodPost, PathUpload, &buf, mw.FormDataContentType(), func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return UploadResponse{}, err
	}
	if out.Error != "" {
		return out, &ServerError{Status: http.StatusOK, Message: out.Error}
	}
	return out, nil
}

// Transcribe posts a WAV recording and returns the recognised text.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldAudio, AudioFileName))
	h.Set("Content-Type", "audio/wav")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	var out TranscribeResponse
	err = c.do(ctx, http.MethodPost, PathSTT, &buf, mw.FormDataContentType(), func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", &ServerError{Status: http.StatusOK, Message: out.Error}
	}
	return out.Text, nil
}

// Synthesize converts text to speech and returns the raw audio payload.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(SynthesizeRequest{Text: text})
	if err != nil {
		return nil, err
	}

	var audio []byte
	err = c.do(ctx, http.MethodPost, PathTTS, bytes.NewReader(body), "application/json", func(resp *http.Response) error {
		var rerr error
		audio, rerr = io.ReadAll(resp.Body)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// doJSON performs a JSON request and decodes the response into out, if given.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	return c.do(ctx, method, path, body, contentType, func(resp *http.Response) error {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// do performs the request and hands a 2xx response to decode.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, decode func(*http.Response) error) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := readServerError(resp)
		log.Printf("[BACKEND]: '%s %s' failed: %v", method, path, se)
		return se
	}

	if err := decode(resp); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func readServerError(resp *http.Response) *ServerError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &ServerError{Status: resp.StatusCode}

	var eb errorBody
	if json.Unmarshal(b, &eb) == nil {
		switch {
		case eb.Error != "":
			se.Message = eb.Error
		case eb.Message != "":
			se.Message = eb.Message
		}
		return se
	}
	msg := strings.TrimSpace(string(b))
	if len(msg) > 200 {
		msg = msg[:200] + "…"
	}
	se.Message = msg
	return se
}

func addFilePart(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create part for %s: %w", path, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}
