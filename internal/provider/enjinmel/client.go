package enjinmel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shineum/enjinmel-relay/internal/email"
)

// DefaultEndpoint is the EnjinMel SendEmail endpoint.
const DefaultEndpoint = "https://api.enginemailer.com/RESTAPI/V2/Submission/SendEmail"

// DefaultTimeout bounds a single API request.
const DefaultTimeout = 15 * time.Second

// Config holds the configuration for creating a Client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Settings Settings
}

// BeforeSendFunc observes the payload right before it is posted.
type BeforeSendFunc func(ctx context.Context, n *email.Normalized, p *Payload)

// AfterSendFunc observes the outcome of a post: the decoded body on success,
// the error otherwise.
type AfterSendFunc func(ctx context.Context, n *email.Normalized, p *Payload, resp email.Response, err error)

// RequestFunc may adjust the outgoing HTTP request.
type RequestFunc func(r *http.Request)

// Client submits mail to the EnjinMel REST API. Hooks must be registered
// before the client is shared between goroutines.
type Client struct {
	endpoint   string
	timeout    time.Duration
	settings   Settings
	decrypter  Decrypter
	httpClient *http.Client

	payloadHooks []PayloadFunc
	beforeHooks  []BeforeSendFunc
	afterHooks   []AfterSendFunc
	requestHooks []RequestFunc
}

// New creates a Client. The decrypter reveals Settings.APIKey on every send.
func New(cfg Config, dec Decrypter) *Client {
	return newWithOverrides(cfg, dec, &http.Client{})
}

// newWithOverrides creates a Client with a custom HTTP client, used for testing.
func newWithOverrides(cfg Config, dec Decrypter, client *http.Client) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		timeout:    cfg.Timeout,
		settings:   cfg.Settings,
		decrypter:  dec,
		httpClient: client,
	}
}

// OnPayload registers a payload mutation hook.
func (c *Client) OnPayload(fn PayloadFunc) { c.payloadHooks = append(c.payloadHooks, fn) }

// OnBeforeSend registers a hook that runs right before the request.
func (c *Client) OnBeforeSend(fn BeforeSendFunc) { c.beforeHooks = append(c.beforeHooks, fn) }

// OnAfterSend registers a hook that runs after every dispatched request.
func (c *Client) OnAfterSend(fn AfterSendFunc) { c.afterHooks = append(c.afterHooks, fn) }

// OnRequest registers a hook that may adjust the HTTP request.
func (c *Client) OnRequest(fn RequestFunc) { c.requestHooks = append(c.requestHooks, fn) }

// Name returns the provider name.
func (c *Client) Name() string {
	return "enjinmel"
}

// Send validates and submits req. No HTTP request is made when the API key,
// recipients, sender or attachments are invalid.
func (c *Client) Send(ctx context.Context, req *email.Request) (email.Response, error) {
	apiKey, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	n, err := Normalize(req)
	if err != nil {
		return nil, err
	}

	p, err := BuildPayload(n, c.settings)
	if err != nil {
		return nil, err
	}

	for _, fn := range c.payloadHooks {
		fn(p, n, c.settings)
	}
	for _, fn := range c.beforeHooks {
		fn(ctx, n, p)
	}

	slog.Debug("submitting message to EnjinMel",
		"recipients", len(n.To),
		"attachments", len(n.Attachments),
		"html", p.IsHtmlContent,
	)

	resp, err := c.post(ctx, apiKey, p)

	for _, fn := range c.afterHooks {
		fn(ctx, n, p, resp, err)
	}
	return resp, err
}

func (c *Client) apiKey() (string, error) {
	if c.settings.APIKey == "" {
		return "", email.Errorf(email.CodeMissingAPIKey, "EnjinMel API key is not configured.")
	}
	key, err := c.decrypter.Decrypt(c.settings.APIKey)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", email.Errorf(email.CodeInvalidAPIKey, "EnjinMel API key could not be decrypted.")
	}
	return key, nil
}

// post performs a single request and maps the reply onto the error codes.
func (c *Client) post(ctx context.Context, apiKey string, p *Payload) (email.Response, error) {
	bodyJSON, err := json.Marshal(p)
	if err != nil {
		return nil, email.Wrap(email.CodeHTTPError, "Unable to encode the EnjinMel request.", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, email.Wrap(email.CodeHTTPError, "Unable to reach the EnjinMel API.", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("APIKey", apiKey)
	for _, fn := range c.requestHooks {
		fn(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, email.Wrap(email.CodeHTTPError, "Unable to reach the EnjinMel API.", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, email.Wrap(email.CodeHTTPError, "Unable to reach the EnjinMel API.", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &email.Error{
			Code:    email.CodeHTTPStatus,
			Message: fmt.Sprintf("EnjinMel API returned HTTP %d.", resp.StatusCode),
			Status:  resp.StatusCode,
			Body:    string(raw),
		}
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &email.Error{
			Code:    email.CodeInvalidResponse,
			Message: "Unexpected EnjinMel API response.",
			Body:    string(raw),
			Err:     err,
		}
	}
	body, ok := decoded.(map[string]any)
	if !ok {
		return nil, &email.Error{
			Code:    email.CodeInvalidResponse,
			Message: "Unexpected EnjinMel API response.",
			Body:    string(raw),
		}
	}

	result := body
	if r, ok := body["Result"].(map[string]any); ok {
		result = r
	}

	status := scalarString(result["StatusCode"])
	if status != "200" && !strings.EqualFold(status, "OK") {
		message := scalarString(result["Message"])
		if message == "" {
			message = "Unknown error."
		}
		return nil, &email.Error{
			Code:     email.CodeAPIError,
			Message:  message,
			Response: body,
		}
	}

	return body, nil
}

// scalarString renders a decoded JSON scalar the way it appeared on the wire.
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
