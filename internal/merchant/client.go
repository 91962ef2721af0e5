package merchant

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/validation"
)

const (
	merchantInfoPath      = "payment/paypal/merchant-info"
	defaultTimeout        = 10 * time.Second
	defaultMaxRetries     = 3
	defaultRetryBase      = 200 * time.Millisecond
	responseBodyReadLimit = 64 << 10
)

var errBaseURLRequired = stdErrors.New("merchant api base url is required")

// Lookuper resolves the merchant PayPal email for a payment intent.
type Lookuper interface {
	Lookup(ctx context.Context, paymentIntentID string) (string, error)
}

// Client calls the backend merchant-info endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries uint64
	retryBase  time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry bounds transport and 5xx retries. maxRetries of zero disables retries.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		if base > 0 {
			c.retryBase = base
		}
	}
}

// NewClient builds a merchant-info client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid merchant api base url: %w", err)
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    trimmed,
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type merchantInfoResponse struct {
	Data *struct {
		Email string `json:"email"`
	} `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Lookup fetches the merchant email. Transport failures and 5xx responses are
// retried with exponential backoff; 404 maps to NOT_FOUND, other non-2xx
// statuses to DEPENDENCY_ERROR and a missing email to VALIDATION_ERROR.
func (c *Client) Lookup(ctx context.Context, paymentIntentID string) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "merchant client not configured")
	}
	id := strings.TrimSpace(paymentIntentID)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	var email string
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		found, retryable, err := c.fetch(ctx, id)
		if err != nil {
			if retryable {
				return retry.RetryableError(err)
			}
			return err
		}
		email = found
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merchant info request aborted")
		}
		return "", err
	}
	return email, nil
}

func (c *Client) fetch(ctx context.Context, id string) (string, bool, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, merchantInfoPath, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build merchant info request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute merchant info request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return "", true, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read merchant info response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", isRetryableStatus(resp.StatusCode), statusError(resp.StatusCode, body)
	}

	var decoded merchantInfoResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode merchant info response")
	}
	if decoded.Data == nil || strings.TrimSpace(decoded.Data.Email) == "" {
		return "", false, pkgerrors.New(pkgerrors.CodeValidation, "merchant email missing from response")
	}
	email := strings.TrimSpace(decoded.Data.Email)
	if err := validation.Var("email", email, "email"); err != nil {
		return "", false, err
	}
	return email, false, nil
}

func isRetryableStatus(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func statusError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var parsed messageResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		message = parsed.Message
	}
	details := map[string]any{"status": status, "message": message}
	cause := fmt.Errorf("status %d: %s", status, message)

	if status == http.StatusNotFound {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "merchant info not found").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "merchant info request failed").WithDetails(details)
}
