package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
	"github.com/unitpay/unitpay-gateway/pkg/types"
)

// Fulfiller delivers a verification word to the on-chain oracle callback.
type Fulfiller interface {
	Fulfill(ctx context.Context, paymentID types.Bytes32, response types.Bytes32) error
}

type fulfillRequest struct {
	PaymentID types.Bytes32 `json:"paymentId"`
	Response  types.Bytes32 `json:"response"`
}

// HTTPFulfiller posts the word to an oracle node callback URL.
type HTTPFulfiller struct {
	client      *http.Client
	callbackURL string
	bearer      string
}

// NewHTTPFulfiller builds a fulfiller. bearer is sent as the Authorization token when set.
func NewHTTPFulfiller(callbackURL, bearer string, timeout time.Duration) (*HTTPFulfiller, error) {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		return nil, fmt.Errorf("oracle callback url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFulfiller{
		client:      &http.Client{Timeout: timeout},
		callbackURL: callbackURL,
		bearer:      bearer,
	}, nil
}

func (f *HTTPFulfiller) Fulfill(ctx context.Context, paymentID types.Bytes32, response types.Bytes32) error {
	payload, err := json.Marshal(fulfillRequest{PaymentID: paymentID, Response: response})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode oracle callback")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.callbackURL, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build oracle callback request")
	}
	req.Header.Set("Content-Type", "application/json")
	if f.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+f.bearer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deliver oracle callback")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeDependency, "oracle callback unavailable").
			WithDetails(map[string]any{"status": resp.StatusCode})
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "oracle callback rejected").
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
}
