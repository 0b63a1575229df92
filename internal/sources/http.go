package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"labjobs/internal/errors"
	"labjobs/internal/models"

	"github.com/go-resty/resty/v2"
)

const userAgent = "labjobs/1.0"

// NewHTTPClient returns the resty client shared by the built-in adapters.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
}

// execute sends req and maps transport failures and non-2xx statuses onto
// ADAPTER_FETCH. A 429 additionally carries a RATE_LIMIT cause.
func execute(ctx context.Context, req *resty.Request, method, url string) (models.RawPayload, error) {
	resp, err := req.SetContext(ctx).Execute(method, url)
	if err != nil {
		return nil, errors.Fetch(fmt.Sprintf("%s %s", method, url), err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, errors.Fetch(fmt.Sprintf("%s %s", method, url),
			errors.RateLimit(fmt.Sprintf("retry-after %q", resp.Header().Get("Retry-After")), nil))
	case !resp.IsSuccess():
		return nil, errors.Fetch(fmt.Sprintf("%s %s: unexpected status code: %d", method, url, resp.StatusCode()), nil)
	}

	return models.RawPayload(resp.Body()), nil
}
