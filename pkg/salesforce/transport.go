package salesforce

import (
	"fmt"
	"io"
	"net/http"

	"github.com/sells-group/crm-cli/internal/resilience"
)

// statusTransport turns retryable HTTP statuses (429, 5xx) into
// resilience.TransientError. go-salesforce reports non-2xx responses as a
// plain error carrying only the body, so the status would otherwise be lost.
type statusTransport struct {
	base http.RoundTripper
}

func newStatusTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &statusTransport{base: base}
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if !resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close() //nolint:errcheck
	return nil, resilience.NewTransientError(
		fmt.Errorf("sf: %s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, body),
		resp.StatusCode,
	)
}
