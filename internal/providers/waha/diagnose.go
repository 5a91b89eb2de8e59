package waha

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const previewLimit = 500

// Failure kinds reported by DiagnoseSessions.
const (
	FailureConnect    = "connect_error"
	FailureTimeout    = "timeout"
	FailureUnexpected = "unexpected"
)

// Diagnosis is the raw outcome of listing sessions on the gateway. Auth
// header values are masked.
type Diagnosis struct {
	URL              string            `json:"url"`
	HeadersSent      map[string]string `json:"headers_sent"`
	StatusCode       int               `json:"status_code,omitempty"`
	ResponseText     string            `json:"response_text,omitempty"`
	ResponseHeaders  map[string]string `json:"response_headers,omitempty"`
	Success          bool              `json:"success"`
	ConnectionStatus string            `json:"connection_status"`
	Failure          string            `json:"failure,omitempty"`
	Error            string            `json:"error,omitempty"`
	Troubleshooting  []string          `json:"troubleshooting,omitempty"`
}

// DiagnoseSessions issues GET {base}/api/sessions and reports exactly what
// came back. Transport failures are described in the Diagnosis rather than
// returned; only request construction and cancellation of ctx are errors.
func (c *Client) DiagnoseSessions(ctx context.Context) (*Diagnosis, error) {
	endpoint := c.baseURL + "/api/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("waha client: new request: %w", err)
	}
	c.applyHeaders(req)

	d := &Diagnosis{URL: endpoint, HeadersSent: maskHeaders(req.Header)}

	resp, err := c.statusClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("waha client: diagnose: %w", ctxErr)
		}
		d.Error = err.Error()
		d.Failure = failureKind(err)
		switch d.Failure {
		case FailureTimeout:
			d.ConnectionStatus = "request timed out"
			d.Troubleshooting = []string{
				"WAHA may be overloaded or unresponsive",
				"check the WAHA logs: docker logs waha",
				"restart WAHA: docker restart waha",
			}
		case FailureConnect:
			d.ConnectionStatus = "cannot connect to WAHA server"
			d.Troubleshooting = []string{
				"check that WAHA is running: docker ps | grep waha",
				fmt.Sprintf("open %s in a browser", c.baseURL),
				"verify the WAHA port (default 3000)",
			}
		default:
			d.ConnectionStatus = "unexpected error"
		}
		return d, nil
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		d.Error = err.Error()
		d.Failure = FailureUnexpected
		d.ConnectionStatus = "unexpected error"
		return d, nil
	}

	d.StatusCode = resp.StatusCode
	d.ResponseText = preview(body, previewLimit)
	d.ResponseHeaders = flattenHeaders(resp.Header)
	d.Success = resp.StatusCode < http.StatusBadRequest
	d.ConnectionStatus = "connected to WAHA server"
	if resp.StatusCode == http.StatusUnauthorized {
		d.Troubleshooting = []string{authHint(c.apiKey != "", len(c.apiKey))}
	}
	return d, nil
}

func failureKind(err error) string {
	var opErr *net.OpError
	switch {
	case isTimeout(err):
		return FailureTimeout
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return FailureConnect
	default:
		return FailureUnexpected
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "key") || strings.Contains(lower, "auth") {
			out[k] = "***"
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func preview(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit])
}
