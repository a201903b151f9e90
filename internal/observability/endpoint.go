package observability

import (
	"fmt"
	"net/url"
	"strings"
)

// withSignalPath appends the per-signal OTLP path (e.g. /v1/traces) to an
// HTTP collector URL unless it is already there. Query and fragment survive.
func withSignalPath(endpoint, signalPath string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	want := "/" + strings.Trim(signalPath, "/ ")
	base := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(base, want) {
		base += want
	}
	u.Path = base
	return u.String(), nil
}

// grpcTarget turns an endpoint into the host:port form the gRPC exporters
// expect. Plaintext is assumed unless the scheme says otherwise.
func grpcTarget(endpoint string) (target string, insecure bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, fmt.Errorf("endpoint cannot be empty")
	}
	if !strings.Contains(endpoint, "://") {
		if !strings.Contains(endpoint, ":") {
			return "", false, fmt.Errorf("expected host:port")
		}
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, err
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("endpoint must include host")
	}
	switch u.Scheme {
	case "http", "grpc":
		return u.Host, true, nil
	case "https", "grpcs":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
