package mcpclient

import (
	"fmt"
	"net/url"
	"strings"
)

// TransportKind selects the wire transport a Session dials.
type TransportKind string

const (
	TransportHTTP       TransportKind = "http"
	TransportSubprocess TransportKind = "subprocess"
)

// Endpoint identifies one MCP server. It doubles as the circuit breaker key
// (via Key) and as the label attached to metrics and log lines.
type Endpoint struct {
	Kind    TransportKind
	URL     string   // for TransportHTTP
	Command string   // for TransportSubprocess
	Args    []string // for TransportSubprocess

	Headers map[string]string
	Token   string
}

// Key returns the stable identity used by the circuit breaker registry and
// by log/metric labels. For HTTP it is scheme+host+port so that two
// differently-cased or differently-pathed URLs to the same host share a
// breaker; for subprocess it is the command line.
func (e Endpoint) Key() string {
	switch e.Kind {
	case TransportHTTP:
		u, err := url.Parse(e.URL)
		if err != nil {
			return e.URL
		}
		return fmt.Sprintf("%s://%s", u.Scheme, strings.ToLower(u.Host))
	case TransportSubprocess:
		return strings.Join(append([]string{e.Command}, e.Args...), " ")
	default:
		return e.URL + e.Command
	}
}

func (e Endpoint) String() string {
	switch e.Kind {
	case TransportHTTP:
		return e.URL
	case TransportSubprocess:
		return e.Command
	default:
		return "unknown-endpoint"
	}
}
