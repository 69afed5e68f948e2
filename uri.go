package graphbolt

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Replaces aznet/endpoint.go: same URL-driven parsing shape (NewEndpoint's
// host-splitting, query-string handling), re-targeted from Azure SAS query
// parameters to Bolt connection URIs (spec.md §6, testable property 3).

// DefaultBoltPort is used when a URI names no explicit port.
const DefaultBoltPort = 7687

// URI is a parsed bolt/neo4j connection string.
type URI struct {
	Routing        bool // neo4j:// implies client-side routing; bolt:// is a direct, single-server URI.
	Encryption     EncryptionLevel
	Trust          TrustStrategy
	Host           string
	Port           int
	RoutingContext map[string]string
}

// Address returns "host:port" as dialed by net.Dial.
func (u *URI) Address() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// ParseURI parses a bolt://, bolt+s://, bolt+ssc://, neo4j://, neo4j+s://,
// or neo4j+ssc:// connection string.
func ParseURI(raw string) (*URI, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("graphbolt: invalid URI %q: %w", raw, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	base, suffix, hasSuffix := strings.Cut(scheme, "+")

	var routing bool
	switch base {
	case "bolt":
		routing = false
	case "neo4j":
		routing = true
	default:
		return nil, fmt.Errorf("graphbolt: unsupported URI scheme %q", parsed.Scheme)
	}

	encryption := EncryptionNone
	trust := TrustSystemCAs()
	if hasSuffix {
		switch suffix {
		case "s":
			encryption = EncryptionRequired
			trust = TrustSystemCAs()
		case "ssc":
			encryption = EncryptionRequired
			trust = TrustAllCertificates()
		default:
			return nil, fmt.Errorf("graphbolt: unsupported URI scheme suffix %q", suffix)
		}
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("graphbolt: URI %q has no host", raw)
	}
	port := DefaultBoltPort
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("graphbolt: invalid port in URI %q: %w", raw, err)
		}
	}

	routingContext := map[string]string{"address": net.JoinHostPort(host, strconv.Itoa(port))}
	query, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("graphbolt: invalid routing context in URI %q: %w", raw, err)
	}
	for k, v := range query {
		if len(v) == 0 {
			continue
		}
		if k == "" || strings.EqualFold(k, "address") {
			return nil, fmt.Errorf("graphbolt: routing context key %q is reserved", k)
		}
		routingContext[k] = v[0]
	}

	return &URI{
		Routing:        routing,
		Encryption:     encryption,
		Trust:          trust,
		Host:           host,
		Port:           port,
		RoutingContext: routingContext,
	}, nil
}
