package validate

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	// Mode constants
	ModeDevelopment = "development"
	ModeProduction  = "production"

	// MaxSourceURLLength caps candidate document source strings
	MaxSourceURLLength = 2048

	// MaxDataPDFLength caps inline data: PDF sources (10MB)
	MaxDataPDFLength = 10 * 1024 * 1024

	dataPDFPrefix = "application/pdf;base64,"
)

// SourcePolicy decides whether a candidate document source is safe to hand
// to the rendering engine. The engine will fetch whatever URL it is given,
// so an unvetted source turns the viewer into a generic fetch proxy.
type SourcePolicy struct {
	mode         string
	origin       *url.URL
	allowedHosts []string
}

// NewSourcePolicy creates a policy for the given runtime mode, document
// origin and https host allow-list. An empty allow-list rejects every https
// source outside development mode (fail closed).
func NewSourcePolicy(mode, origin string, allowedHosts []string) (*SourcePolicy, error) {
	if mode != ModeDevelopment && mode != ModeProduction {
		return nil, fmt.Errorf("mode must be either %q or %q", ModeDevelopment, ModeProduction)
	}

	var originURL *url.URL
	if origin != "" {
		parsed, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("origin %q must carry a scheme and host", origin)
		}
		originURL = parsed
	}

	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts = append(hosts, h)
		}
	}

	return &SourcePolicy{
		mode:         mode,
		origin:       originURL,
		allowedHosts: hosts,
	}, nil
}

// IsSafeDocumentSource reports whether the candidate source may be loaded.
// It is a pure predicate; use CheckDocumentSource when the rejection reason
// is needed for logging.
func (p *SourcePolicy) IsSafeDocumentSource(candidate string) bool {
	return p.CheckDocumentSource(candidate) == nil
}

// CheckDocumentSource validates a candidate document source and returns a
// ValidationError describing the first failed check.
func (p *SourcePolicy) CheckDocumentSource(candidate string) error {
	if candidate == "" {
		return NewValidationError("documentSource", CodeEmpty, "document source is empty")
	}
	// Inline data: sources carry their own 10MB cap below.
	if len(candidate) > MaxSourceURLLength && !strings.HasPrefix(candidate, "data:") {
		return NewValidationError("documentSource", CodeTooLong,
			fmt.Sprintf("document source exceeds %d characters", MaxSourceURLLength))
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return NewValidationError("documentSource", CodeUnknown, "document source is not a parseable URL")
	}

	// Relative references resolve against the current origin.
	if parsed.Scheme == "" {
		if p.origin == nil {
			return NewValidationError("documentSource", CodeUnsafeScheme,
				"relative document source without a configured origin")
		}
		parsed = p.origin.ResolveReference(parsed)
	}

	switch parsed.Scheme {
	case "https":
		return p.checkHTTPSHost(parsed.Hostname())
	case "http":
		if p.mode == ModeDevelopment && isLoopbackHost(parsed.Hostname()) {
			return nil
		}
		return NewValidationError("documentSource", CodeUnsafeScheme,
			"http sources are only allowed for loopback hosts in development mode")
	case "blob":
		return p.checkBlobOrigin(parsed.Opaque)
	case "data":
		return checkDataPDF(candidate, parsed.Opaque)
	default:
		return NewValidationError("documentSource", CodeUnsafeScheme,
			fmt.Sprintf("scheme %q is not allowed", parsed.Scheme))
	}
}

// checkHTTPSHost enforces the configured host allow-list. Matching is exact
// or proper-subdomain; "evilexample.com" never matches "example.com".
func (p *SourcePolicy) checkHTTPSHost(hostname string) error {
	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return NewValidationError("documentSource", CodeHostNotAllowed, "https source has no hostname")
	}

	if len(p.allowedHosts) == 0 {
		if p.mode == ModeDevelopment {
			return nil
		}
		return NewValidationError("documentSource", CodeHostNotAllowed,
			"no document hosts are configured")
	}

	for _, allowed := range p.allowedHosts {
		if hostname == allowed || strings.HasSuffix(hostname, "."+allowed) {
			return nil
		}
	}
	return NewValidationError("documentSource", CodeHostNotAllowed,
		fmt.Sprintf("host %q is not on the document host allow-list", hostname))
}

// checkBlobOrigin requires a blob source to belong to the current origin.
func (p *SourcePolicy) checkBlobOrigin(opaque string) error {
	if p.origin == nil {
		return NewValidationError("documentSource", CodeOriginMismatch,
			"blob sources require a configured origin")
	}

	inner, err := url.Parse(opaque)
	if err != nil || inner.Scheme == "" || inner.Host == "" {
		return NewValidationError("documentSource", CodeOriginMismatch,
			"blob source does not carry a valid origin")
	}
	if !strings.EqualFold(inner.Scheme, p.origin.Scheme) ||
		!strings.EqualFold(inner.Host, p.origin.Host) {
		return NewValidationError("documentSource", CodeOriginMismatch,
			"blob source origin does not match the document origin")
	}
	return nil
}

// checkDataPDF accepts only base64-encoded application/pdf data URLs.
func checkDataPDF(candidate, opaque string) error {
	if len(candidate) > MaxDataPDFLength {
		return NewValidationError("documentSource", CodePayloadTooLarge,
			"inline PDF source exceeds the 10MB limit")
	}
	if !strings.HasPrefix(opaque, dataPDFPrefix) {
		return NewValidationError("documentSource", CodeUnsafePayload,
			"inline sources must be base64-encoded application/pdf data")
	}
	return nil
}

// isLoopbackHost reports whether the host is a localhost-style address
func isLoopbackHost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
