package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marcleai/statusboard/internal/authref"
	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/status"
)

const (
	tracerName = "github.com/marcleai/statusboard/internal/probe"

	// maxBodyBytes bounds how much of a response body a profile inspects.
	maxBodyBytes = 1 << 20

	userAgent = "statusboard-probe/1"
)

// Detail strings for samples that never reached the network.
const (
	DetailDisabled          = "disabled"
	DetailNoURL             = "no url configured"
	DetailCredentialMissing = "credential missing"
)

// Config holds configuration for the executor.
type Config struct {
	// Timeout bounds one check including reading the body.
	// Default: 4 seconds
	Timeout time.Duration

	// Env resolves credential references.
	Env authref.Env

	Logger zerolog.Logger

	// Transport overrides the HTTP transport, mainly for tests. When nil, a
	// verifying and a non-verifying transport are built.
	Transport http.RoundTripper

	// Now defaults to time.Now.
	Now func() time.Time
}

// Executor runs one health check per call. It is safe for concurrent use.
type Executor struct {
	timeout  time.Duration
	env      authref.Env
	logger   zerolog.Logger
	now      func() time.Time
	secure   *http.Client
	insecure *http.Client
	tracer   trace.Tracer
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secureRT, insecureRT := cfg.Transport, cfg.Transport
	if cfg.Transport == nil {
		secureRT = newTransport(false)
		insecureRT = newTransport(true)
	}

	return &Executor{
		timeout:  cfg.Timeout,
		env:      cfg.Env,
		logger:   cfg.Logger.With().Str("component", "probe").Logger(),
		now:      cfg.Now,
		secure:   newClient(secureRT),
		insecure: newClient(insecureRT),
		tracer:   otel.Tracer(tracerName),
	}
}

func newTransport(skipVerify bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 2
	t.IdleConnTimeout = 90 * time.Second
	if skipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // homelab services commonly use self-signed certs
	}
	return t
}

// newClient never follows redirects, so a 302 from a login page is reported
// as-is to the profile.
func newClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Timeout returns the per-check timeout.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// Check probes one service. It never returns an error: every failure is folded
// into the sample's status.
func (e *Executor) Check(ctx context.Context, def catalog.ServiceDefinition) status.Sample {
	if !def.Enabled {
		return status.Sample{
			ServiceID: def.ID,
			Status:    status.Unknown,
			Detail:    DetailDisabled,
			CheckedAt: e.now(),
			Disabled:  true,
		}
	}
	if strings.TrimSpace(def.URL) == "" {
		return e.unknown(def.ID, DetailNoURL)
	}

	auth, err := authref.Resolve(def.AuthRef, e.env)
	if err != nil {
		var missing *authref.MissingError
		ev := e.logger.Warn().Str("service_id", def.ID)
		if errors.As(err, &missing) {
			ev = ev.Str("env", missing.Env).Str("scheme", string(missing.Scheme)).Str("reason", missing.Reason)
		}
		ev.Msg("skipping check, credential missing")
		return e.unknown(def.ID, DetailCredentialMissing)
	}

	return e.Probe(ctx, def, auth)
}

// Probe issues the HTTP request for def with an already resolved credential.
func (e *Executor) Probe(ctx context.Context, def catalog.ServiceDefinition, auth authref.Resolution) status.Sample {
	profile := For(def)

	ctx, span := e.tracer.Start(ctx, "probe.check",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("service.id", def.ID),
			attribute.String("probe.profile", profile.Name),
			attribute.String("probe.auth", auth.String()),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	target, err := buildURL(def.URL, profile)
	if err != nil {
		span.SetStatus(codes.Error, "invalid url")
		e.logger.Warn().Str("service_id", def.ID).Msg("invalid service url")
		return e.unknown(def.ID, "invalid url")
	}
	logURL := stripQuery(target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return e.unknown(def.ID, "invalid request")
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range profile.Headers {
		req.Header.Set(k, v)
	}
	auth.Apply(req)

	client := e.insecure
	if def.VerifySSL {
		client = e.secure
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		detail := classify(err)
		span.SetStatus(codes.Error, detail)
		e.logger.Warn().
			Str("service_id", def.ID).
			Str("url", logURL).
			Str("reason", detail).
			Msg("check failed")
		return status.Sample{ServiceID: def.ID, Status: status.Down, Detail: detail, CheckedAt: e.now()}
	}
	defer resp.Body.Close()

	latency := int(time.Since(start) / time.Millisecond)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	sample := status.Sample{
		ServiceID: def.ID,
		LatencyMs: &latency,
		CheckedAt: e.now(),
	}

	if !profile.Healthy(resp.StatusCode) {
		sample.Status = status.Degraded
		sample.Detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		e.logger.Debug().
			Str("service_id", def.ID).
			Str("url", logURL).
			Int("status_code", resp.StatusCode).
			Msg("unexpected status code")
		return sample
	}

	sample.Status = status.Healthy
	if profile.Inspect == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return sample
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		detail := classify(err)
		span.SetStatus(codes.Error, detail)
		return status.Sample{ServiceID: def.ID, Status: status.Down, Detail: detail, CheckedAt: e.now()}
	}
	sample.Status, sample.Detail = profile.Inspect(body)
	if sample.Status != status.Healthy {
		e.logger.Debug().
			Str("service_id", def.ID).
			Str("profile", profile.Name).
			Str("detail", sample.Detail).
			Msg("response body check failed")
	}
	return sample
}

func (e *Executor) unknown(id, detail string) status.Sample {
	return status.Sample{ServiceID: id, Status: status.Unknown, Detail: detail, CheckedAt: e.now()}
}

func buildURL(base string, p Profile) (*url.URL, error) {
	raw := strings.TrimRight(strings.TrimSpace(base), "/") + p.Path
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if len(p.Query) > 0 {
		q := u.Query()
		for k, vals := range p.Query {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// stripQuery renders u without its query so credentials passed as
// parameters never reach a log line.
func stripQuery(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}

// classify maps a transport error to a short, secret-free detail. The raw
// error text is never used since it embeds the full request URL.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns lookup failed"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection error"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "request failed"
}
