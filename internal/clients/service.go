// internal/clients/service.go
package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/breaker"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

const maxBodyBytes = 4 << 20

// Names of the remote services, used as breaker keys and in errors.
const (
	UserServiceName = "user-service"
	BookServiceName = "book-service"
)

// Response is a successful remote reply.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	return httpx.JSON.Unmarshal(r.Body, v)
}

// Options configures a Service.
type Options struct {
	Name    string
	BaseURL string
	// Transport defaults to http.DefaultTransport. It is wrapped with otelhttp.
	Transport http.RoundTripper
	Breakers  *breaker.Registry
	Logger    zerolog.Logger
}

// Service calls one remote service. Each verb runs through its own breaker
// taken from the shared registry.
type Service struct {
	name     string
	baseURL  string
	client   *http.Client
	breakers *breaker.Registry
	logger   zerolog.Logger
}

func NewService(opts Options) *Service {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	breakers := opts.Breakers
	if breakers == nil {
		breakers = breaker.NewRegistry(breaker.DefaultConfig(opts.Name))
	}
	return &Service{
		name:     opts.Name,
		baseURL:  opts.BaseURL,
		client:   &http.Client{Transport: otelhttp.NewTransport(transport)},
		breakers: breakers,
		logger:   opts.Logger.With().Str("remote", opts.Name).Logger(),
	}
}

// Name returns the remote service name.
func (s *Service) Name() string {
	return s.name
}

func (s *Service) Get(ctx context.Context, path string) (*Response, error) {
	return s.call(ctx, "get", http.MethodGet, path, nil)
}

func (s *Service) Post(ctx context.Context, path string, body any) (*Response, error) {
	return s.call(ctx, "post", http.MethodPost, path, body)
}

func (s *Service) Put(ctx context.Context, path string, body any) (*Response, error) {
	return s.call(ctx, "put", http.MethodPut, path, body)
}

func (s *Service) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return s.call(ctx, "patch", http.MethodPatch, path, body)
}

// isFailure decides what counts against a circuit: answers in the 4xx range
// and caller cancellations do not.
func isFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return !re.Healthy()
	}
	return true
}

func (s *Service) call(ctx context.Context, op, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = httpx.JSON.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
	}

	log := s.logger.With().Str("request_id", httpx.RequestIDFrom(ctx)).Logger()
	log.Debug().Str("method", method).Str("path", path).Msg("remote request")

	b := s.breakers.Get(s.name, op, breaker.WithFailurePredicate(isFailure), breaker.WithLogger(s.logger))
	resp, err := breaker.Do(ctx, b, func(ctx context.Context) (*Response, error) {
		return s.roundTrip(ctx, method, path, payload)
	})
	if err == nil {
		log.Debug().Str("method", method).Str("path", path).Int("status", resp.Status).Msg("remote response")
		return resp, nil
	}

	var re *RemoteError
	if !errors.As(err, &re) {
		re = &RemoteError{Service: s.name, Kind: KindUnavailable, Err: err}
	}
	log.Warn().Err(re).Str("method", method).Str("path", path).Str("kind", re.Kind.String()).Msg("remote call failed")
	return nil, re
}

func (s *Service) roundTrip(ctx context.Context, method, path string, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := httpx.RequestIDFrom(ctx); id != "" {
		req.Header.Set(httpx.RequestIDHeader, id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", s.name, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		re := &RemoteError{Service: s.name, Kind: KindRejected, Status: resp.StatusCode, Message: remoteMessage(data)}
		if resp.StatusCode == http.StatusNotFound {
			re.Kind = KindNotFound
		}
		return nil, re
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

func remoteMessage(body []byte) string {
	var m httpx.Message
	if err := httpx.JSON.Unmarshal(body, &m); err != nil {
		return ""
	}
	return m.Message
}
