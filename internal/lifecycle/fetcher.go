// Package lifecycle implements the rule lifecycle: cached-rule load on
// startup, conditional-GET pointer fetches, hash comparison against
// the installed rule set, immutable-document fetch on change,
// min-poll-interval clamping, single-flight fetch collapsing, and a
// jittered auto-refresh timer. The HTTP client is wrapped with a
// circuit breaker and exponential backoff around the outbound calls.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fluxflag/internal/constants"
	"fluxflag/internal/logger"
	"fluxflag/pkg/circuitbreaker"
	"fluxflag/pkg/errors"
	"fluxflag/pkg/metrics"
	"fluxflag/pkg/models"
	"fluxflag/pkg/retry"
)

// Fetcher issues pointer and immutable-document requests against the
// remote rule service. It never touches engine state directly; the
// caller (internal/engine) supplies the currently installed hash and
// receives the fetched document body back.
type Fetcher struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     logger.Logger
	cb      *circuitbreaker.Wrapper
	policy  retry.Policy

	mu         sync.Mutex
	inFlight   *inflightFetch
}

type inflightFetch struct {
	done chan struct{}
	body []byte
	hash string
	err  error
}

func New(baseURL, apiKey string, timeout time.Duration, cbCfg circuitbreaker.Config, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NopLogger()
	}
	if timeout <= 0 {
		timeout = constants.DefaultFetchTimeout
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     log,
		cb:      circuitbreaker.NewWrapper(cbCfg),
		policy:  retry.DefaultPolicy(),
	}
}

// FetchPointer issues a conditional GET against the pointer document
// and returns it along with the response's Country header, if any.
func (f *Fetcher) FetchPointer(ctx context.Context) (*models.PointerDocument, string, error) {
	var pointer models.PointerDocument
	var country string

	start := time.Now()
	err := retry.Retry(ctx, f.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/pointer", nil)
		if err != nil {
			return retry.NewFatalError(err)
		}
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
		req.Header.Set("Cache-Control", "no-store")

		result, cbErr := f.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
			resp, err := f.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("pointer fetch returned status %d", resp.StatusCode)
			}

			var body models.PointerDocument
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return nil, retry.NewFatalError(fmt.Errorf("decode pointer document: %w", err))
			}

			return struct {
				doc     models.PointerDocument
				country string
			}{doc: body, country: resp.Header.Get("X-Country")}, nil
		})

		f.cb.RecordRequest(cbErr == nil)
		if cbErr != nil {
			return cbErr
		}

		out := result.(struct {
			doc     models.PointerDocument
			country string
		})
		pointer = out.doc
		country = out.country
		return nil
	})

	metrics.ObserveRuleFetchDuration("pointer", time.Since(start))
	if err != nil {
		metrics.IncRuleFetch("pointer_error")
		return nil, "", errors.Wrap(err, errors.ErrTransport)
	}

	metrics.IncRuleFetch("pointer_ok")
	return &pointer, country, nil
}

// FetchImmutable fetches the immutable rule document at the path
// derived from version. Single-flight: concurrent calls for the same
// fetcher collapse onto the in-flight request.
func (f *Fetcher) FetchImmutable(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	if f.inFlight != nil {
		inFlight := f.inFlight
		f.mu.Unlock()
		<-inFlight.done
		return inFlight.body, inFlight.err
	}

	inFlight := &inflightFetch{done: make(chan struct{})}
	f.inFlight = inFlight
	f.mu.Unlock()

	body, err := f.doFetchImmutable(ctx, path)

	f.mu.Lock()
	inFlight.body = body
	inFlight.err = err
	f.inFlight = nil
	f.mu.Unlock()
	close(inFlight.done)

	return body, err
}

func (f *Fetcher) doFetchImmutable(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	var body []byte

	err := retry.Retry(ctx, f.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
		if err != nil {
			return retry.NewFatalError(err)
		}
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
		req.Header.Set("Cache-Control", "no-store")

		result, cbErr := f.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
			resp, err := f.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("immutable document fetch returned status %d", resp.StatusCode)
			}

			buf := make([]byte, 0, 4096)
			chunk := make([]byte, 4096)
			for {
				n, rerr := resp.Body.Read(chunk)
				if n > 0 {
					buf = append(buf, chunk[:n]...)
				}
				if rerr != nil {
					break
				}
			}
			return buf, nil
		})

		f.cb.RecordRequest(cbErr == nil)
		if cbErr != nil {
			return cbErr
		}
		body = result.([]byte)
		return nil
	})

	metrics.ObserveRuleFetchDuration("immutable", time.Since(start))
	if err != nil {
		metrics.IncRuleFetch("immutable_error")
		return nil, errors.Wrap(err, errors.ErrTransport)
	}

	metrics.IncRuleFetch("immutable_ok")
	return body, nil
}
