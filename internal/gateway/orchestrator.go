// Package gateway composes the reliability pipeline around provider
// calls: per-provider circuit breakers, request coalescing, and
// exponential-backoff retry.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/llmgate/llmgate/internal/metrics"
	"github.com/llmgate/llmgate/internal/observability"
	"github.com/llmgate/llmgate/internal/resilience"
	gwerrors "github.com/llmgate/llmgate/pkg/errors"
	"github.com/llmgate/llmgate/pkg/provider"
	"github.com/llmgate/llmgate/pkg/types"
)

// Config holds the orchestrator's tunables.
type Config struct {
	DefaultProvider string
	Retry           resilience.RetryConfig
	Breaker         resilience.BreakerConfig
	CoalesceWindow  time.Duration
	HTTPClient      *http.Client
	Logger          *observability.Logger
}

// Orchestrator routes chat requests through
// retry(coalesce(breaker(provider call))). Breakers are created lazily,
// one per provider, and report their state to the breaker gauge.
type Orchestrator struct {
	registry        *provider.Registry
	coalescer       *resilience.Coalescer
	breakerCfg      resilience.BreakerConfig
	defaultProvider string
	httpClient      *http.Client
	logger          *observability.Logger

	mu       sync.Mutex
	retryCfg resilience.RetryConfig
	breakers map[string]*resilience.Breaker
}

// New creates an orchestrator over the given provider registry.
func New(registry *provider.Registry, cfg Config) *Orchestrator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.LoggerConfig{
			Output:     io.Discard,
			JSONFormat: true,
		})
	}
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = resilience.DefaultCoalescerWindow
	}

	return &Orchestrator{
		registry:        registry,
		coalescer:       resilience.NewCoalescer(cfg.CoalesceWindow),
		retryCfg:        cfg.Retry,
		breakerCfg:      cfg.Breaker,
		defaultProvider: cfg.DefaultProvider,
		httpClient:      cfg.HTTPClient,
		logger:          cfg.Logger,
		breakers:        make(map[string]*resilience.Breaker),
	}
}

// Chat executes a chat completion through the full pipeline. The call
// is bounded by the request's timeout field (default 30s).
func (o *Orchestrator) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = o.defaultProvider
	}

	prov, ok := o.registry.Get(providerName)
	if !ok {
		return nil, gwerrors.NewInternalError(providerName, req.Model,
			fmt.Sprintf("Provider not found: %s", providerName))
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(types.DefaultTimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	breaker := o.breakerFor(providerName)
	key := Fingerprint(providerName, req)

	log := o.logger.WithRequestID(ctx)
	log.Debug("dispatching chat completion",
		"provider", providerName, "model", req.Model)

	resp, err := resilience.Retry(ctx, o.retryConfig(), func(ctx context.Context) (*types.ChatResponse, error) {
		return o.coalescer.Execute(ctx, key, func(ctx context.Context) (*types.ChatResponse, error) {
			return breaker.Fire(ctx, func(ctx context.Context) (*types.ChatResponse, error) {
				return o.execute(ctx, prov, req)
			})
		})
	})
	if err != nil {
		log.Error("chat completion failed",
			"provider", providerName, "model", req.Model, "error", err)
		return nil, err
	}
	return resp, nil
}

// SetRetryConfig replaces the retry tunables. In-flight calls keep the
// configuration they started with; subsequent calls use the new one.
func (o *Orchestrator) SetRetryConfig(cfg resilience.RetryConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retryCfg = cfg
}

func (o *Orchestrator) retryConfig() resilience.RetryConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retryCfg
}

// Models returns every model known to the registered providers.
func (o *Orchestrator) Models() map[string]string {
	return o.registry.Models()
}

// Providers returns the registered provider names.
func (o *Orchestrator) Providers() []string {
	return o.registry.List()
}

// BreakerState reports the current circuit state for a provider.
// Providers without traffic yet report closed.
func (o *Orchestrator) BreakerState(providerName string) resilience.CircuitState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.breakers[providerName]; ok {
		return b.State()
	}
	return resilience.StateClosed
}

func (o *Orchestrator) breakerFor(providerName string) *resilience.Breaker {
	o.mu.Lock()
	defer o.mu.Unlock()

	if b, ok := o.breakers[providerName]; ok {
		return b
	}

	b := resilience.NewBreaker(providerName, o.breakerCfg)
	b.OnStateChange(func(name string, from, to resilience.CircuitState) {
		metrics.SetBreakerState(name, to)
		o.logger.Warn("circuit breaker state change",
			"provider", name, "from", from.String(), "to", to.String())
	})
	metrics.SetBreakerState(providerName, resilience.StateClosed)
	o.breakers[providerName] = b
	return b
}

// execute performs one upstream call: build, send, classify, parse.
func (o *Orchestrator) execute(ctx context.Context, prov provider.Provider, req *types.ChatRequest) (*types.ChatResponse, error) {
	start := time.Now()

	httpReq, err := prov.BuildRequest(ctx, req)
	if err != nil {
		return nil, gwerrors.NewInternalError(prov.Name(), req.Model,
			fmt.Sprintf("build request: %v", err))
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		// A deadline at the orchestrator boundary is final; the client
		// is no longer waiting, so another attempt buys nothing.
		if ctx.Err() != nil {
			metrics.RecordProviderCall(prov.Name(), req.Model, "timeout", time.Since(start))
			return nil, gwerrors.NewTimeoutError(prov.Name(), req.Model, "request timed out")
		}
		metrics.RecordProviderCall(prov.Name(), req.Model, "transport_error", time.Since(start))
		return nil, gwerrors.NewTransportError(prov.Name(), req.Model, err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	metrics.RecordProviderCall(prov.Name(), req.Model, strconv.Itoa(resp.StatusCode), latency)

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, prov.MapError(resp.StatusCode, body)
	}

	chatResp, err := prov.ParseResponse(resp)
	if err != nil {
		return nil, gwerrors.NewInternalError(prov.Name(), req.Model,
			fmt.Sprintf("parse response: %v", err))
	}

	metrics.RecordTokens(prov.Name(), req.Model,
		chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)

	return chatResp, nil
}
