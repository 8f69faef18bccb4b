// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/onellm/proxycheck/internal/config"
	"github.com/onellm/proxycheck/internal/metrics"
	"github.com/onellm/proxycheck/internal/tracing"
)

const (
	// RequestIDHeader carries a per-request UUID, to find a request in proxy logs.
	RequestIDHeader = "X-Request-Id"
	// RunIDHeader carries the ULID shared by every request of a run.
	RunIDHeader = "X-Proxycheck-Run"
)

// Options tunes a Runner. The zero value runs sequentially without telemetry.
type Options struct {
	Logger  *slog.Logger
	Metrics metrics.ChatCheck
	Tracing tracing.Tracing
	// Parallelism is the number of scenarios in flight. Values below 2 run
	// the suite sequentially, in order.
	Parallelism int
	// Timeout bounds each scenario, stream included. Zero means no limit.
	Timeout time.Duration
	// MaxRetries is passed to the OpenAI client. Retrying hides proxy
	// errors, so the default is none.
	MaxRetries int
	// Headers are added to every request.
	Headers map[string]string
	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client
}

// Runner executes suites against one target.
type Runner struct {
	target      config.Target
	client      openai.Client
	logger      *slog.Logger
	metrics     metrics.ChatCheck
	tracer      trace.Tracer
	propagator  propagation.TextMapPropagator
	parallelism int
	timeout     time.Duration
}

// NewRunner validates the target and builds the OpenAI client used by every scenario.
func NewRunner(target config.Target, opts Options) (*Runner, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		target:      target,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		tracer:      opts.Tracing.Tracer,
		propagator:  opts.Tracing.Propagator,
		parallelism: max(opts.Parallelism, 1),
		timeout:     opts.Timeout,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNoopChatCheck()
	}
	if r.tracer == nil || r.propagator == nil {
		noop := tracing.Noop()
		r.tracer, r.propagator = noop.Tracer, noop.Propagator
	}

	clientOpts := []option.RequestOption{
		option.WithBaseURL(target.BaseURL),
		option.WithAPIKey(target.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
		option.WithMiddleware(r.injectTraceContext),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	for k, v := range opts.Headers {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}
	r.client = openai.NewClient(clientOpts...)
	return r, nil
}

// Target returns the target the runner talks to.
func (r *Runner) Target() config.Target { return r.target }

func (r *Runner) injectTraceContext(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	r.propagator.Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	return next(req)
}

// Run executes every scenario of suite and returns results in suite order.
// Failed expectations are part of the report, not errors.
func (r *Runner) Run(ctx context.Context, suite Suite) (*Report, error) {
	if len(suite.Scenarios) == 0 {
		return nil, fmt.Errorf("suite %q has no scenarios", suite.Name)
	}
	report := &Report{
		RunID:   ulid.Make().String(),
		Suite:   suite.Name,
		Target:  r.target.BaseURL,
		Started: time.Now().UTC(),
		Results: make([]Result, len(suite.Scenarios)),
	}
	r.logger.Info("starting run",
		slog.String("run", report.RunID),
		slog.String("suite", suite.Name),
		slog.String("target", r.target.String()),
		slog.Int("scenarios", len(suite.Scenarios)),
	)

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, sc := range suite.Scenarios {
		g.Go(func() error {
			report.Results[i] = r.runScenario(ctx, report.RunID, sc)
			return nil
		})
	}
	_ = g.Wait()
	report.Finished = time.Now().UTC()

	r.logger.Info("run finished",
		slog.String("run", report.RunID),
		slog.Int("passed", len(report.Results)-report.Failed()),
		slog.Int("failed", report.Failed()),
		slog.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report, ctx.Err()
}

func (r *Runner) runScenario(ctx context.Context, runID string, sc Scenario) Result {
	res := Result{
		Scenario:  sc.Name,
		Model:     sc.Model,
		Stream:    sc.Stream,
		RequestID: uuid.NewString(),
	}
	ctx, span := r.tracer.Start(ctx, "proxycheck "+sc.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("proxycheck.run", runID),
			attribute.String("proxycheck.scenario", sc.Name),
			attribute.String("proxycheck.kind", string(sc.kind())),
			attribute.String("gen_ai.request.model", sc.Model),
			attribute.Bool("proxycheck.stream", sc.Stream),
		))
	defer span.End()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reqOpts := []option.RequestOption{
		option.WithHeader(RequestIDHeader, res.RequestID),
		option.WithHeader(RunIDHeader, runID),
	}
	logger := r.logger.With(slog.String("scenario", sc.Name), slog.String("request_id", res.RequestID))
	logger.Debug("sending request", slog.String("kind", string(sc.kind())), slog.String("model", sc.Model), slog.Bool("stream", sc.Stream))

	start := time.Now()
	var (
		obs Observation
		err error
	)
	switch sc.kind() {
	case KindModels:
		obs, err = r.listModels(ctx, sc.Method, reqOpts)
	case KindStatus:
		obs, err = r.status(ctx, sc, reqOpts)
	default:
		if sc.Stream {
			obs, err = r.stream(ctx, sc, start, &res, reqOpts)
		} else {
			obs, err = r.complete(ctx, sc, reqOpts)
		}
	}
	res.Duration = time.Since(start)
	res.Content = obs.Content
	res.Transcript = obs.Transcript

	if err != nil {
		res.Err = err.Error()
	} else {
		res.Failures = Check(sc.Expect, obs)
	}
	res.Passed = err == nil && len(res.Failures) == 0

	r.metrics.RecordRequest(ctx, sc.Name, sc.Model, sc.Stream, res.Duration)
	if res.TimeToFirstChunk > 0 {
		r.metrics.RecordTimeToFirstChunk(ctx, sc.Name, sc.Model, res.TimeToFirstChunk)
	}
	r.metrics.RecordResult(ctx, sc.Name, sc.Model, res.Passed, err != nil)

	span.SetAttributes(attribute.Bool("proxycheck.passed", res.Passed))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("scenario errored", slog.String("error", res.Err), slog.Duration("elapsed", res.Duration))
	case !res.Passed:
		span.SetStatus(codes.Error, "expectations failed")
		logger.Warn("scenario failed", slog.Any("failures", res.Failures), slog.String("content", res.Content))
	default:
		logger.Info("scenario passed", slog.Duration("elapsed", res.Duration))
	}
	return res
}

func (r *Runner) params(sc Scenario) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(sc.Messages))
	for _, m := range sc.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(sc.Model),
		Messages: msgs,
	}
	if sc.Temperature != nil {
		p.Temperature = openai.Float(*sc.Temperature)
	}
	return p
}

func (r *Runner) complete(ctx context.Context, sc Scenario, opts []option.RequestOption) (Observation, error) {
	resp, err := r.client.Chat.Completions.New(ctx, r.params(sc), opts...)
	if err != nil {
		return Observation{}, fmt.Errorf("chat completion: %w", err)
	}
	r.logger.Debug("received completion", slog.String("scenario", sc.Name), slog.String("body", resp.RawJSON()))
	obs := Observation{Choices: len(resp.Choices)}
	if len(resp.Choices) > 0 {
		obs.Content = resp.Choices[0].Message.Content
	}
	return obs, nil
}

func (r *Runner) stream(ctx context.Context, sc Scenario, start time.Time, res *Result, opts []option.RequestOption) (Observation, error) {
	stream := r.client.Chat.Completions.NewStreaming(ctx, r.params(sc), opts...)
	defer stream.Close()

	var chunks []string
	for stream.Next() {
		if len(chunks) == 0 {
			res.TimeToFirstChunk = time.Since(start)
		}
		raw := stream.Current().RawJSON()
		r.logger.Debug("received chunk", slog.String("scenario", sc.Name), slog.String("chunk", raw))
		chunks = append(chunks, raw)
	}
	res.ChunkCount = len(chunks)
	if err := stream.Err(); err != nil {
		return Observation{}, fmt.Errorf("chat completion stream after %d chunks: %w", len(chunks), err)
	}

	t, err := Fold(chunks)
	if err != nil {
		return Observation{}, err
	}
	return Observation{
		Choices:    int(t.First().Get("choices.#").Int()),
		Content:    t.Content,
		Transcript: t,
	}, nil
}

// modelPage is the part of a /models reply read by POST listings.
type modelPage struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// listModels lists /models with GET, paging like the OpenAI API, or with a
// single POST when method is POST.
func (r *Runner) listModels(ctx context.Context, method string, opts []option.RequestOption) (Observation, error) {
	var obs Observation
	if method == http.MethodPost {
		var page modelPage
		if err := r.client.Post(ctx, "models", nil, &page, opts...); err != nil {
			return Observation{}, fmt.Errorf("list models: %w", err)
		}
		for _, m := range page.Data {
			obs.Models = append(obs.Models, m.ID)
		}
		return obs, nil
	}
	iter := r.client.Models.ListAutoPaging(ctx, opts...)
	for iter.Next() {
		obs.Models = append(obs.Models, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return Observation{}, fmt.Errorf("list models: %w", err)
	}
	return obs, nil
}

// status sends the request with the scenario key and records the HTTP status
// it was answered with. Only transport failures are errors.
func (r *Runner) status(ctx context.Context, sc Scenario, opts []option.RequestOption) (Observation, error) {
	var httpResp *http.Response
	opts = append(opts, option.WithResponseInto(&httpResp))
	if sc.APIKey != "" {
		opts = append(opts, option.WithAPIKey(sc.APIKey))
	}
	_, err := r.client.Chat.Completions.New(ctx, r.params(sc), opts...)
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		return Observation{Status: apiErr.StatusCode}, nil
	case httpResp != nil:
		// Proxies answering with a non-JSON error body fail decoding, but the
		// status is still known.
		return Observation{Status: httpResp.StatusCode}, nil
	case err != nil:
		return Observation{}, fmt.Errorf("chat completion: %w", err)
	default:
		return Observation{Status: http.StatusOK}, nil
	}
}

// Models lists the model IDs served by the target, using method GET or POST.
func (r *Runner) Models(ctx context.Context, method string) ([]string, error) {
	obs, err := r.listModels(ctx, method, nil)
	return obs.Models, err
}
