// Package remote runs tools inside stateful remote capability sessions.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/telemetry"
	"holmes/internal/infra/ttlcache"
)

// Session is one open conversation with a remote endpoint.
type Session interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	Ping(ctx context.Context) error
	Close() error
}

// SessionOpener opens sessions against an endpoint.
type SessionOpener interface {
	Open(ctx context.Context, endpoint domain.RemoteEndpoint) (Session, error)
}

var ErrBridgeClosed = errors.New("remote bridge closed")

const (
	methodCall      = "call"
	methodPing      = "ping"
	methodListTools = "list_tools"
)

type Options struct {
	Logger  *zap.Logger
	Opener  SessionOpener
	Metrics domain.Metrics
	// ToolCache keeps discovered tools per endpoint URL; discovery always
	// reaches the endpoint when nil.
	ToolCache *ttlcache.Cache[[]domain.RemoteTool]
}

// Bridge serializes work per endpoint URL. Each endpoint gets one worker that
// runs a full open/request/close cycle per job, so calls to the same endpoint
// never overlap while distinct endpoints proceed in parallel.
type Bridge struct {
	logger    *zap.Logger
	opener    SessionOpener
	metrics   domain.Metrics
	toolCache *ttlcache.Cache[[]domain.RemoteTool]

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

var _ domain.RemoteExecutor = (*Bridge)(nil)

type job struct {
	ctx      context.Context
	endpoint domain.RemoteEndpoint
	run      func(ctx context.Context, session Session) error
	done     chan error
}

type worker struct {
	queue  chan job
	stop   chan struct{}
	exited chan struct{}
}

func NewBridge(opts Options) (*Bridge, error) {
	if opts.Opener == nil {
		return nil, errors.New("session opener is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		logger:    logger.Named("remote"),
		opener:    opts.Opener,
		metrics:   opts.Metrics,
		toolCache: opts.ToolCache,
		workers:   make(map[string]*worker),
	}, nil
}

// Call invokes a tool on the endpoint. Every failure is returned as an error result.
func (b *Bridge) Call(ctx context.Context, endpoint domain.RemoteEndpoint, tool string, params map[string]any) domain.ToolResult {
	ctx, meta := telemetry.WithInvocation(ctx)
	logger := b.logger.With(telemetry.InvocationFields(meta)...).With(
		telemetry.EndpointField(endpoint.URL),
		telemetry.ToolField(tool),
	)

	start := time.Now()
	var result domain.ToolResult
	err := b.submit(ctx, endpoint, func(ctx context.Context, session Session) error {
		res, err := session.CallTool(ctx, tool, params)
		if err != nil {
			return err
		}
		result, err = convertResult(res)
		return err
	})
	if err != nil {
		result = domain.ErrorResult("remote tool %s failed: %v", tool, err)
	}
	result.Params = params
	duration := time.Since(start)
	b.observe(endpoint.URL, methodCall, result.Status, duration)

	if result.Status == domain.ToolResultError {
		logger.Warn("remote call failed",
			telemetry.EventField(telemetry.EventRemoteFailure),
			telemetry.DurationField(duration),
			zap.String("error", result.Error),
		)
	} else {
		logger.Debug("remote call completed",
			telemetry.EventField(telemetry.EventRemoteCall),
			telemetry.DurationField(duration),
			zap.String("status", string(result.Status)),
		)
	}
	return result
}

// Ping checks that the endpoint accepts a session and answers a ping.
func (b *Bridge) Ping(ctx context.Context, endpoint domain.RemoteEndpoint) error {
	start := time.Now()
	err := b.submit(ctx, endpoint, func(ctx context.Context, session Session) error {
		return session.Ping(ctx)
	})
	b.observe(endpoint.URL, methodPing, statusOf(err), time.Since(start))
	if err != nil {
		return domain.Wrap(domain.CodeRemoteExecution, "ping "+endpoint.URL, err)
	}
	return nil
}

// ListTools returns the tools advertised by the endpoint.
func (b *Bridge) ListTools(ctx context.Context, endpoint domain.RemoteEndpoint) ([]domain.RemoteTool, error) {
	if b.toolCache != nil {
		if tools, ok := b.toolCache.Get(endpoint.URL); ok {
			return tools, nil
		}
	}
	start := time.Now()
	var tools []domain.RemoteTool
	err := b.submit(ctx, endpoint, func(ctx context.Context, session Session) error {
		listed, err := session.ListTools(ctx)
		if err != nil {
			return err
		}
		tools = make([]domain.RemoteTool, 0, len(listed))
		for _, tool := range listed {
			if tool == nil || tool.Name == "" {
				continue
			}
			tools = append(tools, convertTool(tool))
		}
		return nil
	})
	b.observe(endpoint.URL, methodListTools, statusOf(err), time.Since(start))
	if err != nil {
		return nil, domain.Wrap(domain.CodeRemoteExecution, "list tools "+endpoint.URL, err)
	}
	if b.toolCache != nil {
		if err := b.toolCache.Set(endpoint.URL, tools); err != nil {
			b.logger.Debug("cache remote tools failed", telemetry.EndpointField(endpoint.URL), zap.Error(err))
		}
	}
	return tools, nil
}

// Close stops every worker. In-flight jobs run to completion; queued jobs fail
// with ErrBridgeClosed.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, w := range b.workers {
		close(w.stop)
	}
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

// submit hands run to the endpoint worker and waits for it. The caller's
// context can abandon the wait only before the job is enqueued; once queued
// the job runs to completion with a context that is no longer canceled.
func (b *Bridge) submit(ctx context.Context, endpoint domain.RemoteEndpoint, run func(context.Context, Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if endpoint.URL == "" {
		return errors.New("remote endpoint url is required")
	}
	w, err := b.worker(endpoint.URL)
	if err != nil {
		return err
	}
	j := job{
		ctx:      context.WithoutCancel(ctx),
		endpoint: endpoint,
		run:      run,
		done:     make(chan error, 1),
	}
	select {
	case w.queue <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.exited:
		return ErrBridgeClosed
	}
	select {
	case err := <-j.done:
		return err
	case <-w.exited:
		select {
		case err := <-j.done:
			return err
		default:
			return ErrBridgeClosed
		}
	}
}

func (b *Bridge) worker(url string) (*worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBridgeClosed
	}
	if w, ok := b.workers[url]; ok {
		return w, nil
	}
	w := &worker{
		queue:  make(chan job, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	b.workers[url] = w
	b.wg.Add(1)
	go b.runWorker(w)
	return w, nil
}

func (b *Bridge) runWorker(w *worker) {
	defer b.wg.Done()
	defer close(w.exited)
	for {
		select {
		case <-w.stop:
			return
		case j := <-w.queue:
			j.done <- b.execute(j)
		}
	}
}

func (b *Bridge) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote session panicked: %v", r)
		}
	}()
	session, err := b.opener.Open(j.ctx, j.endpoint)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			b.logger.Debug("close remote session failed",
				telemetry.EndpointField(j.endpoint.URL),
				zap.Error(closeErr),
			)
		}
	}()
	return j.run(j.ctx, session)
}

func (b *Bridge) observe(endpoint, method string, status domain.ToolResultStatus, duration time.Duration) {
	if b.metrics == nil {
		return
	}
	b.metrics.ObserveRemoteCall(domain.RemoteCallMetric{
		Endpoint: endpoint,
		Method:   method,
		Status:   status,
		Duration: duration,
	})
}

func statusOf(err error) domain.ToolResultStatus {
	if err != nil {
		return domain.ToolResultError
	}
	return domain.ToolResultSuccess
}
