// Package gateway composes the defense pipeline: every inbound query passes
// sanitization, complexity scoring, rate limiting, and read-only checks in a
// fixed order before it is allowed anywhere near the graph database.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cyphergate/cyphergate/pkg/audit"
	"github.com/cyphergate/cyphergate/pkg/complexity"
	gerrors "github.com/cyphergate/cyphergate/pkg/errors"
	"github.com/cyphergate/cyphergate/pkg/infrastructure/metrics"
	"github.com/cyphergate/cyphergate/pkg/limitinject"
	"github.com/cyphergate/cyphergate/pkg/models"
	"github.com/cyphergate/cyphergate/pkg/ratelimit"
	"github.com/cyphergate/cyphergate/pkg/readonly"
	"github.com/cyphergate/cyphergate/pkg/sanitize"
)

const defaultTool = "query_graph"

// InjectionConfig controls the optional limit-injection stage.
type InjectionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	MaxRows int  `yaml:"max_rows" json:"max_rows"`
}

// Config aggregates the per-stage configuration.
type Config struct {
	Sanitizer  sanitize.Config   `yaml:"sanitizer" json:"sanitizer"`
	Complexity complexity.Config `yaml:"complexity" json:"complexity"`
	RateLimit  ratelimit.Config  `yaml:"rate_limit" json:"rate_limit"`
	ReadOnly   readonly.Config   `yaml:"read_only" json:"read_only"`
	Injection  InjectionConfig   `yaml:"injection" json:"injection"`
	Audit      audit.Config      `yaml:"audit" json:"audit"`
}

// DefaultConfig returns a gateway configuration with every stage enabled
// except read-only enforcement.
func DefaultConfig() Config {
	return Config{
		Sanitizer:  sanitize.DefaultConfig(),
		Complexity: complexity.DefaultConfig(),
		RateLimit:  ratelimit.DefaultConfig(),
		ReadOnly:   readonly.Config{Enabled: false},
		Injection:  InjectionConfig{Enabled: true, MaxRows: 100},
		Audit:      audit.DefaultConfig(),
	}
}

// Executor runs an accepted query against the external graph database. The
// gateway depends on nothing about it beyond "executes a query string with
// named parameters."
type Executor interface {
	Execute(ctx context.Context, query string, parameters map[string]any) ([]map[string]any, error)
}

// Gateway is the per-process pipeline instance. All stage state is built
// once at construction; Check and Execute are safe for concurrent use.
type Gateway struct {
	cfg       Config
	sanitizer *sanitize.Sanitizer
	analyzer  *complexity.Analyzer
	limiter   *ratelimit.Limiter
	validator *readonly.Validator
	auditor   *audit.Logger
	collector metrics.Collector
	executor  Executor
}

// New builds a gateway. executor may be nil when the caller only needs
// Check; collector may be nil, in which case metrics are discarded.
func New(cfg Config, executor Executor, collector metrics.Collector) (*Gateway, error) {
	auditor, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeInternal, "initializing audit logger")
	}
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	if cfg.Injection.MaxRows <= 0 {
		cfg.Injection.MaxRows = 100
	}

	return &Gateway{
		cfg:       cfg,
		sanitizer: sanitize.NewSanitizer(cfg.Sanitizer),
		analyzer:  complexity.NewAnalyzer(cfg.Complexity),
		limiter:   ratelimit.NewLimiter(cfg.RateLimit),
		validator: readonly.NewValidator(cfg.ReadOnly),
		auditor:   auditor,
		collector: collector,
		executor:  executor,
	}, nil
}

// Close releases gateway resources.
func (g *Gateway) Close() {
	g.limiter.Close()
}

// Auditor exposes the audit logger so call sites can record execution
// outcomes for accepted queries.
func (g *Gateway) Auditor() *audit.Logger {
	return g.auditor
}

// Limiter exposes the rate limiter for administrative operations.
func (g *Gateway) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// Check runs the request through every stage in order and returns the
// verdict. A disabled stage passes vacuously. Rejections are audited with
// the stage name; audit failures never block the verdict.
func (g *Gateway) Check(ctx context.Context, req models.QueryRequest) models.PipelineVerdict {
	timer := g.collector.StartTimer("gateway_check_duration_seconds")
	defer func() {
		g.collector.RecordHistogram("gateway_check_seconds", timer.Stop())
	}()

	// A dead context means the caller is gone; abandon the check without
	// auditing it as a rejection.
	if err := ctx.Err(); err != nil {
		g.collector.IncrementCounter("gateway_queries_total", "outcome", "canceled")
		log.Debug().Str("client_id", req.ClientID).Err(err).Msg("Check abandoned")
		return models.Reject(models.StageCanceled, "request canceled before checks completed")
	}

	verdict := g.sanitizer.Sanitize(req.Query, req.Parameters)
	if !verdict.Safe {
		return g.reject(req, models.StageSanitize, verdict.Reason)
	}
	for _, w := range verdict.Warnings {
		log.Warn().Str("client_id", req.ClientID).Str("warning", w).Msg("Sanitizer warning")
	}

	score := g.analyzer.Analyze(req.Query)
	if !score.WithinLimit {
		return g.reject(req, models.StageComplexity,
			fmt.Sprintf("complexity score %d exceeds maximum %d", score.Total, score.MaxAllowed))
	}

	decision := g.limiter.CheckAndConsume(req.ClientID, 1)
	if !decision.Allowed {
		v := g.reject(req, models.StageRateLimit,
			fmt.Sprintf("rate limit exceeded, retry after %.1fs", decision.RetryAfter))
		v.RetryAfter = decision.RetryAfter
		return v
	}

	if reason := g.validator.Check(req.Query); reason != "" {
		return g.reject(req, models.StageReadOnly, reason)
	}

	finalQuery := req.Query
	if g.cfg.Injection.Enabled && limitinject.ShouldInject(finalQuery) {
		result := limitinject.Inject(finalQuery, g.cfg.Injection.MaxRows, false)
		if result.Injected {
			log.Debug().Str("client_id", req.ClientID).Msg("Injected result bound")
			g.collector.IncrementCounter("gateway_limit_injections_total")
		}
		finalQuery = result.Query
	}

	g.collector.IncrementCounter("gateway_queries_total", "outcome", "accepted")
	g.auditor.LogQuery(defaultTool, req.Query, req.Parameters, map[string]any{
		"clientId": req.ClientID,
	})
	return models.Accept(finalQuery)
}

// Execute runs Check and, on acceptance, forwards the final query to the
// executor, auditing the outcome either way. The verdict is always
// meaningful; records and err describe the execution itself.
func (g *Gateway) Execute(ctx context.Context, req models.QueryRequest) ([]map[string]any, models.PipelineVerdict, error) {
	verdict := g.Check(ctx, req)
	if !verdict.Accepted {
		return nil, verdict, nil
	}
	if g.executor == nil {
		return nil, verdict, gerrors.New(gerrors.CodeInternal, "no executor configured")
	}

	start := time.Now()
	records, err := g.executor.Execute(ctx, verdict.FinalQuery, req.Parameters)
	elapsed := time.Since(start)

	if err != nil {
		g.collector.IncrementCounter("gateway_queries_total", "outcome", "execution_failed")
		g.auditor.LogError(defaultTool, req.Query, err.Error(), string(models.StageExecution), map[string]any{
			"clientId": req.ClientID,
		})
		return nil, verdict, gerrors.Wrap(err, gerrors.CodeExecutionFailed, "executing query")
	}

	g.collector.RecordHistogram("gateway_execution_seconds", elapsed.Seconds())
	g.auditor.LogResponse(defaultTool, req.Query, fmt.Sprintf("%d records", len(records)), elapsed, map[string]any{
		"clientId": req.ClientID,
	})
	return records, verdict, nil
}

func (g *Gateway) reject(req models.QueryRequest, stage models.Stage, reason string) models.PipelineVerdict {
	g.collector.IncrementCounter("gateway_rejections_total", "stage", string(stage))
	log.Info().
		Str("client_id", req.ClientID).
		Str("stage", string(stage)).
		Str("reason", reason).
		Msg("Query rejected")

	g.auditor.LogError(defaultTool, req.Query, reason, string(stage), map[string]any{
		"clientId": req.ClientID,
	})
	return models.Reject(stage, reason)
}
