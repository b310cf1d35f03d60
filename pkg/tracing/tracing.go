package tracing

import (
	"context"
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"

	"dip_bot/pkg/logger"
)

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Config.Enabled off installs a no-op tracer, so spans are always safe to start.
type Config struct {
	Enabled bool
	Host    string
	Port    int
}

func InitTracer(conf Config) (opentracing.Tracer, func(), error) {
	if !conf.Enabled {
		tracer := opentracing.NoopTracer{}
		opentracing.SetGlobalTracer(tracer)
		return tracer, func() {}, nil
	}

	cfg := &jCfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jCfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	logger.Info("jaeger tracer reporting to %s", cfg.Reporter.LocalAgentHostPort)
	return tracer, closeFunc(closer), nil
}

func closeFunc(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("closing jaeger tracer: %v", err)
		}
	}
}

// StartSpan starts a child of the span in ctx, or a root span.
func StartSpan(ctx context.Context, op string) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, op)
}

// Fail marks the span as errored.
func Fail(span opentracing.Span, err error) {
	if err == nil {
		return
	}
	span.SetTag("error", true)
	span.LogKV("event", "error", "message", err.Error())
}
