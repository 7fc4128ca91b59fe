package control

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
)

func TestRequestIDInterceptorUsesIncomingID(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "abc"))

	var gotID string
	var gotLogger logging.Logger
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, _ any) (any, error) {
			gotID = logging.RequestIDFromContext(ctx)
			gotLogger = logging.LoggerFromContext(ctx)
			return nil, nil
		})
	if err != nil {
		t.Fatalf("interceptor returned %v", err)
	}
	if gotID != "abc" {
		t.Fatalf("request id = %q, want abc", gotID)
	}
	if gotLogger == nil {
		t.Fatalf("no logger on handler context")
	}
}

func TestRequestIDInterceptorGeneratesID(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(logging.Noop())

	var gotID string
	wantErr := errors.New("boom")
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"},
		func(ctx context.Context, _ any) (any, error) {
			gotID = logging.RequestIDFromContext(ctx)
			return nil, wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Fatalf("interceptor error = %v, want %v", err, wantErr)
	}
	if gotID == "" {
		t.Fatalf("request id not generated")
	}
}

func TestTracingInterceptorRecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	interceptor := TracingUnaryServerInterceptor()
	ctx := logging.ContextWithRequestID(context.Background(), "req-7")
	_, _ = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(context.Context, any) (any, error) { return "ok", nil })

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "control/Health/Check" {
		t.Fatalf("span name = %q", span.Name())
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	if attrs["rpc.method"] != "Check" || attrs["request_id"] != "req-7" {
		t.Fatalf("span attributes = %v", attrs)
	}
}
