package tracing

import (
	"context"
	"testing"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestMain(m *testing.M) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	m.Run()
}

func TestKafkaHeaderCarrierGetSetKeys(t *testing.T) {
	c := kafkaHeaderCarrier{headers: []kafka.Header{{Key: "traceparent", Value: []byte("00-abc")}}}

	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Empty(t, c.Get("missing"))

	c.Set("tracestate", "vendor=1")
	assert.Equal(t, "vendor=1", c.Get("tracestate"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, c.Keys())

	c.Set("traceparent", "00-def")
	assert.Equal(t, "00-def", c.Get("traceparent"))
}

func TestInjectThenExtractTraceContextRoundTrips(t *testing.T) {
	spanCtx, span := GetTracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceContext(spanCtx, nil)

	extracted := ExtractTraceContext(context.Background(), headers)
	require.NotNil(t, extracted)
}

func TestStartSpanFromKafkaMessageReturnsUsableSpan(t *testing.T) {
	ctx, span := StartSpanFromKafkaMessage(context.Background(), "schema-discovery-consume", nil)
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	span.End()
}
