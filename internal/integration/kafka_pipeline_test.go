//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"testing/fstest"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/dark-sky-site-finder/internal/adapter/kafka"
	"github.com/couchcryptid/dark-sky-site-finder/internal/config"
	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
	"github.com/couchcryptid/dark-sky-site-finder/internal/observability"
	"github.com/couchcryptid/dark-sky-site-finder/internal/pipeline"
	"github.com/couchcryptid/dark-sky-site-finder/internal/raster"
	"github.com/couchcryptid/dark-sky-site-finder/internal/search"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// testRegion is a one-degree box painted at level 5 with a single level 0
// pixel at (52, 50), about 2.2 km east of the box center.
var testRegion = domain.Region{
	Name: "Test", LonMin: 0, LatMin: 0, LonMax: 1, LatMax: 1,
	Width: 101, Height: 101, Resource: "test.png",
}

// responseMessage holds a deserialized message read from the sink topic.
type responseMessage struct {
	Response domain.SearchResponse
	Key      string
	Headers  map[string]string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("site-finder-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchSize:          50,
		BatchFlushInterval: 5 * time.Second,
		PipelineWorkers:    4,
	}
}

// newEngine builds the real engine over an in-memory PNG of testRegion.
func newEngine(t *testing.T) *search.Engine {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, testRegion.Width, testRegion.Height))
	for y := range testRegion.Height {
		for x := range testRegion.Width {
			img.Set(x, y, color.RGBA{R: 191, G: 100, B: 30, A: 0xff})
		}
	}
	img.Set(52, 50, color.RGBA{A: 0xff})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	catalog, err := domain.NewCatalog(testRegion)
	require.NoError(t, err)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	store := raster.NewFSStore(fstest.MapFS{testRegion.Resource: {Data: buf.Bytes()}})
	loader := raster.NewLoader(store, 0, logger, metrics)
	return search.NewEngine(catalog, raster.NewCache(loader, logger, metrics), logger, metrics)
}

func newTransformer(t *testing.T) *pipeline.SiteTransformer {
	t.Helper()
	return pipeline.NewTransformer(newEngine(t), domain.DefaultQueryLimits(), 10*time.Second, nil, discardLogger())
}

func queryPayload(t *testing.T, q domain.SiteQuery) []byte {
	t.Helper()
	data, err := json.Marshal(q)
	require.NoError(t, err)
	return data
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// readResponse reads a single message from the sink consumer and deserializes it.
func readResponse(ctx context.Context, t *testing.T, consumer *kafkago.Reader) responseMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var resp domain.SearchResponse
	require.NoError(t, json.Unmarshal(msg.Value, &resp), "unmarshal sink message")

	return responseMessage{Response: resp, Key: string(msg.Key), Headers: headers}
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader and
// kafka.Writer round-trip a query and its answer through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := queryPayload(t, domain.SiteQuery{Lat: 0.5, Lon: 0.5, RadiusKm: 10, TopN: 3})
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("q-1"), Value: payload}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("q-1"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	event, err := newTransformer(t).Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{event}))

	msg := readResponse(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "q-1", msg.Key)
	assert.Equal(t, domain.StatusComputed, msg.Headers["status"])
	_, err = time.Parse(time.RFC3339, msg.Headers["computed_at"])
	assert.NoError(t, err, "computed_at should be valid RFC3339")

	resp := msg.Response
	assert.Equal(t, "q-1", resp.QueryID)
	assert.Equal(t, "Test", resp.Region)
	assert.Equal(t, 5.0, resp.BaselineLevel)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 0.0, resp.Results[0].LightPollutionIndex)
	assert.InDelta(t, 2.2, resp.Results[0].DistanceKm, 0.1)
}

// TestPipelineEndToEnd runs the full pipeline against real Kafka and checks
// that every query, valid or not, gets exactly one response.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	queries := map[string]domain.SiteQuery{
		"dark":      {Lat: 0.5, Lon: 0.5, RadiusKm: 10, TopN: 3},
		"far":       {Lat: 0.1, Lon: 0.1, RadiusKm: 5, TopN: 3},
		"uncovered": {Lat: -40, Lon: -150, RadiusKm: 10},
		"invalid":   {Lat: 95, Lon: 0.5, RadiusKm: 10},
	}

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	msgs := make([]kafkago.Message, 0, len(queries))
	for id, q := range queries {
		msgs = append(msgs, kafkago.Message{Key: []byte(id), Value: queryPayload(t, q)})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, newTransformer(t), writer, discardLogger(), metrics, pipeline.Options{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.PipelineWorkers,
	})

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := make(map[string]domain.SearchResponse, len(queries))
	for len(received) < len(queries) {
		msg := readResponse(ctx, t, consumer)
		received[msg.Key] = msg.Response
	}

	pipelineCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.CheckReadiness(ctx))

	dark := received["dark"]
	assert.Equal(t, domain.StatusComputed, dark.Status)
	require.NotEmpty(t, dark.Results)
	assert.Equal(t, 0.0, dark.Results[0].LightPollutionIndex)

	far := received["far"]
	assert.Equal(t, domain.StatusComputed, far.Status)
	assert.Empty(t, far.Results, "no pixel within 5 km is darker than the baseline")

	assert.Equal(t, domain.StatusUncovered, received["uncovered"].Status)

	invalid := received["invalid"]
	assert.Equal(t, domain.StatusFailed, invalid.Status)
	assert.Contains(t, invalid.Error, "lat")
}

// TestPipelineTransformError verifies that a malformed message is skipped and
// the pipeline continues with the valid ones.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: queryPayload(t, domain.SiteQuery{Lat: 0.5, Lon: 0.5, RadiusKm: 10})},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, newTransformer(t), writer, discardLogger(), metrics, pipeline.Options{BatchSize: 50, Workers: 2})

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	msg := readResponse(ctx, t, consumer)
	assert.Equal(t, "good", msg.Key)
	assert.Equal(t, domain.StatusComputed, msg.Response.Status)

	// No second message: the malformed one was skipped.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
