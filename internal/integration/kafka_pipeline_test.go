//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/raincast/internal/adapter/kafka"
	"github.com/couchcryptid/raincast/internal/config"
	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/couchcryptid/raincast/internal/observability"
	"github.com/couchcryptid/raincast/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTriggerTopic = "test-rainfall-triggers"

// publishedTrigger holds a deserialized message read from the trigger topic.
type publishedTrigger struct {
	Status  domain.TriggerStatus
	Key     string
	Headers map[string]string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("raincast-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
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

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

// readTrigger reads a single message from the consumer and deserializes it.
func readTrigger(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedTrigger {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from trigger topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var status domain.TriggerStatus
	require.NoError(t, json.Unmarshal(msg.Value, &status), "unmarshal trigger message")
	return publishedTrigger{Status: status, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTriggerTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestWriterPublishesTriggers verifies the adapter layer: kafka.Writer sends
// one keyed message per status with run_id and produced_at headers.
func TestWriterPublishesTriggers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTriggerTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTriggerTopic: testTriggerTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	checked := time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)
	statuses := []domain.TriggerStatus{
		{RunID: "run-1", Level: "adm1", Window: domain.WindowOneDay, Threshold: 15, Triggered: true, MaxTotal: 22.5, Entity: "Awdal", CheckedAt: checked},
		{RunID: "run-1", Level: "adm1", Window: domain.WindowThreeDay, Threshold: 40, MaxTotal: 31, Entity: "Awdal", CheckedAt: checked},
	}
	require.NoError(t, writer.PublishTriggers(ctx, statuses))

	consumer := newConsumer(t, broker)
	for _, want := range statuses {
		got := readTrigger(ctx, t, consumer)
		assert.Equal(t, kafka.MessageKey(want), got.Key)
		assert.Equal(t, "run-1", got.Headers["run_id"])
		_, err := time.Parse(time.RFC3339, got.Headers["produced_at"])
		assert.NoError(t, err, "produced_at should be valid RFC3339")
		assert.Equal(t, want, got.Status)
	}
}

const gridFixture = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [0, 0]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [1, 0]}}
  ]
}`

const zonesFixture = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"ADM1_EN": "All", "ADM1_PCODE": "XX1"},
     "geometry": {"type": "Polygon", "coordinates": [[[-0.5, -0.5], [1.5, -0.5], [1.5, 0.5], [-0.5, 0.5], [-0.5, -0.5]]]}}
  ]
}`

// steadyRain forecasts 1 mm/h for 48 hours at every point.
type steadyRain struct{}

func (steadyRain) FetchForecast(_ context.Context, p domain.GridPoint) ([]domain.ForecastReading, error) {
	start := time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)
	out := make([]domain.ForecastReading, 48)
	for h := range out {
		out[h] = domain.ForecastReading{
			PointID: p.ID, Latitude: p.Latitude, Longitude: p.Longitude,
			Timestamp: start.Add(time.Duration(h) * time.Hour), HoursAhead: 1, RainfallMM: 1,
		}
	}
	return out, nil
}

// TestPipelineEndToEnd runs the whole pipeline against a real broker and
// checks the published trigger statuses.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTriggerTopic)

	s := config.DefaultSettings()
	s.Output.MainDir = t.TempDir()
	s.MetNo.UserAgent = "raincast-integration"
	s.Geo.CountryCode = "xx"
	s.Geo.Levels = []config.LevelSettings{{Name: "adm1", NameKey: "ADM1_EN", CodeKey: "ADM1_PCODE"}}
	s.Thresholds.OneDay = 20
	s.Thresholds.MultiDay = 50
	require.NoError(t, s.Validate())

	inputDir := s.InputPath("")
	require.NoError(t, os.MkdirAll(inputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, s.Geo.Grid), []byte(gridFixture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "xx_adm1.geojson"), []byte(zonesFixture), 0o644))

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTriggerTopic: testTriggerTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p, err := pipeline.New(&s, steadyRain{}, pipeline.Options{Publisher: writer}, discardLogger(), metrics)
	require.NoError(t, err)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Triggers, 2)

	consumer := newConsumer(t, broker)
	received := map[string]publishedTrigger{}
	for len(received) < 2 {
		pt := readTrigger(ctx, t, consumer)
		received[pt.Key] = pt
	}

	oneDay := received["adm1|"+domain.WindowOneDay]
	assert.True(t, oneDay.Status.Triggered, "24 mm a day exceeds 20 mm")
	assert.Equal(t, "All", oneDay.Status.Entity)
	assert.Equal(t, res.RunID, oneDay.Headers["run_id"])

	multi := received["adm1|"+domain.WindowThreeDay]
	assert.False(t, multi.Status.Triggered, "48 mm over the horizon stays below 50 mm")
	assert.InDelta(t, 48.0, multi.Status.MaxTotal, 1e-9)
}
