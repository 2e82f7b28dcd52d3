package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/atmo-alert-service/internal/config"
	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// AlertMapEvent is the message announcing a processed day.
type AlertMapEvent struct {
	RunID         string              `json:"run_id"`
	BatchDate     string              `json:"batch_date"`
	Categorical   string              `json:"categorical"`
	StyledGeoTIFF string              `json:"styled_geotiff,omitempty"`
	StyledPNG     string              `json:"styled_png,omitempty"`
	Palette       string              `json:"palette"`
	Legend        string              `json:"legend"`
	Width         int                 `json:"width"`
	Height        int                 `json:"height"`
	ClassCounts   []domain.ClassCount `json:"class_counts"`
	NoDataCells   int                 `json:"nodata_cells"`
	AAIMean       float64             `json:"aai_mean"`
	AAIMax        float64             `json:"aai_max"`
	ProcessedAt   time.Time           `json:"processed_at"`
}

// NewAlertMapEvent flattens a batch result into its published form.
func NewAlertMapEvent(r domain.BatchResult) AlertMapEvent {
	return AlertMapEvent{
		RunID:         r.RunID,
		BatchDate:     domain.DateStamp(r.BatchDate),
		Categorical:   r.Categorical,
		StyledGeoTIFF: r.Styled[domain.FormatGeoTIFF],
		StyledPNG:     r.Styled[domain.FormatPNG],
		Palette:       r.Palette,
		Legend:        r.Legend,
		Width:         r.Width,
		Height:        r.Height,
		ClassCounts:   r.ClassCounts,
		NoDataCells:   r.NoDataCells,
		AAIMean:       r.AAIMean,
		AAIMax:        r.AAIMax,
		ProcessedAt:   r.ProcessedAt,
	}
}

// Publisher produces alert map events to a Kafka topic.
// It implements pipeline.ResultPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured alert topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes one event for the batch result.
func (p *Publisher) Publish(ctx context.Context, result domain.BatchResult) error {
	msg, err := serializeToMessage(NewAlertMapEvent(result))
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert map %s: %w", domain.DateStamp(result.BatchDate), err)
	}
	p.logger.Debug("alert map published", "topic", p.writer.Topic, "batch_date", string(msg.Key))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an AlertMapEvent into a Kafka message keyed by
// batch date, so reprocessing a day lands on the same partition.
func serializeToMessage(event AlertMapEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert map event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.BatchDate),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "batch_date", Value: []byte(event.BatchDate)},
			{Key: "processed_at", Value: []byte(event.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
