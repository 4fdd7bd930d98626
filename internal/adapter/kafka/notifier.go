// Package kafka publishes archived-flight notifications so downstream
// consumers (dashboards, mail-out jobs) learn about freshly calibrated
// records without polling the archive.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cosmiconair/flight-dose-etl/internal/archive"
	"github.com/cosmiconair/flight-dose-etl/internal/config"
	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

// Notifier produces one message per archived flight to the notify topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured notify topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaNotifyTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes the calibrated record, its rendered processed log, and the
// overlay chart data keyed by the archive data id.
func (n *Notifier) Notify(ctx context.Context, rec *domain.FlightRecord, entry *archive.Entry) error {
	msg, err := serializeToMessage(rec, entry)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// processedNotification is the wire envelope for one archived flight.
type processedNotification struct {
	DataID       string                 `json:"data_id"`
	FlightNumber string                 `json:"flight_number"`
	FlightDate   string                 `json:"flight_date"`
	DeviceID     string                 `json:"device_id"`
	Origin       string                 `json:"origin"`
	Destination  string                 `json:"destination"`
	CitizenID    string                 `json:"citizen_id"`
	Alignment    domain.AlignmentResult `json:"alignment"`
	ProcessedLog string                 `json:"processed_log"`
	Chart        domain.SummaryChart    `json:"chart"`
	ArchivedAt   time.Time              `json:"archived_at"`
}

// serializeToMessage marshals one archived flight into a Kafka message.
func serializeToMessage(rec *domain.FlightRecord, entry *archive.Entry) (kafkago.Message, error) {
	key := rec.Key()
	envelope := processedNotification{
		DataID:       key.String(),
		FlightNumber: key.FlightNumber,
		FlightDate:   key.Date,
		DeviceID:     key.DeviceID,
		Origin:       rec.Meta.OriginICAO,
		Destination:  rec.Meta.DestinationICAO,
		CitizenID:    rec.Meta.CitizenID,
		Alignment:    rec.Alignment,
		ProcessedLog: string(domain.EncodeProcessedLog(rec)),
		Chart:        domain.BuildSummaryChart(rec),
		ArchivedAt:   entry.CreatedAt,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(envelope.DataID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "flight_number", Value: []byte(key.FlightNumber)},
			{Key: "archived_at", Value: []byte(entry.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
