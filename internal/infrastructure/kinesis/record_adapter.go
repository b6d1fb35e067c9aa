package kinesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/infrastructure/store"
)

// EventHandler consumes one event from the stream
type EventHandler func(ctx context.Context, event store.Event) error

// ConvertFromKinesisRecord converts a Kinesis record carrying a DynamoDB
// stream change of the events table into a store.Event. Changes other than
// INSERT yield nil.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB stream record read directly from the stream.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}
	return convertDynamoDBImage(record.Change.NewImage)
}

func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	event := &store.Event{}
	if v, ok := image["id"]; ok {
		event.ID = v.String()
	}
	if v, ok := image["aggregate_id"]; ok {
		event.AggregateID = v.String()
	}
	if v, ok := image["aggregate_type"]; ok {
		event.AggregateType = v.String()
	}
	if v, ok := image["event_type"]; ok {
		event.EventType = v.String()
	}
	if v, ok := image["data"]; ok {
		if !json.Valid([]byte(v.String())) {
			return nil, fmt.Errorf("event %s carries invalid JSON data", event.ID)
		}
		event.Data = json.RawMessage(v.String())
	}
	if v, ok := image["created_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		event.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("failed to parse version: %w", err)
		}
		event.Version = int(version)
	}

	if event.ID == "" || event.AggregateID == "" || event.EventType == "" || event.Version <= 0 {
		return nil, fmt.Errorf("missing required fields: id=%s, aggregate_id=%s, event_type=%s, version=%d",
			event.ID, event.AggregateID, event.EventType, event.Version)
	}
	return event, nil
}

// ProcessBatch feeds the batch to handler in order. It stops at the first
// failing record and reports it, since Lambda resumes the shard from the
// lowest failed sequence number and later events of the same order must not
// overtake it.
func ProcessBatch(ctx context.Context, logger zerolog.Logger, kinesisEvent events.KinesisEvent, handler EventHandler) events.KinesisEventResponse {
	var resp events.KinesisEventResponse
	processed := 0

	for _, record := range kinesisEvent.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err == nil && event != nil {
			err = handler(ctx, *event)
		}
		if err != nil {
			logger.Error().Err(err).
				Str("record", record.EventID).
				Str("sequence", record.Kinesis.SequenceNumber).
				Msg("failed to process record")
			resp.BatchItemFailures = []events.KinesisBatchItemFailure{
				{ItemIdentifier: record.Kinesis.SequenceNumber},
			}
			break
		}
		processed++
	}

	logger.Info().
		Int("processed", processed).
		Int("records", len(kinesisEvent.Records)).
		Msg("batch done")
	return resp
}
