package lead

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "github.com/leadforge/lead-processing-pipeline/pkg/errors"
)

// SchemaVersion is stamped on every published message so stages can evolve
// independently without breaking in-flight messages from an older deployment.
const SchemaVersion = 1

const (
	contentTypeJSON     = "application/json"
	HeaderSchemaVersion = "x-schema-version"
	HeaderTraceID       = "x-trace-id"
)

// Encode serialises a lead into a persistent JSON AMQP publishing. Messages
// are marked persistent so they survive a broker restart before reaching
// storage.
func Encode(l *Lead) (amqp.Publishing, error) {
	body, err := json.Marshal(l)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshaling lead: %w", err)
	}
	return amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Headers: amqp.Table{
			HeaderSchemaVersion: int32(SchemaVersion),
		},
		Body: body,
	}, nil
}

// Decode deserialises a delivery back into a Lead. A body that is not valid
// JSON, or a schema version newer than this process understands, yields
// ErrMalformedPayload; a missing version header is treated as version 1 for
// compatibility with messages published before the header existed.
func Decode(d amqp.Delivery) (*Lead, error) {
	if v, err := schemaVersion(d); err != nil {
		return nil, err
	} else if v > SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", apperrors.ErrMalformedPayload, v)
	}
	var l Lead
	if err := json.Unmarshal(d.Body, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	return &l, nil
}

func schemaVersion(d amqp.Delivery) (int, error) {
	raw, ok := d.Headers[HeaderSchemaVersion]
	if !ok {
		return 1, nil
	}
	switch v := raw.(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: non-numeric schema version header", apperrors.ErrMalformedPayload)
	}
}

// TraceID extracts the propagated trace ID from a delivery, or "".
func TraceID(d amqp.Delivery) string {
	if v, ok := d.Headers[HeaderTraceID].(string); ok {
		return v
	}
	return ""
}
