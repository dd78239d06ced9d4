package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/bucketing"
	"github.com/Kaushals112/shadow-aiims-defender/internal/client"
	"github.com/Kaushals112/shadow-aiims-defender/internal/encryption"
	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

const insertEventQuery = `INSERT INTO attack_events
    (event_bucket, event_date, event_id, session_id, source_identity,
     event_kind, severity, payload, context, occurred_at)`

// CreateTableDDL is the archive schema, applied by operators or migrations.
const CreateTableDDL = `
CREATE TABLE IF NOT EXISTS attack_events (
    event_bucket    UInt16,
    event_date      Date,
    event_id        String,
    session_id      String,
    source_identity String,
    event_kind      LowCardinality(String),
    severity        LowCardinality(String),
    payload         String,
    context         String,
    occurred_at     DateTime64(3, 'UTC')
) ENGINE = MergeTree()
PARTITION BY event_date
ORDER BY (event_bucket, session_id, occurred_at)`

// EventArchive is the long-term ClickHouse copy of the attack log. It
// implements recorder.Sink; each recorded event is appended as a single-row
// batch, bucketed by session for partition locality, with the payload
// sealed by the encryption manager.
type EventArchive struct {
	ch        *client.ClickHouseClient
	buckets   *bucketing.Manager
	encryptor *encryption.Manager
	logger    *zap.Logger
}

// NewEventArchive wires the archive sink. encryptor may be nil, in which
// case payloads are archived in the clear.
func NewEventArchive(ch *client.ClickHouseClient, buckets *bucketing.Manager, encryptor *encryption.Manager, logger *zap.Logger) *EventArchive {
	if logger == nil {
		logger = util.Get()
	}
	return &EventArchive{ch: ch, buckets: buckets, encryptor: encryptor, logger: logger}
}

// Name implements recorder.Sink.
func (a *EventArchive) Name() string { return "clickhouse" }

// Publish appends one event to the archive.
func (a *EventArchive) Publish(ctx context.Context, event models.AttackEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	payload := event.Payload
	if a.encryptor != nil {
		sealed, err := a.encryptor.EncryptPayload(payload)
		if err != nil {
			// Archive the event anyway; losing the record is worse than
			// archiving an unreadable payload field.
			a.logger.Warn("payload encryption failed, archiving empty payload",
				zap.String("event_id", event.EventID),
				zap.Error(err))
			sealed = ""
		}
		payload = sealed
	}

	contextJSON := "{}"
	if len(event.Context) > 0 {
		if raw, err := json.Marshal(event.Context); err == nil {
			contextJSON = string(raw)
		}
	}

	row := []interface{}{
		uint16(a.buckets.EventBucket(event.SessionID)),
		event.OccurredAt.UTC(),
		event.EventID,
		event.SessionID,
		event.SourceIdentity,
		string(event.EventKind),
		string(models.SeverityOf(event.EventKind)),
		payload,
		contextJSON,
		event.OccurredAt.UTC(),
	}
	if err := a.ch.BatchInsert(ctx, insertEventQuery, [][]interface{}{row}); err != nil {
		return fmt.Errorf("failed to archive event: %w", err)
	}
	return nil
}

// CountByKind tallies archived events per kind for offline reporting.
func (a *EventArchive) CountByKind(ctx context.Context) (map[string]uint64, error) {
	rows, err := a.ch.QueryRows(ctx,
		`SELECT event_kind, count() FROM attack_events GROUP BY event_kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var kind string
		var n uint64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan archive count row: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
