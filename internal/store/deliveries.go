package store

import (
	"context"
	"database/sql"
	"errors"
)

// Event delivery bookkeeping; the durable half of webhook dedupe.

func (d *DB) UpsertEventDelivery(ctx context.Context, source, eventType, deliveryID, payloadSHA, status string) error {
	if d == nil || d.SQL == nil {
		return nil
	}
	const q = `
INSERT INTO event_deliveries (source, event_type, delivery_id, payload_sha256, status, created_at)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (source, delivery_id) DO UPDATE SET
  event_type = EXCLUDED.event_type,
  payload_sha256 = EXCLUDED.payload_sha256,
  status = EXCLUDED.status
`
	_, err := d.SQL.ExecContext(ctx, q, source, eventType, deliveryID, payloadSHA, status)
	return err
}

// IsDuplicateDelivery reports whether the same delivery with the same payload
// hash was already recorded. GitHub redeliveries reuse the delivery id.
func (d *DB) IsDuplicateDelivery(ctx context.Context, source, deliveryID, payloadSHA string) (bool, error) {
	if d == nil || d.SQL == nil {
		return false, nil
	}
	const q = `SELECT payload_sha256 FROM event_deliveries WHERE source=$1 AND delivery_id=$2`
	var existing sql.NullString
	if err := d.SQL.QueryRowContext(ctx, q, source, deliveryID).Scan(&existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return existing.Valid && existing.String == payloadSHA, nil
}

func (d *DB) UpdateEventDeliveryStatus(ctx context.Context, source, deliveryID, status string) error {
	if d == nil || d.SQL == nil {
		return nil
	}
	const q = `UPDATE event_deliveries SET status=$3 WHERE source=$1 AND delivery_id=$2`
	_, err := d.SQL.ExecContext(ctx, q, source, deliveryID, status)
	return err
}
