package database

import (
	"context"
	"database/sql"
	"fmt"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanWebhookEvent(row rowScanner) (*models.WebhookEvent, error) {
	var e models.WebhookEvent
	var processedAt sql.NullTime
	err := row.Scan(&e.Id, &e.Hash, &e.Payload, &e.ExternalId, &e.EventName, &e.Status, &e.DepositId,
		&e.WithdrawalId, &e.ErrorMessage, &e.ReceivedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	e.ProcessedAt = nullTime(processedAt)
	return &e, nil
}

// RecordWebhookEvent stores a delivery keyed by its payload hash.
// created is false when the same payload was already recorded; the stored event is returned instead.
func (s *Service) RecordWebhookEvent(ctx context.Context, params store.RecordWebhookParams) (*models.WebhookEvent, bool, error) {
	event := &models.WebhookEvent{
		Id:         uuid.New().String(),
		Hash:       params.Hash,
		Payload:    params.Payload,
		ExternalId: params.ExternalId,
		EventName:  params.EventName,
		Status:     models.WebhookReceived,
		ReceivedAt: params.ReceivedAt,
	}

	result, err := s.db.ExecContext(ctx, queryInsertWebhookEvent, event.Id, event.Hash, event.Payload,
		event.ExternalId, event.EventName, event.Status, "", "", "", event.ReceivedAt, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert webhook event: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		existing, err := scanWebhookEvent(s.db.QueryRowContext(ctx, queryGetWebhookEventByHash, params.Hash))
		if err != nil {
			return nil, false, notFound(err, "webhook event", params.Hash)
		}
		zap.L().Info("Duplicate webhook delivery",
			zap.String("event_id", existing.Id),
			zap.String("status", string(existing.Status)))
		return existing, false, nil
	}

	zap.L().Debug("Webhook event recorded", zap.String("event_id", event.Id), zap.String("external_id", event.ExternalId))
	return event, true, nil
}

func (s *Service) UpdateWebhookEvent(ctx context.Context, params store.WebhookUpdateParams) error {
	_, err := s.db.ExecContext(ctx, queryUpdateWebhookEvent, params.Status, params.DepositId, params.WithdrawalId,
		params.ErrorMessage, params.At, params.EventId)
	if err != nil {
		return fmt.Errorf("failed to update webhook event %s: %w", params.EventId, err)
	}
	return nil
}

func (s *Service) GetWebhookEvent(ctx context.Context, eventId string) (*models.WebhookEvent, error) {
	event, err := scanWebhookEvent(s.db.QueryRowContext(ctx, queryGetWebhookEvent, eventId))
	if err != nil {
		return nil, notFound(err, "webhook event", eventId)
	}
	return event, nil
}

func (s *Service) ListWebhookEventsByStatus(ctx context.Context, status models.WebhookStatus) ([]models.WebhookEvent, error) {
	rows, err := s.db.QueryContext(ctx, queryListWebhookEventsByStatus, status)
	if err != nil {
		return nil, fmt.Errorf("unable to query webhook events: %w", err)
	}
	defer closeRows(rows)

	var events []models.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan webhook event row: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook event rows: %w", err)
	}
	return events, nil
}
