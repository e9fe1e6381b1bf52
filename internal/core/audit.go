package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AuditRecorder writes append-only audit records. Every mutating operation
// records inside its own transaction so the audit row commits or rolls back
// with the change it describes.
type AuditRecorder struct{}

func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{}
}

// Record inserts one audit row within the caller's transaction.
// The payload is marshalled to JSONB; nil payloads become empty objects.
func (a *AuditRecorder) Record(ctx context.Context, tx pgx.Tx, scope Scope, action, resourceType string, resourceID int64, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	var requestID *string
	if scope.RequestID != "" {
		requestID = &scope.RequestID
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_log (tenant_id, legal_entity_id, actor_id, action, resource_type, resource_id, payload, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		scope.TenantID, scope.LegalEntityID, scope.ActorID, action, resourceType, resourceID, body, requestID,
	); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
