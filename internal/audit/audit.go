// Package audit records admin actions in the append-only admin_audit_logs table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	ActionResolveTopic  = "ONTOLOGY_RESOLVE_TOPIC"
	ActionTaxonomySeed  = "TAXONOMY_SEED"
	defaultActionMode   = "UNSPECIFIED"
	maxAffectedIDsInLog = 5000
)

var ErrInvalidEntry = errors.New("invalid audit entry")

type Entry struct {
	AdminUserID int64          `json:"admin_user_id"`
	ActionType  string         `json:"action_type"`
	ActionMode  string         `json:"action_mode"`
	AffectedIDs []int64        `json:"affected_ids"`
	Success     bool           `json:"success"`
	ResultCount int            `json:"result_count"`
	Metadata    map[string]any `json:"metadata"`
}

// Execer is satisfied by *sql.DB and *sql.Tx. Passing the caller's *sql.Tx
// makes the audit row part of the mutation it documents.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Writer is the sink used by services that must audit inside their own unit of work.
type Writer interface {
	Write(ctx context.Context, e Entry) error
}

type SQLWriter struct {
	ex Execer
}

func NewSQLWriter(ex Execer) *SQLWriter {
	return &SQLWriter{ex: ex}
}

func (w *SQLWriter) Write(ctx context.Context, e Entry) error {
	return Write(ctx, w.ex, e)
}

func Write(ctx context.Context, ex Execer, e Entry) error {
	if err := e.normalize(); err != nil {
		return err
	}

	ids := e.AffectedIDs
	if len(ids) > maxAffectedIDsInLog {
		ids = ids[:maxAffectedIDsInLog]
		e.Metadata["affected_ids_truncated"] = true
	}
	idsRaw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal affected ids: %w", err)
	}
	metaRaw, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO admin_audit_logs (
			admin_user_id, action_type, action_mode, affected_ids,
			success, result_count, metadata, created_at
		) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7::jsonb, now())
	`, e.AdminUserID, e.ActionType, e.ActionMode, string(idsRaw), e.Success, e.ResultCount, string(metaRaw))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (e *Entry) normalize() error {
	e.ActionType = strings.TrimSpace(e.ActionType)
	e.ActionMode = strings.TrimSpace(e.ActionMode)
	if e.AdminUserID <= 0 || e.ActionType == "" {
		return ErrInvalidEntry
	}
	if e.ActionMode == "" {
		e.ActionMode = defaultActionMode
	}
	if e.AffectedIDs == nil {
		e.AffectedIDs = []int64{}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return nil
}
