package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Tag is a qualification label on a lead. One row per (lead, tag type).
type Tag struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	TagType        string
	Reason         string
	RuleID         *uuid.UUID
	SyncedToPixels bool
	PixelSyncAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TagWrite upserts TagType and removes Remove when set.
type TagWrite struct {
	TagType string
	Reason  string
	RuleID  *uuid.UUID
	Remove  string
}

const tagColumns = `id, lead_id, tag_type, tag_reason, rule_id, synced_to_pixels, pixel_sync_at, created_at, updated_at`

func scanTag(row pgx.Row) (Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.LeadID, &t.TagType, &t.Reason, &t.RuleID, &t.SyncedToPixels, &t.PixelSyncAt,
		&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// The sync flag survives a re-tag unless the reason changed.
const upsertTagSQL = `
	INSERT INTO lead_tags (lead_id, tag_type, tag_reason, rule_id)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (lead_id, tag_type) DO UPDATE SET
		tag_reason = EXCLUDED.tag_reason,
		rule_id = EXCLUDED.rule_id,
		synced_to_pixels = CASE WHEN lead_tags.tag_reason IS DISTINCT FROM EXCLUDED.tag_reason
			THEN false ELSE lead_tags.synced_to_pixels END,
		pixel_sync_at = CASE WHEN lead_tags.tag_reason IS DISTINCT FROM EXCLUDED.tag_reason
			THEN NULL ELSE lead_tags.pixel_sync_at END,
		updated_at = now()
	RETURNING ` + tagColumns

// TxHook runs inside a write transaction just before commit. A returned error
// rolls the whole write back.
type TxHook func(ctx context.Context, tx pgx.Tx) error

// ApplyTags writes all tags for a lead in one transaction. A non-nil hook
// joins that transaction. Ownership of the lead must be checked by the caller.
func (r *Repository) ApplyTags(ctx context.Context, leadID uuid.UUID, writes []TagWrite, hook TxHook) ([]Tag, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin apply tags: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]Tag, 0, len(writes))
	for _, w := range writes {
		if w.Remove != "" {
			if _, err := tx.Exec(ctx,
				`DELETE FROM lead_tags WHERE lead_id = $1 AND tag_type = $2`, leadID, w.Remove); err != nil {
				return nil, fmt.Errorf("remove opposing tag: %w", err)
			}
		}
		tag, err := scanTag(tx.QueryRow(ctx, upsertTagSQL, leadID, w.TagType, w.Reason, w.RuleID))
		if err != nil {
			return nil, fmt.Errorf("upsert tag: %w", err)
		}
		out = append(out, tag)
	}

	if hook != nil {
		if err := hook(ctx, tx); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit apply tags: %w", err)
	}
	return out, nil
}

// RemoveTag deletes one tag and reports how many rows went away.
func (r *Repository) RemoveTag(ctx context.Context, userID, leadID uuid.UUID, tagType string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM lead_tags t USING leads l
		WHERE t.lead_id = l.id AND l.user_id = $1 AND t.lead_id = $2 AND t.tag_type = $3`,
		userID, leadID, tagType)
	if err != nil {
		return 0, fmt.Errorf("remove tag: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ListTags(ctx context.Context, userID, leadID uuid.UUID) ([]Tag, error) {
	byLead, err := r.ListTagsForLeads(ctx, userID, []uuid.UUID{leadID})
	if err != nil {
		return nil, err
	}
	if tags, ok := byLead[leadID]; ok {
		return tags, nil
	}
	return []Tag{}, nil
}

func (r *Repository) ListTagsForLeads(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID) (map[uuid.UUID][]Tag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.lead_id, t.tag_type, t.tag_reason, t.rule_id, t.synced_to_pixels, t.pixel_sync_at,
			t.created_at, t.updated_at
		FROM lead_tags t JOIN leads l ON l.id = t.lead_id
		WHERE l.user_id = $1 AND t.lead_id = ANY($2)
		ORDER BY t.created_at ASC`, userID, leadIDs)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Tag, len(leadIDs))
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out[t.LeadID] = append(out[t.LeadID], t)
	}
	return out, rows.Err()
}

// MarkTagsSynced flags tags of tagType on the given leads as pushed to pixels.
func (r *Repository) MarkTagsSynced(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID, tagType string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lead_tags t SET synced_to_pixels = true, pixel_sync_at = $4, updated_at = now()
		FROM leads l
		WHERE t.lead_id = l.id AND l.user_id = $1 AND t.lead_id = ANY($2) AND t.tag_type = $3`,
		userID, leadIDs, tagType, at)
	if err != nil {
		return 0, fmt.Errorf("mark tags synced: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BulkApplyTag writes the same tag on every lead, all or nothing.
func (r *Repository) BulkApplyTag(ctx context.Context, leadIDs []uuid.UUID, w TagWrite) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin bulk tag: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if w.Remove != "" {
		if _, err := tx.Exec(ctx,
			`DELETE FROM lead_tags WHERE lead_id = ANY($1) AND tag_type = $2`, leadIDs, w.Remove); err != nil {
			return 0, fmt.Errorf("remove opposing tags: %w", err)
		}
	}

	batch := &pgx.Batch{}
	for _, id := range leadIDs {
		batch.Queue(upsertTagSQL, id, w.TagType, w.Reason, w.RuleID)
	}
	results := tx.SendBatch(ctx, batch)
	for range leadIDs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("bulk upsert tag: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close bulk tag batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit bulk tag: %w", err)
	}
	return len(leadIDs), nil
}
