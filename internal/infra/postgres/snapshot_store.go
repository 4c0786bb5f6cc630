package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"drivingschool-console/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SnapshotStore keeps the last fetched collection per resource as JSONB.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

func (s *SnapshotStore) Load(ctx context.Context, resource string) ([]domain.Record, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM snapshots WHERE resource=$1`, resource).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	var records []domain.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return records, true, nil
}

func (s *SnapshotStore) Save(ctx context.Context, resource string, records []domain.Record) error {
	if records == nil {
		records = []domain.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO snapshots (resource, data, saved_at) VALUES ($1, $2::jsonb, now())
ON CONFLICT (resource) DO UPDATE SET data=EXCLUDED.data, saved_at=EXCLUDED.saved_at`, resource, string(data))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
