package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// KVRepository stores opaque values per namespace in kv_entries.
type KVRepository struct {
	db *sql.DB
}

func NewKVRepository(db *sql.DB) *KVRepository {
	return &KVRepository{db: db}
}

func (r *KVRepository) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(
		ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`,
		namespace,
		key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get kv entry %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (r *KVRepository) Put(ctx context.Context, namespace, key string, value []byte) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO kv_entries (namespace, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		namespace,
		key,
		value,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put kv entry %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (r *KVRepository) Delete(ctx context.Context, namespace, key string) error {
	_, err := r.db.ExecContext(
		ctx,
		`DELETE FROM kv_entries WHERE namespace = ? AND key = ?`,
		namespace,
		key,
	)
	if err != nil {
		return fmt.Errorf("delete kv entry %s/%s: %w", namespace, key, err)
	}
	return nil
}
