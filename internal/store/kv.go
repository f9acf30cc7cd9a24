package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Get returns the value stored under key in collection.
// Returns (nil, false, nil) when the key is absent.
func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if err := validateRecord(collection, key); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.withCollection(ctx, collection, func() error {
		return s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT value FROM %s WHERE key = ?", tableName(collection)),
			key,
		).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Op: "get", Collection: collection, Key: key, Err: err}
	}
	return value, true, nil
}

// Put stores value under key in collection, replacing any previous value.
func (s *Store) Put(ctx context.Context, collection, key string, value []byte) error {
	if err := validateRecord(collection, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte("null")
	}

	err := s.withCollection(ctx, collection, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`
				INSERT INTO %s (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, tableName(collection)), key, value, time.Now().UnixMilli())
			return err
		})
	})
	if err != nil {
		return &Error{Op: "put", Collection: collection, Key: key, Err: err}
	}
	return nil
}

// Delete removes key from collection. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := validateRecord(collection, key); err != nil {
		return err
	}

	err := s.withCollection(ctx, collection, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE key = ?", tableName(collection)),
				key,
			)
			return err
		})
	})
	if err != nil {
		return &Error{Op: "delete", Collection: collection, Key: key, Err: err}
	}
	return nil
}

// ListKeys returns every key of collection in ascending order.
func (s *Store) ListKeys(ctx context.Context, collection string) ([]string, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}

	var keys []string
	err := s.withCollection(ctx, collection, func() error {
		keys = keys[:0]
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf("SELECT key FROM %s ORDER BY key ASC", tableName(collection)),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &Error{Op: "list", Collection: collection, Err: err}
	}
	return keys, nil
}

// GetJSON decodes the value under key into v.
// Returns false when the key is absent; v is left untouched.
func (s *Store) GetJSON(ctx context.Context, collection, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, collection, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func (s *Store) PutJSON(ctx context.Context, collection, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	return s.Put(ctx, collection, key, raw)
}

// withCollection runs op, and if it failed because the collection table is
// missing, upgrades the schema to create it and runs op once more.
func (s *Store) withCollection(ctx context.Context, collection string, op func() error) error {
	err := op()
	if !isMissingTable(err) {
		return err
	}

	if err := s.EnsureCollection(ctx, collection); err != nil {
		return fmt.Errorf("create missing collection: %w", err)
	}
	return op()
}

// inTx runs fn inside its own transaction.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func validateRecord(collection, key string) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: empty key in collection %q", ErrInvalidName, collection)
	}
	return nil
}
