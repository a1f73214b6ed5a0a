package vm

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// store module: persistent key/value pairs in a SQLite file
// ---------------------------------------------------------------------------

// kvStore persists primitive values, CBOR-encoded, in a single table.
type kvStore struct {
	db *sql.DB
}

func openStore(path string) (*kvStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}
	return &kvStore{db: db}, nil
}

func (s *kvStore) put(key string, data []byte) error {
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, data)
	return err
}

func (s *kvStore) get(key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *kvStore) delete(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *kvStore) count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n)
	return n, err
}

func (s *kvStore) Close() error {
	return s.db.Close()
}

func (v *VM) installStore() {
	v.RegisterNative(ModuleStore, "put", 2, func(ctx *CallContext, args []Value) (Value, error) {
		key, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		data, err := MarshalValue(args[1])
		if err != nil {
			return Nil, ctx.TypeError("%v", err)
		}
		if err := ctx.VM().store.put(key, data); err != nil {
			return Nil, err
		}
		return Nil, nil
	})

	v.RegisterNative(ModuleStore, "get", 1, func(ctx *CallContext, args []Value) (Value, error) {
		key, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		data, ok, err := ctx.VM().store.get(key)
		if err != nil || !ok {
			return Nil, err
		}
		val, err := ctx.VM().UnmarshalValue(data)
		if err != nil {
			return Nil, err
		}
		return ctx.Root(val), nil
	})

	v.RegisterNative(ModuleStore, "delete", 1, func(ctx *CallContext, args []Value) (Value, error) {
		key, err := ctx.StringArg(args, 0)
		if err != nil {
			return Nil, err
		}
		deleted, err := ctx.VM().store.delete(key)
		if err != nil {
			return Nil, err
		}
		return Bool(deleted), nil
	})

	v.RegisterNative(ModuleStore, "count", 0, func(ctx *CallContext, args []Value) (Value, error) {
		n, err := ctx.VM().store.count()
		if err != nil {
			return Nil, err
		}
		return Int(n), nil
	})
}
