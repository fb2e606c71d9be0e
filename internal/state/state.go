// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package state persists the agent's deferred events between dispatches.
package state

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	_ "github.com/mattn/go-sqlite3"
)

var logger = loggo.GetLogger("numaexporter.state")

// Filename is the name of the database file inside the state directory.
const Filename = "agent.db"

const schema = `
CREATE TABLE IF NOT EXISTS deferred_event (
    seq  INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL UNIQUE
);`

// deferredEvent is a row of the deferred_event table.
type deferredEvent struct {
	Seq  int64  `db:"seq"`
	Kind string `db:"kind"`
}

// Store records event kinds whose handling was deferred. A kind is held at
// most once; re-deferring it keeps its original position.
type Store struct {
	raw *sql.DB
	db  *sqlair.DB

	insertStmt *sqlair.Statement
	selectStmt *sqlair.Statement
	deleteStmt *sqlair.Statement
}

// Open opens, creating if necessary, the store in dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	path := filepath.Join(dir, Filename)
	raw, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s", path)
	}
	st := &Store{
		raw: raw,
		db:  sqlair.NewDB(raw),
	}
	if err := st.init(ctx); err != nil {
		_ = raw.Close()
		return nil, errors.Annotatef(err, "initialising %s", path)
	}
	return st, nil
}

func (st *Store) init(ctx context.Context) error {
	createStmt, err := sqlair.Prepare(schema)
	if err != nil {
		return errors.Annotate(err, "preparing schema")
	}
	if err := st.db.Query(ctx, createStmt).Run(); err != nil {
		return errors.Annotate(err, "creating schema")
	}

	if st.insertStmt, err = sqlair.Prepare(`
INSERT INTO deferred_event (kind)
VALUES ($deferredEvent.kind)
ON CONFLICT (kind) DO NOTHING`, deferredEvent{}); err != nil {
		return errors.Annotate(err, "preparing insert deferred event statement")
	}
	if st.selectStmt, err = sqlair.Prepare(`
SELECT &deferredEvent.*
FROM deferred_event
ORDER BY seq`, deferredEvent{}); err != nil {
		return errors.Annotate(err, "preparing select deferred events statement")
	}
	if st.deleteStmt, err = sqlair.Prepare(`
DELETE FROM deferred_event
WHERE kind = $deferredEvent.kind`, deferredEvent{}); err != nil {
		return errors.Annotate(err, "preparing delete deferred event statement")
	}
	return nil
}

// Defer records that kind must be handled again.
func (st *Store) Defer(ctx context.Context, kind string) error {
	if kind == "" {
		return errors.NotValidf("empty event kind")
	}
	if err := st.db.Query(ctx, st.insertStmt, deferredEvent{Kind: kind}).Run(); err != nil {
		return errors.Annotatef(err, "deferring %s", kind)
	}
	logger.Debugf("deferred %s", kind)
	return nil
}

// Deferred returns the deferred event kinds in the order they were first
// deferred.
func (st *Store) Deferred(ctx context.Context) ([]string, error) {
	var rows []deferredEvent
	err := st.db.Query(ctx, st.selectStmt).GetAll(&rows)
	if errors.Is(err, sqlair.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Annotate(err, "retrieving deferred events")
	}
	kinds := make([]string, len(rows))
	for i, row := range rows {
		kinds[i] = row.Kind
	}
	return kinds, nil
}

// Remove forgets a deferred kind. Removing a kind that is not deferred is
// not an error.
func (st *Store) Remove(ctx context.Context, kind string) error {
	if err := st.db.Query(ctx, st.deleteStmt, deferredEvent{Kind: kind}).Run(); err != nil {
		return errors.Annotatef(err, "removing deferred %s", kind)
	}
	return nil
}

// Close closes the underlying database.
func (st *Store) Close() error {
	return errors.Trace(st.raw.Close())
}
