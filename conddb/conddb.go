// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb persists the fgfeedback channel/device registry to a
// MySQL database, so a registered (socket, fgNumber, threshold, timeout)
// tuple survives a daemon restart instead of requiring a fresh SCAN.
//
// Same sql.Open/dsn/ping pattern and context-bounded query style used
// throughout this codebase's database access, applied to a registry
// table instead of ASIC/detector configuration.
package conddb // import "github.com/gsi-scu/fgctl/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const host = "localhost"

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to persist and reload the fgfeedback
// channel registry.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to dbname and verifies it is reachable.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	if err := ping(db, dbname); err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.db.Close()
}

// ChannelRegistration is one persisted fgfeedback registration, keyed by
// (Socket, FgNumber).
type ChannelRegistration struct {
	Socket    string // fgchannel.Socket.String(), the stable textual key
	FgNumber  uint32
	Threshold int32
	TimeoutNS uint64
}

// SaveChannel upserts one registration, so re-registering the same
// (socket, fgNumber) pair after a restart updates its throttle settings
// instead of erroring as the in-memory registry does.
func (db *DB) SaveChannel(ctx context.Context, reg ChannelRegistration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(ctx,
		`
INSERT INTO fg_channels (socket, fg_number, threshold, timeout_ns)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE threshold=VALUES(threshold), timeout_ns=VALUES(timeout_ns)
`,
		reg.Socket, reg.FgNumber, reg.Threshold, reg.TimeoutNS,
	)
	if err != nil {
		return fmt.Errorf("conddb: could not save channel registration: %w", err)
	}
	return nil
}

// DeleteChannel removes a persisted registration.
func (db *DB) DeleteChannel(ctx context.Context, socket string, fgNumber uint32) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(ctx,
		"DELETE FROM fg_channels WHERE socket=? AND fg_number=?",
		socket, fgNumber,
	)
	if err != nil {
		return fmt.Errorf("conddb: could not delete channel registration: %w", err)
	}
	return nil
}

// LoadChannels returns every persisted registration, for replay into a
// fresh fgfeedback.Administration at daemon startup.
func (db *DB) LoadChannels(ctx context.Context) ([]ChannelRegistration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(ctx,
		"SELECT socket, fg_number, threshold, timeout_ns FROM fg_channels",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query channel registrations: %w", err)
	}
	defer rows.Close()

	var regs []ChannelRegistration
	for rows.Next() {
		var r ChannelRegistration
		if err := rows.Scan(&r.Socket, &r.FgNumber, &r.Threshold, &r.TimeoutNS); err != nil {
			return nil, fmt.Errorf("conddb: could not scan channel registration: %w", err)
		}
		regs = append(regs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for channel registrations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while loading channel registrations: %w", err)
	}

	return regs, nil
}
