// Package dbconn is the PostgreSQL RPC client the Backup Orchestrator uses
// to drive a backup session: start/stop markers, timeline and recovery
// state, GUC introspection, ptrack change-tracking, replay-LSN polling,
// tablespace discovery, and restore-point creation. One Client holds the
// single long-lived connection a backup session needs — pg_basebackup-style
// sessions rely on START_BACKUP/STOP_BACKUP being issued on the same
// backend, so a pool is the wrong shape here even though the rest of the
// engine may use one for read-only introspection.
package dbconn

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dbbackup/internal/catalog"
	"dbbackup/internal/logger"
	"dbbackup/internal/xerrors"
)

// Client wraps a single pgx.Conn and exposes one Go method per DB-side RPC
// the backup session consumes.
type Client struct {
	conn *pgx.Conn
	log  logger.Logger
}

// Connect dials dsn (pgx keyword/URL format) and returns a ready Client.
func Connect(ctx context.Context, dsn string, log logger.Logger) (*Client, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindProtocol, xerrors.SeverityFatal, err, "connect to PostgreSQL").
			WithRemediation("check host/port/user/password and pg_hba.conf")
	}
	return &Client{conn: conn, log: log}, nil
}

// Close releases the underlying connection. Safe to call once.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

func (c *Client) protoErr(err error, op string) error {
	return xerrors.Wrap(xerrors.KindProtocol, xerrors.SeverityError, err, "RPC "+op)
}

// scalar runs query, scans a single column into dst via parse, and wraps
// every failure path (query, scan, parse) as a KindProtocol error naming op.
func scalar[T any](ctx context.Context, c *Client, op, query string, parse func(string) (T, error), args ...any) (T, error) {
	var zero T
	var raw string
	if err := c.conn.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return zero, c.protoErr(err, op)
	}
	v, err := parse(raw)
	if err != nil {
		return zero, c.protoErr(err, op)
	}
	return v, nil
}

// StartBackup issues the start-backup RPC (pg_backup_start for PG15+,
// pg_start_backup for older servers) and returns the backup start LSN.
// label identifies the session in pg_stat_progress_basebackup; fast
// requests an immediate checkpoint instead of the spread default.
func (c *Client) StartBackup(ctx context.Context, label string, fast bool) (catalog.LSN, error) {
	return scalar(ctx, c, "StartBackup",
		`SELECT pg_backup_start(label := $1, fast := $2)`,
		ParseLSN, label, fast)
}

// SwitchWAL forces the current WAL segment to be archived so the backup
// session's start LSN is guaranteed to fall inside an archived segment.
// Returns the LSN of the new segment boundary.
func (c *Client) SwitchWAL(ctx context.Context) (catalog.LSN, error) {
	return scalar(ctx, c, "SwitchWAL", `SELECT pg_switch_wal()`, ParseLSN)
}

// StopBackup issues the stop-backup RPC and returns the stop LSN together
// with the backup label and any tablespace-map contents the server
// returned (empty outside exclusive-mode servers, which this client never
// uses).
func (c *Client) StopBackup(ctx context.Context) (catalog.LSN, error) {
	return scalar(ctx, c, "StopBackup",
		`SELECT lsn FROM pg_backup_stop(wait_for_archive := true)`, ParseLSN)
}

// CurrentTimeline returns the server's current timeline ID.
func (c *Client) CurrentTimeline(ctx context.Context) (uint32, error) {
	return scalar(ctx, c, "CurrentTimeline",
		`SELECT timeline_id FROM pg_control_checkpoint()`, ParseUint32)
}

// IsInRecovery reports whether the server is a standby/replica.
func (c *Client) IsInRecovery(ctx context.Context) (bool, error) {
	return scalar(ctx, c, "IsInRecovery", `SELECT pg_is_in_recovery()`, ParseBool)
}

// knownGUCs is the fixed set of server settings the backup engine needs to
// decide block size, checksum mode, and ptrack availability.
var knownGUCs = []string{
	"block_size", "wal_block_size", "data_checksums",
	"ptrack_enable", "checkpoint_timeout",
}

// ShowGUC fetches one server setting by name via SHOW, returning its raw
// textual value. Callers that need a typed value (byte-with-unit,
// duration) run it through the matching parser in parse.go.
func (c *Client) ShowGUC(ctx context.Context, name string) (string, error) {
	valid := false
	for _, g := range knownGUCs {
		if g == name {
			valid = true
			break
		}
	}
	if !valid {
		return "", xerrors.New(xerrors.KindConfig, xerrors.SeverityError,
			fmt.Sprintf("ShowGUC: %q is not a recognized setting", name))
	}
	var raw string
	if err := c.conn.QueryRow(ctx, "SHOW "+name).Scan(&raw); err != nil {
		return "", c.protoErr(err, "ShowGUC("+name+")")
	}
	return raw, nil
}

// PtrackVersion returns the installed ptrack extension's version string,
// or "" if ptrack is not installed.
func (c *Client) PtrackVersion(ctx context.Context) (string, error) {
	var version string
	err := c.conn.QueryRow(ctx,
		`SELECT extversion FROM pg_extension WHERE extname = 'ptrack'`).Scan(&version)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", c.protoErr(err, "PtrackVersion")
	}
	return version, nil
}

// PtrackClearDB resets the change-tracking bitmap for one database OID,
// used after a FULL backup makes the prior bitmap moot for that database.
func (c *Client) PtrackClearDB(ctx context.Context, dbOID uint32) error {
	if _, err := c.conn.Exec(ctx, `SELECT ptrack_get_and_clear_db($1, 0::oid)`, dbOID); err != nil {
		return c.protoErr(err, "PtrackClearDB")
	}
	return nil
}

// PtrackClear resets the change-tracking bitmap cluster-wide, used after
// a FULL backup of the whole instance.
func (c *Client) PtrackClear(ctx context.Context) error {
	if _, err := c.conn.Exec(ctx, `SELECT ptrack_get_and_clear(0::oid, 0::oid)`); err != nil {
		return c.protoErr(err, "PtrackClear")
	}
	return nil
}

// PtrackGetAndClearDB atomically fetches and clears the change bitmap for
// one (dbOID, relOID) pair, returning the raw bytea payload.
func (c *Client) PtrackGetAndClearDB(ctx context.Context, dbOID, relOID uint32) ([]byte, error) {
	var raw []byte
	err := c.conn.QueryRow(ctx, `SELECT ptrack_get_and_clear_db($1, $2)`, dbOID, relOID).Scan(&raw)
	if err != nil {
		return nil, c.protoErr(err, "PtrackGetAndClearDB")
	}
	return raw, nil
}

// PtrackGetAndClear is the cluster-wide equivalent of PtrackGetAndClearDB,
// used when the caller tracks changes for one relation across all databases.
func (c *Client) PtrackGetAndClear(ctx context.Context, relOID uint32) ([]byte, error) {
	var raw []byte
	err := c.conn.QueryRow(ctx, `SELECT ptrack_get_and_clear($1, 0::oid)`, relOID).Scan(&raw)
	if err != nil {
		return nil, c.protoErr(err, "PtrackGetAndClear")
	}
	return raw, nil
}

// PtrackGetBlock2 fetches the raw page image ptrack cached for one block,
// the "-2" RPC variant that returns the LSN the page was cached at
// alongside the page bytes so the caller can detect staleness.
func (c *Client) PtrackGetBlock2(ctx context.Context, relOID, forkNum, blockNum uint32) ([]byte, catalog.LSN, error) {
	var raw []byte
	var lsnRaw string
	err := c.conn.QueryRow(ctx,
		`SELECT page, lsn FROM ptrack_get_block_2($1, $2, $3)`, relOID, forkNum, blockNum).
		Scan(&raw, &lsnRaw)
	if err != nil {
		return nil, 0, c.protoErr(err, "PtrackGetBlock2")
	}
	lsn, err := ParseLSN(lsnRaw)
	if err != nil {
		return nil, 0, c.protoErr(err, "PtrackGetBlock2")
	}
	return raw, lsn, nil
}

// PtrackControlLSN returns the LSN at which ptrack tracking was last
// (re)initialized; a PTRACK backup whose parent predates this LSN cannot
// trust the bitmap and must fall back to PAGE mode.
func (c *Client) PtrackControlLSN(ctx context.Context) (catalog.LSN, error) {
	return scalar(ctx, c, "PtrackControlLSN", `SELECT ptrack_control_lsn()`, ParseLSN)
}

// LastReplayedLSN returns the last LSN replayed on a standby; the WAL
// Waiter polls this when backing up from a replica.
func (c *Client) LastReplayedLSN(ctx context.Context) (catalog.LSN, error) {
	return scalar(ctx, c, "LastReplayedLSN", `SELECT pg_last_wal_replay_lsn()`, ParseLSN)
}

// LastReceivedLSN returns the last LSN received (but not necessarily
// replayed) on a standby.
func (c *Client) LastReceivedLSN(ctx context.Context) (catalog.LSN, error) {
	return scalar(ctx, c, "LastReceivedLSN", `SELECT pg_last_wal_receive_lsn()`, ParseLSN)
}

// TablespaceLocation is one row of the tablespace-location listing: the
// tablespace OID, its symlink name under pg_tblspc/, and its absolute
// target path on the DB host.
type TablespaceLocation struct {
	OID      uint32
	Name     string
	Location string
}

// TablespaceLocations lists every non-default tablespace and its on-disk
// target, used to build the external-directory set the Catalog Store packs
// alongside PGDATA.
func (c *Client) TablespaceLocations(ctx context.Context) ([]TablespaceLocation, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT oid, spcname, pg_tablespace_location(oid)
		FROM pg_tablespace
		WHERE spcname NOT IN ('pg_default', 'pg_global')
		  AND pg_tablespace_location(oid) <> ''`)
	if err != nil {
		return nil, c.protoErr(err, "TablespaceLocations")
	}
	defer rows.Close()

	var out []TablespaceLocation
	for rows.Next() {
		var t TablespaceLocation
		if err := rows.Scan(&t.OID, &t.Name, &t.Location); err != nil {
			return nil, c.protoErr(err, "TablespaceLocations")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, c.protoErr(err, "TablespaceLocations")
	}
	return out, nil
}

// CreateRestorePoint creates a named restore point at the current LSN, for
// point-in-time-recovery targets, returning the LSN the point was created at.
func (c *Client) CreateRestorePoint(ctx context.Context, name string) (catalog.LSN, error) {
	return scalar(ctx, c, "CreateRestorePoint",
		`SELECT pg_create_restore_point($1)`, ParseLSN, name)
}

// WithStatementTimeout runs fn with the connection's statement_timeout set
// to d for the duration of the call, restoring the previous value
// afterward. Used around StopBackup, which can legitimately block for a
// long time waiting for WAL archiving and must not inherit a short
// default timeout meant for metadata queries.
func (c *Client) WithStatementTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ms := d.Milliseconds()
	if _, err := c.conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", ms)); err != nil {
		return c.protoErr(err, "set statement_timeout")
	}
	defer func() {
		_, _ = c.conn.Exec(ctx, "SET statement_timeout = 0")
	}()
	return fn(ctx)
}
