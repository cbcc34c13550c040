// Package sqlite implements store.Store on top of the embedded, pure
// Go modernc.org/sqlite driver — maremma's default backend, requiring
// no external services and no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/maremma/maremma/internal/merrors"
	"github.com/maremma/maremma/internal/migrations"
	"github.com/maremma/maremma/internal/store"
)

const stuckCheckMinutes = 5

// SQLiteStore implements store.Store over a modernc.org/sqlite
// connection, with WAL mode and foreign keys enabled.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path,
// enables WAL mode and foreign key enforcement, and runs pending
// migrations before returning.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %v", merrors.ErrIO, path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers through one connection

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("%w: enable WAL: %v", merrors.ErrIO, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("%w: enable foreign_keys: %v", merrors.ErrIO, err)
	}

	if err := migrations.Up(ctx, db, migrations.DialectSQLite); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

func (s *SQLiteStore) UpsertHost(ctx context.Context, h store.Host, groupNames []string) error {
	cfg, err := json.Marshal(h.Config)
	if err != nil {
		return fmt.Errorf("%w: marshal host config: %v", merrors.ErrIO, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO host (id, name, hostname, check_kind, config) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, hostname=excluded.hostname, check_kind=excluded.check_kind, config=excluded.config`,
		h.ID.String(), h.Name, h.Hostname, h.Check, string(cfg))
	if err != nil {
		return wrapSQL("upsert host", err)
	}
	return s.setGroupMembership(ctx, "host_group_members", "host_id", h.ID, groupNames)
}

func (s *SQLiteStore) UpsertHostGroup(ctx context.Context, g store.HostGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO host_group (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name`, g.ID.String(), g.Name)
	return wrapSQL("upsert host_group", err)
}

func (s *SQLiteStore) UpsertService(ctx context.Context, svc store.Service, groupNames []string) error {
	extra, err := json.Marshal(svc.ExtraConfig)
	if err != nil {
		return fmt.Errorf("%w: marshal extra_config: %v", merrors.ErrIO, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO service (id, name, description, type, cron_schedule, extra_config) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description, type=excluded.type, cron_schedule=excluded.cron_schedule, extra_config=excluded.extra_config`,
		svc.ID.String(), svc.Name, svc.Description, svc.Type, svc.CronSchedule, string(extra))
	if err != nil {
		return wrapSQL("upsert service", err)
	}
	return s.setGroupMembership(ctx, "service_group_link", "service_id", svc.ID, groupNames)
}

func (s *SQLiteStore) setGroupMembership(ctx context.Context, table, column string, id uuid.UUID, groupNames []string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, column), id.String()); err != nil {
		return wrapSQL("clear group membership", err)
	}
	for _, name := range groupNames {
		var groupID string
		err := s.db.QueryRowContext(ctx, "SELECT id FROM host_group WHERE name = ?", name).Scan(&groupID)
		if err != nil {
			continue // dangling reference already rejected at config validation time
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s, group_id) VALUES (?, ?)", table, column), id.String(), groupID); err != nil {
			return wrapSQL("insert group membership", err)
		}
	}
	return nil
}

func (s *SQLiteStore) ReconcileServiceChecks(ctx context.Context, localHostID, serviceID uuid.UUID, bindLocal bool) error {
	var hostIDs []string
	var err error
	if bindLocal {
		hostIDs = []string{localHostID.String()}
	} else {
		rows, qerr := s.db.QueryContext(ctx, `
			SELECT DISTINCT hgm.host_id FROM host_group_members hgm
			JOIN service_group_link sgl ON sgl.group_id = hgm.group_id
			WHERE sgl.service_id = ?`, serviceID.String())
		if qerr != nil {
			return wrapSQL("select implied hosts", qerr)
		}
		defer rows.Close()
		for rows.Next() {
			var hid string
			if err = rows.Scan(&hid); err != nil {
				return wrapSQL("scan implied host", err)
			}
			hostIDs = append(hostIDs, hid)
		}
	}

	for _, hostID := range hostIDs {
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM service_check WHERE host_id = ? AND service_id = ?", hostID, serviceID.String()).Scan(&exists)
		if err != nil {
			return wrapSQL("check existing service_check", err)
		}
		if exists > 0 {
			continue
		}
		now := time.Now().UTC()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO service_check (id, host_id, service_id, status, last_check, next_check, last_updated)
			VALUES (?, ?, ?, 'pending', ?, ?, ?)`,
			uuid.New().String(), hostID, serviceID.String(), time.Unix(0, 0).UTC(), now, now)
		if err != nil {
			return wrapSQL("insert service_check", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetHost(ctx context.Context, id uuid.UUID) (store.Host, error) {
	var h store.Host
	var idStr, check, cfg string
	err := s.db.QueryRowContext(ctx, "SELECT id, name, hostname, check_kind, config FROM host WHERE id = ?", id.String()).
		Scan(&idStr, &h.Name, &h.Hostname, &check, &cfg)
	if err != nil {
		return store.Host{}, classifyRowErr(err, merrors.ErrHostNotFound, "host", id)
	}
	h.ID, _ = uuid.Parse(idStr)
	h.Check = check
	_ = json.Unmarshal([]byte(cfg), &h.Config)
	return h, nil
}

func (s *SQLiteStore) GetService(ctx context.Context, id uuid.UUID) (store.Service, error) {
	var svc store.Service
	var idStr, extra string
	err := s.db.QueryRowContext(ctx, "SELECT id, name, description, type, cron_schedule, extra_config FROM service WHERE id = ?", id.String()).
		Scan(&idStr, &svc.Name, &svc.Description, &svc.Type, &svc.CronSchedule, &extra)
	if err != nil {
		return store.Service{}, classifyRowErr(err, merrors.ErrServiceNotFound, "service", id)
	}
	svc.ID, _ = uuid.Parse(idStr)
	_ = json.Unmarshal([]byte(extra), &svc.ExtraConfig)
	return svc, nil
}

func (s *SQLiteStore) ListHosts(ctx context.Context) ([]store.Host, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, hostname, check_kind, config FROM host ORDER BY name")
	if err != nil {
		return nil, wrapSQL("list host", err)
	}
	defer rows.Close()
	var out []store.Host
	for rows.Next() {
		var h store.Host
		var idStr, check, cfg string
		if err := rows.Scan(&idStr, &h.Name, &h.Hostname, &check, &cfg); err != nil {
			return nil, wrapSQL("scan host", err)
		}
		h.ID, _ = uuid.Parse(idStr)
		h.Check = check
		_ = json.Unmarshal([]byte(cfg), &h.Config)
		out = append(out, h)
	}
	return out, nil
}

func (s *SQLiteStore) ListServices(ctx context.Context) ([]store.Service, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description, type, cron_schedule, extra_config FROM service ORDER BY name")
	if err != nil {
		return nil, wrapSQL("list service", err)
	}
	defer rows.Close()
	var out []store.Service
	for rows.Next() {
		var svc store.Service
		var idStr, extra string
		if err := rows.Scan(&idStr, &svc.Name, &svc.Description, &svc.Type, &svc.CronSchedule, &extra); err != nil {
			return nil, wrapSQL("scan service", err)
		}
		svc.ID, _ = uuid.Parse(idStr)
		_ = json.Unmarshal([]byte(extra), &svc.ExtraConfig)
		out = append(out, svc)
	}
	return out, nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, serviceCheckID uuid.UUID, limit int) ([]store.ServiceCheckHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, service_check_id, timestamp, status, result_text, time_elapsed_ms FROM service_check_history WHERE service_check_id = ? ORDER BY timestamp DESC LIMIT ?",
		serviceCheckID.String(), limit)
	if err != nil {
		return nil, wrapSQL("list service_check_history", err)
	}
	defer rows.Close()
	var out []store.ServiceCheckHistory
	for rows.Next() {
		var h store.ServiceCheckHistory
		var id, scID, status string
		if err := rows.Scan(&id, &scID, &h.Timestamp, &status, &h.ResultText, &h.TimeElapsedMS); err != nil {
			return nil, wrapSQL("scan service_check_history", err)
		}
		h.ID, _ = uuid.Parse(id)
		h.ServiceCheckID, _ = uuid.Parse(scID)
		h.Status = store.CheckStatus(status)
		out = append(out, h)
	}
	return out, nil
}

func scanServiceCheck(row interface{ Scan(...any) error }) (store.ServiceCheck, error) {
	var c store.ServiceCheck
	var id, hostID, serviceID, status string
	if err := row.Scan(&id, &hostID, &serviceID, &status, &c.LastCheck, &c.NextCheck, &c.LastUpdated); err != nil {
		return store.ServiceCheck{}, err
	}
	c.ID, _ = uuid.Parse(id)
	c.HostID, _ = uuid.Parse(hostID)
	c.ServiceID, _ = uuid.Parse(serviceID)
	c.Status = store.CheckStatus(status)
	return c, nil
}

const serviceCheckCols = "id, host_id, service_id, status, last_check, next_check, last_updated"

func (s *SQLiteStore) GetServiceCheck(ctx context.Context, id uuid.UUID) (store.ServiceCheck, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+serviceCheckCols+" FROM service_check WHERE id = ?", id.String())
	c, err := scanServiceCheck(row)
	if err != nil {
		return store.ServiceCheck{}, classifyRowErr(err, merrors.ErrServiceCheckNotFound, "service_check", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListServiceChecks(ctx context.Context) ([]store.ServiceCheck, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+serviceCheckCols+" FROM service_check ORDER BY id")
	if err != nil {
		return nil, wrapSQL("list service_check", err)
	}
	defer rows.Close()
	var out []store.ServiceCheck
	for rows.Next() {
		c, err := scanServiceCheck(rows)
		if err != nil {
			return nil, wrapSQL("scan service_check", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// NextServiceCheck returns the earliest-due runnable check without
// claiming it; claiming happens via ClaimCheck so the Broker can
// decide whether to actually dispatch it before marking it taken.
func (s *SQLiteStore) NextServiceCheck(ctx context.Context, now time.Time) (store.ServiceCheck, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+serviceCheckCols+` FROM service_check
		WHERE status NOT IN ('disabled', 'checking')
		AND (status = 'urgent' OR next_check <= ?)
		ORDER BY CASE WHEN status = 'urgent' THEN 0 ELSE 1 END, next_check ASC
		LIMIT 1`, now)
	c, err := scanServiceCheck(row)
	if err != nil {
		return store.ServiceCheck{}, classifyRowErr(err, merrors.ErrServiceCheckNotFound, "runnable service_check", nil)
	}
	return c, nil
}

func (s *SQLiteStore) ClaimCheck(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE service_check SET status='checking', last_updated=? WHERE id = ?", now, id.String())
	if err != nil {
		return wrapSQL("claim check", err)
	}
	return requireRowsAffected(res, merrors.ErrServiceCheckNotFound, "service_check", id)
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id uuid.UUID, status store.CheckStatus) error {
	res, err := s.db.ExecContext(ctx, "UPDATE service_check SET status=?, last_updated=? WHERE id = ?", string(status), time.Now().UTC(), id.String())
	if err != nil {
		return wrapSQL("set status", err)
	}
	return requireRowsAffected(res, merrors.ErrServiceCheckNotFound, "service_check", id)
}

func (s *SQLiteStore) SetCheckResult(ctx context.Context, id uuid.UUID, status store.CheckStatus, resultText string, elapsed time.Duration, at time.Time, nextCheck time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQL("begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE service_check SET status=?, last_check=?, next_check=?, last_updated=? WHERE id = ?`,
		string(status), at, nextCheck, at, id.String())
	if err != nil {
		return wrapSQL("update service_check", err)
	}
	if err := requireRowsAffected(res, merrors.ErrServiceCheckNotFound, "service_check", id); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO service_check_history (id, service_check_id, timestamp, status, result_text, time_elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), id.String(), at, string(status), resultText, elapsed.Milliseconds())
	if err != nil {
		return wrapSQL("insert history", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, h store.ServiceCheckHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_check_history (id, service_check_id, timestamp, status, result_text, time_elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID.String(), h.ServiceCheckID.String(), h.Timestamp, string(h.Status), h.ResultText, h.TimeElapsedMS)
	return wrapSQL("append history", err)
}

func (s *SQLiteStore) ReapStuckChecks(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE service_check SET status='pending', last_updated=? WHERE status='checking' AND last_updated < ?`,
		time.Now().UTC(), olderThan)
	if err != nil {
		return 0, wrapSQL("reap stuck checks", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) ReapExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE expires_at < ?", now)
	if err != nil {
		return 0, wrapSQL("reap expired sessions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// TrimHistory finds, per spec, the top checks by history row count and
// trims each to the most recent maxPerCheck rows.
func (s *SQLiteStore) TrimHistory(ctx context.Context, maxPerCheck int) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_check_id, COUNT(1) AS n FROM service_check_history
		GROUP BY service_check_id HAVING n > ?
		ORDER BY n DESC LIMIT 10`, maxPerCheck)
	if err != nil {
		return 0, wrapSQL("select oversized history", err)
	}
	var checkIDs []string
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			rows.Close()
			return 0, wrapSQL("scan oversized history", err)
		}
		checkIDs = append(checkIDs, id)
	}
	rows.Close()

	total := 0
	for _, id := range checkIDs {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM service_check_history WHERE service_check_id = ? AND id NOT IN (
				SELECT id FROM service_check_history WHERE service_check_id = ?
				ORDER BY timestamp DESC LIMIT ?
			)`, id, id, maxPerCheck)
		if err != nil {
			return total, wrapSQL("trim history", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess store.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, user_id, expires_at, data) VALUES (?, ?, ?, ?)`,
		sess.ID.String(), sess.UserID.String(), sess.ExpiresAt, sess.Data)
	return wrapSQL("create session", err)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (store.Session, error) {
	var sess store.Session
	var idStr, userID string
	err := s.db.QueryRowContext(ctx, "SELECT id, user_id, expires_at, data FROM session WHERE id = ?", id.String()).
		Scan(&idStr, &userID, &sess.ExpiresAt, &sess.Data)
	if err != nil {
		return store.Session{}, classifyRowErr(err, merrors.ErrSQL, "session", id)
	}
	sess.ID, _ = uuid.Parse(idStr)
	sess.UserID, _ = uuid.Parse(userID)
	return sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE id = ?", id.String())
	return wrapSQL("delete session", err)
}

func classifyRowErr(err error, sentinel error, kind string, id any) error {
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s %v", sentinel, kind, id)
	}
	return wrapSQL("query "+kind, err)
}

func requireRowsAffected(res sql.Result, sentinel error, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapSQL("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %v", sentinel, kind, id)
	}
	return nil
}

func wrapSQL(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", merrors.ErrSQL, op, err)
}
