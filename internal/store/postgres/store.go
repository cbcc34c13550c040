// Package postgres implements store.Store on PostgreSQL via the
// PostgresPool connection pool wrapper, for deployments that want a
// standard networked database instead of the embedded SQLite backend.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver, used only to run migrations

	"github.com/maremma/maremma/internal/merrors"
	"github.com/maremma/maremma/internal/migrations"
	"github.com/maremma/maremma/internal/store"
)

// Store implements store.Store against a PostgresPool.
type Store struct {
	pool *PostgresPool
}

// Open parses a postgres:// DSN, connects a pool, and applies pending
// migrations before returning.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := ConfigFromURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", merrors.ErrConfiguration, err)
	}

	pool := NewPostgresPool(cfg, nil)
	if err := pool.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", merrors.ErrConnectionFailed, err)
	}

	stdDB, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: open migration connection: %v", merrors.ErrConnectionFailed, err)
	}
	defer stdDB.Close()
	if err := migrations.Up(ctx, stdDB, migrations.DialectPostgres); err != nil {
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Health(ctx) }
func (s *Store) Close() error                   { return s.pool.Close() }

func (s *Store) UpsertHost(ctx context.Context, h store.Host, groupNames []string) error {
	cfg, _ := json.Marshal(h.Config)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO host (id, name, hostname, check_kind, config) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name=excluded.name, hostname=excluded.hostname, check_kind=excluded.check_kind, config=excluded.config`,
		h.ID, h.Name, h.Hostname, h.Check, string(cfg))
	if err != nil {
		return wrapSQL("upsert host", err)
	}
	return s.setGroupMembership(ctx, "host_group_members", "host_id", h.ID, groupNames)
}

func (s *Store) UpsertHostGroup(ctx context.Context, g store.HostGroup) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO host_group (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name=excluded.name`, g.ID, g.Name)
	return wrapSQL("upsert host_group", err)
}

func (s *Store) UpsertService(ctx context.Context, svc store.Service, groupNames []string) error {
	extra, _ := json.Marshal(svc.ExtraConfig)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service (id, name, description, type, cron_schedule, extra_config) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name=excluded.name, description=excluded.description, type=excluded.type, cron_schedule=excluded.cron_schedule, extra_config=excluded.extra_config`,
		svc.ID, svc.Name, svc.Description, svc.Type, svc.CronSchedule, string(extra))
	if err != nil {
		return wrapSQL("upsert service", err)
	}
	return s.setGroupMembership(ctx, "service_group_link", "service_id", svc.ID, groupNames)
}

func (s *Store) setGroupMembership(ctx context.Context, table, column string, id uuid.UUID, groupNames []string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, column), id); err != nil {
		return wrapSQL("clear group membership", err)
	}
	for _, name := range groupNames {
		var groupID uuid.UUID
		if err := s.pool.QueryRow(ctx, "SELECT id FROM host_group WHERE name = $1", name).Scan(&groupID); err != nil {
			continue
		}
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s, group_id) VALUES ($1, $2)", table, column), id, groupID); err != nil {
			return wrapSQL("insert group membership", err)
		}
	}
	return nil
}

func (s *Store) ReconcileServiceChecks(ctx context.Context, localHostID, serviceID uuid.UUID, bindLocal bool) error {
	var hostIDs []uuid.UUID
	if bindLocal {
		hostIDs = []uuid.UUID{localHostID}
	} else {
		rows, err := s.pool.Query(ctx, `
			SELECT DISTINCT hgm.host_id FROM host_group_members hgm
			JOIN service_group_link sgl ON sgl.group_id = hgm.group_id
			WHERE sgl.service_id = $1`, serviceID)
		if err != nil {
			return wrapSQL("select implied hosts", err)
		}
		defer rows.Close()
		for rows.Next() {
			var hid uuid.UUID
			if err := rows.Scan(&hid); err != nil {
				return wrapSQL("scan implied host", err)
			}
			hostIDs = append(hostIDs, hid)
		}
	}

	for _, hostID := range hostIDs {
		var exists int
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(1) FROM service_check WHERE host_id = $1 AND service_id = $2", hostID, serviceID).Scan(&exists); err != nil {
			return wrapSQL("check existing service_check", err)
		}
		if exists > 0 {
			continue
		}
		now := time.Now().UTC()
		_, err := s.pool.Exec(ctx, `
			INSERT INTO service_check (id, host_id, service_id, status, last_check, next_check, last_updated)
			VALUES ($1, $2, $3, 'pending', $4, $5, $6)`,
			uuid.New(), hostID, serviceID, time.Unix(0, 0).UTC(), now, now)
		if err != nil {
			return wrapSQL("insert service_check", err)
		}
	}
	return nil
}

func (s *Store) GetHost(ctx context.Context, id uuid.UUID) (store.Host, error) {
	var h store.Host
	var check, cfg string
	err := s.pool.QueryRow(ctx, "SELECT id, name, hostname, check_kind, config FROM host WHERE id = $1", id).
		Scan(&h.ID, &h.Name, &h.Hostname, &check, &cfg)
	if err != nil {
		return store.Host{}, classifyRowErr(err, merrors.ErrHostNotFound, "host", id)
	}
	h.Check = check
	_ = json.Unmarshal([]byte(cfg), &h.Config)
	return h, nil
}

func (s *Store) GetService(ctx context.Context, id uuid.UUID) (store.Service, error) {
	var svc store.Service
	var extra string
	err := s.pool.QueryRow(ctx, "SELECT id, name, description, type, cron_schedule, extra_config FROM service WHERE id = $1", id).
		Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Type, &svc.CronSchedule, &extra)
	if err != nil {
		return store.Service{}, classifyRowErr(err, merrors.ErrServiceNotFound, "service", id)
	}
	_ = json.Unmarshal([]byte(extra), &svc.ExtraConfig)
	return svc, nil
}

func (s *Store) ListHosts(ctx context.Context) ([]store.Host, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, hostname, check_kind, config FROM host ORDER BY name")
	if err != nil {
		return nil, wrapSQL("list host", err)
	}
	defer rows.Close()
	var out []store.Host
	for rows.Next() {
		var h store.Host
		var check, cfg string
		if err := rows.Scan(&h.ID, &h.Name, &h.Hostname, &check, &cfg); err != nil {
			return nil, wrapSQL("scan host", err)
		}
		h.Check = check
		_ = json.Unmarshal([]byte(cfg), &h.Config)
		out = append(out, h)
	}
	return out, nil
}

func (s *Store) ListServices(ctx context.Context) ([]store.Service, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, description, type, cron_schedule, extra_config FROM service ORDER BY name")
	if err != nil {
		return nil, wrapSQL("list service", err)
	}
	defer rows.Close()
	var out []store.Service
	for rows.Next() {
		var svc store.Service
		var extra string
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Type, &svc.CronSchedule, &extra); err != nil {
			return nil, wrapSQL("scan service", err)
		}
		_ = json.Unmarshal([]byte(extra), &svc.ExtraConfig)
		out = append(out, svc)
	}
	return out, nil
}

func (s *Store) GetHistory(ctx context.Context, serviceCheckID uuid.UUID, limit int) ([]store.ServiceCheckHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		"SELECT id, service_check_id, timestamp, status, result_text, time_elapsed_ms FROM service_check_history WHERE service_check_id = $1 ORDER BY timestamp DESC LIMIT $2",
		serviceCheckID, limit)
	if err != nil {
		return nil, wrapSQL("list service_check_history", err)
	}
	defer rows.Close()
	var out []store.ServiceCheckHistory
	for rows.Next() {
		var h store.ServiceCheckHistory
		var status string
		if err := rows.Scan(&h.ID, &h.ServiceCheckID, &h.Timestamp, &status, &h.ResultText, &h.TimeElapsedMS); err != nil {
			return nil, wrapSQL("scan service_check_history", err)
		}
		h.Status = store.CheckStatus(status)
		out = append(out, h)
	}
	return out, nil
}

const serviceCheckCols = "id, host_id, service_id, status, last_check, next_check, last_updated"

func scanServiceCheck(row pgx.Row) (store.ServiceCheck, error) {
	var c store.ServiceCheck
	var status string
	if err := row.Scan(&c.ID, &c.HostID, &c.ServiceID, &status, &c.LastCheck, &c.NextCheck, &c.LastUpdated); err != nil {
		return store.ServiceCheck{}, err
	}
	c.Status = store.CheckStatus(status)
	return c, nil
}

func (s *Store) GetServiceCheck(ctx context.Context, id uuid.UUID) (store.ServiceCheck, error) {
	c, err := scanServiceCheck(s.pool.QueryRow(ctx, "SELECT "+serviceCheckCols+" FROM service_check WHERE id = $1", id))
	if err != nil {
		return store.ServiceCheck{}, classifyRowErr(err, merrors.ErrServiceCheckNotFound, "service_check", id)
	}
	return c, nil
}

func (s *Store) ListServiceChecks(ctx context.Context) ([]store.ServiceCheck, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+serviceCheckCols+" FROM service_check ORDER BY id")
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

func (s *Store) NextServiceCheck(ctx context.Context, now time.Time) (store.ServiceCheck, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+serviceCheckCols+` FROM service_check
		WHERE status NOT IN ('disabled', 'checking')
		AND (status = 'urgent' OR next_check <= $1)
		ORDER BY CASE WHEN status = 'urgent' THEN 0 ELSE 1 END, next_check ASC
		LIMIT 1`, now)
	c, err := scanServiceCheck(row)
	if err != nil {
		return store.ServiceCheck{}, classifyRowErr(err, merrors.ErrServiceCheckNotFound, "runnable service_check", nil)
	}
	return c, nil
}

func (s *Store) ClaimCheck(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := s.pool.Exec(ctx, "UPDATE service_check SET status='checking', last_updated=$1 WHERE id = $2", now, id)
	if err != nil {
		return wrapSQL("claim check", err)
	}
	return requireRowsAffected(tag.RowsAffected(), merrors.ErrServiceCheckNotFound, "service_check", id)
}

func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status store.CheckStatus) error {
	tag, err := s.pool.Exec(ctx, "UPDATE service_check SET status=$1, last_updated=$2 WHERE id = $3", string(status), time.Now().UTC(), id)
	if err != nil {
		return wrapSQL("set status", err)
	}
	return requireRowsAffected(tag.RowsAffected(), merrors.ErrServiceCheckNotFound, "service_check", id)
}

func (s *Store) SetCheckResult(ctx context.Context, id uuid.UUID, status store.CheckStatus, resultText string, elapsed time.Duration, at time.Time, nextCheck time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapSQL("begin tx", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE service_check SET status=$1, last_check=$2, next_check=$3, last_updated=$4 WHERE id = $5`,
		string(status), at, nextCheck, at, id)
	if err != nil {
		return wrapSQL("update service_check", err)
	}
	if err := requireRowsAffected(tag.RowsAffected(), merrors.ErrServiceCheckNotFound, "service_check", id); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO service_check_history (id, service_check_id, timestamp, status, result_text, time_elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), id, at, string(status), resultText, elapsed.Milliseconds())
	if err != nil {
		return wrapSQL("insert history", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) AppendHistory(ctx context.Context, h store.ServiceCheckHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_check_history (id, service_check_id, timestamp, status, result_text, time_elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, h.ServiceCheckID, h.Timestamp, string(h.Status), h.ResultText, h.TimeElapsedMS)
	return wrapSQL("append history", err)
}

func (s *Store) ReapStuckChecks(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE service_check SET status='pending', last_updated=$1 WHERE status='checking' AND last_updated < $2`,
		time.Now().UTC(), olderThan)
	if err != nil {
		return 0, wrapSQL("reap stuck checks", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ReapExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM session WHERE expires_at < $1", now)
	if err != nil {
		return 0, wrapSQL("reap expired sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) TrimHistory(ctx context.Context, maxPerCheck int) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_check_id, COUNT(1) AS n FROM service_check_history
		GROUP BY service_check_id HAVING COUNT(1) > $1
		ORDER BY n DESC LIMIT 10`, maxPerCheck)
	if err != nil {
		return 0, wrapSQL("select oversized history", err)
	}
	var checkIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
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
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM service_check_history WHERE service_check_id = $1 AND id NOT IN (
				SELECT id FROM service_check_history WHERE service_check_id = $1
				ORDER BY timestamp DESC LIMIT $2
			)`, id, maxPerCheck)
		if err != nil {
			return total, wrapSQL("trim history", err)
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

func (s *Store) CreateSession(ctx context.Context, sess store.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session (id, user_id, expires_at, data) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.UserID, sess.ExpiresAt, sess.Data)
	return wrapSQL("create session", err)
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (store.Session, error) {
	var sess store.Session
	err := s.pool.QueryRow(ctx, "SELECT id, user_id, expires_at, data FROM session WHERE id = $1", id).
		Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.Data)
	if err != nil {
		return store.Session{}, classifyRowErr(err, merrors.ErrSQL, "session", id)
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM session WHERE id = $1", id)
	return wrapSQL("delete session", err)
}

func classifyRowErr(err error, sentinel error, kind string, id any) error {
	if err == pgx.ErrNoRows {
		return fmt.Errorf("%w: %s %v", sentinel, kind, id)
	}
	return wrapSQL("query "+kind, err)
}

func requireRowsAffected(n int64, sentinel error, kind string, id any) error {
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
