package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"contestalert/internal/contest"
	logx "contestalert/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ReplaceContests(ctx context.Context, cs []contest.Contest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contests`); err != nil {
		return err
	}
	// Primary key (platform, start_time) enforces the dedup invariant;
	// OR IGNORE makes the first occurrence win.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO contests(platform, name, start_time, duration) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range cs {
		if _, err := stmt.ExecContext(ctx, string(c.Platform), c.Name, c.StartTime, c.Duration); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListContests(ctx context.Context) ([]contest.Contest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, name, start_time, duration FROM contests ORDER BY start_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contest.Contest
	for rows.Next() {
		var c contest.Contest
		var platform string
		if err := rows.Scan(&platform, &c.Name, &c.StartTime, &c.Duration); err != nil {
			return nil, err
		}
		c.Platform = contest.Platform(platform)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertUser(ctx context.Context, u contest.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, name, email, pref_leetcode, pref_cf_div1, pref_cf_div3, pref_cf_div4)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name,
		   email=excluded.email,
		   pref_leetcode=excluded.pref_leetcode,
		   pref_cf_div1=excluded.pref_cf_div1,
		   pref_cf_div3=excluded.pref_cf_div3,
		   pref_cf_div4=excluded.pref_cf_div4`,
		u.ID, u.Name, u.Email,
		boolInt(u.Preferences.LeetCode),
		boolInt(u.Preferences.Codeforces.Div1),
		boolInt(u.Preferences.Codeforces.Div3),
		boolInt(u.Preferences.Codeforces.Div4),
	)
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, id string) (contest.User, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, pref_leetcode, pref_cf_div1, pref_cf_div3, pref_cf_div4
		 FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contest.User{}, false, nil
	}
	if err != nil {
		return contest.User{}, false, err
	}
	return u, true, nil
}

func (s *sqliteStore) UpdatePreferences(ctx context.Context, id string, p contest.Preferences) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET pref_leetcode=?, pref_cf_div1=?, pref_cf_div3=?, pref_cf_div4=? WHERE id=?`,
		boolInt(p.LeetCode), boolInt(p.Codeforces.Div1), boolInt(p.Codeforces.Div3), boolInt(p.Codeforces.Div4), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *sqliteStore) UsersForCategory(ctx context.Context, platform contest.Platform) ([]contest.User, error) {
	var where string
	switch platform {
	case contest.PlatformLeetCode:
		where = `pref_leetcode = 1`
	case contest.PlatformCodeforces:
		where = `(pref_cf_div1 = 1 OR pref_cf_div3 = 1 OR pref_cf_div4 = 1)`
	default:
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, pref_leetcode, pref_cf_div1, pref_cf_div3, pref_cf_div4
		 FROM users WHERE `+where+` ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contest.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (contest.User, error) {
	var u contest.User
	var lc, d1, d3, d4 int
	if err := r.Scan(&u.ID, &u.Name, &u.Email, &lc, &d1, &d3, &d4); err != nil {
		return contest.User{}, err
	}
	u.Preferences.LeetCode = lc != 0
	u.Preferences.Codeforces = contest.CodeforcesPrefs{Div1: d1 != 0, Div3: d3 != 0, Div4: d4 != 0}
	return u, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
