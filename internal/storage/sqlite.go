package storage

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"lottery_bot/internal/model"
	"lottery_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const activityColumns = `id, owner_id, name, start_time, end_time, scope, status, checked, prizes, conditions, created_at`

const userColumns = `id, activity_id, user_id, user_name, full_name, condition_status, winning_status, winning_content, prize_level, created_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Open returns a configured handle to the database at dsn without touching the schema.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite serializes writers, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

// DB exposes the underlying handle for maintenance commands.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateActivity inserts a new activity and populates its ID and CreatedAt.
// Status defaults to pending when unset.
func (s *SQLite) CreateActivity(ctx context.Context, a *model.Activity) error {
	if a.Status == 0 {
		a.Status = model.StatusPending
	}
	prizes, err := json.Marshal(nonNil(a.Prizes))
	if err != nil {
		return fmt.Errorf("encode prizes: %w", err)
	}
	conditions, err := json.Marshal(nonNil(a.Conditions))
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (owner_id, name, start_time, end_time, scope, status, checked, prizes, conditions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OwnerID, a.Name, formatTime(a.StartTime), formatTime(a.EndTime), string(a.Scope),
		int(a.Status), boolToInt(a.Checked), string(prizes), string(conditions), now,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetActivity returns a single activity with its participants.
func (s *SQLite) GetActivity(ctx context.Context, id int64) (*model.Activity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	users, err := s.listUsers(ctx, `WHERE activity_id = ?`, id)
	if err != nil {
		return nil, err
	}
	a.Users = users[id]
	return a, nil
}

// ListNonTerminalActivities returns every pending or active activity with its participants.
func (s *SQLite) ListNonTerminalActivities(ctx context.Context) ([]model.Activity, error) {
	return s.listActivities(ctx, model.StatusPending, model.StatusActive)
}

// ListActiveActivities returns activities currently accepting participants.
func (s *SQLite) ListActiveActivities(ctx context.Context) ([]model.Activity, error) {
	return s.listActivities(ctx, model.StatusActive)
}

func (s *SQLite) listActivities(ctx context.Context, statuses ...model.Status) ([]model.Activity, error) {
	in, args := statusIn(statuses)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE status IN (`+in+`) ORDER BY id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		activities = append(activities, *a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(activities) == 0 {
		return nil, nil
	}

	users, err := s.listUsers(ctx,
		`WHERE activity_id IN (SELECT id FROM activities WHERE status IN (`+in+`))`, args...,
	)
	if err != nil {
		return nil, err
	}
	for i := range activities {
		activities[i].Users = users[activities[i].ID]
	}
	return activities, nil
}

// SetStatus moves a non-terminal activity to status.
// Terminal activities are never changed and pending is never re-entered.
func (s *SQLite) SetStatus(ctx context.Context, id int64, status model.Status) error {
	if status == model.StatusPending {
		return fmt.Errorf("set status %d: cannot return to %s", id, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE activities SET status = ? WHERE id = ? AND status IN (?, ?)`,
		int(status), id, int(model.StatusPending), int(model.StatusActive),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current int
	err = s.db.QueryRowContext(ctx, `SELECT status FROM activities WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	return fmt.Errorf("activity %d is %s: %w", id, model.Status(current), ErrTerminal)
}

// MarkChecked sets the start-notification flag. It never clears it.
func (s *SQLite) MarkChecked(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE activities SET checked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	return nil
}

// AddParticipant records that a user joined an activity. Joining twice keeps the
// existing row; u is populated from the stored record either way.
func (s *SQLite) AddParticipant(ctx context.Context, u *model.ActivityUser) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_users (activity_id, user_id, user_name, full_name, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (activity_id, user_id) DO UPDATE SET user_name = excluded.user_name, full_name = excluded.full_name`,
		u.ActivityID, u.UserID, u.UserName, u.FullName, now,
	)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	stored, err := s.GetParticipant(ctx, u.ActivityID, u.UserID)
	if err != nil {
		return err
	}
	*u = *stored
	return nil
}

// GetParticipant returns the participation record of a user in an activity.
func (s *SQLite) GetParticipant(ctx context.Context, activityID, userID int64) (*model.ActivityUser, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM activity_users WHERE activity_id = ? AND user_id = ?`,
		activityID, userID,
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("participant %d in activity %d: %w", userID, activityID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserConditionFlag overwrites the aggregate condition result of a participant.
func (s *SQLite) SetUserConditionFlag(ctx context.Context, activityID, userID int64, passed bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE activity_users SET condition_status = ? WHERE activity_id = ? AND user_id = ?`,
		boolToInt(passed), activityID, userID,
	)
	if err != nil {
		return fmt.Errorf("update condition status: %w", err)
	}
	return nil
}

// SetUserPrize marks a participation row as a winner of the given tier.
func (s *SQLite) SetUserPrize(ctx context.Context, rowID int64, content string, level int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE activity_users SET winning_status = 1, winning_content = ?, prize_level = ? WHERE id = ?`,
		content, level, rowID,
	)
	if err != nil {
		return fmt.Errorf("update prize: %w", err)
	}
	return nil
}

// ListWinners returns the winners of an activity ordered by prize level.
func (s *SQLite) ListWinners(ctx context.Context, activityID int64) ([]model.ActivityUser, error) {
	users, err := s.listUsers(ctx, `WHERE activity_id = ? AND winning_status = 1`, activityID)
	if err != nil {
		return nil, err
	}
	winners := users[activityID]
	// listUsers orders by id; stable sort keeps draw order within a level.
	slices.SortStableFunc(winners, func(x, y model.ActivityUser) int {
		return cmp.Compare(x.PrizeLevel, y.PrizeLevel)
	})
	return winners, nil
}

// CreateGroup registers a chat for an owner together with its tags.
func (s *SQLite) CreateGroup(ctx context.Context, g *model.Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO chat_groups (owner_id, chat_id, title, is_active) VALUES (?, ?, ?, ?)`,
		g.OwnerID, g.ChatID, g.Title, boolToInt(g.IsActive),
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	for _, tag := range g.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_tags (group_id, tag) VALUES (?, ?)`, id, tag,
		); err != nil {
			return fmt.Errorf("insert group tag: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	g.ID = id
	return nil
}

// ResolveScopeTargets returns the chat ids of the owner's active groups carrying tag.
func (s *SQLite) ResolveScopeTargets(ctx context.Context, tag string, ownerID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT g.chat_id
		 FROM chat_groups g JOIN group_tags t ON t.group_id = g.id
		 WHERE t.tag = ? AND g.owner_id = ? AND g.is_active = 1
		 ORDER BY g.chat_id`,
		tag, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query groups by tag: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordMessage stores that a user sent a message in a chat.
func (s *SQLite) RecordMessage(ctx context.Context, m model.ChatMessage) error {
	at := m.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (chat_id, user_id, created_at) VALUES (?, ?, ?)`,
		m.ChatID, m.UserID, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// CountUserMessages counts a user's messages in a chat strictly between from and to.
func (s *SQLite) CountUserMessages(ctx context.Context, userID, chatID int64, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages
		 WHERE user_id = ? AND chat_id = ? AND created_at > ? AND created_at < ?`,
		userID, chatID, formatTime(from), formatTime(to),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// AddBotFollower records that a user started the bot.
func (s *SQLite) AddBotFollower(ctx context.Context, botID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO bot_followers (bot_id, user_id, created_at) VALUES (?, ?, ?)`,
		botID, userID, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert follower: %w", err)
	}
	return nil
}

// IsBotFollower checks whether a user has started the given bot.
func (s *SQLite) IsBotFollower(ctx context.Context, botID, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bot_followers WHERE bot_id = ? AND user_id = ?`, botID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check follower: %w", err)
	}
	return count > 0, nil
}

func (s *SQLite) listUsers(ctx context.Context, where string, args ...any) (map[int64][]model.ActivityUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM activity_users `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]model.ActivityUser)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ActivityID] = append(out[u.ActivityID], u)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func statusIn(statuses []model.Status) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args[i] = int(st)
	}
	return strings.Join(marks, ", "), args
}

type scannable interface {
	Scan(dest ...any) error
}

func scanActivity(row scannable) (*model.Activity, error) {
	var a model.Activity
	var start, end, scope, prizes, conditions, created string
	var status, checked int
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &start, &end, &scope, &status, &checked, &prizes, &conditions, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	a.StartTime, _ = time.Parse(timeLayout, start)
	a.EndTime, _ = time.Parse(timeLayout, end)
	a.CreatedAt, _ = time.Parse(timeLayout, created)
	a.Scope = model.Scope(scope)
	a.Status = model.Status(status)
	a.Checked = checked == 1
	if err := json.Unmarshal([]byte(prizes), &a.Prizes); err != nil {
		return nil, fmt.Errorf("decode prizes of activity %d: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(conditions), &a.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions of activity %d: %w", a.ID, err)
	}
	return &a, nil
}

func scanUser(row scannable) (model.ActivityUser, error) {
	var u model.ActivityUser
	var condition sql.NullInt64
	var winner int
	var created string
	err := row.Scan(&u.ID, &u.ActivityID, &u.UserID, &u.UserName, &u.FullName, &condition,
		&winner, &u.WinningContent, &u.PrizeLevel, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, err
		}
		return u, fmt.Errorf("scan participant: %w", err)
	}
	switch {
	case !condition.Valid:
		u.ConditionState = model.ConditionPending
	case condition.Int64 == 1:
		u.ConditionState = model.ConditionPassed
	default:
		u.ConditionState = model.ConditionFailed
	}
	u.Winner = winner == 1
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return u, nil
}
