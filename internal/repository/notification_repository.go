package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/numbers-lottery/internal/model"
)

// NotificationRepo stores the per-user inbox written by the delivery
// consumer.  (user_id, round_id, kind) is unique, so a redelivered
// message never produces a second row.
type NotificationRepo struct{ DB *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{DB: db} }

// Insert stores n unless an identical intent was stored before.  It
// reports whether a row was written.
func (r *NotificationRepo) Insert(ctx context.Context, n model.Notification) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT IGNORE INTO notifications (user_id, round_id, kind, winning_number, title, body, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		n.UserID, n.RoundID, string(n.Kind), n.WinningNumber, n.Title, n.Body, n.CreatedAt)
	if err != nil {
		return false, translate(err)
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// List returns one page of a user's inbox, newest first, plus the total.
func (r *NotificationRepo) List(ctx context.Context, userID uint64, unreadOnly bool, limit, offset int) ([]model.Notification, int, error) {
	where := "WHERE user_id = ?"
	if unreadOnly {
		where += " AND read_at IS NULL"
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications "+where, userID).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, round_id, kind, winning_number, title, body, created_at, read_at
		 FROM notifications `+where+`
		 ORDER BY id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	out := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n      model.Notification
			kind   string
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.RoundID, &kind, &n.WinningNumber,
			&n.Title, &n.Body, &n.CreatedAt, &readAt); err != nil {
			return nil, 0, err
		}
		n.Kind = model.NotificationKind(kind)
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, total, translate(rows.Err())
}

// MarkRead marks the given notifications read.  Ids that belong to other
// users are ignored.  It returns how many rows changed.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID uint64, ids []uint64, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, at, userID)
	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		placeholders = append(placeholders, "?")
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE notifications SET read_at = ?
		 WHERE user_id = ? AND read_at IS NULL AND id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// MarkAllRead marks every unread notification of the user read.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uint64, at time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL", at, userID)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
