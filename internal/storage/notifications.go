package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"notifai/internal/classifier/priority"
)

// notificationRow mirrors the notifications table; times are unix millis.
type notificationRow struct {
	ID           string `db:"id"`
	Package      string `db:"package"`
	AppName      string `db:"app_name"`
	Title        string `db:"title"`
	Body         string `db:"body"`
	ArrivedAt    int64  `db:"arrived_at"`
	Folder       string `db:"folder"`
	Priority     int    `db:"priority"`
	IsRead       bool   `db:"is_read"`
	ProcessingMS int64  `db:"processing_ms"`
	Delivered    bool   `db:"delivered"`
}

func (r notificationRow) model() Notification {
	return Notification{
		ID:             r.ID,
		Package:        r.Package,
		AppName:        r.AppName,
		Title:          r.Title,
		Body:           r.Body,
		ArrivedAt:      time.UnixMilli(r.ArrivedAt),
		Folder:         r.Folder,
		Priority:       priority.Coerce(r.Priority),
		Read:           r.IsRead,
		ProcessingTime: time.Duration(r.ProcessingMS) * time.Millisecond,
		Delivered:      r.Delivered,
	}
}

func rowsToModels(rows []notificationRow) []Notification {
	out := make([]Notification, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}

const notificationColumns = `id, package, app_name, title, body, arrived_at, folder, priority, is_read, processing_ms, delivered`

// Insert stores n. The priority is coerced onto the tier set first.
func (s *Store) Insert(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("notification id must not be empty")
	}
	if n.ArrivedAt.IsZero() {
		n.ArrivedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Package, n.AppName, n.Title, n.Body, n.ArrivedAt.UnixMilli(),
		n.Folder, int(priority.Coerce(int(n.Priority))), n.Read, n.ProcessingTime.Milliseconds(), n.Delivered,
	)
	if err != nil {
		return fmt.Errorf("inserting notification %s: %w", n.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (Notification, error) {
	var r notificationRow
	err := s.db.GetContext(ctx, &r, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
		}
		return Notification{}, err
	}
	return r.model(), nil
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkDelivered flags every id as delivered. Unknown ids are ignored.
func (s *Store) MarkDelivered(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE notifications SET delivered = 1 WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("marking delivered: %w", err)
	}
	return nil
}

// FetchUndeliveredMedium returns medium-priority records awaiting batch
// delivery, oldest arrival first.
func (s *Store) FetchUndeliveredMedium(ctx context.Context) ([]Notification, error) {
	return s.fetchUndelivered(ctx, priority.Medium)
}

// FetchUndeliveredHigh returns high-priority records whose immediate
// delivery did not go through, oldest arrival first.
func (s *Store) FetchUndeliveredHigh(ctx context.Context) ([]Notification, error) {
	return s.fetchUndelivered(ctx, priority.High)
}

func (s *Store) fetchUndelivered(ctx context.Context, p priority.Tier) ([]Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE priority = ? AND delivered = 0
		ORDER BY arrived_at ASC, id ASC`, int(p))
	if err != nil {
		return nil, fmt.Errorf("fetching undelivered: %w", err)
	}
	return rowsToModels(rows), nil
}

// ListNotifications returns records newest first.
func (s *Store) ListNotifications(ctx context.Context, f ListFilter) ([]Notification, error) {
	var (
		conds []string
		args  []any
	)
	if f.Folder != "" {
		conds = append(conds, "folder = ?")
		args = append(args, f.Folder)
	}
	if f.UnreadOnly {
		conds = append(conds, "is_read = 0")
	}
	q := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY arrived_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return rowsToModels(rows), nil
}

// FolderCounts returns the number of records per folder label.
func (s *Store) FolderCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Folder string `db:"folder"`
		Count  int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT folder, COUNT(*) AS count FROM notifications GROUP BY folder`); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Folder] = r.Count
	}
	return out, nil
}

// DeleteOlderThan removes records that arrived before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE arrived_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning notifications: %w", err)
	}
	return res.RowsAffected()
}

// RenameFolderReferences moves every record labeled oldName to newName in
// one transaction and returns the number of records moved.
func (s *Store) RenameFolderReferences(ctx context.Context, oldName, newName string) (int64, error) {
	var moved int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		moved, err = renameRefs(ctx, tx, oldName, newName)
		return err
	})
	return moved, err
}

func renameRefs(ctx context.Context, tx *sqlx.Tx, oldName, newName string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE notifications SET folder = ? WHERE folder = ?`, newName, oldName)
	if err != nil {
		return 0, fmt.Errorf("renaming folder references: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
