package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AllFolders returns the taxonomy in display order.
func (s *Store) AllFolders(ctx context.Context) ([]Folder, error) {
	var out []Folder
	if err := s.db.SelectContext(ctx, &out, `SELECT id, name, description, is_default, sort_order FROM folders ORDER BY sort_order ASC, name ASC`); err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return out, nil
}

func (s *Store) FolderByName(ctx context.Context, name string) (Folder, error) {
	var f Folder
	err := s.db.GetContext(ctx, &f, `SELECT id, name, description, is_default, sort_order FROM folders WHERE name = ? COLLATE NOCASE`, strings.TrimSpace(name))
	if err != nil {
		if isNoRows(err) {
			return Folder{}, fmt.Errorf("folder %q: %w", name, ErrNotFound)
		}
		return Folder{}, err
	}
	return f, nil
}

// CreateFolder adds a custom folder after the last one.
// Names are unique ignoring case.
func (s *Store) CreateFolder(ctx context.Context, name, description string) (Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, ErrInvalidFolder
	}
	f := Folder{ID: uuid.NewString(), Name: name, Description: strings.TrimSpace(description)}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := ensureNameFree(ctx, tx, name, ""); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &f.SortOrder, `SELECT COALESCE(MAX(sort_order), 3) + 1 FROM folders`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO folders(id, name, description, is_default, sort_order) VALUES (?, ?, ?, 0, ?)`,
			f.ID, f.Name, f.Description, f.SortOrder)
		return err
	})
	if err != nil {
		return Folder{}, err
	}
	return f, nil
}

// UpdateFolder changes a custom folder's name and description. A rename moves
// every record under the old name in the same transaction.
func (s *Store) UpdateFolder(ctx context.Context, id, name, description string) (Folder, int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, 0, ErrInvalidFolder
	}
	var (
		f     Folder
		moved int64
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &f, `SELECT id, name, description, is_default, sort_order FROM folders WHERE id = ?`, id); err != nil {
			if isNoRows(err) {
				return fmt.Errorf("folder %s: %w", id, ErrNotFound)
			}
			return err
		}
		if f.IsDefault {
			return ErrDefaultFolder
		}
		if err := ensureNameFree(ctx, tx, name, id); err != nil {
			return err
		}
		if f.Name != name {
			var err error
			if moved, err = renameRefs(ctx, tx, f.Name, name); err != nil {
				return err
			}
		}
		f.Name, f.Description = name, strings.TrimSpace(description)
		_, err := tx.ExecContext(ctx, `UPDATE folders SET name = ?, description = ? WHERE id = ?`, f.Name, f.Description, id)
		return err
	})
	if err != nil {
		return Folder{}, 0, err
	}
	return f, moved, nil
}

// DeleteFolder removes a custom folder together with its records.
func (s *Store) DeleteFolder(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var f Folder
		if err := tx.GetContext(ctx, &f, `SELECT id, name, description, is_default, sort_order FROM folders WHERE id = ?`, id); err != nil {
			if isNoRows(err) {
				return fmt.Errorf("folder %s: %w", id, ErrNotFound)
			}
			return err
		}
		if f.IsDefault {
			return ErrDefaultFolder
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE folder = ?`, f.Name)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
		return err
	})
	return removed, err
}

func ensureNameFree(ctx context.Context, tx *sqlx.Tx, name, exceptID string) error {
	var n int
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM folders WHERE name = ? COLLATE NOCASE AND id <> ?`, name, exceptID); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%q: %w", name, ErrFolderExists)
	}
	return nil
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
