package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// storeErr wraps a driver error, mapping constraint failures and
// context cancellation to their dedicated codes.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewCancelled(op)
	case isUniqueConstraintError(err):
		return errors.NewConflict(fmt.Sprintf("%s: already exists", op))
	case isForeignKeyError(err):
		return errors.NewInvalidRequest(fmt.Sprintf("%s: referenced collection does not exist", op))
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewStoreFailure(op, err)
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// isForeignKeyError checks if the error is a SQLite FOREIGN KEY violation.
func isForeignKeyError(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func toNullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Collections

const collectionColumns = `id, name, emoji, "order", created_at, updated_at`

func scanCollection(s scanner) (*prompt.Collection, error) {
	var c prompt.Collection
	var createdAt, updatedAt int64
	if err := s.Scan(&c.ID, &c.Name, &c.Emoji, &c.Order, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// ListCollections returns every collection ordered by its order value.
func ListCollections(ctx context.Context, q Querier) ([]prompt.Collection, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections ORDER BY "order" ASC, created_at ASC, id ASC`)
	if err != nil {
		return nil, storeErr("list collections", err)
	}
	defer rows.Close()

	out := make([]prompt.Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, storeErr("list collections", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list collections", err)
	}
	return out, nil
}

// GetCollection retrieves a collection by id.
func GetCollection(ctx context.Context, q Querier, id string) (*prompt.Collection, error) {
	row := q.QueryRowContext(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("collection", id)
	}
	if err != nil {
		return nil, storeErr("get collection", err)
	}
	return c, nil
}

// InsertCollection stores a new collection.
func InsertCollection(ctx context.Context, q Querier, c *prompt.Collection) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO collections (`+collectionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Emoji, c.Order, toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	return storeErr("insert collection", err)
}

// UpdateCollection overwrites the mutable fields of an existing collection.
func UpdateCollection(ctx context.Context, q Querier, c *prompt.Collection) error {
	res, err := q.ExecContext(ctx,
		`UPDATE collections SET name = ?, emoji = ?, "order" = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Emoji, c.Order, toMillis(c.UpdatedAt), c.ID)
	if err != nil {
		return storeErr("update collection", err)
	}
	return requireRow(res, "collection", c.ID)
}

// DeleteCollection removes a collection. Missing ids are not an error.
func DeleteCollection(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	return storeErr("delete collection", err)
}

// Tags

func scanTag(s scanner) (*prompt.Tag, error) {
	var t prompt.Tag
	if err := s.Scan(&t.ID, &t.Name, &t.Color); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTags returns every tag ordered by name.
func ListTags(ctx context.Context, q Querier) ([]prompt.Tag, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, color FROM tags ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, storeErr("list tags", err)
	}
	defer rows.Close()

	out := make([]prompt.Tag, 0)
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, storeErr("list tags", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list tags", err)
	}
	return out, nil
}

// GetTag retrieves a tag by id.
func GetTag(ctx context.Context, q Querier, id string) (*prompt.Tag, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, color FROM tags WHERE id = ?`, id)
	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("tag", id)
	}
	if err != nil {
		return nil, storeErr("get tag", err)
	}
	return t, nil
}

// InsertTag stores a new tag. A case-insensitive name clash is a CONFLICT.
func InsertTag(ctx context.Context, q Querier, t *prompt.Tag) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tags (id, name, name_norm, color) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, prompt.FoldTagName(t.Name), t.Color)
	return storeErr("insert tag", err)
}

// UpdateTag overwrites an existing tag's name and color.
func UpdateTag(ctx context.Context, q Querier, t *prompt.Tag) error {
	res, err := q.ExecContext(ctx,
		`UPDATE tags SET name = ?, name_norm = ?, color = ? WHERE id = ?`,
		t.Name, prompt.FoldTagName(t.Name), t.Color, t.ID)
	if err != nil {
		return storeErr("update tag", err)
	}
	return requireRow(res, "tag", t.ID)
}

// DeleteTag removes a tag row. Missing ids are not an error.
func DeleteTag(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	return storeErr("delete tag", err)
}

// Settings

// GetSettings returns the settings row with the given id.
func GetSettings(ctx context.Context, q Querier, id string) (*prompt.Settings, error) {
	var s prompt.Settings
	var theme string
	var collapsed int
	err := q.QueryRowContext(ctx,
		`SELECT id, theme, sidebar_collapsed FROM settings WHERE id = ?`, id).
		Scan(&s.ID, &theme, &collapsed)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("settings", id)
	}
	if err != nil {
		return nil, storeErr("get settings", err)
	}
	s.Theme = prompt.Theme(theme)
	s.SidebarCollapsed = collapsed != 0
	return &s, nil
}

// UpsertSettings writes the settings row, creating it if absent.
func UpsertSettings(ctx context.Context, q Querier, s *prompt.Settings) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (id, theme, sidebar_collapsed) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET theme = excluded.theme, sidebar_collapsed = excluded.sidebar_collapsed`,
		s.ID, string(s.Theme), boolToInt(s.SidebarCollapsed))
	return storeErr("save settings", err)
}

// ClearAll deletes every row of every table, children first.
func ClearAll(ctx context.Context, q Querier) error {
	if err := ClearEntities(ctx, q); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `DELETE FROM settings`)
	return storeErr("clear settings", err)
}

// ClearEntities deletes prompts, collections, and tags, leaving settings in place.
func ClearEntities(ctx context.Context, q Querier) error {
	for _, table := range []string{"prompt_tags", "prompts", "collections", "tags"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return storeErr("clear "+table, err)
		}
	}
	return nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update "+kind, err)
	}
	if n == 0 {
		return errors.NewNotFound(kind, id)
	}
	return nil
}
