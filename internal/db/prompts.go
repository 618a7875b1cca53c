package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
)

const promptColumns = `id, title, template, description, tags_json, collection_id,
	is_favorite, copy_count, last_copied_at, created_at, updated_at`

func scanPrompt(s scanner) (*prompt.Prompt, error) {
	var p prompt.Prompt
	var tagsJSON string
	var collectionID sql.NullString
	var isFavorite int
	var lastCopiedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(&p.ID, &p.Title, &p.Template, &p.Description, &tagsJSON, &collectionID,
		&isFavorite, &p.CopyCount, &lastCopiedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.Tags = []string{}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return nil, err
		}
	}
	p.CollectionID = fromNullString(collectionID)
	p.IsFavorite = isFavorite != 0
	p.LastCopiedAt = fromNullMillis(lastCopiedAt)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(data), nil
}

// ListPrompts returns every prompt, newest first.
func ListPrompts(ctx context.Context, q Querier) ([]prompt.Prompt, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+promptColumns+` FROM prompts ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, storeErr("list prompts", err)
	}
	defer rows.Close()

	out := make([]prompt.Prompt, 0)
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, storeErr("list prompts", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list prompts", err)
	}
	return out, nil
}

// GetPrompt retrieves a prompt by id.
func GetPrompt(ctx context.Context, q Querier, id string) (*prompt.Prompt, error) {
	row := q.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id)
	p, err := scanPrompt(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("prompt", id)
	}
	if err != nil {
		return nil, storeErr("get prompt", err)
	}
	return p, nil
}

// InsertPrompt stores a new prompt and indexes its tags.
func InsertPrompt(ctx context.Context, q Querier, p *prompt.Prompt) error {
	tagsJSON, err := marshalTags(p.Tags)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO prompts (`+promptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Template, p.Description, tagsJSON, toNullString(p.CollectionID),
		boolToInt(p.IsFavorite), p.CopyCount, toNullMillis(p.LastCopiedAt),
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return storeErr("insert prompt", err)
	}
	return indexTags(ctx, q, p.ID, p.Tags)
}

// UpdatePrompt overwrites every mutable field of an existing prompt.
func UpdatePrompt(ctx context.Context, q Querier, p *prompt.Prompt) error {
	tagsJSON, err := marshalTags(p.Tags)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE prompts SET title = ?, template = ?, description = ?, tags_json = ?,
			collection_id = ?, is_favorite = ?, copy_count = ?, last_copied_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Template, p.Description, tagsJSON, toNullString(p.CollectionID),
		boolToInt(p.IsFavorite), p.CopyCount, toNullMillis(p.LastCopiedAt), toMillis(p.UpdatedAt),
		p.ID)
	if err != nil {
		return storeErr("update prompt", err)
	}
	if err := requireRow(res, "prompt", p.ID); err != nil {
		return err
	}
	return indexTags(ctx, q, p.ID, p.Tags)
}

// SetPromptTags replaces a prompt's tag list without touching updated_at.
func SetPromptTags(ctx context.Context, q Querier, id string, tags []string) error {
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `UPDATE prompts SET tags_json = ? WHERE id = ?`, tagsJSON, id); err != nil {
		return storeErr("update prompt tags", err)
	}
	return indexTags(ctx, q, id, tags)
}

// DeletePrompt removes a prompt. Missing ids are not an error.
func DeletePrompt(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id)
	return storeErr("delete prompt", err)
}

// ClearCollectionRefs moves every prompt in a collection to uncategorized.
// Returns the number of prompts reassigned.
func ClearCollectionRefs(ctx context.Context, q Querier, collectionID string) (int64, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE prompts SET collection_id = NULL WHERE collection_id = ?`, collectionID)
	if err != nil {
		return 0, storeErr("reassign prompts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("reassign prompts", err)
	}
	return n, nil
}

// ListPromptIDsByTag returns the ids of prompts whose tag list contains name
// (case-insensitive), using the prompt_tags index.
func ListPromptIDsByTag(ctx context.Context, q Querier, name string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT prompt_id FROM prompt_tags WHERE tag_norm = ? ORDER BY prompt_id`,
		prompt.FoldTagName(name))
	if err != nil {
		return nil, storeErr("list prompts by tag", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("list prompts by tag", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list prompts by tag", err)
	}
	return ids, nil
}

// indexTags rewrites the prompt_tags rows for one prompt.
func indexTags(ctx context.Context, q Querier, promptID string, tags []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM prompt_tags WHERE prompt_id = ?`, promptID); err != nil {
		return storeErr("index prompt tags", err)
	}
	for i, t := range tags {
		_, err := q.ExecContext(ctx,
			`INSERT INTO prompt_tags (prompt_id, position, tag_norm) VALUES (?, ?, ?)`,
			promptID, i, prompt.FoldTagName(t))
		if err != nil {
			return storeErr("index prompt tags", err)
		}
	}
	return nil
}
