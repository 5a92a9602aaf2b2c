package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/notesbox/internal/telemetry/tracing"
)

const noteColumns = `id, title, content, created_at, updated_at, deleted_at, created_by, updated_by, deleted_by`

type ListParams struct {
	OwnerId        int
	Page           int
	Size           int
	FilterByOwner  bool
	IncludeDeleted bool
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, ownerId int, title, content string) (_ *Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.notes.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	// handlers validate too, but do not trust pre-validated input
	if err := validateTitleAndContent(title, content); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = closeTx(ctx, tx, err)
	}()

	now := time.Now()
	note := &Note{
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: ownerId,
		UpdatedBy: ownerId,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO notes (title, content, created_at, updated_at, created_by, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;`,
		title, content, now, now, ownerId, ownerId,
	).Scan(&note.Id)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("note.id", note.Id))

	return note, nil
}

// GetOne fetches a single note by id, scoped to its owner and to the rows not
// soft-deleted. A miss on any of the three conditions is the same ErrNoteNotFound.
func (r *Repo) GetOne(ctx context.Context, ownerId, noteId int) (_ *Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.notes.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("note.id", noteId))

	note := &Note{}
	err = r.db.QueryRow(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE id = $1 AND created_by = $2 AND deleted_at IS NULL;`,
		noteId, ownerId,
	).Scan(
		&note.Id, &note.Title, &note.Content,
		&note.CreatedAt, &note.UpdatedAt, &note.DeletedAt,
		&note.CreatedBy, &note.UpdatedBy, &note.DeletedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}

	return note, nil
}

// List returns the requested page of notes plus the count of all matching
// rows. Page and count come from the same read-only transaction, so the total
// can not drift from the returned page.
func (r *Repo) List(ctx context.Context, params ListParams) (_ []Note, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.notes.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("size", params.Size))
	span.SetAttributes(attribute.Bool("filter-by-owner", params.FilterByOwner))
	span.SetAttributes(attribute.Bool("include-deleted", params.IncludeDeleted))

	if params.Page < 1 {
		return nil, -1, &ValidationError{Field: "page", Reason: "must be greater than 0"}
	}
	if params.Size < 1 {
		return nil, -1, &ValidationError{Field: "size", Reason: "must be greater than 0"}
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, -1, err
	}
	defer func() {
		err = closeTx(ctx, tx, err)
	}()

	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM notes
			WHERE ($1::boolean IS FALSE OR created_by = $2)
			AND ($3::boolean IS TRUE OR deleted_at IS NULL);`,
		params.FilterByOwner, params.OwnerId, params.IncludeDeleted,
	).Scan(&total)
	if err != nil {
		return nil, -1, fmt.Errorf("count notes: %w", err)
	}

	span.SetAttributes(attribute.Int("count_all", total))

	// the source of truth for ordering is the generated id, ascending,
	// so pages stay stable between requests
	rows, err := tx.Query(ctx, `
		SELECT `+noteColumns+`
		FROM notes
			WHERE ($1::boolean IS FALSE OR created_by = $2)
			AND ($3::boolean IS TRUE OR deleted_at IS NULL)
		ORDER BY id ASC
		LIMIT $4
		OFFSET $5;`,
		params.FilterByOwner, params.OwnerId, params.IncludeDeleted,
		params.Size, (params.Page-1)*params.Size,
	)
	if err != nil {
		return nil, -1, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes, err := rows2notes(rows)
	if err != nil {
		return nil, -1, fmt.Errorf("rows2notes: %w", err)
	}

	return notes, total, nil
}

func (r *Repo) Update(ctx context.Context, ownerId, noteId int, title, content string) (_ *Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.notes.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("note.id", noteId))

	if err := validateTitleAndContent(title, content); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = closeTx(ctx, tx, err)
	}()

	id, err := lockNote(ctx, tx, ownerId, noteId)
	if err != nil {
		return nil, err
	}

	note := &Note{}
	err = tx.QueryRow(ctx, `
		UPDATE notes
		SET title = $1, content = $2, updated_at = $3, updated_by = $4
		WHERE id = $5
		RETURNING `+noteColumns+`;`,
		title, content, time.Now(), ownerId, id,
	).Scan(
		&note.Id, &note.Title, &note.Content,
		&note.CreatedAt, &note.UpdatedAt, &note.DeletedAt,
		&note.CreatedBy, &note.UpdatedBy, &note.DeletedBy,
	)
	if err != nil {
		return nil, err
	}

	return note, nil
}

// SoftDelete marks the note deleted instead of removing the row. The marked
// row drops out of the fused predicate, so a repeated delete (or any later
// read) comes back as ErrNoteNotFound.
func (r *Repo) SoftDelete(ctx context.Context, ownerId, noteId int) (_ *Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.notes.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("note.id", noteId))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = closeTx(ctx, tx, err)
	}()

	id, err := lockNote(ctx, tx, ownerId, noteId)
	if err != nil {
		return nil, err
	}

	note := &Note{}
	err = tx.QueryRow(ctx, `
		UPDATE notes
		SET deleted_at = $1, deleted_by = $2
		WHERE id = $3
		RETURNING `+noteColumns+`;`,
		time.Now(), ownerId, id,
	).Scan(
		&note.Id, &note.Title, &note.Content,
		&note.CreatedAt, &note.UpdatedAt, &note.DeletedAt,
		&note.CreatedBy, &note.UpdatedBy, &note.DeletedBy,
	)
	if err != nil {
		return nil, err
	}

	return note, nil
}

// lockNote locks the target row for the rest of the transaction. It doubles
// as the fused existence / ownership / not-deleted check, so concurrent
// mutations of the same note serialize on the row lock and exactly one wins.
func lockNote(ctx context.Context, tx pgx.Tx, ownerId, noteId int) (int, error) {
	var id int
	err := tx.QueryRow(ctx, `
		SELECT id FROM notes
		WHERE id = $1 AND created_by = $2 AND deleted_at IS NULL
		FOR UPDATE;`,
		noteId, ownerId,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoteNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func closeTx(ctx context.Context, tx pgx.Tx, err error) error {
	if err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}

func rows2notes(rows pgx.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		var note Note
		if err := rows.Scan(
			&note.Id, &note.Title, &note.Content,
			&note.CreatedAt, &note.UpdatedAt, &note.DeletedAt,
			&note.CreatedBy, &note.UpdatedBy, &note.DeletedBy,
		); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if notes == nil {
		notes = make([]Note, 0)
	}

	return notes, nil
}
