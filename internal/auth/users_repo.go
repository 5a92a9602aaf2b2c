package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/notesbox/internal/telemetry/tracing"
	"github.com/2beens/notesbox/pkg"
)

type UsersRepo struct {
	db *pgxpool.Pool
}

func NewUsersRepo(db *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{
		db: db,
	}
}

func (r *UsersRepo) Create(ctx context.Context, username, passwordHash string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "usersRepo.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	user := &User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, created_at)
			VALUES ($1, $2, $3)
			RETURNING id`,
		user.Username, user.PasswordHash, user.CreatedAt,
	).Scan(&user.Id)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("user.id", user.Id))
	return user, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "usersRepo.getByUsername")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var user User
	err = r.db.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at
			FROM users
			WHERE username = $1`,
		username,
	).Scan(&user.Id, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}
