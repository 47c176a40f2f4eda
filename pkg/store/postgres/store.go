// Package postgres implements [store.Store] on PostgreSQL.
//
// Uniqueness is enforced by named constraints; a violation is translated
// into the conflict error for the column involved. Provisioning a user
// together with its first external login runs in a single transaction.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	pgclient "github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
)

//go:embed schema.sql
var schema string

// Constraint names declared in schema.sql.
const (
	constraintUsername    = "users_username_key"
	constraintEmail       = "users_email_key"
	constraintExternal    = "external_logins_provider_subject_key"
	constraintLoginUserFK = "external_logins_user_id_fkey"
)

const userColumns = "id, username, email, password_hash, created_at"

const (
	sqlFindUserByUsernameOrEmail = `SELECT ` + userColumns + ` FROM users
WHERE username = $1 OR email = $1
ORDER BY (username = $1) DESC
LIMIT 1`

	sqlFindUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	sqlUsernameExists = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`

	sqlEmailExists = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`

	sqlInsertUser = `INSERT INTO users (username, email, password_hash, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`

	sqlFindExternalLogin = `SELECT l.id, l.user_id, l.provider, l.provider_user_id, l.email, l.created_at, l.last_used_at,
u.id, u.username, u.email, u.password_hash, u.created_at
FROM external_logins l
JOIN users u ON u.id = l.user_id
WHERE l.provider = $1 AND l.provider_user_id = $2`

	sqlInsertExternalLogin = `INSERT INTO external_logins (user_id, provider, provider_user_id, email, created_at, last_used_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	sqlUpdateExternalLogin = `UPDATE external_logins SET last_used_at = $2, email = $3 WHERE id = $1`
)

// querier is satisfied by both the client and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed [store.Store].
type Store struct {
	db  *pgclient.Client
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_at values.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store using db. The schema is not touched; call Migrate.
func New(db *pgclient.Client, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects with cfg, applies the schema and returns the Store.
func Open(ctx context.Context, cfg pgclient.Config, opts ...Option) (*Store, error) {
	db, err := pgclient.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalDatabase, "postgres: apply schema")
	}
	return nil
}

func (s *Store) FindUserByUsernameOrEmail(ctx context.Context, v string) (*models.User, error) {
	return s.findUser(ctx, sqlFindUserByUsernameOrEmail, v)
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.findUser(ctx, sqlFindUserByID, id)
}

func (s *Store) findUser(ctx context.Context, sql string, arg any) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, sql, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "postgres: find user")
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, sqlUsernameExists, username)
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, sqlEmailExists, email)
}

func (s *Store) exists(ctx context.Context, sql, arg string) (bool, error) {
	var ok bool
	if err := s.db.QueryRow(ctx, sql, arg).Scan(&ok); err != nil {
		return false, classify(err, "postgres: exists")
	}
	return ok, nil
}

func (s *Store) InsertUser(ctx context.Context, u models.User) (models.User, error) {
	if err := u.Validate(); err != nil {
		return models.User{}, err
	}
	return s.insertUser(ctx, s.db, u)
}

func (s *Store) insertUser(ctx context.Context, q querier, u models.User) (models.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	err := q.QueryRow(ctx, sqlInsertUser, u.Username, u.Email, u.PasswordHash, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		return models.User{}, classify(err, "postgres: insert user")
	}
	return u, nil
}

func (s *Store) FindExternalLogin(ctx context.Context, provider models.Provider, subject string) (*models.ExternalLogin, *models.User, error) {
	var (
		l        models.ExternalLogin
		u        models.User
		provName string
	)
	err := s.db.QueryRow(ctx, sqlFindExternalLogin, string(provider), subject).Scan(
		&l.ID, &l.UserID, &provName, &l.ProviderUserID, &l.Email, &l.CreatedAt, &l.LastUsedAt,
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, classify(err, "postgres: find external login")
	}
	l.Provider = models.Provider(provName)
	l.CreatedAt = l.CreatedAt.UTC()
	if l.LastUsedAt != nil {
		t := l.LastUsedAt.UTC()
		l.LastUsedAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &l, &u, nil
}

func (s *Store) InsertExternalLogin(ctx context.Context, l models.ExternalLogin) (models.ExternalLogin, error) {
	if err := l.Validate(); err != nil {
		return models.ExternalLogin{}, err
	}
	return s.insertExternalLogin(ctx, s.db, l)
}

func (s *Store) insertExternalLogin(ctx context.Context, q querier, l models.ExternalLogin) (models.ExternalLogin, error) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	err := q.QueryRow(ctx, sqlInsertExternalLogin,
		l.UserID, string(l.Provider), l.ProviderUserID, l.Email, l.CreatedAt, l.LastUsedAt,
	).Scan(&l.ID)
	if err != nil {
		return models.ExternalLogin{}, classify(err, "postgres: insert external login")
	}
	return l, nil
}

func (s *Store) UpdateExternalLogin(ctx context.Context, l models.ExternalLogin) error {
	if err := l.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, sqlUpdateExternalLogin, l.ID, l.LastUsedAt, l.Email)
	if err != nil {
		return classify(err, "postgres: update external login")
	}
	if tag.RowsAffected() == 0 {
		return sserr.Newf(sserr.CodeNotFound, "postgres: external login %d not found", l.ID)
	}
	return nil
}

func (s *Store) InsertUserWithExternalLogin(ctx context.Context, u models.User, l models.ExternalLogin) (models.User, models.ExternalLogin, error) {
	if err := u.Validate(); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}
	if err := l.Validate(); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}
	u, l, err = s.provision(ctx, tx, u, l)
	if err != nil {
		_ = tx.Rollback(ctx)
		return models.User{}, models.ExternalLogin{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, models.ExternalLogin{}, classify(err, "postgres: commit provisioning")
	}
	return u, l, nil
}

func (s *Store) provision(ctx context.Context, tx pgx.Tx, u models.User, l models.ExternalLogin) (models.User, models.ExternalLogin, error) {
	u, err := s.insertUser(ctx, tx, u)
	if err != nil {
		return u, l, err
	}
	l.UserID = u.ID
	l, err = s.insertExternalLogin(ctx, tx, l)
	return u, l, err
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// classify maps constraint violations to conflict errors and everything
// else to database or timeout errors.
func classify(err error, message string) error {
	if v, ok := pgclient.AsViolation(err); ok {
		switch v.Constraint {
		case constraintUsername:
			return store.UniqueViolation(store.ColumnUsername, err)
		case constraintEmail:
			return store.UniqueViolation(store.ColumnEmail, err)
		case constraintExternal:
			return store.UniqueViolation(store.ColumnProviderUserID, err)
		case constraintLoginUserFK:
			return sserr.Wrap(err, sserr.CodeNotFoundUser, "postgres: user not found")
		}
		return sserr.Wrap(err, sserr.CodeConflict, message)
	}
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	return pgclient.WrapError(err, message)
}
