// Package memory provides an in-process [store.Store] for tests and local
// development. Data lives only as long as the process.
package memory

import (
	"context"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
)

type loginKey struct {
	provider models.Provider
	subject  string
}

// Store is a mutex-guarded map implementation of [store.Store].
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	lastUserID  int64
	lastLoginID int64

	users      map[int64]models.User
	byUsername map[string]int64
	byEmail    map[string]int64
	logins     map[loginKey]models.ExternalLogin
	closed     bool
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:        time.Now,
		users:      make(map[int64]models.User),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
		logins:     make(map[loginKey]models.ExternalLogin),
	}
}

var errClosed = sserr.New(sserr.CodeUnavailableDependency, "memory: store is closed")

func (s *Store) FindUserByUsernameOrEmail(_ context.Context, v string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	id, ok := s.byUsername[v]
	if !ok {
		id, ok = s.byEmail[v]
	}
	if !ok {
		return nil, nil
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) FindUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errClosed
	}
	_, ok := s.byUsername[username]
	return ok, nil
}

func (s *Store) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errClosed
	}
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *Store) InsertUser(_ context.Context, u models.User) (models.User, error) {
	if err := u.Validate(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.User{}, errClosed
	}
	if err := s.checkUserLocked(u); err != nil {
		return models.User{}, err
	}
	return s.insertUserLocked(u), nil
}

func (s *Store) FindExternalLogin(_ context.Context, provider models.Provider, subject string) (*models.ExternalLogin, *models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, errClosed
	}
	l, ok := s.logins[loginKey{provider, subject}]
	if !ok {
		return nil, nil, nil
	}
	u := s.users[l.UserID]
	l = cloneLogin(l)
	return &l, &u, nil
}

func (s *Store) InsertExternalLogin(_ context.Context, l models.ExternalLogin) (models.ExternalLogin, error) {
	if err := l.Validate(); err != nil {
		return models.ExternalLogin{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.ExternalLogin{}, errClosed
	}
	if _, ok := s.users[l.UserID]; !ok {
		return models.ExternalLogin{}, sserr.Newf(sserr.CodeNotFoundUser, "memory: user %d not found", l.UserID)
	}
	if _, ok := s.logins[loginKey{l.Provider, l.ProviderUserID}]; ok {
		return models.ExternalLogin{}, store.UniqueViolation(store.ColumnProviderUserID, nil)
	}
	return s.insertLoginLocked(l), nil
}

func (s *Store) UpdateExternalLogin(_ context.Context, l models.ExternalLogin) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	key := loginKey{l.Provider, l.ProviderUserID}
	cur, ok := s.logins[key]
	if !ok || cur.ID != l.ID {
		return sserr.Newf(sserr.CodeNotFound, "memory: external login %d not found", l.ID)
	}
	cur.LastUsedAt = l.LastUsedAt
	cur.Email = l.Email
	s.logins[key] = cloneLogin(cur)
	return nil
}

func (s *Store) InsertUserWithExternalLogin(_ context.Context, u models.User, l models.ExternalLogin) (models.User, models.ExternalLogin, error) {
	if err := u.Validate(); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}
	if err := l.Validate(); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.User{}, models.ExternalLogin{}, errClosed
	}
	if _, ok := s.logins[loginKey{l.Provider, l.ProviderUserID}]; ok {
		return models.User{}, models.ExternalLogin{}, store.UniqueViolation(store.ColumnProviderUserID, nil)
	}
	if err := s.checkUserLocked(u); err != nil {
		return models.User{}, models.ExternalLogin{}, err
	}
	u = s.insertUserLocked(u)
	l.UserID = u.ID
	return u, s.insertLoginLocked(l), nil
}

// Health reports an error once the store is closed.
func (s *Store) Health(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) checkUserLocked(u models.User) error {
	if _, ok := s.byUsername[u.Username]; ok {
		return store.UniqueViolation(store.ColumnUsername, nil)
	}
	if _, ok := s.byEmail[u.Email]; ok {
		return store.UniqueViolation(store.ColumnEmail, nil)
	}
	return nil
}

func (s *Store) insertUserLocked(u models.User) models.User {
	s.lastUserID++
	u.ID = s.lastUserID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	s.byUsername[u.Username] = u.ID
	s.byEmail[u.Email] = u.ID
	return u
}

func (s *Store) insertLoginLocked(l models.ExternalLogin) models.ExternalLogin {
	s.lastLoginID++
	l.ID = s.lastLoginID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	l = cloneLogin(l)
	s.logins[loginKey{l.Provider, l.ProviderUserID}] = l
	return cloneLogin(l)
}

// cloneLogin detaches the pointer fields so callers cannot mutate stored rows.
func cloneLogin(l models.ExternalLogin) models.ExternalLogin {
	if l.Email != nil {
		e := *l.Email
		l.Email = &e
	}
	if l.LastUsedAt != nil {
		t := *l.LastUsedAt
		l.LastUsedAt = &t
	}
	return l
}
