package session

import (
	"errors"
	"fmt"
	"sync"
)

// Well-known keys written by a successful login.
const (
	KeyHeaders  = "headers"
	KeyHost     = "host"
	KeyUserInfo = "userInfo"
)

var (
	ErrNotFound  = errors.New("session key not found")
	ErrWrongType = errors.New("session value has unexpected type")
)

// Store is a keyed bag of values shared by every request made after login.
// Values are stored as given; callers that want isolation should store copies.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// Default is the process-wide store.
var Default = New()

func New() *Store {
	return &Store{values: make(map[string]any)}
}

// Save stores value under key, replacing whatever was there.
func (s *Store) Save(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// SaveAll writes every entry of values in one step, so readers never see
// a subset of them.
func (s *Store) SaveAll(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

func (s *Store) Load(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Get loads key and asserts it to T.
func Get[T any](s *Store, key string) (T, error) {
	var zero T
	v, err := s.Load(key)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrWrongType, key, v)
	}
	return out, nil
}
