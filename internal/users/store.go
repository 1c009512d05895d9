package users

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/attendancekit/nfc-backend/internal/logging"
)

// csvHeader is the column layout of the user directory file.
var csvHeader = []string{"uid_hex", "id", "name", "email", "role", "description"}

// User is one record of the card-UID keyed user directory.
type User struct {
	UIDHex      string `json:"uid_hex"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Description string `json:"description"`
}

// Store is a CSV-backed user directory keyed by card UID. Mutations
// rewrite the whole file under a lock; the directory is small and reads
// are rare, so no caching.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the CSV file at path. The file is
// created with a header row on first use.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Ensure creates the CSV file with its header if it does not exist yet.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked()
}

func (s *Store) ensureLocked() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	w.Flush()

	logging.Info(logging.CatUsers, "Created user directory file", map[string]any{
		"path": s.path,
	})
	return w.Error()
}

func (s *Store) readLocked() ([]User, error) {
	if err := s.ensureLocked(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	users := make([]User, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < len(csvHeader) {
			continue
		}
		users = append(users, User{
			UIDHex:      row[0],
			ID:          row[1],
			Name:        row[2],
			Email:       row[3],
			Role:        row[4],
			Description: row[5],
		})
	}
	return users, nil
}

func (s *Store) writeLocked(users []User) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, u := range users {
		row := []string{u.UIDHex, u.ID, u.Name, u.Email, u.Role, u.Description}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Lookup returns the user registered for a card UID, or nil if none.
// Matching is case-insensitive on the hex string.
func (s *Store) Lookup(uidHex string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	for i := range users {
		if strings.EqualFold(users[i].UIDHex, uidHex) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// Register adds a user, overwriting any existing record for the same UID.
// Returns true when an existing record was updated.
func (s *Store) Register(user User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readLocked()
	if err != nil {
		return false, err
	}

	updated := false
	for i := range users {
		if strings.EqualFold(users[i].UIDHex, user.UIDHex) {
			users[i] = user
			updated = true
			break
		}
	}
	if !updated {
		users = append(users, user)
	}

	if err := s.writeLocked(users); err != nil {
		return false, err
	}

	if updated {
		logging.Info(logging.CatUsers, "User updated", map[string]any{"uid": user.UIDHex})
	} else {
		logging.Info(logging.CatUsers, "User registered", map[string]any{"uid": user.UIDHex})
	}
	return updated, nil
}

// Delete removes the record for a UID. Returns false when no record
// matched. Credential checks belong to the caller; the store only manages
// records.
func (s *Store) Delete(uidHex string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readLocked()
	if err != nil {
		return false, err
	}

	kept := users[:0]
	found := false
	for _, u := range users {
		if strings.EqualFold(u.UIDHex, uidHex) {
			found = true
			continue
		}
		kept = append(kept, u)
	}

	if !found {
		logging.Warn(logging.CatUsers, "User not found for deletion", map[string]any{"uid": uidHex})
		return false, nil
	}

	if err := s.writeLocked(kept); err != nil {
		return false, err
	}
	logging.Info(logging.CatUsers, "User deleted", map[string]any{"uid": uidHex})
	return true, nil
}

// All returns every user in file order.
func (s *Store) All() ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}
