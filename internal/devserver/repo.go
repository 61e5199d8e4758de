package devserver

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo keeps accounts and analyses in process memory. Ids are
// assigned sequentially starting at 1.
type MemoryRepo struct {
	mu           sync.RWMutex
	users        map[int64]User
	byEmail      map[string]int64
	analyses     map[int64]Analysis
	nextUser     int64
	nextAnalysis int64
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:    make(map[int64]User),
		byEmail:  make(map[string]int64),
		analyses: make(map[int64]Analysis),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores u with a new id. Emails are unique case-insensitively.
func (r *MemoryRepo) CreateUser(ctx context.Context, u User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := emailKey(u.Email)
	if _, ok := r.byEmail[key]; ok {
		return User{}, ErrUserExists
	}
	r.nextUser++
	u.ID = r.nextUser
	r.users[u.ID] = u
	r.byEmail[key] = u.ID
	return u, nil
}

// UserByEmail looks up an account.
func (r *MemoryRepo) UserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.users[id], nil
}

// CreateAnalysis stores a with a new id.
func (r *MemoryRepo) CreateAnalysis(ctx context.Context, a Analysis) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextAnalysis++
	a.ID = r.nextAnalysis
	r.analyses[a.ID] = a
	return a, nil
}

// UpdateAnalysis replaces a stored analysis.
func (r *MemoryRepo) UpdateAnalysis(ctx context.Context, a Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyses[a.ID]; !ok {
		return ErrAnalysisNotFound
	}
	r.analyses[a.ID] = a
	return nil
}

// AnalysisForUser returns the analysis only when userID owns it.
func (r *MemoryRepo) AnalysisForUser(ctx context.Context, userID, id int64) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyses[id]
	if !ok || a.UserID != userID {
		return Analysis{}, ErrAnalysisNotFound
	}
	return a, nil
}

// AnalysesForUser lists a user's analyses in id order.
func (r *MemoryRepo) AnalysesForUser(ctx context.Context, userID int64) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Analysis
	for _, a := range r.analyses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
