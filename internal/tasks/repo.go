package tasks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// Store persists tasks. It performs no validation or ownership checks;
// lookups of a missing id return ErrNotFound.
type Store interface {
	GetByID(ctx context.Context, id int64) (Task, error)
	GetByOwner(ctx context.Context, owner string, q ListQuery) ([]Task, error)
	Create(ctx context.Context, owner, title, description string) (Task, error)
	Update(ctx context.Context, t Task, p TaskPatch) (Task, error)
	Delete(ctx context.Context, t Task) error
	Exists(ctx context.Context, id int64, owner string) (bool, error)
}

// Pinger is implemented by stores backed by a remote resource.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Migrator is implemented by stores that own a schema.
type Migrator interface {
	ApplyMigrations(ctx context.Context) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	seq   int64
	store map[int64]Task
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store: make(map[int64]Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryStore) GetByID(_ context.Context, id int64) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.store[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryStore) GetByOwner(_ context.Context, owner string, q ListQuery) ([]Task, error) {
	fold := cases.Fold()
	needle := fold.String(q.Search)

	r.mu.RLock()
	out := make([]Task, 0)
	for _, t := range r.store {
		if t.Owner != owner {
			continue
		}
		if needle != "" &&
			!strings.Contains(fold.String(t.Title), needle) &&
			!strings.Contains(fold.String(t.Description), needle) {
			continue
		}
		out = append(out, t)
	}
	r.mu.RUnlock()

	sortTasks(out, q.ordering())
	return out, nil
}

func (r *MemoryStore) Create(_ context.Context, owner, title, description string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := Task{
		ID:          r.seq,
		Owner:       owner,
		Title:       title,
		Description: description,
		CreatedAt:   r.now(),
	}
	r.store[t.ID] = t
	return t, nil
}

func (r *MemoryStore) Update(_ context.Context, t Task, p TaskPatch) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.store[t.ID]
	if !ok {
		return Task{}, ErrNotFound
	}
	if p.Title != nil {
		cur.Title = *p.Title
	}
	if p.Description != nil {
		cur.Description = *p.Description
	}
	r.store[cur.ID] = cur
	return cur, nil
}

func (r *MemoryStore) Delete(_ context.Context, t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store[t.ID]; !ok {
		return ErrNotFound
	}
	delete(r.store, t.ID)
	return nil
}

func (r *MemoryStore) Exists(_ context.Context, id int64, owner string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.store[id]
	return ok && t.Owner == owner, nil
}

func sortTasks(ts []Task, o Ordering) {
	less := func(a, b Task) int {
		switch o.Field {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "description":
			return strings.Compare(a.Description, b.Description)
		case "id":
			return 0
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}

	sort.Slice(ts, func(i, j int) bool {
		c := less(ts[i], ts[j])
		if c == 0 {
			c = cmpID(ts[i].ID, ts[j].ID)
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	})
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
