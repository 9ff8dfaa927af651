package task

import "context"

// Reader is the task-lookup capability the scheduling core consumes.
// Implementations return copies; mutating a returned Task never changes
// stored state.
type Reader interface {
	// FindByID returns the task with the given id or a NOT_FOUND error.
	FindByID(ctx context.Context, id int64) (Task, error)

	// FindAll returns every task ordered by ascending id.
	FindAll(ctx context.Context) ([]Task, error)

	// FindDescendants returns the subtree under id, excluding id itself,
	// in deterministic pre-order (children visited by ascending id).
	FindDescendants(ctx context.Context, id int64) ([]Task, error)

	// FindAncestors returns the parent chain of id, nearest parent first,
	// excluding id itself.
	FindAncestors(ctx context.Context, id int64) ([]Task, error)
}

// Writer persists task mutations.
type Writer interface {
	// Save creates a new task, assigning its id.
	Save(ctx context.Context, t *Task) error

	// Update overwrites an existing task.
	Update(ctx context.Context, t *Task) error

	// Delete removes a task and prunes references to it from its parent
	// and children.
	Delete(ctx context.Context, id int64) error
}

// Store is a Reader and Writer that can run a sequence of operations as
// a single atomic unit.
type Store interface {
	Reader
	Writer

	// WithinTx runs fn against a transactional view of the store. If fn
	// returns an error nothing it wrote is kept.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
