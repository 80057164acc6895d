package waitq

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// TaskManager runs a list of named tasks in order.
type TaskManager struct {
	sync.Mutex
	Tasks []Task
}

// Task is one step of a [TaskManager].
type Task struct {
	Name string
	Fn   func(ctx context.Context) error
}

// NewTaskManager returns a pointer to a new [TaskManager].
func NewTaskManager() *TaskManager {
	return &TaskManager{
		Tasks: []Task{},
	}
}

// Add appends a task.
func (t *TaskManager) Add(name string, fn func(ctx context.Context) error) {
	t.Lock()
	defer t.Unlock()

	t.Tasks = append(t.Tasks, Task{Name: name, Fn: fn})
}

// Launch runs every task in order, even after one of them failed, and returns
// the joined task errors. A mid-flight context cancellation stops the
// sequence.
func (t *TaskManager) Launch(ctx context.Context) error {
	t.Lock()
	defer t.Unlock()

	var errs []error

	for _, task := range t.Tasks {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("(waitq-tasker) %w", ctx.Err()))

			break
		}

		if err := task.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("(waitq-tasker) %s: %w", task.Name, err))
		}
	}

	return errors.Join(errs...)
}
