package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"anchorsync/internal/storage"
	"anchorsync/pkg"
	"anchorsync/src/logger"
)

var (
	ErrEmptyTitle   = errors.New("task title is required")
	ErrTaskNotFound = errors.New("task not found")
)

// TaskService handles task entry and list operations against the repository
type TaskService struct {
	repo storage.TaskRepository
}

// NewTaskService creates a service over repo
func NewTaskService(repo storage.TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

// Add creates an incomplete, unplaced task; an empty priority means medium
func (s *TaskService) Add(ctx context.Context, title, description string, priority pkg.Priority) (pkg.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return pkg.Task{}, ErrEmptyTitle
	}
	if priority == "" {
		priority = pkg.PriorityMedium
	}
	if !priority.Valid() {
		return pkg.Task{}, fmt.Errorf("%w: unknown priority %q", pkg.ErrInvalidTask, priority)
	}

	task, err := s.repo.Create(ctx, pkg.Task{
		Title:       title,
		Description: strings.TrimSpace(description),
		Priority:    priority,
	})
	if err != nil {
		return pkg.Task{}, fmt.Errorf("failed to add task: %w", err)
	}
	logger.Info().Str("task_id", task.ID).Str("priority", string(task.Priority)).Msg("task added")
	return task, nil
}

// List returns all tasks, newest first
func (s *TaskService) List(ctx context.Context) ([]pkg.Task, error) {
	return s.repo.List(ctx)
}

// Get returns the task with id, or the unique task whose id starts with id
func (s *TaskService) Get(ctx context.Context, id string) (pkg.Task, error) {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return pkg.Task{}, err
	}

	var matches []pkg.Task
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
		if id != "" && strings.HasPrefix(t.ID, id) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return pkg.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	default:
		return pkg.Task{}, fmt.Errorf("id prefix %q is ambiguous (%d tasks)", id, len(matches))
	}
}

// Search returns tasks whose title or description contains query
func (s *TaskService) Search(ctx context.Context, query string) ([]pkg.Task, error) {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return tasks, nil
	}

	var results []pkg.Task
	queryLower := strings.ToLower(query)
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), queryLower) ||
			strings.Contains(strings.ToLower(t.Description), queryLower) {
			results = append(results, t)
		}
	}
	return results, nil
}

// ToggleCompleted flips the completion flag with one update
func (s *TaskService) ToggleCompleted(ctx context.Context, id string) (pkg.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return pkg.Task{}, err
	}
	task.Completed = !task.Completed
	if err := s.repo.Update(ctx, task); err != nil {
		return pkg.Task{}, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// Delete removes the task; its marker disappears on the next push
func (s *TaskService) Delete(ctx context.Context, id string) (pkg.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return pkg.Task{}, err
	}
	if err := s.repo.Delete(ctx, task); err != nil {
		return pkg.Task{}, fmt.Errorf("failed to delete task: %w", err)
	}
	return task, nil
}

// Progress counts completed tasks
func (s *TaskService) Progress(ctx context.Context) (pkg.Progress, error) {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return pkg.Progress{}, err
	}
	return pkg.ComputeProgress(tasks), nil
}
