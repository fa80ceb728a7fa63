package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// TaskPriority represents the relative importance of a task.
type TaskPriority string

// Possible task priority values
const (
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityLow    TaskPriority = "low"
)

// Common validation errors for Task
var (
	ErrEmptyTaskUserID         = errors.New("task user ID cannot be empty")
	ErrEmptyTaskTitle          = errors.New("task title cannot be empty")
	ErrInvalidTaskStatus       = errors.New("invalid task status")
	ErrInvalidTaskPriority     = errors.New("invalid task priority")
	ErrTemplateAndInstance     = errors.New("task cannot be both a recurrence template and a generated instance")
	ErrCompletedAtInconsistent = errors.New("completed_at must be set exactly when status is completed")
)

// Task is a unit of work owned by a user. A task is exactly one of three
// shapes: a plain task, a recurrence template (owns a RecurrencePattern via
// RecurrencePatternID), or a generated instance (links to its template via
// ParentTaskID). The template/instance fields are mutually exclusive.
type Task struct {
	ID                  uuid.UUID    `json:"id"`
	UserID              uuid.UUID    `json:"user_id"`
	Title               string       `json:"title"`
	Description         string       `json:"description,omitempty"`
	Status              TaskStatus   `json:"status"`
	Priority            TaskPriority `json:"priority"`
	DueAt               *time.Time   `json:"due_at,omitempty"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	RecurrencePatternID *uuid.UUID   `json:"recurrence_pattern_id,omitempty"`
	ParentTaskID        *uuid.UUID   `json:"parent_task_id,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// NewTask creates a plain task in todo status with the given attributes.
func NewTask(userID uuid.UUID, title string, priority TaskPriority, dueAt *time.Time) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Status:    TaskStatusTodo,
		Priority:  priority,
		DueAt:     dueAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// NewInstanceFromTemplate creates the next generated instance of a recurring
// template. The instance inherits the template's title, description and
// priority, gets the computed due date, and links back via ParentTaskID.
// The instance never carries the template's RecurrencePatternID.
func NewInstanceFromTemplate(template *Task, dueAt time.Time) (*Task, error) {
	now := time.Now().UTC()
	parentID := template.ID
	instance := &Task{
		ID:           uuid.New(),
		UserID:       template.UserID,
		Title:        template.Title,
		Description:  template.Description,
		Status:       TaskStatusTodo,
		Priority:     template.Priority,
		DueAt:        &dueAt,
		ParentTaskID: &parentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := instance.Validate(); err != nil {
		return nil, err
	}

	return instance, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}

	if t.Title == "" {
		return ErrEmptyTaskTitle
	}

	switch t.Status {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusCompleted:
	default:
		return ErrInvalidTaskStatus
	}

	switch t.Priority {
	case TaskPriorityHigh, TaskPriorityMedium, TaskPriorityLow:
	default:
		return ErrInvalidTaskPriority
	}

	if t.RecurrencePatternID != nil && t.ParentTaskID != nil {
		return ErrTemplateAndInstance
	}

	if (t.CompletedAt != nil) != (t.Status == TaskStatusCompleted) {
		return ErrCompletedAtInconsistent
	}

	return nil
}

// IsTemplate reports whether the task owns a recurrence pattern.
func (t *Task) IsTemplate() bool {
	return t.RecurrencePatternID != nil
}

// IsInstance reports whether the task was generated from a template.
func (t *Task) IsInstance() bool {
	return t.ParentTaskID != nil
}
