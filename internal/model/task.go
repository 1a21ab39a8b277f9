package model

import "time"

// TaskStatus はタスクの状態を表す。
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// TaskPriority はタスクの優先度を表す。
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task はユーザーが管理するタスクを表す。
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description *string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParseTaskStatus は文字列をTaskStatusに変換する。未知の値はエラー。
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskStatusPending, TaskStatusCompleted:
		return TaskStatus(s), nil
	}
	return "", NewValidationError("status は pending または completed を指定してください")
}

// ParseTaskPriority は文字列をTaskPriorityに変換する。空文字は medium として扱う。
func ParseTaskPriority(s string) (TaskPriority, error) {
	if s == "" {
		return TaskPriorityMedium, nil
	}
	switch TaskPriority(s) {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return TaskPriority(s), nil
	}
	return "", NewValidationError("priority は low、medium、high のいずれかを指定してください")
}

// Toggled は pending と completed を反転した状態を返す。
func (s TaskStatus) Toggled() TaskStatus {
	if s == TaskStatusCompleted {
		return TaskStatusPending
	}
	return TaskStatusCompleted
}
