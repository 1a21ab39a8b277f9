package task

import (
	"strings"

	"github.com/hitoshi/taskman/internal/model"
)

// StatusFilter は一覧表示の状態フィルタ。
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusPending   StatusFilter = StatusFilter(model.TaskStatusPending)
	StatusCompleted StatusFilter = StatusFilter(model.TaskStatusCompleted)
)

// PriorityFilter は一覧表示の優先度フィルタ。
type PriorityFilter string

const (
	PriorityAll    PriorityFilter = "all"
	PriorityLow    PriorityFilter = PriorityFilter(model.TaskPriorityLow)
	PriorityMedium PriorityFilter = PriorityFilter(model.TaskPriorityMedium)
	PriorityHigh   PriorityFilter = PriorityFilter(model.TaskPriorityHigh)
)

// ParseStatusFilter はクエリ文字列を状態フィルタに変換する。空文字は all。
func ParseStatusFilter(s string) (StatusFilter, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch StatusFilter(v) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusPending, StatusCompleted:
		return StatusFilter(v), nil
	}
	return "", model.NewInvalidFilterError("status", s)
}

// ParsePriorityFilter はクエリ文字列を優先度フィルタに変換する。空文字は all。
func ParsePriorityFilter(s string) (PriorityFilter, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch PriorityFilter(v) {
	case "", PriorityAll:
		return PriorityAll, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return PriorityFilter(v), nil
	}
	return "", model.NewInvalidFilterError("priority", s)
}

func (f StatusFilter) matches(t *model.Task) bool {
	return f == StatusAll || f == "" || model.TaskStatus(f) == t.Status
}

func (f PriorityFilter) matches(t *model.Task) bool {
	return f == PriorityAll || f == "" || model.TaskPriority(f) == t.Priority
}

// Filter は両方の条件に一致するタスクを入力順のまま返す。入力は変更しない。
func Filter(tasks []*model.Task, status StatusFilter, priority PriorityFilter) []*model.Task {
	result := make([]*model.Task, 0, len(tasks))
	for _, t := range tasks {
		if status.matches(t) && priority.matches(t) {
			result = append(result, t)
		}
	}
	return result
}

// Stats はタスク集合の件数集計。Completed + Pending は常に Total と等しい。
type Stats struct {
	Total     int
	Completed int
	Pending   int
}

// ComputeStats はタスク集合の件数を集計する。
func ComputeStats(tasks []*model.Task) Stats {
	stats := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Status == model.TaskStatusCompleted {
			stats.Completed++
		} else {
			stats.Pending++
		}
	}
	return stats
}
