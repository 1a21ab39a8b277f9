package task

import (
	"testing"

	"github.com/hitoshi/taskman/internal/model"
)

func sampleTasks() []*model.Task {
	return []*model.Task{
		{ID: "1", Status: model.TaskStatusPending, Priority: model.TaskPriorityHigh},
		{ID: "2", Status: model.TaskStatusCompleted, Priority: model.TaskPriorityHigh},
		{ID: "3", Status: model.TaskStatusCompleted, Priority: model.TaskPriorityLow},
		{ID: "4", Status: model.TaskStatusPending, Priority: model.TaskPriorityMedium},
		{ID: "5", Status: model.TaskStatusCompleted, Priority: model.TaskPriorityHigh},
	}
}

func ids(tasks []*model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		status   StatusFilter
		priority PriorityFilter
		want     []string
	}{
		{"all/all は恒等", StatusAll, PriorityAll, []string{"1", "2", "3", "4", "5"}},
		{"completed のみ", StatusCompleted, PriorityAll, []string{"2", "3", "5"}},
		{"high のみ", StatusAll, PriorityHigh, []string{"1", "2", "5"}},
		{"completed かつ high", StatusCompleted, PriorityHigh, []string{"2", "5"}},
		{"pending かつ low は該当なし", StatusPending, PriorityLow, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(sampleTasks(), tt.status, tt.priority))
			if !equalIDs(got, tt.want) {
				t.Errorf("Filter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_CompletedHigh_IsExact(t *testing.T) {
	tasks := sampleTasks()
	got := Filter(tasks, StatusCompleted, PriorityHigh)

	for _, task := range got {
		if task.Status != model.TaskStatusCompleted || task.Priority != model.TaskPriorityHigh {
			t.Errorf("unexpected task in result: %+v", task)
		}
	}
	matching := 0
	for _, task := range tasks {
		if task.Status == model.TaskStatusCompleted && task.Priority == model.TaskPriorityHigh {
			matching++
		}
	}
	if len(got) != matching {
		t.Errorf("len = %d, want %d", len(got), matching)
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	tasks := sampleTasks()
	before := ids(tasks)

	Filter(tasks, StatusPending, PriorityAll)

	if !equalIDs(ids(tasks), before) {
		t.Errorf("input was modified: %v", ids(tasks))
	}
}

func TestFilter_EmptyInput(t *testing.T) {
	got := Filter(nil, StatusAll, PriorityAll)
	if got == nil || len(got) != 0 {
		t.Errorf("Filter(nil) = %v, want empty slice", got)
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(sampleTasks())

	if stats.Total != 5 || stats.Completed != 3 || stats.Pending != 2 {
		t.Errorf("ComputeStats() = %+v", stats)
	}
	if stats.Completed+stats.Pending != stats.Total {
		t.Error("completed + pending must equal total")
	}

	if empty := ComputeStats(nil); empty != (Stats{}) {
		t.Errorf("ComputeStats(nil) = %+v", empty)
	}
}

func TestParseStatusFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    StatusFilter
		wantErr bool
	}{
		{"", StatusAll, false},
		{"all", StatusAll, false},
		{"pending", StatusPending, false},
		{"Completed", StatusCompleted, false},
		{"done", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatusFilter(tt.in)
		if tt.wantErr {
			if !model.HasCode(err, model.ErrCodeInvalidFilter) {
				t.Errorf("ParseStatusFilter(%q) err = %v, want INVALID_FILTER", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseStatusFilter(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParsePriorityFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    PriorityFilter
		wantErr bool
	}{
		{"", PriorityAll, false},
		{"all", PriorityAll, false},
		{"low", PriorityLow, false},
		{"medium", PriorityMedium, false},
		{" HIGH ", PriorityHigh, false},
		{"urgent", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePriorityFilter(tt.in)
		if tt.wantErr {
			if !model.HasCode(err, model.ErrCodeInvalidFilter) {
				t.Errorf("ParsePriorityFilter(%q) err = %v, want INVALID_FILTER", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePriorityFilter(%q) = %q, %v", tt.in, got, err)
		}
	}
}
