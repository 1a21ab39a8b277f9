package handler

import (
	"strings"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

// dateOnlyLayout は期限日の省略形式。UTCの0時として扱う。
const dateOnlyLayout = "2006-01-02"

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID      string  `json:"id"`
	Email   string  `json:"email"`
	Name    string  `json:"name"`
	Picture *string `json:"picture"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{ID: u.ID, Email: u.Email, Name: u.Name}
	if u.Picture != "" {
		p := u.Picture
		resp.Picture = &p
	}
	return resp
}

// taskResponse はタスクのAPIレスポンス。時刻はUTCのRFC 3339で返す。
type taskResponse struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toTaskResponse(t *model.Task) taskResponse {
	resp := taskResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatedAt:   formatTime(t.CreatedAt),
		UpdatedAt:   formatTime(t.UpdatedAt),
	}
	if t.DueDate != nil {
		d := formatTime(*t.DueDate)
		resp.DueDate = &d
	}
	return resp
}

func toTaskResponses(tasks []*model.Task) []taskResponse {
	out := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = toTaskResponse(t)
	}
	return out
}

// statsResponse はタスク集計のAPIレスポンス。
type statsResponse struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

func toStatsResponse(s task.Stats) statsResponse {
	return statsResponse{Total: s.Total, Completed: s.Completed, Pending: s.Pending}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
}

func (req createTaskRequest) toInput() (task.CreateInput, error) {
	in := task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Priority != nil {
		in.Priority = *req.Priority
	}
	if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			return task.CreateInput{}, err
		}
		in.DueDate = &due
	}
	return in, nil
}

// updateTaskRequest はタスク更新リクエストのボディ。含まれるキーだけを更新する。
type updateTaskRequest struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Status      Optional[string] `json:"status"`
	Priority    Optional[string] `json:"priority"`
	DueDate     Optional[string] `json:"due_date"`
}

func (req updateTaskRequest) toInput() (task.UpdateInput, error) {
	var in task.UpdateInput

	for name, field := range map[string]Optional[string]{
		"title":    req.Title,
		"status":   req.Status,
		"priority": req.Priority,
	} {
		if field.Null {
			return task.UpdateInput{}, model.NewValidationError(name + " に null は指定できません")
		}
	}
	in.Title = req.Title.Ptr()
	in.Status = req.Status.Ptr()
	in.Priority = req.Priority.Ptr()

	if req.Description.Null {
		in.ClearDescription = true
	} else {
		in.Description = req.Description.Ptr()
	}

	switch {
	case req.DueDate.Null, req.DueDate.Set && strings.TrimSpace(req.DueDate.Value) == "":
		in.ClearDueDate = true
	case req.DueDate.Set:
		due, err := parseDueDate(req.DueDate.Value)
		if err != nil {
			return task.UpdateInput{}, err
		}
		in.DueDate = &due
	}

	return in, nil
}

// parseDueDate はRFC 3339またはYYYY-MM-DD形式の期限日を解析する。
// 期限は時刻として扱いUTCに正規化するため、オフセット付きの値は暦日が変わることがある。
// 暦日で指定したい場合はYYYY-MM-DD形式を使う（UTCの0時になる）。
func parseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateOnlyLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, model.NewValidationError("due_date は RFC 3339 または YYYY-MM-DD 形式で指定してください")
}
