package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
// ownerIDは常に認証済みセッションから渡す。
type TaskServiceInterface interface {
	Create(ctx context.Context, ownerID string, in task.CreateInput) (*model.Task, error)
	List(ctx context.Context, ownerID string, status task.StatusFilter, priority task.PriorityFilter) ([]*model.Task, error)
	Stats(ctx context.Context, ownerID string) (task.Stats, error)
	Get(ctx context.Context, ownerID, taskID string) (*model.Task, error)
	Update(ctx context.Context, ownerID, taskID string, in task.UpdateInput) (*model.Task, error)
	ToggleStatus(ctx context.Context, ownerID, taskID string) (*model.Task, error)
	Delete(ctx context.Context, ownerID, taskID string) error
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// ownerID は認証済みユーザーのIDを返す。取得できない場合は401を書き込んでfalseを返す。
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return "", false
	}
	return userID, true
}

// List はタスク一覧を返す。
// GET /api/tasks?status=all|pending|completed&priority=all|low|medium|high
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	status, err := task.ParseStatusFilter(query.Get("status"))
	if err != nil {
		handleServiceError(w, r, err, "")
		return
	}
	priority, err := task.ParsePriorityFilter(query.Get("priority"))
	if err != nil {
		handleServiceError(w, r, err, "")
		return
	}

	tasks, err := h.service.List(r.Context(), userID, status, priority)
	if err != nil {
		handleServiceError(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// Stats はタスクの件数集計を返す。
// GET /api/tasks/stats
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

// Create はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "")
		return
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, r, err, "")
		return
	}

	created, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(created))
}

// Get はタスクを1件返す。
// GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "id")

	t, err := h.service.Get(r.Context(), userID, taskID)
	if err != nil {
		handleServiceError(w, r, err, taskID)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Update はタスクを部分更新する。
// PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "id")

	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, taskID)
		return
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, r, err, taskID)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, taskID, in)
	if err != nil {
		handleServiceError(w, r, err, taskID)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(updated))
}

// Toggle はタスクの完了状態を切り替える。
// POST /api/tasks/{id}/toggle
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "id")

	toggled, err := h.service.ToggleStatus(r.Context(), userID, taskID)
	if err != nil {
		handleServiceError(w, r, err, taskID)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(toggled))
}

// Delete はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), userID, taskID); err != nil {
		handleServiceError(w, r, err, taskID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
