// Package task はタスク管理のドメインロジックを提供する。
//
// タスクは必ず1人のユーザーに属し、所有者以外からの参照・更新は
// 存在しない場合（TASK_NOT_FOUND）と区別してTASK_FORBIDDENとして扱う。
// 外部への見せ方を揃えるのはハンドラ層の責務。
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 5000
)

// メトリクス用の操作名
const (
	opCreate = "create"
	opUpdate = "update"
	opToggle = "toggle"
	opDelete = "delete"
)

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title       string
	Description *string
	Priority    string
	DueDate     *time.Time
}

// UpdateInput はタスク更新の入力。nilのフィールドは変更しない。
// ClearDescription / ClearDueDate がtrueの場合は値を削除する。
type UpdateInput struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Status           *string
	Priority         *string
	DueDate          *time.Time
	ClearDueDate     bool
}

// Service はタスク管理のサービス層。
type Service struct {
	repo     repository.TaskRepository
	recorder metrics.Recorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TaskRepository, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		now:      time.Now,
	}
}

// timestamp はPostgreSQLのマイクロ秒精度で往復できるUTC時刻を返す。
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Create はタスクを作成する。状態はpending、優先度の省略時はmedium。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Task, error) {
	title, err := s.cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}
	description, err := s.cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}
	priority, err := model.ParseTaskPriority(in.Priority)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	task := &model.Task{
		ID:          uuid.New().String(),
		UserID:      ownerID,
		Title:       title,
		Description: description,
		Status:      model.TaskStatusPending,
		Priority:    priority,
		DueDate:     normalizeDate(in.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	s.recorder.RecordTaskOperation(opCreate)
	slog.Info("task created",
		slog.String("user_id", ownerID),
		slog.String("task_id", task.ID),
	)
	return task, nil
}

// List はユーザーのタスクを作成日時の降順で返し、フィルタを適用する。
func (s *Service) List(ctx context.Context, ownerID string, status StatusFilter, priority PriorityFilter) ([]*model.Task, error) {
	tasks, err := s.repo.ListByUserID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return Filter(tasks, status, priority), nil
}

// Stats はユーザーの全タスクの件数を集計する。
func (s *Service) Stats(ctx context.Context, ownerID string) (Stats, error) {
	tasks, err := s.repo.ListByUserID(ctx, ownerID)
	if err != nil {
		return Stats{}, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return ComputeStats(tasks), nil
}

// Get は所有者を検証した上でタスクを1件返す。
func (s *Service) Get(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	if !validTaskID(taskID) {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	if task.UserID != ownerID {
		return nil, model.NewTaskForbiddenError(taskID)
	}
	return task, nil
}

// Update は指定されたフィールドだけをタスクに反映し、updated_atを更新する。
func (s *Service) Update(ctx context.Context, ownerID, taskID string, in UpdateInput) (*model.Task, error) {
	// 入力の検証はロックを取る前に済ませる
	var (
		title    string
		desc     *string
		status   model.TaskStatus
		priority model.TaskPriority
		err      error
	)
	if in.Title != nil {
		if title, err = s.cleanTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Description != nil && !in.ClearDescription {
		if desc, err = s.cleanDescription(in.Description); err != nil {
			return nil, err
		}
	}
	if in.Status != nil {
		if status, err = model.ParseTaskStatus(*in.Status); err != nil {
			return nil, err
		}
	}
	if in.Priority != nil {
		if *in.Priority == "" {
			return nil, model.NewValidationError("priority は low、medium、high のいずれかを指定してください")
		}
		if priority, err = model.ParseTaskPriority(*in.Priority); err != nil {
			return nil, err
		}
	}

	task, err := s.mutateOwned(ctx, ownerID, taskID, func(t *model.Task) {
		if in.Title != nil {
			t.Title = title
		}
		switch {
		case in.ClearDescription:
			t.Description = nil
		case in.Description != nil:
			t.Description = desc
		}
		if in.Status != nil {
			t.Status = status
		}
		if in.Priority != nil {
			t.Priority = priority
		}
		switch {
		case in.ClearDueDate:
			t.DueDate = nil
		case in.DueDate != nil:
			t.DueDate = normalizeDate(in.DueDate)
		}
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordTaskOperation(opUpdate)
	return task, nil
}

// ToggleStatus はpendingとcompletedを切り替える。状態とupdated_at以外は変更しない。
func (s *Service) ToggleStatus(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	task, err := s.mutateOwned(ctx, ownerID, taskID, func(t *model.Task) {
		t.Status = t.Status.Toggled()
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordTaskOperation(opToggle)
	return task, nil
}

// Delete はタスクを削除する。存在しないIDはTASK_NOT_FOUNDとなり、冪等ではない。
func (s *Service) Delete(ctx context.Context, ownerID, taskID string) error {
	if _, err := s.Get(ctx, ownerID, taskID); err != nil {
		return err
	}

	deleted, err := s.repo.DeleteByIDAndUserID(ctx, taskID, ownerID)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if !deleted {
		// 確認後に別リクエストで削除された
		return model.NewTaskNotFoundError(taskID)
	}

	s.recorder.RecordTaskOperation(opDelete)
	slog.Info("task deleted",
		slog.String("user_id", ownerID),
		slog.String("task_id", taskID),
	)
	return nil
}

// mutateOwned は所有者を検証してからapplyを適用し、1トランザクションで書き戻す。
func (s *Service) mutateOwned(ctx context.Context, ownerID, taskID string, apply func(t *model.Task)) (*model.Task, error) {
	if !validTaskID(taskID) {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	now := s.timestamp()
	task, err := s.repo.Mutate(ctx, taskID, func(t *model.Task) error {
		if t.UserID != ownerID {
			return model.NewTaskForbiddenError(taskID)
		}
		apply(t)
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return task, nil
}

// cleanTitle は前後の空白だけを取り除く。"<" や文字参照を含めて入力した文字はそのまま保存し、
// エスケープは表示側で行う。
func (s *Service) cleanTitle(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", model.NewValidationError("title はUTF-8で入力してください")
	}
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", model.NewValidationError("title は必須です")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", model.NewValidationError(fmt.Sprintf("title は%d文字以内で入力してください", maxTitleLength))
	}
	return title, nil
}

// cleanDescription は説明文を整形する。空になった場合はnil（説明なし）を返す。
func (s *Service) cleanDescription(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	if !utf8.ValidString(*raw) {
		return nil, model.NewValidationError("description はUTF-8で入力してください")
	}
	desc := strings.TrimSpace(*raw)
	if desc == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLength {
		return nil, model.NewValidationError(fmt.Sprintf("description は%d文字以内で入力してください", maxDescriptionLength))
	}
	return &desc, nil
}

// validTaskID はIDがUUID形式かを判定する。形式外のIDは存在しないものとして扱う。
func validTaskID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}
