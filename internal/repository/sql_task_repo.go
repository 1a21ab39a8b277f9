package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/taskman/internal/database"
	"github.com/hitoshi/taskman/internal/model"
)

// SQLTaskRepo はdatabase/sqlを使用したタスクリポジトリ。
type SQLTaskRepo struct {
	db     *sql.DB
	driver database.Driver
}

// NewSQLTaskRepo はSQLTaskRepoを生成する。
// driverは行ロック句の有無を切り替えるために使う。
func NewSQLTaskRepo(db *sql.DB, driver database.Driver) *SQLTaskRepo {
	return &SQLTaskRepo{db: db, driver: driver}
}

const taskColumns = `id, user_id, title, description, status, priority, due_date, created_at, updated_at`

func scanTask(row scanner) (*model.Task, error) {
	task := &model.Task{}
	var description sql.NullString
	var dueDate sql.NullTime

	if err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &description,
		&task.Status, &task.Priority, &dueDate,
		&task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	task.Description = stringPtr(description)
	task.DueDate = timePtr(dueDate)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return task, nil
}

// Create はタスクを作成する。
func (r *SQLTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.UserID, task.Title, nullString(task.Description),
		string(task.Status), string(task.Priority), nullTime(task.DueDate),
		task.CreatedAt.UTC(), task.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *SQLTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID: %w", err)
	}
	return task, nil
}

// ListByUserID はユーザーのタスクを作成日時の降順で返す。
// 作成日時が同じ場合はIDの昇順で順序を固定する。
func (r *SQLTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// Mutate はトランザクション内でタスクを読み出し、fnの適用結果で行全体を書き戻す。
// PostgreSQLでは行ロックを取り、SQLiteでは単一接続により書き込みが直列化される。
func (r *SQLTaskRepo) Mutate(ctx context.Context, id string, fn func(task *model.Task) error) (*model.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if !r.driver.IsSQLite() {
		query += ` FOR UPDATE`
	}

	task, err := scanTask(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task for update: %w", err)
	}

	if err := fn(task); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET
		    title = $2,
		    description = $3,
		    status = $4,
		    priority = $5,
		    due_date = $6,
		    updated_at = $7
		 WHERE id = $1`,
		task.ID, task.Title, nullString(task.Description),
		string(task.Status), string(task.Priority), nullTime(task.DueDate),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return task, nil
}

// DeleteByIDAndUserID は所有者が一致するタスクを削除する。
func (r *SQLTaskRepo) DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByUserID は指定ユーザーの全タスクを削除する。
func (r *SQLTaskRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user tasks: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ TaskRepository = (*SQLTaskRepo)(nil)
