// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Upsert はユーザーを作成し、既存の場合はemail・name・pictureを更新する。
	// 保存後のユーザー（created_atは初回作成時のまま）を返す。
	Upsert(ctx context.Context, user *model.User) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、tasksはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータとワンタイムIDの使用履歴を永続化するインターフェース。
// すべてのIDはハッシュ化済みの値を受け取る。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 失効判定は呼び出し側で行う。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateExpiry はセッションの有効期限を延長する。
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// ClaimExchange はワンタイムIDを使用済みとして記録する。
	// 初回の記録のみtrueを返し、同じIDの2回目以降はfalseを返す。
	ClaimExchange(ctx context.Context, id string, now, expiresAt time.Time) (bool, error)

	// DeleteExpired はnow時点で期限切れのセッションと使用履歴を削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// 所有者の検証はサービス層で行う。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// ListByUserID はユーザーのタスクを作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Task, error)

	// Mutate はトランザクション内でタスクを読み出してfnを適用し、結果を書き戻す。
	// タスクが存在しない場合はfnを呼ばずに(nil, nil)を返す。
	// fnがエラーを返した場合は何も書き込まない。
	Mutate(ctx context.Context, id string, fn func(task *model.Task) error) (*model.Task, error)

	// DeleteByIDAndUserID は所有者が一致するタスクを削除する。
	// 削除対象が無かった場合はfalseを返す。
	DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error)

	// DeleteByUserID は指定ユーザーの全タスクを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// scanner はsql.Rowとsql.Rowsの共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

// nullString は空文字をNULLとして扱うsql.NullStringを返す。
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullTime はnilをNULLとして扱うsql.NullTimeを返す。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// stringPtr はsql.NullStringからポインタを取得する。
func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// timePtr はsql.NullTimeからUTCのポインタを取得する。
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
