package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/socialsense/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// RecordLogin はユーザー・identity・ログインイベントを同一トランザクションで記録する。
// identityが既存の場合はそのユーザーのプロフィールを更新し、渡されたuser.IDは使わない。
// 同じFacebookユーザーの初回ログインが同時に来た場合も、ユーザーは1件だけ作られる。
// Facebookはメールアドレスや画像を返さないことがあるため、空文字はNULLとして保存する。
func (r *PostgresUserRepo) RecordLogin(ctx context.Context, user *model.User, identity *model.Identity, event *model.LoginEvent) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := findIdentity(ctx, tx, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return "", err
	}

	if existing == nil {
		existing, err = createUser(ctx, tx, user, identity)
		if err != nil {
			return "", err
		}
	}

	userID := user.ID
	if existing != nil {
		// 既存ユーザー: プロフィールを最新化
		userID = existing.UserID
		_, err = tx.ExecContext(ctx,
			`UPDATE users
			 SET email = NULLIF($2, ''), name = $3, avatar_url = NULLIF($4, ''), updated_at = $5
			 WHERE id = $1`,
			userID, user.Email, user.Name, user.AvatarURL, user.UpdatedAt,
		)
		if err != nil {
			return "", fmt.Errorf("failed to update user: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO login_events (id, user_id, created_at) VALUES ($1, $2, $3)`,
		event.ID, userID, event.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert login event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return userID, nil
}

// createUser は新規ユーザーとidentityを作成する。作成できた場合はnilを返す。
// 同時ログインでidentityが先に作られていた場合は、作成したユーザーを削除して既存のidentityを返す。
func createUser(ctx context.Context, q querier, user *model.User, identity *model.Identity) (*model.Identity, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (id, email, name, avatar_url, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $6)`,
		user.ID, user.Email, user.Name, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	inserted, err := insertIdentity(ctx, q, identity, user.ID)
	if err != nil {
		return nil, err
	}
	if inserted {
		return nil, nil
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, user.ID); err != nil {
		return nil, fmt.Errorf("failed to discard duplicate user: %w", err)
	}

	existing, err := findIdentity(ctx, q, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("identity conflict without existing row")
	}
	return existing, nil
}
