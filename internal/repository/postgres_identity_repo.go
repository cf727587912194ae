package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/socialsense/internal/model"
)

// findIdentity はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func findIdentity(ctx context.Context, q querier, provider, providerUserID string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_user_id, created_at
		 FROM identities
		 WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.ProviderUserID, &identity.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return identity, nil
}

// insertIdentity はidentityを作成する。同じ(provider, provider_user_id)が既にある場合は
// 何もせずfalseを返す。他のトランザクションが挿入中の場合はその完了を待つ。
func insertIdentity(ctx context.Context, q querier, identity *model.Identity, userID string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (provider, provider_user_id) DO NOTHING`,
		identity.ID, userID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert identity: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert identity: %w", err)
	}
	return n == 1, nil
}
