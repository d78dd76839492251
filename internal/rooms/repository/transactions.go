package repository

import (
	"context"
	mongotx "roombook/pkg/db/mongo"
)

func (r *mongoRoomRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
