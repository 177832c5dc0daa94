package store

import (
	"context"

	core "github.com/DomeLiquid/leverage"
)

func (s *Store) CreateOperate(ctx context.Context, op *core.Operate) error {
	return s.db.WithContext(ctx).Create(&operate{
		Id:        op.Id,
		Actor:     op.Actor,
		Op:        op.Op,
		Epoch:     op.Epoch,
		Extra:     op.Extra,
		CreatedAt: op.CreatedAt,
	}).Error
}

// ListOperates returns the newest operations first. Empty actor,
// ActionUnknown, a zero createdBeforeAt and a zero limit disable their
// filters.
func (s *Store) ListOperates(ctx context.Context, actor string, op core.ActionType, createdBeforeAt, limit int64) ([]core.Operate, error) {
	tx := s.db.WithContext(ctx).Model(&operate{})
	if actor != "" {
		tx = tx.Where("actor = ?", actor)
	}
	if op != core.ActionUnknown {
		tx = tx.Where("op = ?", op)
	}
	if createdBeforeAt > 0 {
		tx = tx.Where("created_at < ?", createdBeforeAt)
	}
	if limit > 0 {
		tx = tx.Limit(int(limit))
	}

	var rows []operate
	if err := tx.Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	operates := make([]core.Operate, 0, len(rows))
	for _, row := range rows {
		operates = append(operates, core.Operate{
			Id:        row.Id,
			Actor:     row.Actor,
			Op:        row.Op,
			Epoch:     row.Epoch,
			Extra:     row.Extra,
			CreatedAt: row.CreatedAt,
		})
	}
	return operates, nil
}
