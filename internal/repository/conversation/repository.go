package conversation

import (
	"context"

	"github.com/xpanvictor/voxline/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/voxline/pkg/utils"
	"gorm.io/gorm"
)

type GormTurnRepo struct {
	db *gorm.DB
}

var _ pipeline.TurnArchive = (*GormTurnRepo)(nil)

// NewGormTurnRepo stores turns in the voice_turns table.
func NewGormTurnRepo(db *gorm.DB) *GormTurnRepo {
	return &GormTurnRepo{db: db}
}

// Record implements pipeline.TurnArchive.
func (g *GormTurnRepo) Record(ctx context.Context, rec pipeline.TurnRecord) error {
	var te TurnEntity
	te.FromDomain(rec)
	if err := g.db.WithContext(ctx).Create(&te).Error; err != nil {
		return utils.NewError(utils.KindInternal, "archiving turn", err)
	}
	return nil
}

// ListBySession returns the session's archived turns, oldest first.
// limit <= 0 returns all of them.
func (g *GormTurnRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]pipeline.TurnRecord, error) {
	var rows []TurnEntity
	q := g.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("started_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, utils.NewError(utils.KindInternal, "listing turns", err)
	}
	out := make([]pipeline.TurnRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}
