package database

import (
	"context"
	"fmt"

	"whatsapp-inbox/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TableCount is the number of rows written to one table by CopyAll.
type TableCount struct {
	Table  string
	Copied int64
}

type tableCopier struct {
	table string
	copy  func(ctx context.Context, src, dst *gorm.DB, batch int) (int64, error)
}

// copiers run in dependency order so foreign keys resolve on the target.
var copiers = []tableCopier{
	{"accounts", copyTable[models.Account]},
	{"contacts", copyTable[models.Contact]},
	{"conversations", copyTable[models.Conversation]},
	{"messages", copyTable[models.Message]},
	{"automations", copyTable[models.Automation]},
	{"automation_logs", copyTable[models.AutomationLog]},
	{"broadcasts", copyTable[models.Broadcast]},
	{"payment_links", copyTable[models.PaymentLink]},
	{"subscriptions", copyTable[models.Subscription]},
}

// CopyAll copies every table from src to dst in batches. Rows whose id already
// exists on dst are skipped, so an interrupted copy can be rerun.
func CopyAll(ctx context.Context, src, dst *gorm.DB, batch int) ([]TableCount, error) {
	if batch <= 0 {
		batch = 500
	}
	counts := make([]TableCount, 0, len(copiers))
	for _, c := range copiers {
		n, err := c.copy(ctx, src, dst, batch)
		if err != nil {
			return counts, fmt.Errorf("copy %s: %w", c.table, err)
		}
		log.Info().Str("table", c.table).Int64("rows", n).Msg("table copied")
		counts = append(counts, TableCount{Table: c.table, Copied: n})
	}
	return counts, nil
}

func copyTable[T any](ctx context.Context, src, dst *gorm.DB, batch int) (int64, error) {
	var rows []T
	var copied int64
	res := src.WithContext(ctx).FindInBatches(&rows, batch, func(_ *gorm.DB, _ int) error {
		ins := dst.WithContext(ctx).
			Session(&gorm.Session{SkipHooks: true}).
			Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&rows)
		if ins.Error != nil {
			return ins.Error
		}
		copied += ins.RowsAffected
		return nil
	})
	return copied, res.Error
}
