package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

var ErrDuplicateTick = errors.New("duplicate tick skipped")

// InsertTick stores rec, returning ErrDuplicateTick when the same
// (symbol, observed_at, source) row already exists.
func (c *Client) InsertTick(ctx context.Context, rec *TickRecord) error {
	tx := c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "observed_at"},
			{Name: "source"},
		},
		DoNothing: true,
	}).Create(rec)

	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: symbol=%s observed_at=%s source=%s",
			ErrDuplicateTick, rec.Symbol, rec.ObservedAt.Format(time.RFC3339Nano), rec.Source)
	}
	return nil
}

// SaveTick is InsertTick that treats duplicates as success.
func (c *Client) SaveTick(ctx context.Context, rec TickRecord) error {
	if err := c.InsertTick(ctx, &rec); err != nil && !errors.Is(err, ErrDuplicateTick) {
		return err
	}
	return nil
}

// LatestTicks returns up to limit records for symbol, newest first.
func (c *Client) LatestTicks(ctx context.Context, symbol string, limit int) ([]TickRecord, error) {
	var out []TickRecord
	err := c.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("observed_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOlderThan removes records observed before cutoff.
func (c *Client) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := c.DB.WithContext(ctx).
		Where("observed_at < ?", cutoff.UTC()).
		Delete(&TickRecord{})
	return tx.RowsAffected, tx.Error
}
