package archive

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickRecord is one accepted price record.
type TickRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol     string    `gorm:"type:varchar(20);not null;index:idx_tick_symbol;index:idx_tick_symbol_observed_source,unique"`
	ObservedAt time.Time `gorm:"not null;index:idx_tick_observed_at;index:idx_tick_symbol_observed_source,unique"`
	Source     string    `gorm:"type:varchar(24);not null;index:idx_tick_symbol_observed_source,unique"`

	Price      decimal.Decimal `gorm:"type:numeric;not null"`
	ServerTime *time.Time
	LatencyMs  int64  `gorm:"not null;default:0"`
	Quality    string `gorm:"type:varchar(16)"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (TickRecord) TableName() string {
	return "price_tick"
}
