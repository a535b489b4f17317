package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// TerminalAction is what happens to a subscription once the dunning
// schedule is exhausted and the grace period has expired
type TerminalAction string

const (
	TerminalActionCancel    TerminalAction = "cancel"
	TerminalActionDowngrade TerminalAction = "downgrade"
)

// RetryOffsets is an ordered ascending list of day offsets after the first
// failure at which collection is retried, stored as JSONB
type RetryOffsets []int

// Value implements driver.Valuer interface
func (r RetryOffsets) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner interface
func (r *RetryOffsets) Scan(src interface{}) error {
	if src == nil {
		*r = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		*r = nil
		return nil
	}
}

// DunningSchedule configures retry cadence and the terminal action for
// failed subscription renewals.
type DunningSchedule struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:100;not null" json:"name"`

	// e.g. [0, 1, 3, 7]
	RetryOffsets    RetryOffsets   `gorm:"type:jsonb;not null" json:"retry_offsets"`
	GracePeriodDays int            `gorm:"not null;default:7" json:"grace_period_days"`
	TerminalAction  TerminalAction `gorm:"size:20;not null;default:'downgrade'" json:"terminal_action"`

	NotifyEmail bool `gorm:"default:true" json:"notify_email"`
	NotifySMS   bool `gorm:"default:true" json:"notify_sms"`

	IsActive  bool `gorm:"default:true" json:"is_active"`
	IsDefault bool `gorm:"default:false" json:"is_default"`

	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (DunningSchedule) TableName() string {
	return "dunning_schedules"
}

// Offsets returns the retry schedule, falling back to the stock
// 0/1/3/7 cadence when none is configured.
func (d *DunningSchedule) Offsets() []int {
	if len(d.RetryOffsets) > 0 {
		return d.RetryOffsets
	}
	return []int{0, 1, 3, 7}
}
