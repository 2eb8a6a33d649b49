package models

import "time"

// CreditBucket - остаток предоплаченных часов. GroupID == nil - личный пакет.
type CreditBucket struct {
	ID             int64     `db:"id" json:"id"`
	OwnerUserID    int64     `db:"owner_user_id" json:"owner_user_id"`
	GroupID        *int64    `db:"group_id" json:"group_id,omitempty"`
	HoursRemaining float64   `db:"hours_remaining" json:"hours_remaining"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ConsumptionRecord - строка журнала списаний, только добавление.
type ConsumptionRecord struct {
	ID         int64     `db:"id" json:"id"`
	BucketID   int64     `db:"bucket_id" json:"bucket_id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	AdminID    int64     `db:"admin_id" json:"admin_id"`
	Amount     float64   `db:"amount" json:"amount"`
	ConsumedAt time.Time `db:"consumed_at" json:"consumed_at"`
}
