package credit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	database "spectrum-club/pkg"
)

type creditRepository struct {
	db *sqlx.DB
}

func NewCreditRepository(db *sqlx.DB) repository.CreditRepository {
	return &creditRepository{db: db}
}

// eligibleFilter - личные пакеты пользователя ($1) плюс пакеты его активных групп ($2).
const eligibleFilter = `
	(owner_user_id = $1 AND group_id IS NULL) OR group_id = ANY($2::bigint[])
`

func groupArray(groupIDs []int64) interface{} {
	if groupIDs == nil {
		groupIDs = []int64{}
	}
	return pq.Array(groupIDs)
}

func (r *creditRepository) CreateBucket(ctx context.Context, bucket *models.CreditBucket) error {
	query := `
		INSERT INTO club.credit_buckets (owner_user_id, group_id, hours_remaining)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, bucket.OwnerUserID, bucket.GroupID, bucket.HoursRemaining)
	if err := row.Scan(&bucket.ID, &bucket.CreatedAt); err != nil {
		return database.Translate(err)
	}
	return nil
}

func (r *creditRepository) HoursAvailable(ctx context.Context, userID int64, groupIDs []int64) (float64, error) {
	query := `SELECT COALESCE(SUM(hours_remaining), 0) FROM club.credit_buckets WHERE ` + eligibleFilter

	var hours float64
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &hours, query, userID, groupArray(groupIDs)); err != nil {
		return 0, err
	}
	return hours, nil
}

func (r *creditRepository) EligibleBucketIDs(ctx context.Context, userID int64, groupIDs []int64) ([]int64, error) {
	query := `SELECT id FROM club.credit_buckets WHERE ` + eligibleFilter + ` ORDER BY id`

	var ids []int64
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &ids, query, userID, groupArray(groupIDs)); err != nil {
		return nil, err
	}
	return ids, nil
}

// LockBuckets - ORDER BY id выполняется до LockRows, поэтому строки блокируются
// строго по возрастанию id во всех вызовах.
func (r *creditRepository) LockBuckets(ctx context.Context, ids []int64) ([]models.CreditBucket, error) {
	if !database.InTx(ctx) {
		return nil, fmt.Errorf("lock buckets outside of a transaction: %w", apperr.ErrInvalidState)
	}

	query := `
		SELECT id, owner_user_id, group_id, hours_remaining, created_at
		FROM club.credit_buckets
		WHERE id = ANY($1::bigint[])
		ORDER BY id
		FOR UPDATE
	`
	var buckets []models.CreditBucket
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &buckets, query, pq.Array(ids)); err != nil {
		return nil, database.Translate(err)
	}
	return buckets, nil
}

func (r *creditRepository) Debit(ctx context.Context, bucketID int64, amount float64) error {
	query := `
		UPDATE club.credit_buckets
		SET hours_remaining = hours_remaining - $1
		WHERE id = $2 AND hours_remaining >= $1
	`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, amount, bucketID)
	if err != nil {
		return database.Translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("bucket %d cannot cover %.1fh: %w", bucketID, amount, apperr.ErrConflict)
	}
	return nil
}

func (r *creditRepository) AppendConsumption(ctx context.Context, record *models.ConsumptionRecord) error {
	query := `
		INSERT INTO club.credit_consumptions (bucket_id, user_id, admin_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, consumed_at
	`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, record.BucketID, record.UserID, record.AdminID, record.Amount)
	if err := row.Scan(&record.ID, &record.ConsumedAt); err != nil {
		return database.Translate(err)
	}
	return nil
}

func (r *creditRepository) History(ctx context.Context, userID int64, limit int) ([]models.ConsumptionRecord, error) {
	query := `
		SELECT id, bucket_id, user_id, admin_id, amount, consumed_at
		FROM club.credit_consumptions
		WHERE user_id = $1
		ORDER BY consumed_at DESC, id DESC
		LIMIT $2
	`
	var records []models.ConsumptionRecord
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &records, query, userID, limit); err != nil {
		return nil, err
	}
	return records, nil
}
