package repository

import (
	"errors"
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/JunaidCD/AyurherbX-sub001/ledger"
	"github.com/JunaidCD/AyurherbX-sub001/repository/models"
)

// PostgreSQL error codes as constants
const (
	// Class 23 — Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 08 — Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure
)

// RepositoryError represents an error in the mirror layer (db)
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// Repository is the off-chain Postgres mirror of the ledger. Every write the
// facade sees confirmed on chain is reflected here for reporting and audit;
// the chain stays authoritative and mirror failures never fail a request.
type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
}

func NewRepository(logger cmtlog.Logger) *Repository {
	return &Repository{logger: logger}
}

// ConnectDB dials Postgres, retrying while the database container comes up.
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := 0; i < 10; i++ {
		db, err := gorm.Open(postgres.Open(dsn))
		if err == nil {
			r.db = db
			r.logger.Info("Connected to Postgres")
			return nil
		}
		lastErr = err
		r.logger.Info("Postgres connection attempt failed", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	return fmt.Errorf("connecting to postgres: %w", lastErr)
}

// Connected reports whether a database connection was established. The
// facade runs without the mirror when Postgres is unavailable.
func (r *Repository) Connected() bool {
	return r.db != nil
}

func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(
		&models.Collection{},
		&models.LedgerTx{},
	)
	if err != nil {
		return fmt.Errorf("migrating mirror schema: %w", err)
	}
	r.logger.Info("Database migration completed")
	return nil
}

// MirrorSubmit records a confirmed submission: the mirror row plus its
// audit entry, in one database transaction.
func (r *Repository) MirrorSubmit(record *ledger.CollectionRecord, txHash string, blockHeight int64) *RepositoryError {
	row := models.Collection{
		ID:        record.ID,
		HerbName:  record.HerbName,
		Quantity:  record.Quantity,
		BatchID:   record.BatchID,
		Location:  record.Location,
		Notes:     record.Notes,
		Collector: string(record.Collector),
		Timestamp: record.Timestamp,
		Verified:  record.Verified,
	}
	audit := models.LedgerTx{
		TxHash:       txHash,
		Type:         ledger.TxSubmitCollection,
		CollectionID: &record.ID,
		BlockHeight:  blockHeight,
		Signer:       string(record.Collector),
		Status:       "confirmed",
	}

	dbTx := r.db.Begin()
	if err := dbTx.Create(&row).Error; err != nil {
		dbTx.Rollback()
		return pgError(err)
	}
	if err := dbTx.Create(&audit).Error; err != nil {
		dbTx.Rollback()
		return pgError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return pgError(err)
	}
	return nil
}

// MirrorVerify flips the mirror row's verification state after the chain
// confirms it, and appends the audit entry.
func (r *Repository) MirrorVerify(id uint64, verifier string, txHash string, blockHeight int64) *RepositoryError {
	now := time.Now()
	audit := models.LedgerTx{
		TxHash:       txHash,
		Type:         ledger.TxVerifyCollection,
		CollectionID: &id,
		BlockHeight:  blockHeight,
		Signer:       verifier,
		Status:       "confirmed",
	}

	dbTx := r.db.Begin()
	err := dbTx.Model(&models.Collection{}).
		Where("collection_id = ?", id).
		Updates(map[string]interface{}{
			"is_verified": true,
			"verified_by": verifier,
			"verified_at": now,
		}).Error
	if err != nil {
		dbTx.Rollback()
		return pgError(err)
	}
	if err := dbTx.Create(&audit).Error; err != nil {
		dbTx.Rollback()
		return pgError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return pgError(err)
	}
	return nil
}

// MirrorOwnerUpdate appends the audit entry for an ownership change.
func (r *Repository) MirrorOwnerUpdate(signer, newOwner, txHash string, blockHeight int64) *RepositoryError {
	audit := models.LedgerTx{
		TxHash:      txHash,
		Type:        ledger.TxUpdateOwner,
		BlockHeight: blockHeight,
		Signer:      signer,
		Status:      "confirmed",
	}
	if err := r.db.Create(&audit).Error; err != nil {
		return pgError(err)
	}
	return nil
}

// History returns the audit trail, most recent first.
func (r *Repository) History(limit int) ([]models.LedgerTx, *RepositoryError) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var txs []models.LedgerTx
	err := r.db.Order("block_height desc, created_at desc").Limit(limit).Find(&txs).Error
	if err != nil {
		return nil, pgError(err)
	}
	return txs, nil
}

// CollectionHistory returns the audit entries touching one collection, in
// chain order.
func (r *Repository) CollectionHistory(id uint64) ([]models.LedgerTx, *RepositoryError) {
	var txs []models.LedgerTx
	err := r.db.Where("collection_id = ?", id).Order("block_height asc").Find(&txs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepositoryError{
				Code:    "ENTITY_NOT_FOUND",
				Message: "Collection has no recorded transactions",
				Detail:  fmt.Sprintf("no ledger txs recorded for collection %d", id),
			}
		}
		return nil, pgError(err)
	}
	return txs, nil
}

func pgError(err error) *RepositoryError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}
	return &RepositoryError{
		Code:    "DATABASE_ERROR",
		Message: "Database error occurred",
		Detail:  err.Error(),
	}
}
