// Package store persists profiles and issued invoices with gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rezonia/erp-invoicer/internal/logger"
	"github.com/rezonia/erp-invoicer/internal/model"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database. logLevel follows the service log level.
func Open(driver, dsn string, zapLogger *zap.Logger, logLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, model.NewConfigurationError(fmt.Sprintf("unsupported database driver %q", driver), "database.driver")
	}

	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(zapLogger, logger.GormLevel(logLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, nil
}

// Store is the gorm-backed local store
type Store struct {
	db *gorm.DB
}

// New wraps an open database
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AutoMigrate creates or updates the tables
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ProfileRecord{}, &InvoiceRecord{})
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetProfile loads a profile. An absent profile is a *model.LookupError.
func (s *Store) GetProfile(ctx context.Context, userID string) (model.Profile, error) {
	var rec ProfileRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Profile{}, model.NewLookupError("profile", userID)
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return rec.toModel(), nil
}

// UpsertProfile creates a profile or updates its contact details. A cached
// partner id is never cleared.
func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) error {
	rec := ProfileRecord{
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		Email:        p.Email,
		Phone:        p.Phone,
		ErpPartnerID: p.ErpPartnerID,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "phone", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.UserID, err)
	}
	return nil
}

// SavePartnerID caches partnerID on the profile only if none is cached yet
// and returns the id that ends up cached. A concurrent writer that got there
// first wins.
func (s *Store) SavePartnerID(ctx context.Context, userID string, partnerID int64) (int64, error) {
	result := s.db.WithContext(ctx).Model(&ProfileRecord{}).
		Where("user_id = ? AND erp_partner_id IS NULL", userID).
		Update("erp_partner_id", partnerID)
	if result.Error != nil {
		return 0, fmt.Errorf("save partner id for %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 1 {
		return partnerID, nil
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if cached, ok := profile.CachedPartnerID(); ok {
		return cached, nil
	}
	return 0, fmt.Errorf("save partner id for %s: no row updated", userID)
}

// ReconcileInvoice records a remote invoice locally. The linked local invoice
// is updated when given, else the record for the same ERP invoice, else a new
// one is created. It returns the local invoice id.
func (s *Store) ReconcileInvoice(ctx context.Context, rec model.Reconciliation) (string, error) {
	var localID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row InvoiceRecord
		var err error
		switch {
		case rec.LocalInvoiceID != "":
			err = tx.Where("id = ?", rec.LocalInvoiceID).First(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.NewLookupError("invoice", rec.LocalInvoiceID)
			}
		default:
			err = tx.Where("erp_invoice_id = ?", rec.Remote.ID).First(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				row = InvoiceRecord{ID: uuid.NewString()}
				err = nil
			}
		}
		if err != nil {
			return err
		}

		row.apply(rec)
		localID = row.ID
		return tx.Save(&row).Error
	})
	if err != nil {
		return "", fmt.Errorf("reconcile invoice %d: %w", rec.Remote.ID, err)
	}
	return localID, nil
}

// CreatePendingInvoice records a local invoice before it exists in the ERP.
// Its id is passed as the link id of the issuing request.
func (s *Store) CreatePendingInvoice(ctx context.Context, userID string, kind model.PurchaseKind, description string) (string, error) {
	rec := InvoiceRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		PurchaseKind: string(kind),
		Description:  description,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("create pending invoice for %s: %w", userID, err)
	}
	return rec.ID, nil
}

// GetInvoice loads a local invoice. An absent invoice is a *model.LookupError.
func (s *Store) GetInvoice(ctx context.Context, id string) (model.LocalInvoice, error) {
	var rec InvoiceRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.LocalInvoice{}, model.NewLookupError("invoice", id)
	}
	if err != nil {
		return model.LocalInvoice{}, fmt.Errorf("load invoice %s: %w", id, err)
	}
	return rec.toModel(), nil
}

// SaveInvoiceQR stores a QR payload unless one is already present
func (s *Store) SaveInvoiceQR(ctx context.Context, id, qr string) error {
	result := s.db.WithContext(ctx).Model(&InvoiceRecord{}).
		Where("id = ? AND (qr_payload IS NULL OR qr_payload = '')", id).
		Update("qr_payload", qr)
	if result.Error != nil {
		return fmt.Errorf("save qr for invoice %s: %w", id, result.Error)
	}
	return nil
}

// ListMissingQR returns ids of taxed, posted and numbered invoices that still
// lack a QR
func (s *Store) ListMissingQR(ctx context.Context, limit int) ([]string, error) {
	var out []string
	q := s.db.WithContext(ctx).Model(&InvoiceRecord{}).
		Where("(qr_payload IS NULL OR qr_payload = '') AND vat_rate > 0").
		Where("state = ?", string(model.InvoiceStatePosted)).
		Where("document_number NOT IN ?", []string{"", model.DraftDocumentNumber}).
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &out).Error; err != nil {
		return nil, fmt.Errorf("list invoices missing qr: %w", err)
	}
	return out, nil
}
