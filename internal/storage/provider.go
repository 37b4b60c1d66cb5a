package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gadify-server/internal/config"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateActiveReport is returned when inserting an active report
	// for a device that already has one. Backed by the partial unique index
	// on device_reports in SQL, and checked under the lock in memory.
	ErrDuplicateActiveReport = errors.New("device already has an active report")
)

type Provider interface {
	Close() error
	GetSchemaVersion(ctx context.Context) (int, error)

	// Profile methods
	CreateProfile(ctx context.Context, profile Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)
	UpdateProfile(ctx context.Context, profile Profile) error
	ListStudents(ctx context.Context, search string) ([]Profile, error)
	UpdateStudentStatus(ctx context.Context, id string, status ProfileStatus) error

	// Device methods
	CreateDevice(ctx context.Context, device Device) error
	GetDevice(ctx context.Context, deviceID string) (*Device, error)
	ListDevicesByOwner(ctx context.Context, ownerID string) ([]Device, error)
	ListDevices(ctx context.Context, status DeviceStatus) ([]Device, error)
	SearchDevicesBySerial(ctx context.Context, serial string) ([]Device, error)
	// UpdateDeviceStatus flips a device from one status to another. The
	// expected current status is part of the match: a false return means no
	// row was in that status, which callers surface as a stale or repeated
	// transition. Verification provenance is written when v is non-nil.
	UpdateDeviceStatus(ctx context.Context, deviceID string, from, to DeviceStatus, v *Verification) (bool, error)

	// Report methods
	CreateReport(ctx context.Context, report Report) error
	GetReport(ctx context.Context, reportID string) (*Report, error)
	HasActiveReport(ctx context.Context, deviceID string) (bool, error)
	ListActiveReports(ctx context.Context) ([]Report, error)
	ListReportsByOwner(ctx context.Context, ownerID string) ([]Report, error)
	ListReports(ctx context.Context, status ReportStatus, incident IncidentType) ([]Report, error)
	// ResolveReport closes an active report. A false return means the report
	// was not active (already resolved, or racing with another resolver).
	ResolveReport(ctx context.Context, reportID string, res Resolution) (bool, error)

	// Nonce methods (session revocation)
	CreateNonce(ctx context.Context, nonce string, expiresAt time.Time) error
	ExistsNonce(ctx context.Context, nonce string) (bool, error)
	ConsumeNonce(ctx context.Context, nonce string) (bool, error)
	ExpireNonces(ctx context.Context, now time.Time) error

	// Reporting reads
	CountDevicesByStatus(ctx context.Context) (map[DeviceStatus]int, error)
	CountDevicesByType(ctx context.Context) (map[DeviceType]int, error)
	CountReportsByStatus(ctx context.Context) (map[ReportStatus]int, error)
	ListRecentDevices(ctx context.Context, limit int) ([]Device, error)
	RegistrationDates(ctx context.Context, since time.Time) ([]time.Time, error)
}

func NewProvider(config *config.Storage) Provider {
	switch {
	case config.Memory:
		return NewMemoryProvider()

	case config.SQLite != nil:
		provider := NewSQLiteProvider(config)
		if provider == nil {
			return nil
		}
		if err := provider.runMigrations("sqlite3"); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			return nil
		}
		return provider

	default:
		slog.Error("Unsupported storage configuration", "config", config)
	}

	return nil
}
