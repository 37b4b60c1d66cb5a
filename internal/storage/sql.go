package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"gadify-server/internal/config"
)

type SQLProvider struct {
	db *sqlx.DB

	config *config.Storage

	logger *slog.Logger
}

func NewSQLProvider(config *config.Storage, driverName string, dataSource string) (provider *SQLProvider) {
	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil
	}

	logger := slog.With("component", "storage")

	return &SQLProvider{
		db:     db,
		config: config,
		logger: logger,
	}
}

func (p *SQLProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *SQLProvider) GetSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := p.db.GetContext(ctx, &version, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Profiles

func (p *SQLProvider) CreateProfile(ctx context.Context, profile Profile) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO profiles (
			id, email, full_name, matric_number, staff_id, phone_number, role,
			department, study_level, hall_of_residence, home_address, biography,
			status, password_hash, created_at, updated_at
		) VALUES (
			:id, :email, :full_name, :matric_number, :staff_id, :phone_number, :role,
			:department, :study_level, :hall_of_residence, :home_address, :biography,
			:status, :password_hash, :created_at, :updated_at
		)`, profile)
	return err
}

func (p *SQLProvider) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var profile Profile
	err := p.db.GetContext(ctx, &profile, `SELECT * FROM profiles WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *SQLProvider) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	var profile Profile
	err := p.db.GetContext(ctx, &profile, `SELECT * FROM profiles WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile writes the descriptive profile fields. Role, status and
// credentials are managed through their own methods.
func (p *SQLProvider) UpdateProfile(ctx context.Context, profile Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	result, err := p.db.NamedExecContext(ctx, `
		UPDATE profiles SET
			full_name = :full_name,
			matric_number = :matric_number,
			phone_number = :phone_number,
			department = :department,
			study_level = :study_level,
			hall_of_residence = :hall_of_residence,
			home_address = :home_address,
			biography = :biography,
			updated_at = :updated_at
		WHERE id = :id`, profile)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *SQLProvider) ListStudents(ctx context.Context, search string) ([]Profile, error) {
	profiles := []Profile{}
	if search == "" {
		err := p.db.SelectContext(ctx, &profiles,
			`SELECT * FROM profiles WHERE role = ? ORDER BY full_name`, RoleStudent)
		return profiles, err
	}
	pattern := "%" + search + "%"
	err := p.db.SelectContext(ctx, &profiles, `
		SELECT * FROM profiles
		WHERE role = ?
		  AND (full_name LIKE ? OR matric_number LIKE ? OR email LIKE ?)
		ORDER BY full_name`,
		RoleStudent, pattern, pattern, pattern)
	return profiles, err
}

func (p *SQLProvider) UpdateStudentStatus(ctx context.Context, id string, status ProfileStatus) error {
	// Role condition so staff accounts cannot be flagged through this path
	result, err := p.db.ExecContext(ctx,
		`UPDATE profiles SET status = ?, updated_at = ? WHERE id = ? AND role = ?`,
		status, time.Now().UTC(), id, RoleStudent)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Devices

func (p *SQLProvider) CreateDevice(ctx context.Context, device Device) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO devices (
			id, user_id, name, serial_number, brand, model, type, status,
			additional_details, verified_by, verification_date, verification_notes,
			image_url, created_at, updated_at
		) VALUES (
			:id, :user_id, :name, :serial_number, :brand, :model, :type, :status,
			:additional_details, :verified_by, :verification_date, :verification_notes,
			:image_url, :created_at, :updated_at
		)`, device)
	return err
}

func (p *SQLProvider) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	var device Device
	err := p.db.GetContext(ctx, &device, `SELECT * FROM devices WHERE id = ?`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (p *SQLProvider) ListDevicesByOwner(ctx context.Context, ownerID string) ([]Device, error) {
	devices := []Device{}
	err := p.db.SelectContext(ctx, &devices,
		`SELECT * FROM devices WHERE user_id = ? ORDER BY created_at DESC`, ownerID)
	return devices, err
}

func (p *SQLProvider) ListDevices(ctx context.Context, status DeviceStatus) ([]Device, error) {
	devices := []Device{}
	if status == "" {
		err := p.db.SelectContext(ctx, &devices,
			`SELECT * FROM devices ORDER BY created_at DESC`)
		return devices, err
	}
	err := p.db.SelectContext(ctx, &devices,
		`SELECT * FROM devices WHERE status = ? ORDER BY created_at DESC`, status)
	return devices, err
}

func (p *SQLProvider) SearchDevicesBySerial(ctx context.Context, serial string) ([]Device, error) {
	devices := []Device{}
	err := p.db.SelectContext(ctx, &devices,
		`SELECT * FROM devices WHERE serial_number LIKE ? ORDER BY created_at DESC`,
		"%"+serial+"%")
	return devices, err
}

func (p *SQLProvider) UpdateDeviceStatus(ctx context.Context, deviceID string, from, to DeviceStatus, v *Verification) (bool, error) {
	var result sql.Result
	var err error

	if v != nil {
		result, err = p.db.ExecContext(ctx, `
			UPDATE devices SET
				status = ?, verified_by = ?, verification_date = ?,
				verification_notes = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			to, v.VerifiedBy, v.Date, v.Notes, time.Now().UTC(), deviceID, from)
	} else {
		result, err = p.db.ExecContext(ctx,
			`UPDATE devices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, time.Now().UTC(), deviceID, from)
	}
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Reports

func (p *SQLProvider) CreateReport(ctx context.Context, report Report) error {
	err := p.createReport(ctx, report)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: device_reports.device_id") {
		return ErrDuplicateActiveReport
	}
	return err
}

func (p *SQLProvider) createReport(ctx context.Context, report Report) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO device_reports (
			id, device_id, user_id, incident_type, incident_date, location,
			description, police_report, status, resolution_type, resolved_by,
			resolution_date, resolution_notes, created_at, updated_at
		) VALUES (
			:id, :device_id, :user_id, :incident_type, :incident_date, :location,
			:description, :police_report, :status, :resolution_type, :resolved_by,
			:resolution_date, :resolution_notes, :created_at, :updated_at
		)`, report)
	return err
}

func (p *SQLProvider) GetReport(ctx context.Context, reportID string) (*Report, error) {
	var report Report
	err := p.db.GetContext(ctx, &report, `SELECT * FROM device_reports WHERE id = ?`, reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (p *SQLProvider) HasActiveReport(ctx context.Context, deviceID string) (bool, error) {
	var count int
	err := p.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM device_reports WHERE device_id = ? AND status = ?`,
		deviceID, ReportStatusActive)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *SQLProvider) ListActiveReports(ctx context.Context) ([]Report, error) {
	return p.ListReports(ctx, ReportStatusActive, "")
}

func (p *SQLProvider) ListReportsByOwner(ctx context.Context, ownerID string) ([]Report, error) {
	reports := []Report{}
	err := p.db.SelectContext(ctx, &reports,
		`SELECT * FROM device_reports WHERE user_id = ? ORDER BY created_at DESC`, ownerID)
	return reports, err
}

func (p *SQLProvider) ListReports(ctx context.Context, status ReportStatus, incident IncidentType) ([]Report, error) {
	query := `SELECT * FROM device_reports WHERE 1=1`
	args := []any{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if incident != "" {
		query += ` AND incident_type = ?`
		args = append(args, incident)
	}
	query += ` ORDER BY created_at DESC`

	reports := []Report{}
	err := p.db.SelectContext(ctx, &reports, query, args...)
	return reports, err
}

func (p *SQLProvider) ResolveReport(ctx context.Context, reportID string, res Resolution) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE device_reports SET
			status = ?, resolution_type = ?, resolved_by = ?,
			resolution_date = ?, resolution_notes = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		ReportStatusResolved, res.Type, res.ResolvedBy, res.Date, res.Notes,
		time.Now().UTC(), reportID, ReportStatusActive)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Nonces

func (p *SQLProvider) CreateNonce(ctx context.Context, nonce string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO nonces (nonce, expires_at) VALUES (?, ?)`, nonce, expiresAt)
	return err
}

func (p *SQLProvider) ExistsNonce(ctx context.Context, nonce string) (bool, error) {
	var count int
	err := p.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM nonces WHERE nonce = ? AND expires_at > ?`, nonce, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *SQLProvider) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM nonces WHERE nonce = ? AND expires_at > ?`, nonce, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *SQLProvider) ExpireNonces(ctx context.Context, now time.Time) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM nonces WHERE expires_at <= ?`, now)
	return err
}

// Reporting reads

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

func (p *SQLProvider) CountDevicesByStatus(ctx context.Context) (map[DeviceStatus]int, error) {
	rows := []statusCount{}
	err := p.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM devices GROUP BY status`)
	if err != nil {
		return nil, err
	}
	counts := make(map[DeviceStatus]int, len(rows))
	for _, row := range rows {
		counts[DeviceStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func (p *SQLProvider) CountDevicesByType(ctx context.Context) (map[DeviceType]int, error) {
	rows := []struct {
		Type  string `db:"type"`
		Count int    `db:"count"`
	}{}
	err := p.db.SelectContext(ctx, &rows,
		`SELECT type, COUNT(*) AS count FROM devices GROUP BY type`)
	if err != nil {
		return nil, err
	}
	counts := make(map[DeviceType]int, len(rows))
	for _, row := range rows {
		counts[DeviceType(row.Type)] = row.Count
	}
	return counts, nil
}

func (p *SQLProvider) CountReportsByStatus(ctx context.Context) (map[ReportStatus]int, error) {
	rows := []statusCount{}
	err := p.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM device_reports GROUP BY status`)
	if err != nil {
		return nil, err
	}
	counts := make(map[ReportStatus]int, len(rows))
	for _, row := range rows {
		counts[ReportStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// ListRecentDevices returns devices for the staff dashboard: pending first,
// then newest registrations.
func (p *SQLProvider) ListRecentDevices(ctx context.Context, limit int) ([]Device, error) {
	devices := []Device{}
	err := p.db.SelectContext(ctx, &devices, `
		SELECT * FROM devices
		ORDER BY CASE WHEN status = ? THEN 0 ELSE 1 END, created_at DESC
		LIMIT ?`, DeviceStatusPending, limit)
	return devices, err
}

func (p *SQLProvider) RegistrationDates(ctx context.Context, since time.Time) ([]time.Time, error) {
	dates := []time.Time{}
	err := p.db.SelectContext(ctx, &dates,
		`SELECT created_at FROM devices WHERE created_at >= ? ORDER BY created_at`, since)
	return dates, err
}
