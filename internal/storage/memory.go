package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryProvider holds all rows in maps protected by a RWMutex. Used by
// tests and as a throwaway development backend; guarded status updates are
// atomic under the lock, matching the row-level semantics of the SQL
// provider.
type MemoryProvider struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	devices  map[string]Device
	reports  map[string]Report
	nonces   map[string]time.Time
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		profiles: make(map[string]Profile),
		devices:  make(map[string]Device),
		reports:  make(map[string]Report),
		nonces:   make(map[string]time.Time),
	}
}

func (m *MemoryProvider) Close() error { return nil }

func (m *MemoryProvider) GetSchemaVersion(ctx context.Context) (int, error) { return 1, nil }

// Profiles

func (m *MemoryProvider) CreateProfile(ctx context.Context, profile Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.profiles[profile.ID]; exists {
		return errors.New("profile already exists")
	}
	for _, existing := range m.profiles {
		if existing.Email == profile.Email {
			return errors.New("email already registered")
		}
	}
	m.profiles[profile.ID] = profile
	return nil
}

func (m *MemoryProvider) GetProfile(ctx context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, exists := m.profiles[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &profile, nil
}

func (m *MemoryProvider) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, profile := range m.profiles {
		if profile.Email == email {
			return &profile, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryProvider) UpdateProfile(ctx context.Context, profile Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, exists := m.profiles[profile.ID]
	if !exists {
		return ErrNotFound
	}
	existing.FullName = profile.FullName
	existing.MatricNumber = profile.MatricNumber
	existing.PhoneNumber = profile.PhoneNumber
	existing.Department = profile.Department
	existing.StudyLevel = profile.StudyLevel
	existing.HallOfResidence = profile.HallOfResidence
	existing.HomeAddress = profile.HomeAddress
	existing.Biography = profile.Biography
	existing.UpdatedAt = time.Now().UTC()
	m.profiles[profile.ID] = existing
	return nil
}

func (m *MemoryProvider) ListStudents(ctx context.Context, search string) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	students := []Profile{}
	needle := strings.ToLower(search)
	for _, profile := range m.profiles {
		if profile.Role != RoleStudent {
			continue
		}
		if needle != "" && !profileMatches(profile, needle) {
			continue
		}
		students = append(students, profile)
	}
	sort.Slice(students, func(i, j int) bool {
		return students[i].FullName < students[j].FullName
	})
	return students, nil
}

func profileMatches(profile Profile, needle string) bool {
	if strings.Contains(strings.ToLower(profile.FullName), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(profile.Email), needle) {
		return true
	}
	if profile.MatricNumber != nil && strings.Contains(strings.ToLower(*profile.MatricNumber), needle) {
		return true
	}
	return false
}

func (m *MemoryProvider) UpdateStudentStatus(ctx context.Context, id string, status ProfileStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, exists := m.profiles[id]
	if !exists || profile.Role != RoleStudent {
		return ErrNotFound
	}
	profile.Status = status
	profile.UpdatedAt = time.Now().UTC()
	m.profiles[id] = profile
	return nil
}

// Devices

func (m *MemoryProvider) CreateDevice(ctx context.Context, device Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.devices[device.ID]; exists {
		return errors.New("device already exists")
	}
	m.devices[device.ID] = device
	return nil
}

func (m *MemoryProvider) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, exists := m.devices[deviceID]
	if !exists {
		return nil, ErrNotFound
	}
	return &device, nil
}

func (m *MemoryProvider) ListDevicesByOwner(ctx context.Context, ownerID string) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devices := []Device{}
	for _, device := range m.devices {
		if device.UserID == ownerID {
			devices = append(devices, device)
		}
	}
	sortDevicesNewestFirst(devices)
	return devices, nil
}

func (m *MemoryProvider) ListDevices(ctx context.Context, status DeviceStatus) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devices := []Device{}
	for _, device := range m.devices {
		if status == "" || device.Status == status {
			devices = append(devices, device)
		}
	}
	sortDevicesNewestFirst(devices)
	return devices, nil
}

func (m *MemoryProvider) SearchDevicesBySerial(ctx context.Context, serial string) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(serial)
	devices := []Device{}
	for _, device := range m.devices {
		if strings.Contains(strings.ToLower(device.SerialNumber), needle) {
			devices = append(devices, device)
		}
	}
	sortDevicesNewestFirst(devices)
	return devices, nil
}

func sortDevicesNewestFirst(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})
}

func (m *MemoryProvider) UpdateDeviceStatus(ctx context.Context, deviceID string, from, to DeviceStatus, v *Verification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	device, exists := m.devices[deviceID]
	if !exists || device.Status != from {
		return false, nil
	}
	device.Status = to
	if v != nil {
		verifiedBy := v.VerifiedBy
		date := v.Date
		device.VerifiedBy = &verifiedBy
		device.VerificationDate = &date
		device.VerificationNotes = v.Notes
	}
	device.UpdatedAt = time.Now().UTC()
	m.devices[deviceID] = device
	return true, nil
}

// Reports

func (m *MemoryProvider) CreateReport(ctx context.Context, report Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reports[report.ID]; exists {
		return errors.New("report already exists")
	}
	if report.Status == ReportStatusActive {
		for _, existing := range m.reports {
			if existing.DeviceID == report.DeviceID && existing.Status == ReportStatusActive {
				return ErrDuplicateActiveReport
			}
		}
	}
	m.reports[report.ID] = report
	return nil
}

func (m *MemoryProvider) GetReport(ctx context.Context, reportID string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	report, exists := m.reports[reportID]
	if !exists {
		return nil, ErrNotFound
	}
	return &report, nil
}

func (m *MemoryProvider) HasActiveReport(ctx context.Context, deviceID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, report := range m.reports {
		if report.DeviceID == deviceID && report.Status == ReportStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryProvider) ListActiveReports(ctx context.Context) ([]Report, error) {
	return m.ListReports(ctx, ReportStatusActive, "")
}

func (m *MemoryProvider) ListReportsByOwner(ctx context.Context, ownerID string) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reports := []Report{}
	for _, report := range m.reports {
		if report.UserID == ownerID {
			reports = append(reports, report)
		}
	}
	sortReportsNewestFirst(reports)
	return reports, nil
}

func (m *MemoryProvider) ListReports(ctx context.Context, status ReportStatus, incident IncidentType) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reports := []Report{}
	for _, report := range m.reports {
		if status != "" && report.Status != status {
			continue
		}
		if incident != "" && report.IncidentType != incident {
			continue
		}
		reports = append(reports, report)
	}
	sortReportsNewestFirst(reports)
	return reports, nil
}

func sortReportsNewestFirst(reports []Report) {
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
}

func (m *MemoryProvider) ResolveReport(ctx context.Context, reportID string, res Resolution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, exists := m.reports[reportID]
	if !exists || report.Status != ReportStatusActive {
		return false, nil
	}
	resolvedBy := res.ResolvedBy
	date := res.Date
	resType := res.Type
	report.Status = ReportStatusResolved
	report.ResolutionType = &resType
	report.ResolvedBy = &resolvedBy
	report.ResolutionDate = &date
	report.ResolutionNotes = res.Notes
	report.UpdatedAt = time.Now().UTC()
	m.reports[reportID] = report
	return true, nil
}

// Nonces

func (m *MemoryProvider) CreateNonce(ctx context.Context, nonce string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonces[nonce] = expiresAt
	return nil
}

func (m *MemoryProvider) ExistsNonce(ctx context.Context, nonce string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expiry, exists := m.nonces[nonce]
	return exists && time.Now().Before(expiry), nil
}

func (m *MemoryProvider) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, exists := m.nonces[nonce]
	if !exists {
		return false, nil
	}
	delete(m.nonces, nonce)
	return time.Now().Before(expiry), nil
}

func (m *MemoryProvider) ExpireNonces(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for nonce, expiry := range m.nonces {
		if now.After(expiry) {
			delete(m.nonces, nonce)
		}
	}
	return nil
}

// Reporting reads

func (m *MemoryProvider) CountDevicesByStatus(ctx context.Context) (map[DeviceStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[DeviceStatus]int)
	for _, device := range m.devices {
		counts[device.Status]++
	}
	return counts, nil
}

func (m *MemoryProvider) CountDevicesByType(ctx context.Context) (map[DeviceType]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[DeviceType]int)
	for _, device := range m.devices {
		counts[device.Type]++
	}
	return counts, nil
}

func (m *MemoryProvider) CountReportsByStatus(ctx context.Context) (map[ReportStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[ReportStatus]int)
	for _, report := range m.reports {
		counts[report.Status]++
	}
	return counts, nil
}

func (m *MemoryProvider) ListRecentDevices(ctx context.Context, limit int) ([]Device, error) {
	m.mu.RLock()
	devices := make([]Device, 0, len(m.devices))
	for _, device := range m.devices {
		devices = append(devices, device)
	}
	m.mu.RUnlock()

	// Pending first, then newest
	sort.Slice(devices, func(i, j int) bool {
		iPending := devices[i].Status == DeviceStatusPending
		jPending := devices[j].Status == DeviceStatusPending
		if iPending != jPending {
			return iPending
		}
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})

	if len(devices) > limit {
		devices = devices[:limit]
	}
	return devices, nil
}

func (m *MemoryProvider) RegistrationDates(ctx context.Context, since time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dates := []time.Time{}
	for _, device := range m.devices {
		if !device.CreatedAt.Before(since) {
			dates = append(dates, device.CreatedAt)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}
