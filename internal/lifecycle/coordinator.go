// Package lifecycle enforces the joint device/report state machine. It is
// the only component that mutates the device and report ledgers together,
// and the single place where transition authorization is decided.
//
// Legal states of the (device, open report) pair:
//
//	(pending, none)     after registration
//	(verified, none)    after staff verification
//	(reported, active)  after the owner files a report
//	(verified, -)       after a report is resolved; the cycle may repeat
//
// The storage layer offers no cross-row transaction, so compound
// transitions write the report row first (the authoritative fact) and then
// flip the device status with an optimistic guard. Reads re-derive device
// status from "does an active report exist" whenever the two disagree.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gadify-server/internal/access"
	"gadify-server/internal/identity"
	"gadify-server/internal/storage"
)

// Minimum report description length. Reports must carry enough detail to be
// actionable.
const minDescriptionLength = 10

type Coordinator struct {
	store  storage.Provider
	rbac   *access.RBAC
	logger *slog.Logger
}

func NewCoordinator(store storage.Provider, rbac *access.RBAC) *Coordinator {
	return &Coordinator{
		store:  store,
		rbac:   rbac,
		logger: slog.With("component", "lifecycle"),
	}
}

// Authorize is the role half of the transition predicate. Ownership checks
// are layered on top by the individual operations.
func (c *Coordinator) Authorize(p identity.Principal, resource, action string) error {
	if !c.rbac.Can(string(p.Role), resource, action) {
		return fmt.Errorf("%w: role %s may not %s %s", ErrUnauthorized, p.Role, action, resource)
	}
	return nil
}

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func isStale(err error) bool   { return errors.Is(err, ErrStaleState) }
func isBackend(err error) bool { return errors.Is(err, ErrBackendUnavailable) }

// Register

type DeviceRegistration struct {
	Name              string
	SerialNumber      string
	Brand             string
	Model             string
	Type              storage.DeviceType
	AdditionalDetails *string
	ImageURL          *string
}

func (r *DeviceRegistration) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: device name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.SerialNumber) == "" {
		return fmt.Errorf("%w: serial number is required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.Brand) == "" {
		return fmt.Errorf("%w: brand is required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidInput)
	}
	switch r.Type {
	case storage.DeviceTypeSmartphone, storage.DeviceTypeLaptop, storage.DeviceTypeTablet, storage.DeviceTypeOther:
	default:
		return fmt.Errorf("%w: unknown device type %q", ErrInvalidInput, r.Type)
	}
	return nil
}

// Register creates a device in state pending, owned by the calling student.
func (c *Coordinator) Register(ctx context.Context, p identity.Principal, reg DeviceRegistration) (device *storage.Device, err error) {
	defer func() { observe("register", err) }()

	if err = c.Authorize(p, "devices", "register"); err != nil {
		return nil, err
	}
	if err = reg.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := storage.Device{
		ID:                uuid.NewString(),
		UserID:            p.ID,
		Name:              strings.TrimSpace(reg.Name),
		SerialNumber:      strings.TrimSpace(reg.SerialNumber),
		Brand:             strings.TrimSpace(reg.Brand),
		Model:             strings.TrimSpace(reg.Model),
		Type:              reg.Type,
		Status:            storage.DeviceStatusPending,
		AdditionalDetails: reg.AdditionalDetails,
		ImageURL:          reg.ImageURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := c.store.CreateDevice(ctx, record); err != nil {
		return nil, backendErr(err)
	}

	c.logger.Info("Device registered", "device_id", record.ID, "owner", p.ID)
	return &record, nil
}

// Verify

// Verify moves a pending device to verified. Staff only. A second verify on
// the same device is a constraint violation, never a silent no-op.
func (c *Coordinator) Verify(ctx context.Context, p identity.Principal, deviceID string, notes *string) (device *storage.Device, err error) {
	defer func() { observe("verify", err) }()

	if err = c.Authorize(p, "devices", "verify"); err != nil {
		return nil, err
	}

	current, err := c.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
		}
		return nil, backendErr(err)
	}
	// The cached status may lag the report ledger after a deferred flip, and
	// a verify must never land on a device with an open report.
	current = c.reconcile(ctx, current)

	switch current.Status {
	case storage.DeviceStatusVerified:
		return nil, fmt.Errorf("%w: device is already verified", ErrConstraintViolation)
	case storage.DeviceStatusReported:
		return nil, fmt.Errorf("%w: device has an open report", ErrConstraintViolation)
	}

	verification := &storage.Verification{
		VerifiedBy: p.ID,
		Date:       time.Now().UTC(),
		Notes:      notes,
	}

	ok, err := c.store.UpdateDeviceStatus(ctx, deviceID, storage.DeviceStatusPending, storage.DeviceStatusVerified, verification)
	if err != nil {
		return nil, backendErr(err)
	}
	if !ok {
		// The guard missed: somebody flipped the status between our read
		// and the write.
		latest, rerr := c.store.GetDevice(ctx, deviceID)
		if rerr != nil {
			return nil, backendErr(rerr)
		}
		if latest.Status == storage.DeviceStatusVerified {
			return nil, fmt.Errorf("%w: device is already verified", ErrConstraintViolation)
		}
		return nil, fmt.Errorf("%w: device is no longer pending", ErrStaleState)
	}

	c.logger.Info("Device verified", "device_id", deviceID, "staff", p.ID)
	return c.store.GetDevice(ctx, deviceID)
}

// Report

type ReportParams struct {
	IncidentType storage.IncidentType
	IncidentDate time.Time
	Location     string
	Description  string
	PoliceReport *string
}

func (r *ReportParams) validate() error {
	switch r.IncidentType {
	case storage.IncidentTypeLost, storage.IncidentTypeStolen:
	default:
		return fmt.Errorf("%w: incident type must be lost or stolen", ErrInvalidInput)
	}
	if r.IncidentDate.IsZero() {
		return fmt.Errorf("%w: incident date is required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.Location) == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidInput)
	}
	if len(strings.TrimSpace(r.Description)) < minDescriptionLength {
		return fmt.Errorf("%w: description must be at least %d characters", ErrInvalidInput, minDescriptionLength)
	}
	return nil
}

// Report files a lost/stolen report for a device and flags the device. Only
// the owner may report; the device must have no open report. The report row
// is the authoritative fact: it is written first, and the device status
// flip follows under an optimistic guard.
func (c *Coordinator) Report(ctx context.Context, p identity.Principal, deviceID string, params ReportParams) (report *storage.Report, err error) {
	defer func() { observe("report", err) }()

	if err = c.Authorize(p, "reports", "create"); err != nil {
		return nil, err
	}
	if err = params.validate(); err != nil {
		return nil, err
	}

	device, err := c.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
		}
		return nil, backendErr(err)
	}
	if device.UserID != p.ID {
		return nil, fmt.Errorf("%w: only the device owner may file a report", ErrUnauthorized)
	}
	if device.Status == storage.DeviceStatusReported {
		return nil, ErrDuplicateActiveReport
	}
	if active, err := c.store.HasActiveReport(ctx, deviceID); err != nil {
		return nil, backendErr(err)
	} else if active {
		return nil, ErrDuplicateActiveReport
	}

	now := time.Now().UTC()
	record := storage.Report{
		ID:           uuid.NewString(),
		DeviceID:     deviceID,
		UserID:       p.ID,
		IncidentType: params.IncidentType,
		IncidentDate: params.IncidentDate.UTC(),
		Location:     strings.TrimSpace(params.Location),
		Description:  strings.TrimSpace(params.Description),
		PoliceReport: params.PoliceReport,
		Status:       storage.ReportStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.store.CreateReport(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateActiveReport) {
			// Lost the race against a concurrent report for the same device.
			return nil, ErrDuplicateActiveReport
		}
		return nil, backendErr(err)
	}

	c.flagReported(ctx, deviceID, device.Status)

	c.logger.Info("Report filed", "report_id", record.ID, "device_id", deviceID, "incident", params.IncidentType)
	return &record, nil
}

// flagReported flips the device to reported after its report row exists.
// The active report is already the source of truth, so a missed flip is a
// recoverable inconsistency: retry once from the fresh status, then leave
// it for on-read reconciliation.
func (c *Coordinator) flagReported(ctx context.Context, deviceID string, observed storage.DeviceStatus) {
	ok, err := c.store.UpdateDeviceStatus(ctx, deviceID, observed, storage.DeviceStatusReported, nil)
	if err == nil && ok {
		return
	}

	latest, rerr := c.store.GetDevice(ctx, deviceID)
	if rerr == nil && latest.Status != storage.DeviceStatusReported {
		ok, err = c.store.UpdateDeviceStatus(ctx, deviceID, latest.Status, storage.DeviceStatusReported, nil)
		if err == nil && ok {
			return
		}
	}

	c.logger.Warn("Device status flip deferred, will reconcile on read",
		"device_id", deviceID, "error", err)
}

// Resolve

// Resolve closes an active report and returns the device to verified. Staff
// only. The prior verification provenance on the device is preserved, not
// recomputed.
func (c *Coordinator) Resolve(ctx context.Context, p identity.Principal, reportID string, resolutionType storage.ResolutionType, notes *string) (report *storage.Report, err error) {
	defer func() { observe("resolve", err) }()

	if err = c.Authorize(p, "reports", "resolve"); err != nil {
		return nil, err
	}

	switch resolutionType {
	case storage.ResolutionTypeFound, storage.ResolutionTypeRecovered:
	default:
		return nil, fmt.Errorf("%w: resolution type must be found or recovered", ErrInvalidInput)
	}

	current, err := c.store.GetReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: report %s", ErrNotFound, reportID)
		}
		return nil, backendErr(err)
	}
	switch current.Status {
	case storage.ReportStatusResolved:
		return nil, ErrAlreadyResolved
	case storage.ReportStatusCancelled:
		// Reserved status with no transition into or out of it.
		return nil, fmt.Errorf("%w: report is cancelled", ErrConstraintViolation)
	}

	resolution := storage.Resolution{
		Type:       resolutionType,
		ResolvedBy: p.ID,
		Date:       time.Now().UTC(),
		Notes:      notes,
	}

	ok, err := c.store.ResolveReport(ctx, reportID, resolution)
	if err != nil {
		return nil, backendErr(err)
	}
	if !ok {
		// Another resolver got there first.
		return nil, ErrAlreadyResolved
	}

	// Return the device to verified. Same reconciliation story as the
	// report flip: the resolved report is already authoritative.
	if ok, err := c.store.UpdateDeviceStatus(ctx, current.DeviceID, storage.DeviceStatusReported, storage.DeviceStatusVerified, nil); err != nil || !ok {
		c.logger.Warn("Device status restore deferred, will reconcile on read",
			"device_id", current.DeviceID, "error", err)
	}

	c.logger.Info("Report resolved", "report_id", reportID, "staff", p.ID, "resolution", resolutionType)
	return c.store.GetReport(ctx, reportID)
}

// Reads

// Device returns one device. Students see their own devices, staff see all.
// The returned status is reconciled against the report ledger.
func (c *Coordinator) Device(ctx context.Context, p identity.Principal, deviceID string) (*storage.Device, error) {
	device, err := c.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
		}
		return nil, backendErr(err)
	}

	action := "view-own"
	if device.UserID != p.ID {
		action = "view-all"
	}
	if err := c.Authorize(p, "devices", action); err != nil {
		return nil, err
	}

	return c.reconcile(ctx, device), nil
}

// reconcile trusts "does an active report exist" over the cached status
// column whenever the two disagree, repairing the row best-effort.
func (c *Coordinator) reconcile(ctx context.Context, device *storage.Device) *storage.Device {
	hasActive, err := c.store.HasActiveReport(ctx, device.ID)
	if err != nil {
		return device
	}

	flagged := device.Status == storage.DeviceStatusReported
	if flagged == hasActive {
		return device
	}

	derived := storage.DeviceStatusVerified
	if hasActive {
		derived = storage.DeviceStatusReported
	}
	c.logger.Warn("Reconciling device status", "device_id", device.ID,
		"stored", device.Status, "derived", derived)

	if ok, err := c.store.UpdateDeviceStatus(ctx, device.ID, device.Status, derived, nil); err != nil || !ok {
		c.logger.Debug("Status repair skipped", "device_id", device.ID, "error", err)
	}
	device.Status = derived
	return device
}

// PassSummary is the public view behind a scanned device pass. The signed
// token already proves the holder was issued the pass, so no principal is
// required, but the payload stays owner-free.
type PassSummary struct {
	DeviceID     string               `json:"device_id"`
	Name         string               `json:"name"`
	Brand        string               `json:"brand"`
	Model        string               `json:"model"`
	Type         storage.DeviceType   `json:"type"`
	SerialNumber string               `json:"serial_number"`
	Status       storage.DeviceStatus `json:"status"`
}

// PassCheck resolves a device ID from a validated pass token into its
// public summary, with the status reconciled first.
func (c *Coordinator) PassCheck(ctx context.Context, deviceID string) (*PassSummary, error) {
	device, err := c.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
		}
		return nil, backendErr(err)
	}
	device = c.reconcile(ctx, device)

	return &PassSummary{
		DeviceID:     device.ID,
		Name:         device.Name,
		Brand:        device.Brand,
		Model:        device.Model,
		Type:         device.Type,
		SerialNumber: device.SerialNumber,
		Status:       device.Status,
	}, nil
}

// OwnDevices lists the calling student's devices.
func (c *Coordinator) OwnDevices(ctx context.Context, p identity.Principal) ([]storage.Device, error) {
	if err := c.Authorize(p, "devices", "list-own"); err != nil {
		return nil, err
	}
	devices, err := c.store.ListDevicesByOwner(ctx, p.ID)
	if err != nil {
		return nil, backendErr(err)
	}
	return devices, nil
}

// AllDevices lists devices across owners, optionally filtered by status.
// Staff only.
func (c *Coordinator) AllDevices(ctx context.Context, p identity.Principal, status storage.DeviceStatus) ([]storage.Device, error) {
	if err := c.Authorize(p, "devices", "list-all"); err != nil {
		return nil, err
	}
	switch status {
	case "", storage.DeviceStatusPending, storage.DeviceStatusVerified, storage.DeviceStatusReported:
	default:
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrInvalidInput, status)
	}
	devices, err := c.store.ListDevices(ctx, status)
	if err != nil {
		return nil, backendErr(err)
	}
	return devices, nil
}

// OwnReports lists the calling student's reports.
func (c *Coordinator) OwnReports(ctx context.Context, p identity.Principal) ([]storage.Report, error) {
	if err := c.Authorize(p, "reports", "list-own"); err != nil {
		return nil, err
	}
	reports, err := c.store.ListReportsByOwner(ctx, p.ID)
	if err != nil {
		return nil, backendErr(err)
	}
	return reports, nil
}

// Reports lists reports with optional status and incident type filters.
// Staff only.
func (c *Coordinator) Reports(ctx context.Context, p identity.Principal, status storage.ReportStatus, incident storage.IncidentType) ([]storage.Report, error) {
	if err := c.Authorize(p, "reports", "list-all"); err != nil {
		return nil, err
	}
	switch status {
	case "", storage.ReportStatusActive, storage.ReportStatusResolved, storage.ReportStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrInvalidInput, status)
	}
	switch incident {
	case "", storage.IncidentTypeLost, storage.IncidentTypeStolen:
	default:
		return nil, fmt.Errorf("%w: unknown incident filter %q", ErrInvalidInput, incident)
	}
	reports, err := c.store.ListReports(ctx, status, incident)
	if err != nil {
		return nil, backendErr(err)
	}
	return reports, nil
}

// Students

// Students lists student profiles with an optional search term. Staff only.
func (c *Coordinator) Students(ctx context.Context, p identity.Principal, search string) ([]storage.Profile, error) {
	if err := c.Authorize(p, "students", "manage"); err != nil {
		return nil, err
	}
	students, err := c.store.ListStudents(ctx, search)
	if err != nil {
		return nil, backendErr(err)
	}
	return students, nil
}

// SetStudentStatus updates the staff-managed account flag on a student.
// The lifecycle state machine does not consult this flag.
func (c *Coordinator) SetStudentStatus(ctx context.Context, p identity.Principal, studentID string, status storage.ProfileStatus) error {
	if err := c.Authorize(p, "students", "manage"); err != nil {
		return err
	}
	switch status {
	case storage.ProfileStatusActive, storage.ProfileStatusSuspended, storage.ProfileStatusGraduated:
	default:
		return fmt.Errorf("%w: unknown student status %q", ErrInvalidInput, status)
	}
	if err := c.store.UpdateStudentStatus(ctx, studentID, status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		return backendErr(err)
	}
	return nil
}
