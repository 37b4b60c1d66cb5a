package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gadify-server/internal/access"
	"gadify-server/internal/identity"
	"gadify-server/internal/storage"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *storage.MemoryProvider) {
	t.Helper()

	rbac, err := access.Load("")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	store := storage.NewMemoryProvider()
	t.Cleanup(func() { store.Close() })

	return NewCoordinator(store, rbac), store
}

var (
	student      = identity.Principal{ID: "student-1", Role: storage.RoleStudent, ProfileComplete: true}
	otherStudent = identity.Principal{ID: "student-2", Role: storage.RoleStudent, ProfileComplete: true}
	staff        = identity.Principal{ID: "staff-1", Role: storage.RoleStaff, ProfileComplete: true}
)

func validRegistration() DeviceRegistration {
	return DeviceRegistration{
		Name:         "My laptop",
		SerialNumber: "SN-12345",
		Brand:        "Lenovo",
		Model:        "ThinkPad T14",
		Type:         storage.DeviceTypeLaptop,
	}
}

func validReport() ReportParams {
	return ReportParams{
		IncidentType: storage.IncidentTypeStolen,
		IncidentDate: time.Now().UTC().Add(-24 * time.Hour),
		Location:     "Main library",
		Description:  "Taken from my desk while I stepped out",
	}
}

func mustRegister(t *testing.T, c *Coordinator, owner identity.Principal) *storage.Device {
	t.Helper()
	device, err := c.Register(context.Background(), owner, validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return device
}

func mustVerify(t *testing.T, c *Coordinator, deviceID string) *storage.Device {
	t.Helper()
	device, err := c.Verify(context.Background(), staff, deviceID, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return device
}

func TestRegister_StartsPending(t *testing.T) {
	c, _ := newTestCoordinator(t)

	device := mustRegister(t, c, student)
	if device.Status != storage.DeviceStatusPending {
		t.Fatalf("new device status = %s, want pending", device.Status)
	}
	if device.UserID != student.ID {
		t.Fatalf("owner = %s, want %s", device.UserID, student.ID)
	}
}

func TestRegister_StaffForbidden(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.Register(context.Background(), staff, validRegistration())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("staff register err = %v, want ErrUnauthorized", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*DeviceRegistration)
	}{
		{"empty name", func(r *DeviceRegistration) { r.Name = " " }},
		{"empty serial", func(r *DeviceRegistration) { r.SerialNumber = "" }},
		{"empty brand", func(r *DeviceRegistration) { r.Brand = "" }},
		{"empty model", func(r *DeviceRegistration) { r.Model = "" }},
		{"bad type", func(r *DeviceRegistration) { r.Type = "toaster" }},
	}
	for _, tc := range cases {
		reg := validRegistration()
		tc.mutate(&reg)
		if _, err := c.Register(ctx, student, reg); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestRegister_DuplicateSerialAllowed(t *testing.T) {
	// Serial uniqueness is deliberately not enforced, two students can
	// register devices carrying the same serial.
	c, _ := newTestCoordinator(t)

	mustRegister(t, c, student)
	if _, err := c.Register(context.Background(), otherStudent, validRegistration()); err != nil {
		t.Fatalf("second registration with same serial: %v", err)
	}
}

func TestVerify_PendingToVerified(t *testing.T) {
	c, _ := newTestCoordinator(t)

	device := mustRegister(t, c, student)
	verified := mustVerify(t, c, device.ID)

	if verified.Status != storage.DeviceStatusVerified {
		t.Fatalf("status = %s, want verified", verified.Status)
	}
	if verified.VerifiedBy == nil || *verified.VerifiedBy != staff.ID {
		t.Fatalf("verified_by = %v, want %s", verified.VerifiedBy, staff.ID)
	}
	if verified.VerificationDate == nil {
		t.Fatal("verification date not recorded")
	}
}

func TestVerify_StudentForbidden(t *testing.T) {
	c, _ := newTestCoordinator(t)

	device := mustRegister(t, c, student)
	if _, err := c.Verify(context.Background(), student, device.ID, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("student verify err = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_TwiceIsConstraintViolation(t *testing.T) {
	c, _ := newTestCoordinator(t)

	device := mustRegister(t, c, student)
	mustVerify(t, c, device.ID)

	_, err := c.Verify(context.Background(), staff, device.ID, nil)
	if !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("second verify err = %v, want ErrConstraintViolation", err)
	}
}

func TestVerify_ReportedDeviceRefused(t *testing.T) {
	c, _ := newTestCoordinator(t)

	device := mustRegister(t, c, student)
	if _, err := c.Report(context.Background(), student, device.ID, validReport()); err != nil {
		t.Fatalf("report: %v", err)
	}

	if _, err := c.Verify(context.Background(), staff, device.ID, nil); !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("verify reported device err = %v, want ErrConstraintViolation", err)
	}
}

func TestVerify_ConsultsReportLedgerOverCachedStatus(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)

	// An active report row with the device stuck on pending, as left behind
	// by a lost device status flip.
	now := time.Now().UTC()
	orphan := storage.Report{
		ID:           "report-orphan",
		DeviceID:     device.ID,
		UserID:       student.ID,
		IncidentType: storage.IncidentTypeLost,
		IncidentDate: now.Add(-time.Hour),
		Location:     "Cafeteria",
		Description:  "Left on a table and gone when I came back",
		Status:       storage.ReportStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateReport(ctx, orphan); err != nil {
		t.Fatalf("create report: %v", err)
	}

	if _, err := c.Verify(ctx, staff, device.ID, nil); !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("verify with active report err = %v, want ErrConstraintViolation", err)
	}

	// The refused verify also repairs the stale status.
	repaired, err := store.GetDevice(ctx, device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if repaired.Status != storage.DeviceStatusReported {
		t.Fatalf("status after refused verify = %s, want reported", repaired.Status)
	}
}

func TestVerify_NotFound(t *testing.T) {
	c, _ := newTestCoordinator(t)

	if _, err := c.Verify(context.Background(), staff, "no-such-device", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReport_FromPendingAndVerified(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	// Reporting a pending device is legal, verification is not a
	// precondition for losing hardware.
	pending := mustRegister(t, c, student)
	report, err := c.Report(ctx, student, pending.ID, validReport())
	if err != nil {
		t.Fatalf("report pending device: %v", err)
	}
	if report.Status != storage.ReportStatusActive {
		t.Fatalf("report status = %s, want active", report.Status)
	}

	device, err := c.Device(ctx, student, pending.ID)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if device.Status != storage.DeviceStatusReported {
		t.Fatalf("device status = %s, want reported", device.Status)
	}
}

func TestReport_NonOwnerForbidden(t *testing.T) {
	c, _ := newTestCoordinator(t)

	device := mustRegister(t, c, student)
	if _, err := c.Report(context.Background(), otherStudent, device.ID, validReport()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner report err = %v, want ErrUnauthorized", err)
	}
}

func TestReport_DuplicateActiveRefused(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	if _, err := c.Report(ctx, student, device.ID, validReport()); err != nil {
		t.Fatalf("first report: %v", err)
	}

	_, err := c.Report(ctx, student, device.ID, validReport())
	if !errors.Is(err, ErrDuplicateActiveReport) {
		t.Fatalf("second report err = %v, want ErrDuplicateActiveReport", err)
	}
}

func TestReport_Validation(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	device := mustRegister(t, c, student)

	cases := []struct {
		name   string
		mutate func(*ReportParams)
	}{
		{"bad incident type", func(r *ReportParams) { r.IncidentType = "misplaced" }},
		{"zero date", func(r *ReportParams) { r.IncidentDate = time.Time{} }},
		{"empty location", func(r *ReportParams) { r.Location = "  " }},
		{"short description", func(r *ReportParams) { r.Description = "gone" }},
	}
	for _, tc := range cases {
		params := validReport()
		tc.mutate(&params)
		if _, err := c.Report(ctx, student, device.ID, params); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestResolve_ReturnsDeviceToVerified(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	mustVerify(t, c, device.ID)
	report, err := c.Report(ctx, student, device.ID, validReport())
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	notes := "Returned by campus security"
	resolved, err := c.Resolve(ctx, staff, report.ID, storage.ResolutionTypeRecovered, &notes)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != storage.ReportStatusResolved {
		t.Fatalf("report status = %s, want resolved", resolved.Status)
	}
	if resolved.ResolvedBy == nil || *resolved.ResolvedBy != staff.ID {
		t.Fatalf("resolved_by = %v, want %s", resolved.ResolvedBy, staff.ID)
	}

	after, err := c.Device(ctx, student, device.ID)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if after.Status != storage.DeviceStatusVerified {
		t.Fatalf("device status = %s, want verified", after.Status)
	}
	// Original verification provenance survives the report cycle.
	if after.VerifiedBy == nil || *after.VerifiedBy != staff.ID {
		t.Fatalf("verification provenance lost: %v", after.VerifiedBy)
	}
}

func TestResolve_StudentForbidden(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	report, err := c.Report(ctx, student, device.ID, validReport())
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if _, err := c.Resolve(ctx, student, report.ID, storage.ResolutionTypeFound, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("student resolve err = %v, want ErrUnauthorized", err)
	}
}

func TestResolve_TwiceIsAlreadyResolved(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	report, err := c.Report(ctx, student, device.ID, validReport())
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if _, err := c.Resolve(ctx, staff, report.ID, storage.ResolutionTypeFound, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := c.Resolve(ctx, staff, report.ID, storage.ResolutionTypeFound, nil); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second resolve err = %v, want ErrAlreadyResolved", err)
	}
}

func TestResolve_BadResolutionType(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	report, err := c.Report(ctx, student, device.ID, validReport())
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if _, err := c.Resolve(ctx, staff, report.ID, "vanished", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestReportCycle_Reentrant(t *testing.T) {
	// verified -> reported -> resolved -> reported -> resolved
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	mustVerify(t, c, device.ID)

	for cycle := 0; cycle < 2; cycle++ {
		report, err := c.Report(ctx, student, device.ID, validReport())
		if err != nil {
			t.Fatalf("cycle %d report: %v", cycle, err)
		}
		if _, err := c.Resolve(ctx, staff, report.ID, storage.ResolutionTypeFound, nil); err != nil {
			t.Fatalf("cycle %d resolve: %v", cycle, err)
		}
	}

	after, err := c.Device(ctx, student, device.ID)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if after.Status != storage.DeviceStatusVerified {
		t.Fatalf("device status after cycles = %s, want verified", after.Status)
	}

	reports, err := c.OwnReports(ctx, student)
	if err != nil {
		t.Fatalf("own reports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("report count = %d, want 2", len(reports))
	}
}

func TestConcurrentReports_ExactlyOneWins(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	mustVerify(t, c, device.ID)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Report(ctx, student, device.ID, validReport())
		}(i)
	}
	wg.Wait()

	var wins int
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrDuplicateActiveReport):
		default:
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("successful reports = %d, want exactly 1", wins)
	}
}

func TestDevice_OwnerAndStaffAccess(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)

	if _, err := c.Device(ctx, student, device.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := c.Device(ctx, staff, device.ID); err != nil {
		t.Fatalf("staff read: %v", err)
	}
	if _, err := c.Device(ctx, otherStudent, device.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("other student read err = %v, want ErrUnauthorized", err)
	}
}

func TestDevice_OwnerViewRequiresPolicyGrant(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	visitor := identity.Principal{ID: "visitor-1", Role: "visitor", ProfileComplete: true}

	now := time.Now().UTC()
	device := storage.Device{
		ID:           "device-visitor",
		UserID:       visitor.ID,
		Name:         "Loaner tablet",
		SerialNumber: "SN-55555",
		Brand:        "Apple",
		Model:        "iPad 9",
		Type:         storage.DeviceTypeTablet,
		Status:       storage.DeviceStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateDevice(ctx, device); err != nil {
		t.Fatalf("create device: %v", err)
	}

	// Owning the row is not enough: the role must hold devices view-own.
	if _, err := c.Device(ctx, visitor, device.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ungranted owner read err = %v, want ErrUnauthorized", err)
	}
}

func TestDevice_ReconcilesStatusFromReportLedger(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	mustVerify(t, c, device.ID)
	if _, err := c.Report(ctx, student, device.ID, validReport()); err != nil {
		t.Fatalf("report: %v", err)
	}

	// Simulate the lost second half of the compound write: the report row
	// exists but the device flag was reverted.
	if ok, err := store.UpdateDeviceStatus(ctx, device.ID, storage.DeviceStatusReported, storage.DeviceStatusVerified, nil); err != nil || !ok {
		t.Fatalf("flip back: ok=%v err=%v", ok, err)
	}

	read, err := c.Device(ctx, student, device.ID)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if read.Status != storage.DeviceStatusReported {
		t.Fatalf("status = %s, want reported (derived from active report)", read.Status)
	}
}

func TestAllDevices_StaffOnlyWithFilter(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	a := mustRegister(t, c, student)
	mustRegister(t, c, otherStudent)
	mustVerify(t, c, a.ID)

	if _, err := c.AllDevices(ctx, student, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("student list-all err = %v, want ErrUnauthorized", err)
	}

	all, err := c.AllDevices(ctx, staff, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all devices = %d, want 2", len(all))
	}

	verified, err := c.AllDevices(ctx, staff, storage.DeviceStatusVerified)
	if err != nil {
		t.Fatalf("list verified: %v", err)
	}
	if len(verified) != 1 || verified[0].ID != a.ID {
		t.Fatalf("verified filter returned %d devices", len(verified))
	}

	if _, err := c.AllDevices(ctx, staff, "broken"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad filter err = %v, want ErrInvalidInput", err)
	}
}

func TestOwnDevices_ScopedToOwner(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	mustRegister(t, c, student)
	mustRegister(t, c, student)
	mustRegister(t, c, otherStudent)

	mine, err := c.OwnDevices(ctx, student)
	if err != nil {
		t.Fatalf("own devices: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("own devices = %d, want 2", len(mine))
	}
	for _, d := range mine {
		if d.UserID != student.ID {
			t.Fatalf("foreign device %s in own listing", d.ID)
		}
	}
}

func TestReports_FiltersAndAccess(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	report, err := c.Report(ctx, student, device.ID, validReport())
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if _, err := c.Reports(ctx, student, "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("student list-all err = %v, want ErrUnauthorized", err)
	}

	active, err := c.Reports(ctx, staff, storage.ReportStatusActive, "")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != report.ID {
		t.Fatalf("active filter returned %d reports", len(active))
	}

	stolen, err := c.Reports(ctx, staff, "", storage.IncidentTypeStolen)
	if err != nil {
		t.Fatalf("list stolen: %v", err)
	}
	if len(stolen) != 1 {
		t.Fatalf("stolen filter returned %d reports", len(stolen))
	}

	lost, err := c.Reports(ctx, staff, "", storage.IncidentTypeLost)
	if err != nil {
		t.Fatalf("list lost: %v", err)
	}
	if len(lost) != 0 {
		t.Fatalf("lost filter returned %d reports, want 0", len(lost))
	}
}

func TestStudents_ManageGate(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	profile := storage.Profile{
		ID:       "student-1",
		Email:    "student@example.edu",
		FullName: "Ada Student",
		Role:     storage.RoleStudent,
		Status:   storage.ProfileStatusActive,
	}
	if err := store.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	if _, err := c.Students(ctx, student, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("student directory access err = %v, want ErrUnauthorized", err)
	}

	students, err := c.Students(ctx, staff, "")
	if err != nil {
		t.Fatalf("students: %v", err)
	}
	if len(students) != 1 {
		t.Fatalf("students = %d, want 1", len(students))
	}

	if err := c.SetStudentStatus(ctx, staff, profile.ID, storage.ProfileStatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := c.SetStudentStatus(ctx, staff, profile.ID, "expelled"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad status err = %v, want ErrInvalidInput", err)
	}
	if err := c.SetStudentStatus(ctx, student, profile.ID, storage.ProfileStatusActive); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("student suspend err = %v, want ErrUnauthorized", err)
	}
}

func TestSuspendedStudentStillReports(t *testing.T) {
	// Account status is a directory flag, the state machine ignores it.
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	if err := store.CreateProfile(ctx, storage.Profile{
		ID:     student.ID,
		Email:  "s1@example.edu",
		Role:   storage.RoleStudent,
		Status: storage.ProfileStatusSuspended,
	}); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	if _, err := c.Report(ctx, student, device.ID, validReport()); err != nil {
		t.Fatalf("suspended student report: %v", err)
	}
}

func TestPassCheck_PublicSummaryOmitsOwner(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	device := mustRegister(t, c, student)
	mustVerify(t, c, device.ID)

	summary, err := c.PassCheck(ctx, device.ID)
	if err != nil {
		t.Fatalf("pass check: %v", err)
	}
	if summary.Status != storage.DeviceStatusVerified {
		t.Fatalf("summary status = %s, want verified", summary.Status)
	}
	if summary.SerialNumber != device.SerialNumber {
		t.Fatalf("serial = %s, want %s", summary.SerialNumber, device.SerialNumber)
	}
}

func TestErrorMessages_CarryContext(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.Verify(context.Background(), student, "dev-1", nil)
	if err == nil || !strings.Contains(err.Error(), "student") {
		t.Fatalf("authorization error should name the role, got %v", err)
	}
}
