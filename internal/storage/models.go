package storage

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
)

// ProfileStatus is a staff-managed flag on student accounts. The value
// "graduated" and "suspended" are stored and listed but no device or report
// transition consults them.
type ProfileStatus string

const (
	ProfileStatusActive    ProfileStatus = "active"
	ProfileStatusSuspended ProfileStatus = "suspended"
	ProfileStatusGraduated ProfileStatus = "graduated"
)

type Profile struct {
	ID              string        `db:"id"`
	Email           string        `db:"email"`
	FullName        string        `db:"full_name"`
	MatricNumber    *string       `db:"matric_number"`
	StaffID         *string       `db:"staff_id"`
	PhoneNumber     *string       `db:"phone_number"`
	Role            Role          `db:"role"`
	Department      *string       `db:"department"`
	StudyLevel      *string       `db:"study_level"`
	HallOfResidence *string       `db:"hall_of_residence"`
	HomeAddress     *string       `db:"home_address"`
	Biography       *string       `db:"biography"`
	Status          ProfileStatus `db:"status"`
	PasswordHash    string        `db:"password_hash"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

type DeviceStatus string

const (
	DeviceStatusPending  DeviceStatus = "pending"
	DeviceStatusVerified DeviceStatus = "verified"
	DeviceStatusReported DeviceStatus = "reported"
)

type DeviceType string

const (
	DeviceTypeSmartphone DeviceType = "smartphone"
	DeviceTypeLaptop     DeviceType = "laptop"
	DeviceTypeTablet     DeviceType = "tablet"
	DeviceTypeOther      DeviceType = "other"
)

type Device struct {
	ID                string       `db:"id" json:"id"`
	UserID            string       `db:"user_id" json:"user_id"`
	Name              string       `db:"name" json:"name"`
	SerialNumber      string       `db:"serial_number" json:"serial_number"`
	Brand             string       `db:"brand" json:"brand"`
	Model             string       `db:"model" json:"model"`
	Type              DeviceType   `db:"type" json:"type"`
	Status            DeviceStatus `db:"status" json:"status"`
	AdditionalDetails *string      `db:"additional_details" json:"additional_details"`
	VerifiedBy        *string      `db:"verified_by" json:"verified_by"`
	VerificationDate  *time.Time   `db:"verification_date" json:"verification_date"`
	VerificationNotes *string      `db:"verification_notes" json:"verification_notes"`
	ImageURL          *string      `db:"image_url" json:"image_url"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

type ReportStatus string

const (
	ReportStatusActive   ReportStatus = "active"
	ReportStatusResolved ReportStatus = "resolved"
	// ReportStatusCancelled is representable in the schema but no transition
	// produces it. Reserved pending product clarification.
	ReportStatusCancelled ReportStatus = "cancelled"
)

type IncidentType string

const (
	IncidentTypeLost   IncidentType = "lost"
	IncidentTypeStolen IncidentType = "stolen"
)

type ResolutionType string

const (
	ResolutionTypeFound     ResolutionType = "found"
	ResolutionTypeRecovered ResolutionType = "recovered"
)

type Report struct {
	ID              string          `db:"id" json:"id"`
	DeviceID        string          `db:"device_id" json:"device_id"`
	UserID          string          `db:"user_id" json:"user_id"`
	IncidentType    IncidentType    `db:"incident_type" json:"incident_type"`
	IncidentDate    time.Time       `db:"incident_date" json:"incident_date"`
	Location        string          `db:"location" json:"location"`
	Description     string          `db:"description" json:"description"`
	PoliceReport    *string         `db:"police_report" json:"police_report"`
	Status          ReportStatus    `db:"status" json:"status"`
	ResolutionType  *ResolutionType `db:"resolution_type" json:"resolution_type"`
	ResolvedBy      *string         `db:"resolved_by" json:"resolved_by"`
	ResolutionDate  *time.Time      `db:"resolution_date" json:"resolution_date"`
	ResolutionNotes *string         `db:"resolution_notes" json:"resolution_notes"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Verification carries the provenance fields set when staff verifies a
// device. A nil Verification on a status update leaves the stored
// provenance untouched, which is how a resolved device keeps its original
// verifier.
type Verification struct {
	VerifiedBy string
	Date       time.Time
	Notes      *string
}

// Resolution carries the provenance fields set when staff resolves a report.
type Resolution struct {
	Type       ResolutionType
	ResolvedBy string
	Date       time.Time
	Notes      *string
}
