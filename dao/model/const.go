// Constants mapped to table columns.
// Gin's `required` binding rejects zero values, so every enum starts at iota + 1.
package model

// Role of a profile inside a company or a project team, ordered from most to least privileged.
type Role uint8

const (
	RoleOwner Role = iota + 1
	RoleDelegate
	RoleLevel1
	RoleLevel2
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleDelegate:
		return "delegate"
	case RoleLevel1:
		return "level1"
	case RoleLevel2:
		return "level2"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r >= RoleOwner && r <= RoleLevel2
}

// AtLeast reports whether r is as privileged as other or more.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r <= other
}

// Platform role of a user account.
type PlatformRole uint8

const (
	PlatformUser PlatformRole = iota + 1
	PlatformAdmin
)

// User, company and profile status
type Status uint8

const (
	StatusPending  Status = iota + 1 // Pending status, not yet activated
	StatusActive                     // Active status
	StatusDisabled                   // Disabled by an administrator or a company owner
)

// Membership status of a profile in a project team
type TeamStatus uint8

const (
	TeamWaiting TeamStatus = iota + 1
	TeamApproved
	TeamRefused
)

type ProjectStatus uint8

const (
	ProjectOpen ProjectStatus = iota + 1
	ProjectClosed
)

type ActivityStatus string

const (
	ActivityToDo      ActivityStatus = "to-do"
	ActivityProgress  ActivityStatus = "progress"
	ActivityCompleted ActivityStatus = "completed"
)

// OwnerType is the discriminator of polymorphic relations (talks, folders, media, notifications).
type OwnerType string

const (
	OwnerCompany  OwnerType = "companies"
	OwnerProject  OwnerType = "projects"
	OwnerProfile  OwnerType = "profiles"
	OwnerTask     OwnerType = "tasks"
	OwnerActivity OwnerType = "activities"
	OwnerPost     OwnerType = "posts"
	OwnerBom      OwnerType = "boms"
	OwnerQuote    OwnerType = "quotations"
)

type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
)

type BomStatus uint8

const (
	BomDraft BomStatus = iota + 1
	BomSent
	BomClosed
)

type QuotationStatus uint8

const (
	QuotationDraft QuotationStatus = iota + 1
	QuotationSubmitted
	QuotationAccepted
	QuotationRejected
)
