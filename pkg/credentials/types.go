// Package credentials manages the metadata of nurse credential documents:
// licenses, registrations and training certificates, with a verification
// workflow and expiry tracking.
package credentials

import "time"

// Status is the verification state of a credential document.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// KnownStatus reports whether the tag is a defined verification state.
func KnownStatus(s Status) bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// Kind is the credential document type.
type Kind string

const (
	KindSTR         Kind = "str"         // Surat Tanda Registrasi
	KindSIP         Kind = "sip"         // Surat Izin Praktik
	KindCertificate Kind = "certificate" // training certificate
)

// KnownKind reports whether the tag is a defined document type.
func KnownKind(k Kind) bool {
	switch k {
	case KindSTR, KindSIP, KindCertificate:
		return true
	}
	return false
}

// Credential is a stored credential document record. The document itself
// lives elsewhere; this is its registry entry.
type Credential struct {
	ID         string     `json:"id" bson:"_id"`
	UserID     string     `json:"user_id" bson:"user_id"`
	Kind       Kind       `json:"kind" bson:"kind"`
	Number     string     `json:"number" bson:"number"`
	Name       string     `json:"name" bson:"name"`
	Issuer     string     `json:"issuer,omitempty" bson:"issuer,omitempty"`
	IssuedAt   time.Time  `json:"issued_at" bson:"issued_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Status     Status     `json:"status" bson:"status"`
	VerifiedBy string     `json:"verified_by,omitempty" bson:"verified_by,omitempty"`
	Notes      string     `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

// NewCredential is the candidate payload for registration.
type NewCredential struct {
	UserID    string     `json:"user_id"`
	Kind      Kind       `json:"kind"`
	Number    string     `json:"number"`
	Name      string     `json:"name"`
	Issuer    string     `json:"issuer"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     string     `json:"notes"`
}

// ListFilter selects and pages credential records.
type ListFilter struct {
	UserID string
	Kind   Kind
	Status Status
	Page   int
	Limit  int
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Normalize clamps paging values into range.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
}

// Page is one page of credential records plus paging metadata.
type Page struct {
	Records     []*Credential `json:"records"`
	CurrentPage int           `json:"current_page"`
	TotalPages  int           `json:"total_pages"`
	TotalCount  int           `json:"total_count"`
	HasNext     bool          `json:"has_next"`
	HasPrev     bool          `json:"has_prev"`
}
