package notif

import (
	"strings"
	"time"
)

// Record is a single notification as delivered by the remote feed.
//
// Ownership:
//   - The Store is the sole owner of persisted records.
//   - Read transitions false -> true only; records are never un-read.
//   - Records are never deleted individually, only bulk-cleared or evicted.
type Record struct {
	ID           string    `json:"id"`
	Category     Category  `json:"category"`
	Type         string    `json:"type,omitempty"`
	Title        string    `json:"title,omitempty"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	Read         bool      `json:"read"`
	FromUserName string    `json:"from_user_name,omitempty"`

	// Silent records are persisted and routed but never projected as toasts.
	Silent bool `json:"silent,omitempty"`

	// Amount is set for transaction records (positive = credit).
	Amount float64 `json:"amount,omitempty"`
}

// Approved reports whether the record is an approval-class event
// (loan/KYC approvals require explicit dismissal in every channel).
func (r Record) Approved() bool {
	switch r.Type {
	case "loan_approved", "loan_approval", "kyc_approved", "kyc_approval":
		return true
	}
	return false
}

// Important records never auto-hide in the popup channel.
func (r Record) Important() bool {
	return r.Category == CategoryLoan || r.Category == CategoryKYC
}

// Permission is the tri-state alert permission, sourced from the platform.
// Local copies are presentation caches only; routing decisions must read
// through to the platform.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func ParsePermission(s string) Permission {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted":
		return PermissionGranted
	case "denied":
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

// ToastType classifies a toast for presentation and default duration.
type ToastType string

const (
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
	ToastWarning ToastType = "warning"
	ToastInfo    ToastType = "info"
)

// Toast is an ephemeral projection of a notification (or a purely local
// event). Toasts never survive a restart.
type Toast struct {
	ID       string        `json:"id"`
	Type     ToastType     `json:"type"`
	Title    string        `json:"title,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}
