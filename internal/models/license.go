package models

import "time"

// License represents a software license that can be tied to equipment.
type License struct {
	ID             string     `db:"id" json:"id"`
	Software       string     `db:"software" json:"software"`
	Key            string     `db:"license_key" json:"license_key"`
	Vendor         *string    `db:"vendor" json:"vendor,omitempty"`
	Seats          int        `db:"seats" json:"seats"`
	EquipmentID    *string    `db:"equipment_id" json:"equipment_id,omitempty"`
	EquipmentLabel *string    `db:"equipment_label" json:"equipment_label,omitempty"`
	SiteID         *string    `db:"site_id" json:"site_id,omitempty"`
	PurchasedAt    *time.Time `db:"purchased_at" json:"purchased_at,omitempty"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the license has an expiry date in the past.
func (l *License) Expired(today time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return l.ExpiresAt.Before(today)
}

// LicenseFilter captures filtering options for listing licenses.
type LicenseFilter struct {
	Search      string
	EquipmentID *string
	SiteID      *string
	ExpiredOnly bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
