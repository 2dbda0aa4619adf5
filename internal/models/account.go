package models

import "time"

// Account is a registered principal. Rows are written by the provisioning
// component; this module only reads them.
type Account struct {
	ID             uint      `json:"id"            gorm:"primaryKey;autoIncrement"`
	ExternalID     string    `json:"external_id"   gorm:"size:100;uniqueIndex;not null"`
	IsPrivileged   bool      `json:"is_privileged" gorm:"not null;default:false"`
	Salt           string    `json:"-"             gorm:"size:64;not null"`
	PasswordDigest string    `json:"-"             gorm:"size:128;not null"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Account) TableName() string { return "accounts" }
