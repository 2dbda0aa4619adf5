package models

import "time"

// SessionToken is one issued bearer token in the durable ledger.
type SessionToken struct {
	ID        uint       `json:"id"         gorm:"primaryKey;autoIncrement"`
	AccountID uint       `json:"account_id" gorm:"index;not null"`
	Token     string     `json:"-"          gorm:"size:191;uniqueIndex;not null"`
	IssuedAt  time.Time  `json:"issued_at"  gorm:"not null"`
	RevokedAt *time.Time `json:"revoked_at" gorm:"index"`
}

func (SessionToken) TableName() string { return "session_tokens" }

// Active reports whether the row has not been revoked.
func (t SessionToken) Active() bool { return t.RevokedAt == nil }
