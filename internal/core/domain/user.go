package domain

import (
	"fmt"
	"strings"
	"time"
)

type UserID string

type Gender string

const (
	GenderUnspecified Gender = ""
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
)

// ParseGender accepts "male", "female" and the empty string.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case GenderUnspecified, GenderMale, GenderFemale:
		return g, nil
	default:
		return GenderUnspecified, fmt.Errorf("%w: %q", ErrInvalidGender, s)
	}
}

type AccountType string

const (
	AccountFree AccountType = "free"
	AccountPro  AccountType = "pro"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// AccountAttributes are the account facts matching and quality depend on.
type AccountAttributes struct {
	AccountType AccountType `json:"account_type"`
	Gender      Gender      `json:"gender,omitempty"`
	Role        UserRole    `json:"role"`
}

func (a AccountAttributes) IsPro() bool {
	return a.AccountType == AccountPro
}

// Identity is what the identity provider resolves a credential to.
type Identity struct {
	UserID      UserID
	DisplayName string
	Attributes  AccountAttributes
}

// UserProfile is the persisted view of an account.
type UserProfile struct {
	ID          UserID            `json:"id"`
	DisplayName string            `json:"display_name"`
	Attributes  AccountAttributes `json:"attributes"`
	ReportCount int64             `json:"report_count"`
	CreatedAt   time.Time         `json:"created_at"`
}
