package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Role tags a user account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole accepts "user" or "admin", case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// User is the document stored in the users collection, keyed by username.
type User struct {
	Username  string             `json:"-"`
	Password  string             `json:"password" validate:"required"`
	Type      Role               `json:"type" validate:"oneof=user admin"`
	Balance   decimal.Decimal    `json:"balance"`
	Holdings  map[string]Holding `json:"holdings" validate:"dive"`
	CreatedAt Timestamp          `json:"created_at"`
}

// Holding is a position in one instrument. A holding with zero quantity is
// never stored.
type Holding struct {
	Code     string          `json:"-"`
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity" validate:"gt=0"`
	Cost     decimal.Decimal `json:"cost"`
}

// Validate rejects malformed user documents.
func (u *User) Validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("user %q: %w", u.Username, err)
	}
	if u.Balance.IsNegative() {
		return fmt.Errorf("user %q: balance %s: %w", u.Username, u.Balance, ErrInvalidAmount)
	}
	for code, h := range u.Holdings {
		if h.Cost.IsNegative() {
			return fmt.Errorf("user %q: holding %s cost %s: %w", u.Username, code, h.Cost, ErrInvalidAmount)
		}
	}
	return nil
}

// IsAdmin reports whether the account carries the admin role.
func (u *User) IsAdmin() bool { return u.Type == RoleAdmin }

// Clone returns a deep copy, so callers can mutate it and discard it on failure.
func (u *User) Clone() *User {
	c := *u
	c.Holdings = make(map[string]Holding, len(u.Holdings))
	for code, h := range u.Holdings {
		c.Holdings[code] = h
	}
	return &c
}

// Holding returns the holding for code with its Code field set.
func (u *User) Holding(code string) (Holding, bool) {
	h, ok := u.Holdings[code]
	if ok {
		h.Code = code
	}
	return h, ok
}

// HoldingsValue returns Σ quantity × price, pricing each holding with price.
// Holdings whose instrument has no price contribute nothing.
func (u *User) HoldingsValue(price func(code string) (decimal.Decimal, bool)) decimal.Decimal {
	total := decimal.Zero
	for code, h := range u.Holdings {
		p, ok := price(code)
		if !ok {
			continue
		}
		total = total.Add(p.Mul(decimal.NewFromInt(h.Quantity)))
	}
	return total
}

// SetKey is called by the store after decoding the document.
func (u *User) SetKey(key string) {
	u.Username = key
	for code, h := range u.Holdings {
		h.Code = code
		u.Holdings[code] = h
	}
}
