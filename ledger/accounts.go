package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"stocks-trader/database"
	"stocks-trader/models"
)

// DefaultInitialBalance is credited to self-registered accounts.
var DefaultInitialBalance = decimal.NewFromInt(100000)

// UserUpdate is an administrative edit. Holdings are never editable; nil
// fields are left unchanged.
type UserUpdate struct {
	Password *string
	Role     *models.Role
	Balance  *decimal.Decimal
}

// Authenticate returns the user when password matches. Unknown users and
// wrong passwords both yield models.ErrDenied.
func (l *Ledger) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := l.GetUser(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", models.ErrDenied, username)
	}
	if err != nil {
		return nil, err
	}
	if !models.CheckPassword(user.Password, password) {
		return nil, fmt.Errorf("%w: %q", models.ErrDenied, username)
	}
	return user, nil
}

// AddUser creates an account, failing with models.ErrAlreadyExists on a
// username collision.
func (l *Ledger) AddUser(ctx context.Context, username, password string, role models.Role, initialBalance decimal.Decimal) (*models.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", models.ErrInvalidInput)
	}
	// usernames are matched verbatim everywhere else
	if strings.TrimSpace(username) != username {
		return nil, fmt.Errorf("%w: username %q has surrounding whitespace", models.ErrInvalidInput, username)
	}
	if initialBalance.IsNegative() {
		return nil, fmt.Errorf("initial balance %s: %w", initialBalance, models.ErrInvalidAmount)
	}
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(username)
	defer unlock()

	var existing models.User
	err := l.store.Get(ctx, database.Users, username, &existing)
	if err == nil {
		return nil, fmt.Errorf("user %q: %w", username, models.ErrAlreadyExists)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}

	hashed, err := models.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:  username,
		Password:  hashed,
		Type:      role,
		Balance:   initialBalance,
		Holdings:  map[string]models.Holding{},
		CreatedAt: models.NewTimestamp(l.now()),
	}
	if err := l.store.Put(ctx, database.Users, username, user); err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	log.Infof("ledger: added %s user %s with balance %s", role, username, initialBalance)
	return user, nil
}

// Register is the self-service sign-up: a standard account with the default
// initial balance.
func (l *Ledger) Register(ctx context.Context, username, password string) (*models.User, error) {
	return l.AddUser(ctx, username, password, models.RoleUser, DefaultInitialBalance)
}

// UpdateUser applies an administrative edit under the user's lock, so it
// cannot interleave with a trade.
func (l *Ledger) UpdateUser(ctx context.Context, username string, u UserUpdate) (*models.User, error) {
	if u.Balance != nil && u.Balance.IsNegative() {
		return nil, fmt.Errorf("balance %s: %w", u.Balance, models.ErrInvalidAmount)
	}
	if u.Role != nil {
		if _, err := models.ParseRole(string(*u.Role)); err != nil {
			return nil, err
		}
	}

	unlock := l.locks.Lock(username)
	defer unlock()

	user, err := l.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	next := user.Clone()
	if u.Password != nil && *u.Password != "" {
		hashed, err := models.HashPassword(*u.Password)
		if err != nil {
			return nil, err
		}
		next.Password = hashed
	}
	if u.Role != nil {
		next.Type = *u.Role
	}
	if u.Balance != nil {
		next.Balance = *u.Balance
	}
	if err := l.store.Put(ctx, database.Users, username, next); err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	log.Infof("ledger: updated user %s", username)
	return next, nil
}

// DeleteUser removes the account. Its transaction log is kept for audit.
func (l *Ledger) DeleteUser(ctx context.Context, username string) error {
	unlock := l.locks.Lock(username)
	defer unlock()
	if err := l.store.Delete(ctx, database.Users, username); err != nil {
		return fmt.Errorf("user %q: %w", username, err)
	}
	log.Infof("ledger: deleted user %s", username)
	return nil
}

func (l *Ledger) GetUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := l.store.Get(ctx, database.Users, username, &user); err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return &user, nil
}

// ListUsers returns every account sorted by username.
func (l *Ledger) ListUsers(ctx context.Context) ([]*models.User, error) {
	all, err := database.ListDocs[models.User](ctx, l.store, database.Users)
	if err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(all))
	for _, u := range all {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// Transactions returns the user's trade history, oldest first.
func (l *Ledger) Transactions(ctx context.Context, username string) (models.TransactionLog, error) {
	return l.txlog.ReadAll(ctx, username)
}
