// Package identity authenticates kiosk users against the users table.
package identity

import (
	"context" // Request contexts
	"errors"  // Error matching
	"strconv" // Numeric store ids
	"strings" // Email normalization

	"kiosk_system/internal/domain" // User and identity models

	"github.com/sirupsen/logrus" // Logging
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")       // Wrong email or password
	ErrIdentityNotFound   = errors.New("identity record not found") // Authenticated but no user record
	ErrEmailTaken         = errors.New("email already registered")  // Duplicate registration
)

// Credentials for email/password login
type Credentials struct {
	Email    string `json:"email" binding:"required,email"` // Login email
	Password string `json:"password" binding:"required"`    // Plain password
}

// Registration describes a new kiosk account
type Registration struct {
	Email    string  `json:"email" binding:"required,email"`     // Login email
	Name     string  `json:"name"`                               // Display name
	Password string  `json:"password" binding:"required,min=6"`  // Plain password
	IsAdmin  bool    `json:"isAdmin"`                            // Store admin account
	StoreID  *string `json:"storeId" binding:"omitempty,max=64"` // Managed store for admins
}

// Provider is the identity provider the session machine logs in through
type Provider interface {
	Login(ctx context.Context, creds Credentials) (*domain.Identity, error)
}

// Lookup fetches an identity without a password check (session restore)
type Lookup interface {
	Find(ctx context.Context, email string) (*domain.Identity, error)
}

// StoreProvisioner creates the menu document of a newly assigned store
type StoreProvisioner interface {
	InitDefault(ctx context.Context, storeID string) (*domain.Menu, error)
}

// DBProvider checks bcrypt hashes stored in the users table
type DBProvider struct {
	db     *gorm.DB
	stores StoreProvisioner // Optional, nil leaves new stores without a menu
}

// ProviderOption configures a DBProvider
type ProviderOption func(*DBProvider)

// WithStores initialises the default menu for every store handed to a new admin
func WithStores(stores StoreProvisioner) ProviderOption {
	return func(p *DBProvider) { p.stores = stores }
}

// NewDBProvider creates a provider on db
func NewDBProvider(db *gorm.DB, opts ...ProviderOption) *DBProvider {
	p := &DBProvider{db: db}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register creates the user with a bcrypt hash and a lower-cased email. An
// admin registered without a store gets the next free numeric store id.
func (p *DBProvider) Register(ctx context.Context, reg Registration) (*domain.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := domain.User{
		Email:    normalizeEmail(reg.Email),
		Name:     reg.Name,
		Password: string(hash),
		IsAdmin:  reg.IsAdmin,
	}
	// Only admins carry a managed store
	if reg.IsAdmin && reg.StoreID != nil && *reg.StoreID != "" {
		store := *reg.StoreID
		user.StoreID = &store
	}
	var existing int64
	if err := p.db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", user.Email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}
	if user.IsAdmin && user.StoreID == nil {
		store, err := p.nextStoreID(ctx)
		if err != nil {
			return nil, err
		}
		user.StoreID = &store
	}
	if user.IsAdmin && p.stores != nil {
		// The store's menu exists before its admin does
		if _, err := p.stores.InitDefault(ctx, *user.StoreID); err != nil {
			return nil, err
		}
	}
	if err := p.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"email":    user.Email,
		"is_admin": user.IsAdmin,
		"store":    storeLabel(user.StoreID),
	}).Info("User registered")
	id := user.Identity()
	return &id, nil
}

// Login compares the password and returns the identity projection
func (p *DBProvider) Login(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	var user domain.User
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(creds.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	id := user.Identity()
	return &id, nil
}

// Find loads the identity for email
func (p *DBProvider) Find(ctx context.Context, email string) (*domain.Identity, error) {
	var user domain.User
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	id := user.Identity()
	return &id, nil
}

// nextStoreID is one past the highest numeric store id held by a user or a
// menu, "1" when there is none
func (p *DBProvider) nextStoreID(ctx context.Context) (string, error) {
	var userStores, menuStores []string
	if err := p.db.WithContext(ctx).Model(&domain.User{}).Where("store_id IS NOT NULL").Pluck("store_id", &userStores).Error; err != nil {
		return "", err
	}
	if err := p.db.WithContext(ctx).Model(&domain.Menu{}).Pluck("store_id", &menuStores).Error; err != nil {
		return "", err
	}
	highest := 0
	for _, id := range append(userStores, menuStores...) {
		if n, err := strconv.Atoi(id); err == nil && n > highest {
			highest = n // Non-numeric ids are skipped
		}
	}
	return strconv.Itoa(highest + 1), nil
}

func storeLabel(store *string) string {
	if store == nil {
		return ""
	}
	return *store
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
