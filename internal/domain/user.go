package domain

// User Model
type User struct {
	ID       uint    `gorm:"primaryKey"`               // Primary key
	Email    string  `gorm:"unique;not null;size:191"` // Unique email, the identity key
	Name     string  `gorm:"size:100"`                 // Display name
	Password string  `gorm:"not null"`                 // Hashed password
	IsAdmin  bool    `gorm:"default:false"`            // Admin flag, set once at registration
	StoreID  *string `gorm:"size:64"`                  // Store the admin manages, nil for regular users
}

// Identity is the read projection of a User held by a kiosk session
type Identity struct {
	Email   string  `json:"email"`   // Unique key
	IsAdmin bool    `json:"isAdmin"` // Admin flag
	StoreID *string `json:"storeId"` // Managed store, nil when none
}

// Identity projects the user into the session-held identity
func (u User) Identity() Identity {
	return Identity{Email: u.Email, IsAdmin: u.IsAdmin, StoreID: u.StoreID}
}

// ManagesStore reports whether the identity administers the given store
func (i Identity) ManagesStore(storeID string) bool {
	return i.IsAdmin && i.StoreID != nil && *i.StoreID != "" && *i.StoreID == storeID
}
