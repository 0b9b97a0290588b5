package domain

// Menu is the per-store document of categories and items
type Menu struct {
	StoreID    string     `gorm:"primaryKey;size:64" json:"storeId"`          // The store signal
	Title      string     `json:"menuTitle"`                                  // Title shown on the kiosk
	Categories []string   `gorm:"serializer:json;type:text" json:"categories"` // Ordered category names
	Items      []MenuItem `gorm:"serializer:json;type:text" json:"menuItems"`  // Ordered items
	UpdatedAt  int64      `gorm:"autoUpdateTime:milli" json:"updatedAt"`       // Last write in millis
}

// TableName keeps the table name independent of the struct name
func (Menu) TableName() string {
	return "kiosk_menus"
}

// MenuItem is one orderable item
type MenuItem struct {
	ID       string              `json:"id"`                // Item id
	Category string              `json:"category"`          // Category name
	Name     string              `json:"name"`              // Display name
	Price    int64               `json:"price"`             // Price in minor units
	Image    string              `json:"image,omitempty"`   // Image URL
	Options  map[string][]string `json:"options,omitempty"` // Offered choices per option name
}
