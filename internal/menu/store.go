// Package menu reads the per-store menu document.
package menu

import (
	"context"
	"errors"
	"sync"
	"time"

	"kiosk_system/internal/domain"
	"kiosk_system/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound means the store has no menu document
var ErrNotFound = errors.New("menu not found")

// CacheTTL is how long a menu stays in Redis
const CacheTTL = 10 * time.Minute

// ItemsPerPage is how many items the kiosk shows at once
const ItemsPerPage = 4

// Reader is the read side the kiosk screens use
type Reader interface {
	GetMenu(ctx context.Context, storeID string) (*domain.Menu, error)
}

// Store keeps menus in the database behind a Redis cache
type Store struct {
	db  *gorm.DB
	rdb redis.Cmdable // nil disables caching

	loadMu sync.Mutex
}

// NewStore creates a store; rdb may be nil
func NewStore(db *gorm.DB, rdb redis.Cmdable) *Store {
	return &Store{db: db, rdb: rdb}
}

func cacheKey(storeID string) string {
	return "menu:store:" + storeID
}

// GetMenu returns the menu for storeID, reading through the cache
func (s *Store) GetMenu(ctx context.Context, storeID string) (*domain.Menu, error) {
	if m, ok := s.cached(ctx, storeID); ok {
		return m, nil
	}

	// One loader at a time so an expired key does not stampede the database
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if m, ok := s.cached(ctx, storeID); ok {
		return m, nil
	}

	var m domain.Menu
	if err := s.db.WithContext(ctx).Where("store_id = ?", storeID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.rdb != nil {
		if err := utils.SetCache(ctx, s.rdb, cacheKey(storeID), m, CacheTTL); err != nil {
			logrus.WithFields(logrus.Fields{"store": storeID, "error": err.Error()}).Warn("Failed to cache menu")
		}
	}
	return &m, nil
}

func (s *Store) cached(ctx context.Context, storeID string) (*domain.Menu, bool) {
	if s.rdb == nil {
		return nil, false
	}
	var m domain.Menu
	found, err := utils.GetCache(ctx, s.rdb, cacheKey(storeID), &m)
	if err != nil {
		logrus.WithFields(logrus.Fields{"store": storeID, "error": err.Error()}).Warn("Menu cache read failed")
		return nil, false
	}
	return &m, found
}

// DefaultMenu is the document an admin gets on first use of a store
func DefaultMenu(storeID string) domain.Menu {
	return domain.Menu{
		StoreID:    storeID,
		Title:      "Cafe Menu",
		Categories: []string{"Category 1", "Category 2", "Category 3"},
		Items:      []domain.MenuItem{},
	}
}

// InitDefault creates the default document unless one exists, and returns
// whichever document is stored afterwards
func (s *Store) InitDefault(ctx context.Context, storeID string) (*domain.Menu, error) {
	m := DefaultMenu(storeID)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return nil, err
	}
	if s.rdb != nil {
		_ = utils.DeleteCache(ctx, s.rdb, cacheKey(storeID))
	}
	logrus.WithField("store", storeID).Info("Default menu initialised")
	return s.GetMenu(ctx, storeID)
}

// Save writes a whole menu document and drops the cached copy
func (s *Store) Save(ctx context.Context, m *domain.Menu) error {
	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	if s.rdb != nil {
		return utils.DeleteCache(ctx, s.rdb, cacheKey(m.StoreID))
	}
	return nil
}

// Page is one screen of a category
type Page struct {
	Category   string            `json:"category"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Items      []domain.MenuItem `json:"items"`
}

// Paginate filters items by category and cuts page (0-based) of ItemsPerPage.
// An empty category selects the first category of the menu.
func Paginate(m *domain.Menu, category string, page int) Page {
	if category == "" && len(m.Categories) > 0 {
		category = m.Categories[0]
	}
	var filtered []domain.MenuItem
	for _, it := range m.Items {
		if it.Category == category {
			filtered = append(filtered, it)
		}
	}
	totalPages := (len(filtered) + ItemsPerPage - 1) / ItemsPerPage
	if page < 0 {
		page = 0
	}
	if totalPages > 0 && page >= totalPages {
		page = totalPages - 1
	}
	start := page * ItemsPerPage
	end := start + ItemsPerPage
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	items := make([]domain.MenuItem, end-start)
	copy(items, filtered[start:end])
	return Page{Category: category, Page: page, TotalPages: totalPages, Items: items}
}

// FindItem looks up an item by id
func FindItem(m *domain.Menu, itemID string) (domain.MenuItem, bool) {
	for _, it := range m.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return domain.MenuItem{}, false
}
