// Package store provides the repository over the catalog database.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pankajredekar/catalog/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Store exposes the catalog persistence operations over a relational database
type Store struct {
	db *gorm.DB
}

// Open connects to the database based on the URL and migrates the schema
func Open(databaseURL string) (*Store, error) {
	var db *gorm.DB
	var err error

	gormCfg := &gorm.Config{TranslateError: true}

	if strings.Contains(databaseURL, "postgres://") || strings.Contains(databaseURL, "postgresql://") {
		db, err = gorm.Open(postgres.Open(databaseURL), gormCfg)
	} else if strings.Contains(databaseURL, "sqlite://") {
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		db, err = gorm.Open(sqlite.Open(path), gormCfg)
		if err == nil {
			// A single pooled connection keeps the pragma in effect and
			// makes :memory: databases stable across queries.
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
			err = db.Exec("PRAGMA foreign_keys = ON").Error
		}
	} else {
		return nil, fmt.Errorf("unsupported database URL: %s", databaseURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Category{}, &models.CategoryItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Reset drops both tables, recreates them and inserts the seed data
func (s *Store) Reset(categories []models.Category, items []models.CategoryItem) error {
	if err := s.db.Migrator().DropTable(&models.CategoryItem{}, &models.Category{}); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	if err := s.db.AutoMigrate(&models.Category{}, &models.CategoryItem{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range categories {
			if err := tx.Create(&categories[i]).Error; err != nil {
				return fmt.Errorf("failed to seed category %q: %w", categories[i].Name, err)
			}
		}
		for i := range items {
			items[i].Created = time.Now()
			if err := tx.Create(&items[i]).Error; err != nil {
				return fmt.Errorf("failed to seed item %q: %w", items[i].Title, err)
			}
		}
		return nil
	})
}

// Categories returns all categories in ascending id order
func (s *Store) Categories() ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.Order("id ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// CategoryByName returns the category with the given name, if it exists
func (s *Store) CategoryByName(name string) (*models.Category, bool, error) {
	var category models.Category
	err := s.db.Where("name = ?", name).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up category %q: %w", name, err)
	}
	return &category, true, nil
}

// CreateCategory inserts a new category
func (s *Store) CreateCategory(category *models.Category) error {
	if err := s.db.Create(category).Error; err != nil {
		return fmt.Errorf("failed to create category %q: %w", category.Name, err)
	}
	return nil
}

// DeleteCategory removes a category and, in the same transaction, every item
// that references it
func (s *Store) DeleteCategory(id uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("category_id = ?", id).Delete(&models.CategoryItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Category{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete category %d: %w", id, err)
	}
	return nil
}

// ItemsByCategory returns the items of a category, newest first
func (s *Store) ItemsByCategory(categoryID uint) ([]models.CategoryItem, error) {
	var items []models.CategoryItem
	if err := s.db.Where("category_id = ?", categoryID).Order("created DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list items for category %d: %w", categoryID, err)
	}
	return items, nil
}

// AllItems returns every item with its category preloaded, newest first
func (s *Store) AllItems() ([]models.CategoryItem, error) {
	var items []models.CategoryItem
	if err := s.db.Preload("Category").Order("created DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// ItemByTitle returns the item with the given title, if it exists
func (s *Store) ItemByTitle(title string) (*models.CategoryItem, bool, error) {
	var item models.CategoryItem
	err := s.db.Where("title = ?", title).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up item %q: %w", title, err)
	}
	return &item, true, nil
}

// ItemInCategory returns the item with the given title inside the named
// category, if it exists
func (s *Store) ItemInCategory(categoryName, title string) (*models.CategoryItem, bool, error) {
	var item models.CategoryItem
	err := s.db.Joins("JOIN categories ON categories.id = category_items.category_id").
		Where("categories.name = ? AND category_items.title = ?", categoryName, title).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up item %q in category %q: %w", title, categoryName, err)
	}
	return &item, true, nil
}

// CreateItem inserts a new item
func (s *Store) CreateItem(item *models.CategoryItem) error {
	if err := s.db.Create(item).Error; err != nil {
		return fmt.Errorf("failed to create item %q: %w", item.Title, err)
	}
	return nil
}

// UpdateItem persists the item's current field values
func (s *Store) UpdateItem(item *models.CategoryItem) error {
	if err := s.db.Omit("Category").Save(item).Error; err != nil {
		return fmt.Errorf("failed to update item %q: %w", item.Title, err)
	}
	return nil
}

// DeleteItemByTitle removes the item with the given title
func (s *Store) DeleteItemByTitle(title string) error {
	if err := s.db.Where("title = ?", title).Delete(&models.CategoryItem{}).Error; err != nil {
		return fmt.Errorf("failed to delete item %q: %w", title, err)
	}
	return nil
}

// Catalog returns every category in ascending id order with its items attached
func (s *Store) Catalog() ([]models.Category, error) {
	categories := []models.Category{}
	if err := s.db.Preload("Items").Order("id ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	for i := range categories {
		if categories[i].Items == nil {
			categories[i].Items = []models.CategoryItem{}
		}
	}
	return categories, nil
}

// IsDuplicate reports whether err came from a uniqueness constraint.
// Older sqlite driver versions leave constraint errors untranslated, so the
// raw message is checked as well.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsBadReference reports whether err came from a foreign-key constraint
func IsBadReference(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrForeignKeyViolated) ||
		strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
