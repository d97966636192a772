package models

import "time"

// CategoryItem represents a single catalog entry belonging to one category
type CategoryItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"not null;uniqueIndex;size:16" json:"title"`
	Description *string   `gorm:"size:64" json:"description"`
	Created     time.Time `gorm:"not null" json:"created"`
	CategoryID  uint      `gorm:"not null;index" json:"-"`
	Category    Category  `gorm:"foreignKey:CategoryID" json:"-"`
}

// TableName returns the table name for CategoryItem
func (CategoryItem) TableName() string {
	return "category_items"
}
