package models

// Category represents a named grouping of catalog items
type Category struct {
	ID    uint           `gorm:"primaryKey" json:"id"`
	Name  string         `gorm:"not null;uniqueIndex;size:16" json:"name"`
	Items []CategoryItem `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"items"`
}

// TableName returns the table name for Category
func (Category) TableName() string {
	return "categories"
}
