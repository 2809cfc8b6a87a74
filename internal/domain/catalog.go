package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category groups products.
type Category struct {
	BaseEntity
	Name        string `gorm:"size:100;not null" json:"name" binding:"required,max=100"`
	Slug        string `gorm:"size:100;uniqueIndex;not null" json:"slug" binding:"required,max=100"`
	Description string `gorm:"size:1000" json:"description" binding:"max=1000"`
}

// Product is a sellable catalog item. Concurrent edits are detected through
// its version.
type Product struct {
	VersionedEntity
	Name        string     `gorm:"size:200;not null" json:"name" binding:"required,max=200"`
	SKU         string     `gorm:"size:64;uniqueIndex;not null" json:"sku" binding:"required,max=64"`
	Description string     `gorm:"size:2000" json:"description" binding:"max=2000"`
	Price       float64    `gorm:"not null" json:"price" binding:"gte=0"`
	Stock       int        `gorm:"not null" json:"stock" binding:"gte=0"`
	Currency    string     `gorm:"size:3;not null" json:"currency" binding:"required,len=3"`
	IsActive    bool       `gorm:"not null" json:"isActive"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CategoryID  *uuid.UUID `gorm:"type:uuid;index" json:"categoryId,omitempty"`
	Category    *Category  `json:"category,omitempty" binding:"-"`
}

// TextSearchFields keeps currency codes out of free-text search.
func (Product) TextSearchFields() []string {
	return []string{"Name", "SKU", "Description"}
}
