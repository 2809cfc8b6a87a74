package domain

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity is the common base struct for all stored records.
// Timestamps are stamped by the repository, so GORM's automatic tracking is
// disabled on both fields. Soft deletion is an explicit flag rather than
// gorm.DeletedAt.
type BaseEntity struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime:false;index" json:"createdAt"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false" json:"updatedAt,omitempty"`
	IsDeleted bool       `gorm:"not null;index" json:"isDeleted"`
}

// GetBase returns the embedded base so that any struct embedding BaseEntity
// satisfies Entity.
func (b *BaseEntity) GetBase() *BaseEntity { return b }

// Entity is the contract every type handled by the generic repository satisfies.
type Entity interface {
	GetBase() *BaseEntity
}

// Versioned is implemented by entities that carry an optimistic concurrency token.
type Versioned interface {
	GetVersion() int64
	SetVersion(v int64)
}

// VersionedEntity is a BaseEntity with a version column checked on every update.
type VersionedEntity struct {
	BaseEntity
	Version int64 `gorm:"not null" json:"version"`
}

func (v *VersionedEntity) GetVersion() int64  { return v.Version }
func (v *VersionedEntity) SetVersion(n int64) { v.Version = n }

// TextSearchable narrows free-text search to the returned field names.
// Entities that do not implement it are searched across every text field.
type TextSearchable interface {
	TextSearchFields() []string
}
