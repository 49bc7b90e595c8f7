package models

import "github.com/camden-git/mediasysindex/takestamp"

// Album represents a node of the album tree in the database using GORM.
// It corresponds to the 'albums' table.
type Album struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ParentID     *uint  `gorm:"index" json:"parent_id,omitempty"` // Nullable, nil for root albums
	Name         string `gorm:"not null" json:"name"`
	MinTakestamp *int64 `gorm:"" json:"min_takestamp,omitempty"` // Nullable, Unix timestamp
	MaxTakestamp *int64 `gorm:"" json:"max_takestamp,omitempty"` // Nullable, Unix timestamp
	CreatedAt    int64  `gorm:"not null" json:"created_at"`      // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt    int64  `gorm:"not null" json:"updated_at"`      // Stored as INTEGER in SQLite, Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Album) TableName() string {
	return "albums"
}

// Bounds returns the cached takestamp range of the album's subtree.
func (a Album) Bounds() takestamp.Bounds {
	return takestamp.Bounds{Min: a.MinTakestamp, Max: a.MaxTakestamp}
}
