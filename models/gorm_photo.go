package models

// Photo represents a photo record in the database using GORM.
// It corresponds to the 'photos' table.
type Photo struct {
	ID         string  `gorm:"primaryKey" json:"id"`                      // UUID
	AlbumID    *uint   `gorm:"index" json:"album_id,omitempty"`           // Nullable, nil means unsorted
	Title      string  `gorm:"not null;default:''" json:"title"`
	Takestamp  *int64  `gorm:"index" json:"takestamp,omitempty"`          // Nullable, Unix timestamp of capture
	SourcePath *string `gorm:"uniqueIndex" json:"source_path,omitempty"` // Nullable, path relative to the import root
	CreatedAt  int64   `gorm:"not null" json:"created_at"`
	UpdatedAt  int64   `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (Photo) TableName() string {
	return "photos"
}
