package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysindex/takestamp"
)

// GORM rewrites '?' placeholders for the active dialect, so raw statements
// built here run unchanged on sqlite and postgres.
var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// maxInList caps the number of ids bound into a single IN (...) clause.
const maxInList = 500

// PhotoBoundsQuery selects min/max takestamp over photos directly in the given albums.
func PhotoBoundsQuery(albumIDs []uint) sq.SelectBuilder {
	return qb.Select("MIN(takestamp)", "MAX(takestamp)").
		From("photos").
		Where(sq.Eq{"album_id": albumIDs}).
		Where(sq.NotEq{"takestamp": nil})
}

// ChildAlbumBoundsQuery selects min/max of the cached bounds of an album's direct children.
func ChildAlbumBoundsQuery(parentID uint) sq.SelectBuilder {
	return qb.Select("MIN(min_takestamp)", "MAX(max_takestamp)").
		From("albums").
		Where(sq.Eq{"parent_id": parentID})
}

// QueryBounds runs a two-column MIN/MAX query and returns the result as bounds.
func QueryBounds(db *gorm.DB, query sq.SelectBuilder) (takestamp.Bounds, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return takestamp.Bounds{}, fmt.Errorf("failed to build SQL query for bounds: %w", err)
	}

	var lo, hi sql.NullInt64
	if err := db.Raw(sqlStr, args...).Row().Scan(&lo, &hi); err != nil {
		return takestamp.Bounds{}, fmt.Errorf("failed to query bounds: %w", err)
	}

	var b takestamp.Bounds
	if lo.Valid {
		b.Min = &lo.Int64
	}
	if hi.Valid {
		b.Max = &hi.Int64
	}
	return b, nil
}

// PhotoBoundsIn merges PhotoBoundsQuery over albumIDs, split into IN lists of bounded size.
func PhotoBoundsIn(db *gorm.DB, albumIDs []uint) (takestamp.Bounds, error) {
	var out takestamp.Bounds
	for start := 0; start < len(albumIDs); start += maxInList {
		end := min(start+maxInList, len(albumIDs))
		b, err := QueryBounds(db, PhotoBoundsQuery(albumIDs[start:end]))
		if err != nil {
			return takestamp.Bounds{}, err
		}
		out = out.Merge(b)
	}
	return out, nil
}
