package takestamp

import "fmt"

// Bounds is the min/max takestamp pair cached on an album.
// A nil Min or Max means no photo with a known takestamp exists below it.
type Bounds struct {
	Min *int64 `json:"min_takestamp,omitempty" yaml:"min,omitempty"`
	Max *int64 `json:"max_takestamp,omitempty" yaml:"max,omitempty"`
}

// Reduce scans the given takestamps, skipping nils, and returns their range.
// If every value is nil (or there are none) the result is empty.
func Reduce(stamps []*int64) Bounds {
	var b Bounds
	for _, ts := range stamps {
		if ts == nil {
			continue
		}
		if b.Min == nil || *ts < *b.Min {
			b.Min = int64Ptr(*ts)
		}
		if b.Max == nil || *ts > *b.Max {
			b.Max = int64Ptr(*ts)
		}
	}
	return b
}

// Empty reports whether the pair carries no usable range.
func (b Bounds) Empty() bool {
	return b.Min == nil || b.Max == nil
}

// Merge returns the union of both ranges. Nil sides are ignored.
func (b Bounds) Merge(o Bounds) Bounds {
	return Bounds{Min: lesser(b.Min, o.Min), Max: greater(b.Max, o.Max)}
}

// Equal compares by value, treating two nils as equal.
func (b Bounds) Equal(o Bounds) bool {
	return sameStamp(b.Min, o.Min) && sameStamp(b.Max, o.Max)
}

// Stamps returns the pair as a slice suitable for ApplyChange, which is how
// a whole album's content is described when it moves between parents.
func (b Bounds) Stamps() []*int64 {
	return []*int64{b.Min, b.Max}
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%s,%s]", fmtStamp(b.Min), fmtStamp(b.Max))
}

func fmtStamp(v *int64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *v)
}

func sameStamp(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func lesser(a, b *int64) *int64 {
	switch {
	case a == nil:
		return copyStamp(b)
	case b == nil:
		return copyStamp(a)
	case *b < *a:
		return copyStamp(b)
	default:
		return copyStamp(a)
	}
}

func greater(a, b *int64) *int64 {
	switch {
	case a == nil:
		return copyStamp(b)
	case b == nil:
		return copyStamp(a)
	case *b > *a:
		return copyStamp(b)
	default:
		return copyStamp(a)
	}
}

func copyStamp(v *int64) *int64 {
	if v == nil {
		return nil
	}
	return int64Ptr(*v)
}

func int64Ptr(v int64) *int64 { return &v }
