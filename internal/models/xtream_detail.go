package models

import "errors"

// DetailKind distinguishes the two detail lookups of the Player API.
type DetailKind string

// Detail kinds.
const (
	DetailKindVOD    DetailKind = "vod"
	DetailKindSeries DetailKind = "series"
)

// XtreamDetail caches the raw get_vod_info / get_series_info payload of one
// upstream item for a target.
type XtreamDetail struct {
	BaseModel
	Target    string     `gorm:"size:255;not null;uniqueIndex:idx_xtream_detail_key,priority:1" json:"target"`
	Kind      DetailKind `gorm:"size:16;not null;uniqueIndex:idx_xtream_detail_key,priority:2" json:"kind"`
	ContentID int64      `gorm:"not null;uniqueIndex:idx_xtream_detail_key,priority:3" json:"content_id"`
	Input     string     `gorm:"size:255" json:"input"`
	Payload   []byte     `gorm:"not null" json:"-"`
}

// TableName returns the table name for XtreamDetail.
func (XtreamDetail) TableName() string {
	return "xtream_details"
}

// Validate checks the key fields of the detail.
func (d *XtreamDetail) Validate() error {
	if d.Target == "" {
		return errors.New("target is required")
	}
	if d.Kind != DetailKindVOD && d.Kind != DetailKindSeries {
		return errors.New("kind must be vod or series")
	}
	if len(d.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}
