package models

// DeliveredArtifact records a finished (video, profile) output. Records are
// never updated in place; the one with the latest DeliveredAt is current.
type DeliveredArtifact struct {
	BaseModel

	VideoID   ULID           `gorm:"type:varchar(26);not null;index:idx_artifact_video_profile" json:"video_id"`
	ProfileID ULID           `gorm:"type:varchar(26);not null;index:idx_artifact_video_profile" json:"profile_id"`
	Profile   *EncodeProfile `gorm:"foreignKey:ProfileID" json:"profile,omitempty"`

	URL         string  `gorm:"not null;size:500" json:"url"`
	Duration    float64 `json:"duration"`
	Bitrate     string  `gorm:"size:50" json:"bitrate,omitempty"`
	Size        int64   `json:"size"`
	Checksum    string  `gorm:"size:64" json:"checksum,omitempty"`
	DeliveredAt Time    `gorm:"not null;index" json:"delivered_at"`
	// Reported is set once the artifact has been pushed to the VAL.
	Reported bool `gorm:"not null" json:"reported"`
}

// TableName returns the table name for DeliveredArtifact.
func (DeliveredArtifact) TableName() string {
	return "delivered_artifacts"
}
