package models

// Destination nicknames select how a finished artifact is delivered.
const (
	// DestinationDirect uploads the artifact to the endpoint bucket.
	DestinationDirect = "S31"
	// DestinationYouTube hands the artifact to the partner SFTP drop.
	DestinationYouTube = "YT1"
	// DestinationPassThrough artifacts are already at their final location.
	DestinationPassThrough = "HLS"
)

// Destination is a delivery mechanism referenced by encode profiles.
type Destination struct {
	BaseModel

	Name   string `gorm:"not null;size:200" json:"name"`
	Nick   string `gorm:"not null;size:3;uniqueIndex" json:"nick"`
	Active bool   `gorm:"not null" json:"active"`
}

// TableName returns the table name for Destination.
func (Destination) TableName() string {
	return "destinations"
}

// EncodeProfile is a named target output format.
type EncodeProfile struct {
	BaseModel

	// Name is the profile key used across the pipeline (e.g. desktop_mp4).
	Name       string `gorm:"not null;size:100;uniqueIndex" json:"name"`
	Active     bool   `gorm:"not null;index" json:"active"`
	Suffix     string `gorm:"not null;size:20" json:"suffix"`
	FileType   string `gorm:"not null;size:10" json:"file_type"`
	BitDepth   string `gorm:"size:20" json:"bit_depth,omitempty"`
	Resolution string `gorm:"size:20" json:"resolution,omitempty"`

	DestinationID ULID         `gorm:"type:varchar(26);not null" json:"destination_id"`
	Destination   *Destination `gorm:"foreignKey:DestinationID" json:"destination,omitempty"`
}

// TableName returns the table name for EncodeProfile.
func (EncodeProfile) TableName() string {
	return "encode_profiles"
}

// ArtifactName is the file name workers write for a video in this profile.
func (p *EncodeProfile) ArtifactName(videoID string) string {
	return videoID + "_" + p.Suffix + "." + p.FileType
}

// DestinationNick returns the routing nickname, or "" if the destination is not loaded.
func (p *EncodeProfile) DestinationNick() string {
	if p.Destination == nil {
		return ""
	}
	return p.Destination.Nick
}
