package models

// TranscriptProcess tracks one transcription or translation request at a
// vendor. Rows are appended; the latest by UpdatedAt is authoritative for a
// (video, provider, language) key.
type TranscriptProcess struct {
	BaseModel

	VideoID       ULID               `gorm:"type:varchar(26);not null;index" json:"video_id"`
	Provider      TranscriptProvider `gorm:"not null;size:50" json:"provider"`
	ProcessID     string             `gorm:"not null;size:255;index" json:"process_id"`
	TranslationID string             `gorm:"size:255" json:"translation_id,omitempty"`
	LangCode      string             `gorm:"not null;size:50" json:"lang_code"`
	Status        TranscriptStatus   `gorm:"not null;size:20" json:"status"`
}

// TableName returns the table name for TranscriptProcess.
func (TranscriptProcess) TableName() string {
	return "transcript_processes"
}

// TranscriptCredentials holds a vendor account for an organization.
type TranscriptCredentials struct {
	BaseModel

	Org       string             `gorm:"not null;size:50;uniqueIndex:idx_credentials_org_provider" json:"org"`
	Provider  TranscriptProvider `gorm:"not null;size:50;uniqueIndex:idx_credentials_org_provider" json:"provider"`
	APIKey    string             `gorm:"not null;size:255" json:"-" masq:"secret"`
	APISecret string             `gorm:"size:255" json:"-" masq:"secret"`
}

// TableName returns the table name for TranscriptCredentials.
func (TranscriptCredentials) TableName() string {
	return "transcript_credentials"
}
