package migrations

import (
	"fmt"

	"github.com/jmylchreest/vidpipe/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
//   - 001: schema for courses, videos, profiles, artifacts, transcripts and jobs
//   - 002: delivery destinations and the stock encode profiles
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002DefaultProfiles(),
	}
}

// schemaModels lists every table in dependency order.
func schemaModels() []any {
	return []any{
		&models.Course{},
		&models.Video{},
		&models.Destination{},
		&models.EncodeProfile{},
		&models.DeliveredArtifact{},
		&models.TranscriptProcess{},
		&models.TranscriptCredentials{},
		&models.Job{},
		&models.JobHistory{},
	}
}

func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create pipeline tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(schemaModels()...)
		},
		Down: func(tx *gorm.DB) error {
			tables := schemaModels()
			for i := len(tables) - 1; i >= 0; i-- {
				if err := tx.Migrator().DropTable(tables[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// DefaultProfile describes a stock encode profile seeded on install.
type DefaultProfile struct {
	Name        string
	Suffix      string
	FileType    string
	Resolution  string
	BitDepth    string
	Destination string
}

// DefaultProfiles are the encode profiles referenced by the default family table.
var DefaultProfiles = []DefaultProfile{
	{Name: "review", Suffix: "RVW", FileType: "mp4", Resolution: "720", BitDepth: "1500k", Destination: models.DestinationDirect},
	{Name: "override", Suffix: "OVR", FileType: "mp4", Resolution: "720", BitDepth: "1200k", Destination: models.DestinationDirect},
	{Name: "mobile_high", Suffix: "HMB", FileType: "mp4", Resolution: "540", BitDepth: "1000k", Destination: models.DestinationDirect},
	{Name: "mobile_low", Suffix: "LMB", FileType: "mp4", Resolution: "360", BitDepth: "400k", Destination: models.DestinationDirect},
	{Name: "audio_mp3", Suffix: "AUD", FileType: "mp3", BitDepth: "128k", Destination: models.DestinationDirect},
	{Name: "desktop_webm", Suffix: "DTH", FileType: "webm", Resolution: "720", BitDepth: "1500k", Destination: models.DestinationDirect},
	{Name: "desktop_mp4", Suffix: "DTH", FileType: "mp4", Resolution: "720", BitDepth: "1500k", Destination: models.DestinationDirect},
	{Name: "hls", Suffix: "HLS", FileType: "m3u8", Destination: models.DestinationPassThrough},
	{Name: "youtube", Suffix: "100", FileType: "mp4", Resolution: "1080", BitDepth: "8000k", Destination: models.DestinationYouTube},
}

func migration002DefaultProfiles() Migration {
	return Migration{
		Version:     "002",
		Description: "Seed delivery destinations and encode profiles",
		Up: func(tx *gorm.DB) error {
			destinations := []*models.Destination{
				{Name: "Endpoint bucket upload", Nick: models.DestinationDirect, Active: true},
				{Name: "YouTube partner SFTP", Nick: models.DestinationYouTube, Active: true},
				{Name: "HLS pass-through", Nick: models.DestinationPassThrough, Active: true},
			}
			byNick := make(map[string]models.ULID, len(destinations))
			for _, d := range destinations {
				if err := tx.Create(d).Error; err != nil {
					return fmt.Errorf("creating destination %s: %w", d.Nick, err)
				}
				byNick[d.Nick] = d.ID
			}

			for _, p := range DefaultProfiles {
				profile := &models.EncodeProfile{
					Name:          p.Name,
					Active:        true,
					Suffix:        p.Suffix,
					FileType:      p.FileType,
					Resolution:    p.Resolution,
					BitDepth:      p.BitDepth,
					DestinationID: byNick[p.Destination],
				}
				if err := tx.Create(profile).Error; err != nil {
					return fmt.Errorf("creating encode profile %s: %w", p.Name, err)
				}
			}
			return nil
		},
		Down: func(tx *gorm.DB) error {
			names := make([]string, 0, len(DefaultProfiles))
			for _, p := range DefaultProfiles {
				names = append(names, p.Name)
			}
			if err := tx.Unscoped().Where("name IN ?", names).Delete(&models.EncodeProfile{}).Error; err != nil {
				return err
			}
			return tx.Unscoped().
				Where("nick IN ?", []string{models.DestinationDirect, models.DestinationYouTube, models.DestinationPassThrough}).
				Delete(&models.Destination{}).Error
		},
	}
}
