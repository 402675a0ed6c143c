package migration

import (
	"errors"
	"fmt"
	"time"

	authdomain "postmark-backend/internal/auth/domain"
	mailboxdomain "postmark-backend/internal/mailbox/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CurrentVersion must be bumped whenever a model changes shape.
const CurrentVersion = 1

var ErrSchemaOutdated = errors.New("database schema is outdated; run the migrate command")

type schemaMigration struct {
	Version   int `gorm:"primaryKey;autoIncrement:false"`
	AppliedAt time.Time
}

func (schemaMigration) TableName() string {
	return "schema_migrations"
}

// Models lists every table the service owns.
func Models() []interface{} {
	return []interface{}{
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.DeviceToken{},
		&mailboxdomain.MailboxConnection{},
		&mailboxdomain.MessageProjection{},
	}
}

// Migrate applies the schema and stamps CurrentVersion.
func Migrate(db *gorm.DB) error {
	models := append(Models(), &schemaMigration{})
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&schemaMigration{Version: CurrentVersion, AppliedAt: time.Now()}).Error
}

// Validate checks the version stamp and that every model column exists.
// It never alters the schema.
func Validate(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&schemaMigration{}) {
		return fmt.Errorf("%w: no schema_migrations table", ErrSchemaOutdated)
	}

	var version int
	if err := db.Model(&schemaMigration{}).Select("COALESCE(MAX(version), 0)").Scan(&version).Error; err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != CurrentVersion {
		return fmt.Errorf("%w: have version %d, want %d", ErrSchemaOutdated, version, CurrentVersion)
	}

	for _, model := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model %T: %w", model, err)
		}
		if !m.HasTable(model) {
			return fmt.Errorf("%w: missing table %s", ErrSchemaOutdated, stmt.Schema.Table)
		}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			if !m.HasColumn(model, field.DBName) {
				return fmt.Errorf("%w: missing column %s.%s", ErrSchemaOutdated, stmt.Schema.Table, field.DBName)
			}
		}
	}
	return nil
}
