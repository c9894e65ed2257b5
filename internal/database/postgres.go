package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"transkript-bot/internal/config"
	"transkript-bot/internal/models"
)

func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	// TranslateError turns unique-index violations into gorm.ErrDuplicatedKey,
	// which the repository layer relies on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Connected to PostgreSQL")

	err = db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Package{},
		&models.Subscription{},
		&models.MinuteTransaction{},
		&models.UsageCharge{},
		&models.Payment{},
		&models.ShadowTransaction{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := SeedCatalog(db, cfg.FreePlanName); err != nil {
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	return db, nil
}

// SeedCatalog inserts the default plans and minute packages if the catalog
// is empty. Prices in whole soums.
func SeedCatalog(db *gorm.DB, freePlanName string) error {
	plans := []models.Plan{
		{Name: freePlanName, Price: 0, MinutesPerCycle: 30, IsActive: true},
		{Name: "start", Price: 29000, MinutesPerCycle: 300, IsActive: true},
		{Name: "pro", Price: 79000, MinutesPerCycle: 1200, IsActive: true},
	}
	for _, p := range plans {
		var plan models.Plan
		if err := db.Where(models.Plan{Name: p.Name}).Attrs(p).FirstOrCreate(&plan).Error; err != nil {
			return err
		}
	}

	packages := []models.Package{
		{Name: "1hr", Price: 9000, Minutes: 60},
		{Name: "5hr", Price: 39000, Minutes: 300},
		{Name: "10hr", Price: 69000, Minutes: 600},
	}
	for _, p := range packages {
		var pkg models.Package
		if err := db.Where(models.Package{Name: p.Name}).Attrs(p).FirstOrCreate(&pkg).Error; err != nil {
			return err
		}
	}
	return nil
}
