package database

import "loop/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Profile{},
		&models.Follow{},
		&models.Circle{},
		&models.CircleMember{},
		&models.Loop{},
		&models.LoopStats{},
		&models.Interaction{},
		&models.Comment{},
		&models.Notification{},
		&models.Gift{},
		&models.Stream{},
		&models.OutboxEvent{},
	}
}
