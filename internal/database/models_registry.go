package database

import "socialnet/internal/models"

// PersistentModels lists the tables AutoMigrate manages, parents first.
func PersistentModels() []any {
	return []any{&models.User{}, &models.Post{}, &models.Like{}}
}
