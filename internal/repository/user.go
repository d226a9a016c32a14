// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"

	"socialnet/internal/cache"
	"socialnet/internal/models"
	"socialnet/internal/observability"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	ListLeastFavorite(ctx context.Context) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		if err := readDB(r.db).WithContext(ctx).First(&user, id).Error; err != nil {
			return lookupError(err, "User", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail returns nil, nil when no user has the email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return findUser(readDB(r.db).WithContext(ctx), "email = ?", email)
}

// GetByUsername returns nil, nil when no user has the username. It reads the
// primary because login can follow signup immediately.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return findUser(r.db.WithContext(ctx), "username = ?", username)
}

// findUser returns the first user matching cond, or nil when there is none.
func findUser(db *gorm.DB, cond string, arg any) (*models.User, error) {
	var user models.User
	err := db.Where(cond, arg).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// writeError maps a failed insert or update. Unique violations become conflicts.
func writeError(err error, conflict string) error {
	if isUniqueConstraintError(err) {
		return models.NewConflictError(conflict)
	}
	return models.NewInternalError(err)
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return writeError(err, "A user with that username or email already exists")
	}
	return nil
}

// Update writes the editable profile fields only.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Model(user).Select("first_name", "last_name", "email").Updates(user).Error; err != nil {
		return writeError(err, "A user with that email already exists")
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

// Delete soft-deletes the user and their posts and removes every like that
// involves them, so they drop out of the least favorite listing. Cached
// copies of the user, their posts and the posts they liked are dropped.
func (r *userRepository) Delete(ctx context.Context, id uint) error {
	var postIDs, likedIDs []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("User", id)
		}
		if err := tx.Model(&models.Post{}).Where("user_id = ?", id).Pluck("id", &postIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Like{}).Where("user_id = ?", id).Pluck("post_id", &likedIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR post_id IN (?)", id,
			tx.Unscoped().Model(&models.Post{}).Select("id").Where("user_id = ?", id),
		).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", id).Delete(&models.Post{}).Error
	})
	if err != nil {
		return asAppError(err)
	}

	keys := []string{cache.UserKey(id)}
	for _, postID := range append(postIDs, likedIDs...) {
		keys = append(keys, cache.PostKey(postID))
	}
	cache.Invalidate(ctx, keys...)
	return nil
}

// List returns users newest first.
func (r *userRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	q := readDB(r.db).WithContext(ctx).Order("created_at DESC, id DESC")
	if err := q.Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// ListLeastFavorite returns, newest first, every user who has at least one
// post while none of their posts has a like.
func (r *userRepository) ListLeastFavorite(ctx context.Context) ([]models.User, error) {
	ctx, span := observability.StartRepositorySpan(ctx, "users", "ListLeastFavorite")
	defer observability.TrackQuery("least_favorite", "users")()

	var users []models.User
	err := readDB(r.db).WithContext(ctx).
		Where("EXISTS (SELECT 1 FROM posts WHERE posts.user_id = users.id AND posts.deleted_at IS NULL)").
		Where("NOT EXISTS (SELECT 1 FROM likes JOIN posts ON posts.id = likes.post_id WHERE posts.user_id = users.id AND posts.deleted_at IS NULL)").
		Order("users.created_at DESC, users.id DESC").
		Find(&users).Error
	observability.EndSpan(span, err)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}
