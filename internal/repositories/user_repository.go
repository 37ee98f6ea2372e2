package repositories

import (
	"github.com/knotapp/knot/internal/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	CreateUser(user *models.User) error
	GetUserByID(id uint) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUsersByIDs(ids []uint) ([]models.User, error)
	SearchUsers(query string) ([]models.User, error)
	IncrementFollowersCount(userID uint) error
	DecrementFollowersCount(userID uint) error
	IncrementFollowingCount(userID uint) error
	DecrementFollowingCount(userID uint) error
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// CreateUser creates a new user in PostgreSQL
func (r *PostgresUserRepository) CreateUser(user *models.User) error {
	return r.db.Create(user).Error
}

// GetUserByID retrieves a user by ID from PostgreSQL
func (r *PostgresUserRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email from PostgreSQL
func (r *PostgresUserRepository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs retrieves a batch of users by their IDs
func (r *PostgresUserRepository) GetUsersByIDs(ids []uint) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// SearchUsers searches for users by display name or handle (case-insensitive)
func (r *PostgresUserRepository) SearchUsers(query string) ([]models.User, error) {
	var users []models.User
	if err := r.db.Where("LOWER(display_name) LIKE LOWER(?) OR LOWER(handle) LIKE LOWER(?)", "%"+query+"%", "%"+query+"%").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *PostgresUserRepository) IncrementFollowersCount(userID uint) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).Update("followers_count", gorm.Expr("followers_count + 1")).Error
}

func (r *PostgresUserRepository) DecrementFollowersCount(userID uint) error {
	return r.db.Model(&models.User{}).Where("id = ? AND followers_count > 0", userID).Update("followers_count", gorm.Expr("followers_count - 1")).Error
}

func (r *PostgresUserRepository) IncrementFollowingCount(userID uint) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).Update("following_count", gorm.Expr("following_count + 1")).Error
}

func (r *PostgresUserRepository) DecrementFollowingCount(userID uint) error {
	return r.db.Model(&models.User{}).Where("id = ? AND following_count > 0", userID).Update("following_count", gorm.Expr("following_count - 1")).Error
}
