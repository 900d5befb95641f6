package db

import (
	"log"

	"github.com/google/uuid"
	"github.com/needle360/messaging/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type UserRepository interface {
	FindUserByID(id uuid.UUID) (*models.User, error)
	ExistAll(ids []uuid.UUID) (bool, error)
	SetOnline(id uuid.UUID, online bool) error
}

type userRepo struct {
	DB *gorm.DB
}

func NewUserRepo(db *GormDB) UserRepository {
	return &userRepo{db.DB}
}

func (u *userRepo) FindUserByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := u.DB.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistAll reports whether every id resolves to a user row.
func (u *userRepo) ExistAll(ids []uuid.UUID) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	var count int64
	if err := u.DB.Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "counting users")
	}
	return count == int64(len(ids)), nil
}

func (u *userRepo) SetOnline(id uuid.UUID, online bool) error {
	err := u.DB.Model(&models.User{}).Where("id = ?", id).Update("online", online).Error
	if err != nil {
		log.Printf("SetOnline error for user %s: %v", id, err)
	}
	return err
}
