package services

import (
	"log"
	"net/http"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/needle360/messaging/config"
	"github.com/needle360/messaging/db"
	apiError "github.com/needle360/messaging/errors"
	"github.com/needle360/messaging/models"
	"github.com/needle360/messaging/services/jwt"
	"gorm.io/gorm"
)

// IdentityVerifier is the boundary to the external account system. Given
// a bearer credential it resolves a verified user, or fails; it also
// answers existence checks for participant ids. Nothing past this
// interface ever sees a raw token.
type IdentityVerifier interface {
	VerifyToken(token string) (*models.User, *apiError.Error)
	Lookup(id uuid.UUID) (*models.User, *apiError.Error)
	ExistAll(ids []uuid.UUID) (bool, *apiError.Error)
	SetOnline(id uuid.UUID, online bool)
}

type identityVerifier struct {
	Config   *config.Config
	userRepo db.UserRepository
}

func NewIdentityVerifier(userRepo db.UserRepository, conf *config.Config) IdentityVerifier {
	return &identityVerifier{
		Config:   conf,
		userRepo: userRepo,
	}
}

func (v *identityVerifier) VerifyToken(token string) (*models.User, *apiError.Error) {
	if token == "" {
		return nil, apiError.New("no token provided", http.StatusUnauthorized)
	}

	claims, err := jwt.ValidateAndGetClaims(token, v.Config.JWTSecret)
	if err != nil {
		return nil, apiError.New("invalid or expired token", http.StatusUnauthorized)
	}

	rawID, ok := claims["id"].(string)
	if !ok {
		return nil, apiError.New("user id not found in token", http.StatusUnauthorized)
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apiError.New("invalid user id format", http.StatusUnauthorized)
	}

	user, err := v.userRepo.FindUserByID(userID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.New("user not found", http.StatusUnauthorized)
		}
		log.Printf("VerifyToken error finding user %s: %v", userID, err)
		return nil, apiError.ErrInternalServerError
	}
	return user, nil
}

func (v *identityVerifier) Lookup(id uuid.UUID) (*models.User, *apiError.Error) {
	user, err := v.userRepo.FindUserByID(id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("user not found")
		}
		log.Printf("Lookup error finding user %s: %v", id, err)
		return nil, apiError.ErrInternalServerError
	}
	return user, nil
}

func (v *identityVerifier) ExistAll(ids []uuid.UUID) (bool, *apiError.Error) {
	ok, err := v.userRepo.ExistAll(ids)
	if err != nil {
		log.Printf("ExistAll error: %v", err)
		return false, apiError.ErrInternalServerError
	}
	return ok, nil
}

// SetOnline is best effort; presence is advisory and never gates
// delivery.
func (v *identityVerifier) SetOnline(id uuid.UUID, online bool) {
	_ = v.userRepo.SetOnline(id, online)
}
