package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gopher0727/SecretSanta/internal/models"
	"github.com/Gopher0727/SecretSanta/internal/repositories"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

const maxExternalIDLen = 64

// Profile is what the transport knows about a user.
type Profile struct {
	ExternalID string `json:"user_id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
}

type IdentityService struct {
	users  *repositories.UserRepository
	logger *logger.Logger
}

func NewIdentityService(users *repositories.UserRepository, log *logger.Logger) *IdentityService {
	return &IdentityService{users: users, logger: log.Named("identity")}
}

// Upsert registers the user on first contact and refreshes the name hints on
// later contact. Empty hints keep the stored value.
func (s *IdentityService) Upsert(ctx context.Context, p Profile) (*models.User, error) {
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	if p.ExternalID == "" {
		return nil, invalid("user_id", "user id is required")
	}
	if len(p.ExternalID) > maxExternalIDLen {
		return nil, invalid("user_id", "user id is longer than %d bytes", maxExternalIDLen)
	}

	user := &models.User{
		ExternalID: p.ExternalID,
		Username:   strings.TrimSpace(p.Username),
		FirstName:  strings.TrimSpace(p.FirstName),
	}
	existing, err := s.users.GetByExternalID(ctx, p.ExternalID)
	switch {
	case err == nil:
		if user.Username == "" {
			user.Username = existing.Username
		}
		if user.FirstName == "" {
			user.FirstName = existing.FirstName
		}
	case !repositories.IsNotFound(err):
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	if existing == nil {
		s.logger.InfoContext(ctx, "user registered", logger.UserID(user.ExternalID))
	}
	return user, nil
}
