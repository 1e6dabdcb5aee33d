package services

import (
	"gorm.io/gorm"

	"github.com/Gopher0727/SecretSanta/internal/repositories"
)

// Stores bundles the repositories the services share.
type Stores struct {
	Tx           *repositories.TxManager
	Users        *repositories.UserRepository
	Groups       *repositories.GroupRepository
	Participants *repositories.ParticipantRepository
	Draws        *repositories.DrawRepository
}

func NewStores(db *gorm.DB) Stores {
	return Stores{
		Tx:           repositories.NewTxManager(db),
		Users:        repositories.NewUserRepository(db),
		Groups:       repositories.NewGroupRepository(db),
		Participants: repositories.NewParticipantRepository(db),
		Draws:        repositories.NewDrawRepository(db),
	}
}
