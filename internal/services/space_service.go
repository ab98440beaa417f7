package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

// CreateSpaceInput is what an owner supplies for a new space. Description is
// also the owner's instructions to the assistant.
type CreateSpaceInput struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Persona         *string `json:"persona,omitempty"`
	Tone            *string `json:"tone,omitempty"`
	Audience        *string `json:"audience,omitempty"`
	FallbackMessage *string `json:"fallback_message,omitempty"`
}

type SpaceService struct {
	db core.DbClient
}

func NewSpaceService(db core.DbClient) *SpaceService {
	return &SpaceService{db: db}
}

func (s *SpaceService) Create(ctx context.Context, ownerID string, in CreateSpaceInput) (*models.Space, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.NewInvalidRequest("space name is required")
	}
	space := &models.Space{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Name:            name,
		Description:     strings.TrimSpace(in.Description),
		Persona:         trimmed(in.Persona),
		Tone:            trimmed(in.Tone),
		Audience:        trimmed(in.Audience),
		FallbackMessage: trimmed(in.FallbackMessage),
	}
	if err := s.db.CreateSpace(ctx, space); err != nil {
		return nil, fmt.Errorf("create space: %w", err)
	}
	return s.db.GetSpace(ctx, space.ID)
}

// Owned returns the space only when ownerID owns it. Spaces of other owners
// are reported as not found.
func (s *SpaceService) Owned(ctx context.Context, ownerID, spaceID string) (*models.Space, error) {
	return ownedSpace(ctx, s.db, ownerID, spaceID)
}

func ownedSpace(ctx context.Context, db core.DbClient, ownerID, spaceID string) (*models.Space, error) {
	space, err := db.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("get space %s: %w", spaceID, err)
	}
	if space == nil || space.OwnerID != ownerID {
		return nil, apperr.NewNotFound("space")
	}
	return space, nil
}

// trimmed drops blank optional settings so they are stored as NULL.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
