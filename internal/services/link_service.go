package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

const tokenBytes = 24

type LinkService struct {
	db core.DbClient
}

func NewLinkService(db core.DbClient) *LinkService {
	return &LinkService{db: db}
}

// Create issues a new share link with an unguessable token.
func (s *LinkService) Create(ctx context.Context, ownerID, spaceID, label string) (*models.ShareLink, error) {
	if _, err := ownedSpace(ctx, s.db, ownerID, spaceID); err != nil {
		return nil, err
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	link := &models.ShareLink{
		ID:      uuid.NewString(),
		SpaceID: spaceID,
		Token:   token,
		Label:   strings.TrimSpace(label),
	}
	if err := s.db.CreateShareLink(ctx, link); err != nil {
		return nil, fmt.Errorf("create share link: %w", err)
	}
	return s.db.GetShareLink(ctx, link.ID)
}

func (s *LinkService) Revoke(ctx context.Context, ownerID, linkID string) (*models.ShareLink, error) {
	return s.setRevoked(ctx, ownerID, linkID, true)
}

func (s *LinkService) Restore(ctx context.Context, ownerID, linkID string) (*models.ShareLink, error) {
	return s.setRevoked(ctx, ownerID, linkID, false)
}

func (s *LinkService) setRevoked(ctx context.Context, ownerID, linkID string, revoked bool) (*models.ShareLink, error) {
	link, err := s.db.GetShareLink(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("get share link %s: %w", linkID, err)
	}
	if link == nil {
		return nil, apperr.NewNotFound("share link")
	}
	if _, err := ownedSpace(ctx, s.db, ownerID, link.SpaceID); err != nil {
		return nil, apperr.NewNotFound("share link")
	}
	if err := s.db.SetShareLinkRevoked(ctx, linkID, revoked); err != nil {
		return nil, fmt.Errorf("update share link %s: %w", linkID, err)
	}
	return s.db.GetShareLink(ctx, linkID)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
