package chat_engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

// Validation is the outcome of resolving a public token. Space and Link are
// only set when Valid is true; Message is only set when it is false.
type Validation struct {
	Valid   bool
	Space   *models.Space
	Link    *models.ShareLink
	Message string
}

type LinkValidator struct {
	db core.DbClient
}

func NewLinkValidator(db core.DbClient) *LinkValidator {
	return &LinkValidator{db: db}
}

// Validate resolves token to its space. Unknown, revoked and orphaned tokens
// all produce the same invalid result. With record set, a valid lookup counts
// as one use of the link; a failure to record is logged and ignored.
func (v *LinkValidator) Validate(ctx context.Context, token string, record bool) (*Validation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid(), nil
	}

	link, err := v.db.GetActiveShareLinkByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("lookup share link: %w", err)
	}
	if link == nil || link.Revoked {
		return invalid(), nil
	}

	space, err := v.db.GetSpace(ctx, link.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("lookup space %s: %w", link.SpaceID, err)
	}
	if space == nil {
		return invalid(), nil
	}

	if record {
		if err := v.db.RecordShareLinkUse(ctx, link.ID); err != nil {
			log.Printf("LinkValidator: failed to record use of link %s: %v", link.ID, err)
		}
	}

	return &Validation{Valid: true, Space: space, Link: link}, nil
}

func invalid() *Validation {
	return &Validation{Valid: false, Message: apperr.MsgLinkInvalid}
}
