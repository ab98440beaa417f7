package core

import (
	"context"
)

// DocumentExtractor pulls plain text out of a binary document locally, without
// calling a model. The contentType hint selects the parsing strategy.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
