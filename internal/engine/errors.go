package engine

import (
	"errors"
	"fmt"

	"contentline/internal/domain"
)

// ErrAlreadyTerminal rejects mutating calls on a project whose stage has
// reached the end of its channel's sequence.
var ErrAlreadyTerminal = errors.New("project already completed")

// ErrCommentRequired rejects a rework without a reason.
var ErrCommentRequired = errors.New("rejection comment required")

// NotAReviewStageError reports an approve call outside a review stage.
type NotAReviewStageError struct {
	Stage domain.Stage
}

func (e NotAReviewStageError) Error() string {
	return fmt.Sprintf("stage %s is not a review stage", e.Stage)
}
