// Package workflow holds the static channel workflow table: for each
// channel, the ordered list of production stages and the role responsible
// for each. The engine consults it for every transition; nothing here
// mutates state.
package workflow

import (
	"errors"
	"fmt"

	"contentline/internal/domain"
)

// Step binds one stage of a channel's pipeline to its responsible role.
type Step struct {
	Stage domain.Stage `json:"stage"`
	Role  domain.Role  `json:"role"`
}

// ErrInvalidChannel reports a channel with no workflow sequence.
var ErrInvalidChannel = errors.New("unknown channel")

// InvalidStageError reports a stage that is not part of a channel's
// sequence. The caller is expected to match stage to channel, so hitting
// this is a caller bug, not a workflow condition.
type InvalidStageError struct {
	Channel domain.Channel
	Stage   domain.Stage
}

func (e InvalidStageError) Error() string {
	return fmt.Sprintf("stage %s is not part of the %s workflow", e.Stage, e.Channel)
}

// InvalidTargetError reports a rework target that the routing table does
// not allow from the given stage.
type InvalidTargetError struct {
	Channel domain.Channel
	From    domain.Stage
	Target  domain.Stage
}

func (e InvalidTargetError) Error() string {
	return fmt.Sprintf("stage %s is not a valid rework target from %s on %s", e.Target, e.From, e.Channel)
}

// sequences is the whole workflow definition, represented as data: adding a
// channel or reordering a pipeline is a table edit. Every sequence ends with
// the terminal COMPLETED entry, owned by Ops (publishing sub-state such as
// post_scheduled_date and live_url lives in the project data bag).
var sequences = map[domain.Channel][]Step{
	domain.ChannelLinkedIn: {
		{domain.StageScript, domain.RoleWriter},
		{domain.StageScriptReviewL1, domain.RoleCMO},
		{domain.StageScriptReviewL2, domain.RoleCEO},
		{domain.StageDesign, domain.RoleDesigner},
		{domain.StageFinalReviewL1, domain.RoleCMO},
		{domain.StageFinalReviewL2, domain.RoleCEO},
		{domain.StageCompleted, domain.RoleOps},
	},
	domain.ChannelYouTube: {
		{domain.StageScript, domain.RoleWriter},
		{domain.StageScriptReviewL1, domain.RoleCMO},
		{domain.StageScriptReviewL2, domain.RoleCEO},
		{domain.StageShoot, domain.RoleCine},
		{domain.StageEdit, domain.RoleEditor},
		{domain.StageDesign, domain.RoleDesigner},
		{domain.StageMetadata, domain.RoleOps},
		{domain.StageFinalReviewL1, domain.RoleCMO},
		{domain.StageFinalReviewL2, domain.RoleCEO},
		{domain.StageCompleted, domain.RoleOps},
	},
	domain.ChannelInstagram: {
		{domain.StageScript, domain.RoleWriter},
		{domain.StageScriptReviewL1, domain.RoleCMO},
		{domain.StageScriptReviewL2, domain.RoleCEO},
		{domain.StageShoot, domain.RoleCine},
		{domain.StageEdit, domain.RoleEditor},
		{domain.StageDesign, domain.RoleDesigner},
		{domain.StageFinalReviewL1, domain.RoleCMO},
		{domain.StageFinalReviewL2, domain.RoleCEO},
		{domain.StageCompleted, domain.RoleOps},
	},
}

// contentTypes maps each channel to what it produces.
var contentTypes = map[domain.Channel]domain.ContentType{
	domain.ChannelLinkedIn:  domain.ContentCreative,
	domain.ChannelYouTube:   domain.ContentVideo,
	domain.ChannelInstagram: domain.ContentVideo,
}

// reviewStages are the approval gates; their responsible roles are the
// approver set.
var reviewStages = map[domain.Stage]bool{
	domain.StageScriptReviewL1: true,
	domain.StageScriptReviewL2: true,
	domain.StageFinalReviewL1:  true,
	domain.StageFinalReviewL2:  true,
}

// Channels lists known channels in a stable order.
func Channels() []domain.Channel {
	return []domain.Channel{domain.ChannelLinkedIn, domain.ChannelYouTube, domain.ChannelInstagram}
}

// Sequence returns a copy of the channel's full ordered pipeline.
func Sequence(ch domain.Channel) ([]Step, error) {
	seq, ok := sequences[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
	}
	out := make([]Step, len(seq))
	copy(out, seq)
	return out, nil
}

// IndexOf returns the position of stage within the channel's sequence.
func IndexOf(ch domain.Channel, stage domain.Stage) (int, error) {
	seq, ok := sequences[ch]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
	}
	for i, step := range seq {
		if step.Stage == stage {
			return i, nil
		}
	}
	return 0, InvalidStageError{Channel: ch, Stage: stage}
}

// Next returns the step after stage in the channel's sequence, or ok=false
// when stage is the terminal entry.
func Next(ch domain.Channel, stage domain.Stage) (Step, bool, error) {
	idx, err := IndexOf(ch, stage)
	if err != nil {
		return Step{}, false, err
	}
	seq := sequences[ch]
	if idx+1 >= len(seq) {
		return Step{}, false, nil
	}
	return seq[idx+1], true, nil
}

// First returns the entry stage of the channel's sequence.
func First(ch domain.Channel) (Step, error) {
	seq, ok := sequences[ch]
	if !ok {
		return Step{}, fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
	}
	return seq[0], nil
}

// RoleFor returns the role bound to stage in the channel's sequence.
func RoleFor(ch domain.Channel, stage domain.Stage) (domain.Role, error) {
	idx, err := IndexOf(ch, stage)
	if err != nil {
		return "", err
	}
	return sequences[ch][idx].Role, nil
}

// IsReviewStage reports whether stage is an approval gate.
func IsReviewStage(stage domain.Stage) bool {
	return reviewStages[stage]
}

// IsTerminal reports whether stage is the last entry of the channel's
// sequence.
func IsTerminal(ch domain.Channel, stage domain.Stage) (bool, error) {
	idx, err := IndexOf(ch, stage)
	if err != nil {
		return false, err
	}
	return idx == len(sequences[ch])-1, nil
}

// ContentTypeFor returns what the channel produces.
func ContentTypeFor(ch domain.Channel) (domain.ContentType, error) {
	ct, ok := contentTypes[ch]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
	}
	return ct, nil
}
