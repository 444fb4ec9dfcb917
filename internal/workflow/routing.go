package workflow

import (
	"fmt"

	"contentline/internal/domain"
)

// reworkTargets is the rework routing table: for each channel, the stages a
// reviewer may send a rejected project back to, keyed by the review stage
// the rejection happens at. Script reviews always route back to the script;
// final reviews on video channels may re-open any production stage from the
// shoot onward, while creative-only LinkedIn has just the design stage to
// return to.
var reworkTargets = map[domain.Channel]map[domain.Stage][]domain.Stage{
	domain.ChannelLinkedIn: {
		domain.StageScriptReviewL1: {domain.StageScript},
		domain.StageScriptReviewL2: {domain.StageScript},
		domain.StageFinalReviewL1:  {domain.StageDesign},
		domain.StageFinalReviewL2:  {domain.StageDesign},
	},
	domain.ChannelYouTube: {
		domain.StageScriptReviewL1: {domain.StageScript},
		domain.StageScriptReviewL2: {domain.StageScript},
		domain.StageFinalReviewL1:  {domain.StageDesign, domain.StageEdit, domain.StageShoot},
		domain.StageFinalReviewL2:  {domain.StageDesign, domain.StageEdit, domain.StageShoot},
	},
	domain.ChannelInstagram: {
		domain.StageScriptReviewL1: {domain.StageScript},
		domain.StageScriptReviewL2: {domain.StageScript},
		domain.StageFinalReviewL1:  {domain.StageDesign, domain.StageEdit, domain.StageShoot},
		domain.StageFinalReviewL2:  {domain.StageDesign, domain.StageEdit, domain.StageShoot},
	},
}

// ReworkTargets returns the allowed rework destinations for a rejection at
// stage on channel. The result is empty for non-review stages.
func ReworkTargets(ch domain.Channel, stage domain.Stage) ([]domain.Stage, error) {
	byStage, ok := reworkTargets[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
	}
	targets := byStage[stage]
	out := make([]domain.Stage, len(targets))
	copy(out, targets)
	return out, nil
}

// ValidateReworkTarget checks that target is an allowed destination for a
// rejection at from on channel.
func ValidateReworkTarget(ch domain.Channel, from, target domain.Stage) error {
	targets, err := ReworkTargets(ch, from)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if t == target {
			return nil
		}
	}
	return InvalidTargetError{Channel: ch, From: from, Target: target}
}
