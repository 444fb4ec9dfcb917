package workflow

import (
	"errors"
	"testing"

	"contentline/internal/domain"
)

func TestEverySequenceEndsAtCompleted(t *testing.T) {
	for _, ch := range Channels() {
		seq, err := Sequence(ch)
		if err != nil {
			t.Fatalf("Sequence(%s): %v", ch, err)
		}
		if len(seq) == 0 {
			t.Fatalf("%s: empty sequence", ch)
		}
		last := seq[len(seq)-1]
		if last.Stage != domain.StageCompleted {
			t.Fatalf("%s: last stage = %s, want COMPLETED", ch, last.Stage)
		}
		// Walking Next from the first stage must reach the terminal entry
		// in exactly len(seq)-1 steps.
		cur := seq[0].Stage
		steps := 0
		for {
			next, ok, err := Next(ch, cur)
			if err != nil {
				t.Fatalf("%s: Next(%s): %v", ch, cur, err)
			}
			if !ok {
				break
			}
			cur = next.Stage
			steps++
		}
		if cur != domain.StageCompleted || steps != len(seq)-1 {
			t.Fatalf("%s: walked to %s in %d steps, want COMPLETED in %d", ch, cur, steps, len(seq)-1)
		}
	}
}

func TestSequenceStagesAreUnique(t *testing.T) {
	for _, ch := range Channels() {
		seq, _ := Sequence(ch)
		seen := map[domain.Stage]bool{}
		for _, step := range seq {
			if seen[step.Stage] {
				t.Fatalf("%s: stage %s appears twice", ch, step.Stage)
			}
			seen[step.Stage] = true
		}
	}
}

func TestReviewStagesAssignedToApprovers(t *testing.T) {
	for _, ch := range Channels() {
		seq, _ := Sequence(ch)
		for _, step := range seq {
			if !IsReviewStage(step.Stage) {
				continue
			}
			if step.Role != domain.RoleCMO && step.Role != domain.RoleCEO {
				t.Fatalf("%s: review stage %s assigned to %s", ch, step.Stage, step.Role)
			}
		}
	}
}

func TestReworkTargetsStrictlyEarlier(t *testing.T) {
	for _, ch := range Channels() {
		seq, _ := Sequence(ch)
		for _, step := range seq {
			targets, err := ReworkTargets(ch, step.Stage)
			if err != nil {
				t.Fatalf("ReworkTargets(%s, %s): %v", ch, step.Stage, err)
			}
			if !IsReviewStage(step.Stage) {
				if len(targets) != 0 {
					t.Fatalf("%s: non-review stage %s has rework targets", ch, step.Stage)
				}
				continue
			}
			if len(targets) == 0 {
				t.Fatalf("%s: review stage %s has no rework targets", ch, step.Stage)
			}
			from, _ := IndexOf(ch, step.Stage)
			for _, target := range targets {
				ti, err := IndexOf(ch, target)
				if err != nil {
					t.Fatalf("%s: target %s not in sequence: %v", ch, target, err)
				}
				if ti >= from {
					t.Fatalf("%s: target %s not earlier than %s", ch, target, step.Stage)
				}
			}
		}
	}
}

func TestScriptReviewsRouteOnlyToScript(t *testing.T) {
	for _, ch := range Channels() {
		for _, stage := range []domain.Stage{domain.StageScriptReviewL1, domain.StageScriptReviewL2} {
			targets, _ := ReworkTargets(ch, stage)
			if len(targets) != 1 || targets[0] != domain.StageScript {
				t.Fatalf("%s %s: targets = %v, want [SCRIPT]", ch, stage, targets)
			}
		}
	}
}

func TestLinkedInFinalReviewCannotReachShoot(t *testing.T) {
	err := ValidateReworkTarget(domain.ChannelLinkedIn, domain.StageFinalReviewL2, domain.StageShoot)
	var ite InvalidTargetError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %v, want InvalidTargetError", err)
	}
	if err := ValidateReworkTarget(domain.ChannelYouTube, domain.StageFinalReviewL2, domain.StageShoot); err != nil {
		t.Fatalf("YOUTUBE final review to SHOOT: %v", err)
	}
}

func TestUnknownChannelAndStage(t *testing.T) {
	if _, err := Sequence(domain.Channel("TIKTOK")); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("err = %v, want ErrInvalidChannel", err)
	}
	_, err := IndexOf(domain.ChannelLinkedIn, domain.StageShoot)
	var ise InvalidStageError
	if !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStageError", err)
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[domain.Channel]domain.ContentType{
		domain.ChannelLinkedIn:  domain.ContentCreative,
		domain.ChannelYouTube:   domain.ContentVideo,
		domain.ChannelInstagram: domain.ContentVideo,
	}
	for ch, want := range cases {
		got, err := ContentTypeFor(ch)
		if err != nil {
			t.Fatalf("ContentTypeFor(%s): %v", ch, err)
		}
		if got != want {
			t.Fatalf("ContentTypeFor(%s) = %s, want %s", ch, got, want)
		}
	}
}
