package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contentline/internal/config"
	"contentline/internal/db"
	"contentline/internal/domain"
	"contentline/internal/engine"
	"contentline/internal/migrate"
	"contentline/internal/policy"
	"contentline/internal/repo"
	"contentline/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var (
	writer   = domain.Actor{ID: "writer-1", Name: "Writer", Role: domain.RoleWriter}
	cine     = domain.Actor{ID: "cine-1", Name: "Cine", Role: domain.RoleCine}
	editor   = domain.Actor{ID: "editor-1", Name: "Editor", Role: domain.RoleEditor}
	designer = domain.Actor{ID: "designer-1", Name: "Designer", Role: domain.RoleDesigner}
	cmo      = domain.Actor{ID: "cmo-1", Name: "CMO", Role: domain.RoleCMO}
	ceo      = domain.Actor{ID: "ceo-1", Name: "CEO", Role: domain.RoleCEO}
	ops      = domain.Actor{ID: "ops-1", Name: "Ops", Role: domain.RoleOps}
)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func mustCreate(t *testing.T, env testEnv, ch domain.Channel) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Title:   "Launch teaser",
		Channel: ch,
		Actor:   writer,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func actorFor(role domain.Role) domain.Actor {
	switch role {
	case domain.RoleWriter:
		return writer
	case domain.RoleCine:
		return cine
	case domain.RoleEditor:
		return editor
	case domain.RoleDesigner:
		return designer
	case domain.RoleCMO:
		return cmo
	case domain.RoleCEO:
		return ceo
	default:
		return ops
	}
}

func TestCreateProjectStartsAtFirstStage(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)
	if p.CurrentStage != domain.StageScript {
		t.Fatalf("stage = %s, want SCRIPT", p.CurrentStage)
	}
	if p.AssignedRole != domain.RoleWriter {
		t.Fatalf("role = %s, want WRITER", p.AssignedRole)
	}
	if p.Status != domain.StatusTodo {
		t.Fatalf("status = %s, want TODO", p.Status)
	}
	if p.ContentType != domain.ContentCreative {
		t.Fatalf("content type = %s, want creative", p.ContentType)
	}
	history, err := env.Engine.Repo.ListHistory(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Action != domain.ActionCreated {
		t.Fatalf("history = %+v, want single CREATED entry", history)
	}
}

func TestCreateProjectUnknownChannel(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Title:   "x",
		Channel: domain.Channel("TIKTOK"),
		Actor:   writer,
	})
	if !errors.Is(err, workflow.ErrInvalidChannel) {
		t.Fatalf("err = %v, want ErrInvalidChannel", err)
	}
}

func TestUpdateDataMergesAndFlipsWriterToInProgress(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelYouTube)
	if _, err := env.Engine.UpdateData(env.Ctx, p.ID, map[string]any{"script": "draft one", "hook": "cold open"}, writer); err != nil {
		t.Fatalf("first update: %v", err)
	}
	updated, err := env.Engine.UpdateData(env.Ctx, p.ID, map[string]any{"script": "draft two"}, writer)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if updated.Data["script"] != "draft two" {
		t.Fatalf("script = %v, want overwritten value", updated.Data["script"])
	}
	if updated.Data["hook"] != "cold open" {
		t.Fatalf("hook = %v, want prior key preserved", updated.Data["hook"])
	}
	if updated.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS after first touch", updated.Status)
	}
	got, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.Data["hook"] != "cold open" || got.Data["script"] != "draft two" {
		t.Fatalf("read back data = %v", got.Data)
	}
	// Data edits are not per-project audited.
	if n, _ := env.Engine.Repo.CountHistory(env.Ctx, p.ID); n != 1 {
		t.Fatalf("history length = %d, want 1", n)
	}
}

func TestUpdateDataForbiddenForUnassignedRole(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelYouTube)
	_, err := env.Engine.UpdateData(env.Ctx, p.ID, map[string]any{"x": 1}, designer)
	var fe policy.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
}

func TestUpdateDataNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateData(env.Ctx, "nope", map[string]any{"x": 1}, writer)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitAdvancesIntoReview(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)
	p, err := env.Engine.Submit(env.Ctx, p.ID, writer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if p.CurrentStage != domain.StageScriptReviewL1 {
		t.Fatalf("stage = %s, want SCRIPT_REVIEW_L1", p.CurrentStage)
	}
	if p.AssignedRole != domain.RoleCMO {
		t.Fatalf("role = %s, want CMO", p.AssignedRole)
	}
	if p.Status != domain.StatusWaitingApproval {
		t.Fatalf("status = %s, want WAITING_APPROVAL", p.Status)
	}
	history, _ := env.Engine.Repo.ListHistory(env.Ctx, p.ID)
	last := history[len(history)-1]
	if last.Action != domain.ActionSubmitted || last.Stage != domain.StageScript {
		t.Fatalf("last history = %+v, want SUBMITTED at SCRIPT", last)
	}
}

func TestSubmitByWrongRoleLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)
	_, err := env.Engine.Submit(env.Ctx, p.ID, designer)
	var fe policy.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
	got, _ := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if got.CurrentStage != domain.StageScript || got.Status != domain.StatusTodo {
		t.Fatalf("state mutated: stage=%s status=%s", got.CurrentStage, got.Status)
	}
	if n, _ := env.Engine.Repo.CountHistory(env.Ctx, p.ID); n != 1 {
		t.Fatalf("history length = %d, want 1", n)
	}
}

func TestApproveOnNonReviewStage(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)
	_, err := env.Engine.Approve(env.Ctx, p.ID, writer, "")
	var nrs engine.NotAReviewStageError
	if !errors.As(err, &nrs) {
		t.Fatalf("err = %v, want NotAReviewStageError", err)
	}
}

func TestApproveByWrongReviewerForbidden(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)
	if _, err := env.Engine.Submit(env.Ctx, p.ID, writer); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// L1 belongs to the CMO; the CEO must wait for L2.
	_, err := env.Engine.Approve(env.Ctx, p.ID, ceo, "")
	var fe policy.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
	got, _ := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if got.CurrentStage != domain.StageScriptReviewL1 || got.Status != domain.StatusWaitingApproval {
		t.Fatalf("state mutated: stage=%s status=%s", got.CurrentStage, got.Status)
	}
}

// runToFinalReview walks a project forward until it sits at the last review
// stage of its channel.
func runToFinalReview(t *testing.T, env testEnv, p domain.Project) domain.Project {
	t.Helper()
	for {
		cur, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		next, ok, err := workflow.Next(cur.Channel, cur.CurrentStage)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if ok && next.Stage == domain.StageCompleted {
			return cur
		}
		actor := actorFor(cur.AssignedRole)
		if workflow.IsReviewStage(cur.CurrentStage) {
			if _, err := env.Engine.Approve(env.Ctx, cur.ID, actor, "ok"); err != nil {
				t.Fatalf("approve at %s: %v", cur.CurrentStage, err)
			}
		} else {
			if _, err := env.Engine.Submit(env.Ctx, cur.ID, actor); err != nil {
				t.Fatalf("submit at %s: %v", cur.CurrentStage, err)
			}
		}
	}
}

func TestApprovingLastReviewPublishes(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelInstagram)
	p = runToFinalReview(t, env, p)
	if p.CurrentStage != domain.StageFinalReviewL2 {
		t.Fatalf("stage = %s, want FINAL_REVIEW_L2", p.CurrentStage)
	}
	done, err := env.Engine.Approve(env.Ctx, p.ID, ceo, "ship it")
	if err != nil {
		t.Fatalf("final approve: %v", err)
	}
	if done.Status != domain.StatusDone {
		t.Fatalf("status = %s, want DONE", done.Status)
	}
	if done.CurrentStage != domain.StageCompleted {
		t.Fatalf("stage = %s, want COMPLETED", done.CurrentStage)
	}
	history, _ := env.Engine.Repo.ListHistory(env.Ctx, p.ID)
	last := history[len(history)-1]
	if last.Action != domain.ActionPublished {
		t.Fatalf("last action = %s, want PUBLISHED", last.Action)
	}
	// Any further mutation is terminal.
	if _, err := env.Engine.Submit(env.Ctx, p.ID, ops); !errors.Is(err, engine.ErrAlreadyTerminal) {
		t.Fatalf("submit after done: err = %v, want ErrAlreadyTerminal", err)
	}
}

func TestRejectRequiresComment(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)
	if _, err := env.Engine.Submit(env.Ctx, p.ID, writer); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := env.Engine.Reject(env.Ctx, p.ID, cmo, domain.StageScript, "  ")
	if !errors.Is(err, engine.ErrCommentRequired) {
		t.Fatalf("err = %v, want ErrCommentRequired", err)
	}
}

func TestRejectRoutesBackToWriter(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelYouTube)
	if _, err := env.Engine.Submit(env.Ctx, p.ID, writer); err != nil {
		t.Fatalf("submit: %v", err)
	}
	p, err := env.Engine.Reject(env.Ctx, p.ID, cmo, domain.StageScript, "needs a stronger hook")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if p.CurrentStage != domain.StageScript || p.AssignedRole != domain.RoleWriter {
		t.Fatalf("stage=%s role=%s, want SCRIPT/WRITER", p.CurrentStage, p.AssignedRole)
	}
	if p.Status != domain.StatusRejected {
		t.Fatalf("status = %s, want REJECTED", p.Status)
	}
	history, _ := env.Engine.Repo.ListHistory(env.Ctx, p.ID)
	last := history[len(history)-1]
	if last.Action != domain.ActionRejected || last.Comment != "needs a stronger hook" {
		t.Fatalf("last history = %+v", last)
	}
	if last.Stage != domain.StageScriptReviewL1 {
		t.Fatalf("rejection recorded at %s, want SCRIPT_REVIEW_L1", last.Stage)
	}
}

func TestRejectInvalidTargetLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)
	if _, err := env.Engine.Submit(env.Ctx, p.ID, writer); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := env.Engine.Reject(env.Ctx, p.ID, cmo, domain.StageShoot, "bad")
	var ite workflow.InvalidTargetError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %v, want InvalidTargetError", err)
	}
	got, _ := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if got.CurrentStage != domain.StageScriptReviewL1 || got.Status != domain.StatusWaitingApproval {
		t.Fatalf("state mutated: stage=%s status=%s", got.CurrentStage, got.Status)
	}
	if n, _ := env.Engine.Repo.CountHistory(env.Ctx, p.ID); n != 2 {
		t.Fatalf("history length = %d, want 2", n)
	}
}

func TestFinalReviewReworkTargetsByContentType(t *testing.T) {
	env := newTestEnv(t)

	insta := mustCreate(t, env, domain.ChannelInstagram)
	insta = runToFinalReview(t, env, insta)
	targets, err := env.Engine.ReworkOptions(env.Ctx, insta.ID)
	if err != nil {
		t.Fatalf("rework options: %v", err)
	}
	want := map[domain.Stage]bool{domain.StageDesign: true, domain.StageEdit: true, domain.StageShoot: true}
	if len(targets) != len(want) {
		t.Fatalf("instagram targets = %v", targets)
	}
	for _, s := range targets {
		if !want[s] {
			t.Fatalf("unexpected instagram target %s", s)
		}
	}
	if _, err := env.Engine.Reject(env.Ctx, insta.ID, ceo, domain.StageEdit, "pacing is off"); err != nil {
		t.Fatalf("instagram reject to EDIT: %v", err)
	}

	li := mustCreate(t, env, domain.ChannelLinkedIn)
	li = runToFinalReview(t, env, li)
	targets, err = env.Engine.ReworkOptions(env.Ctx, li.ID)
	if err != nil {
		t.Fatalf("rework options: %v", err)
	}
	if len(targets) != 1 || targets[0] != domain.StageDesign {
		t.Fatalf("linkedin targets = %v, want [DESIGN]", targets)
	}
	_, err = env.Engine.Reject(env.Ctx, li.ID, ceo, domain.StageEdit, "nope")
	var ite workflow.InvalidTargetError
	if !errors.As(err, &ite) {
		t.Fatalf("linkedin reject to EDIT: err = %v, want InvalidTargetError", err)
	}
}

func TestConcurrentSubmitAdvancesOnce(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.Submit(env.Ctx, p.ID, writer)
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("successful submits = %d, want exactly 1 (errs: %v)", okCount, errs)
	}
	got, _ := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if got.CurrentStage != domain.StageScriptReviewL1 {
		t.Fatalf("stage = %s, want single advance to SCRIPT_REVIEW_L1", got.CurrentStage)
	}
	// One CREATED plus one SUBMITTED.
	if n, _ := env.Engine.Repo.CountHistory(env.Ctx, p.ID); n != 2 {
		t.Fatalf("history length = %d, want 2", n)
	}
}

func TestFullLinkedInLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreate(t, env, domain.ChannelLinkedIn)

	steps := []struct {
		actor   domain.Actor
		approve bool
	}{
		{writer, false},
		{cmo, true},
		{ceo, true},
		{designer, false},
		{cmo, true},
		{ceo, true},
	}
	var err error
	for _, s := range steps {
		if s.approve {
			p, err = env.Engine.Approve(env.Ctx, p.ID, s.actor, "fine")
		} else {
			p, err = env.Engine.Submit(env.Ctx, p.ID, s.actor)
		}
		if err != nil {
			t.Fatalf("step by %s: %v", s.actor.ID, err)
		}
	}
	if p.CurrentStage != domain.StageCompleted || p.Status != domain.StatusDone {
		t.Fatalf("end state stage=%s status=%s", p.CurrentStage, p.Status)
	}
	// Ops attaches publish metadata on the completed project.
	p, err = env.Engine.UpdateData(env.Ctx, p.ID, map[string]any{"live_url": "https://linkedin.com/post/1"}, ops)
	if err != nil {
		t.Fatalf("ops data update: %v", err)
	}
	if p.Data["live_url"] != "https://linkedin.com/post/1" {
		t.Fatalf("data = %v", p.Data)
	}
}
