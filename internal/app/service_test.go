package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"pathman/api/internal/complex"
	"pathman/api/internal/config"
	"pathman/api/internal/gitrepo"
	"pathman/api/internal/plan"
	"pathman/api/internal/search"
	"pathman/api/internal/session"
	"pathman/api/internal/status"
	"pathman/api/internal/store"
	"pathman/api/internal/tree"
)

type fakeStore struct {
	pingFn               func(ctx context.Context) error
	listProjectsFn       func(ctx context.Context) ([]store.Project, error)
	getProjectFn         func(ctx context.Context, projectID string) (store.Project, error)
	createProjectFn      func(ctx context.Context, p store.Project, device string) (store.Project, error)
	applyProjectUpdateFn func(ctx context.Context, projectID string, currentVersion int, device string,
		mutate func(json.RawMessage) (json.RawMessage, error), changes []store.ChangeRecord) (int, error)
	historyFn         func(ctx context.Context, projectID string, limit int) ([]store.HistoryEntry, error)
	listEntriesFn     func(ctx context.Context, projectID string) ([]store.Entry, error)
	getEntryFn        func(ctx context.Context, projectID string, entryID int64) (store.Entry, error)
	listSiblingsFn    func(ctx context.Context, projectID string, parentID *int64) ([]store.Entry, error)
	createEntryFn     func(ctx context.Context, e store.Entry, device string) (store.Entry, error)
	updateEntryFn     func(ctx context.Context, e store.Entry, device string) (store.Entry, error)
	deleteEntryFn     func(ctx context.Context, projectID string, entryID int64, device string) (int, error)
	moveEntryFn       func(ctx context.Context, projectID string, entryID int64, newParent *int64, device string) (store.Entry, error)
	setEntryCheckedFn func(ctx context.Context, projectID string, entryID int64, checked bool, device string) (store.Entry, error)
	setEntryColorFn   func(ctx context.Context, projectID string, entryID int64, color, changeType, device string) (store.Entry, error)
	pendingEntriesFn  func(ctx context.Context, projectID string, watermark int) ([]store.Entry, error)
	markReviewedFn    func(ctx context.Context, projectID, actor string) (store.Project, error)
	workingEntriesFn  func(ctx context.Context, projectID string) ([]store.Entry, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	if f.listProjectsFn != nil {
		return f.listProjectsFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, projectID)
	}
	return store.Project{ProjectID: projectID}, nil
}

func (f *fakeStore) CreateProject(ctx context.Context, p store.Project, device string) (store.Project, error) {
	if f.createProjectFn != nil {
		return f.createProjectFn(ctx, p, device)
	}
	return p, nil
}

func (f *fakeStore) ApplyProjectUpdate(ctx context.Context, projectID string, currentVersion int, device string,
	mutate func(json.RawMessage) (json.RawMessage, error), changes []store.ChangeRecord) (int, error) {
	if f.applyProjectUpdateFn != nil {
		return f.applyProjectUpdateFn(ctx, projectID, currentVersion, device, mutate, changes)
	}
	return currentVersion + 1, nil
}

func (f *fakeStore) History(ctx context.Context, projectID string, limit int) ([]store.HistoryEntry, error) {
	if f.historyFn != nil {
		return f.historyFn(ctx, projectID, limit)
	}
	return nil, nil
}

func (f *fakeStore) ListEntries(ctx context.Context, projectID string) ([]store.Entry, error) {
	if f.listEntriesFn != nil {
		return f.listEntriesFn(ctx, projectID)
	}
	return nil, nil
}

func (f *fakeStore) GetEntry(ctx context.Context, projectID string, entryID int64) (store.Entry, error) {
	if f.getEntryFn != nil {
		return f.getEntryFn(ctx, projectID, entryID)
	}
	return store.Entry{ID: entryID, ProjectID: projectID}, nil
}

func (f *fakeStore) ListSiblings(ctx context.Context, projectID string, parentID *int64) ([]store.Entry, error) {
	if f.listSiblingsFn != nil {
		return f.listSiblingsFn(ctx, projectID, parentID)
	}
	return nil, nil
}

func (f *fakeStore) CreateEntry(ctx context.Context, e store.Entry, device string) (store.Entry, error) {
	if f.createEntryFn != nil {
		return f.createEntryFn(ctx, e, device)
	}
	e.ID = 1
	return e, nil
}

func (f *fakeStore) UpdateEntry(ctx context.Context, e store.Entry, device string) (store.Entry, error) {
	if f.updateEntryFn != nil {
		return f.updateEntryFn(ctx, e, device)
	}
	return e, nil
}

func (f *fakeStore) DeleteEntry(ctx context.Context, projectID string, entryID int64, device string) (int, error) {
	if f.deleteEntryFn != nil {
		return f.deleteEntryFn(ctx, projectID, entryID, device)
	}
	return 1, nil
}

func (f *fakeStore) MoveEntry(ctx context.Context, projectID string, entryID int64, newParent *int64, device string) (store.Entry, error) {
	if f.moveEntryFn != nil {
		return f.moveEntryFn(ctx, projectID, entryID, newParent, device)
	}
	return store.Entry{ID: entryID}, nil
}

func (f *fakeStore) SetEntryChecked(ctx context.Context, projectID string, entryID int64, checked bool, device string) (store.Entry, error) {
	if f.setEntryCheckedFn != nil {
		return f.setEntryCheckedFn(ctx, projectID, entryID, checked, device)
	}
	return store.Entry{ID: entryID, Checked: checked}, nil
}

func (f *fakeStore) SetEntryColor(ctx context.Context, projectID string, entryID int64, color, changeType, device string) (store.Entry, error) {
	if f.setEntryColorFn != nil {
		return f.setEntryColorFn(ctx, projectID, entryID, color, changeType, device)
	}
	return store.Entry{ID: entryID, StatusColor: color}, nil
}

func (f *fakeStore) PendingEntries(ctx context.Context, projectID string, watermark int) ([]store.Entry, error) {
	if f.pendingEntriesFn != nil {
		return f.pendingEntriesFn(ctx, projectID, watermark)
	}
	return nil, nil
}

func (f *fakeStore) MarkReviewed(ctx context.Context, projectID, actor string) (store.Project, error) {
	if f.markReviewedFn != nil {
		return f.markReviewedFn(ctx, projectID, actor)
	}
	return store.Project{ProjectID: projectID}, nil
}

func (f *fakeStore) WorkingEntries(ctx context.Context, projectID string) ([]store.Entry, error) {
	if f.workingEntriesFn != nil {
		return f.workingEntriesFn(ctx, projectID)
	}
	return nil, nil
}

type fakeViews struct {
	states map[string]session.ViewState
}

func (f *fakeViews) GetViewState(ctx context.Context, projectID, actor string) (session.ViewState, error) {
	if f.states == nil {
		return session.ViewState{}, nil
	}
	return f.states[projectID+":"+actor], nil
}

func (f *fakeViews) SaveViewState(ctx context.Context, projectID, actor string, state session.ViewState) error {
	if f.states == nil {
		f.states = map[string]session.ViewState{}
	}
	f.states[projectID+":"+actor] = state
	return nil
}

type fakeSnapshots struct {
	created []gitrepo.Snapshot
}

func (f *fakeSnapshots) CreateSnapshot(projectID string, snap gitrepo.Snapshot, author, message string) (store.CommitInfo, error) {
	f.created = append(f.created, snap)
	return store.CommitInfo{Hash: "abc1234", Message: message, Author: author}, nil
}

func (f *fakeSnapshots) ListSnapshots(projectID string, limit int) ([]store.CommitInfo, error) {
	return nil, nil
}

func (f *fakeSnapshots) GetSnapshot(projectID, revision string) (gitrepo.Snapshot, error) {
	return gitrepo.Snapshot{}, gitrepo.ErrSnapshotNotFound
}

type fakeSearch struct {
	indexed []search.EntryRecord
	deleted []string
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}
func (f *fakeSearch) IndexEntry(e search.EntryRecord) { f.indexed = append(f.indexed, e) }

func (f *fakeSearch) IndexProject(p search.ProjectRecord) {}

func (f *fakeSearch) DeleteEntry(id string) { f.deleted = append(f.deleted, id) }

func (f *fakeSearch) DeleteProject(id string) {}

func (f *fakeSearch) ReindexAllFromPG(ctx context.Context) {}

func newTestService(st *fakeStore) *Service {
	return New(config.Config{HistoryLimit: 50}, st, &fakeViews{}, &fakeSnapshots{}, &fakeSearch{})
}

func wantDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("err = %v, want DomainError", err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("got %d %s, want %d %s", domainErr.Status, domainErr.Code, status, code)
	}
	return domainErr
}

func TestCreateProjectRequiresName(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CreateProject(context.Background(), "   ", "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestCreateProjectSlugifiesName(t *testing.T) {
	st := &fakeStore{
		getProjectFn: func(ctx context.Context, projectID string) (store.Project, error) {
			return store.Project{}, sql.ErrNoRows
		},
	}
	svc := newTestService(st)
	payload, err := svc.CreateProject(context.Background(), "My Big  Project!", "dev1")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	project := payload["project"].(map[string]any)
	if project["projectId"] != "my-big-project" {
		t.Fatalf("projectId = %v", project["projectId"])
	}
}

func TestCreateProjectRejectsDuplicate(t *testing.T) {
	st := &fakeStore{
		getProjectFn: func(ctx context.Context, projectID string) (store.Project, error) {
			return store.Project{ProjectID: projectID}, nil
		},
	}
	svc := newTestService(st)
	_, err := svc.CreateProject(context.Background(), "taken", "dev1")
	wantDomainError(t, err, http.StatusConflict, "PROJECT_EXISTS")
}

func TestUpdateProjectValidatesInput(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.UpdateProject(context.Background(), "p1", -1, []plan.Change{{Type: plan.ChangeUpdateMemory}}, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = svc.UpdateProject(context.Background(), "p1", 3, nil, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUpdateProjectAppliesChanges(t *testing.T) {
	var gotRecords []store.ChangeRecord
	st := &fakeStore{
		applyProjectUpdateFn: func(ctx context.Context, projectID string, currentVersion int, device string,
			mutate func(json.RawMessage) (json.RawMessage, error), changes []store.ChangeRecord) (int, error) {
			gotRecords = changes
			if _, err := mutate(json.RawMessage(`{"phases":[]}`)); err != nil {
				return 0, err
			}
			return currentVersion + 1, nil
		},
	}
	svc := newTestService(st)
	payload, err := svc.UpdateProject(context.Background(), "p1", 4, []plan.Change{
		{Type: plan.ChangeUpdateMemory, Content: "note"},
	}, "dev1")
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if payload["version"] != 5 || payload["applied"] != 1 {
		t.Fatalf("payload = %+v", payload)
	}
	if len(gotRecords) != 1 || gotRecords[0].Type != plan.ChangeUpdateMemory {
		t.Fatalf("records = %+v", gotRecords)
	}
}

func TestUpdateProjectUnknownChangeIs422(t *testing.T) {
	st := &fakeStore{
		applyProjectUpdateFn: func(ctx context.Context, projectID string, currentVersion int, device string,
			mutate func(json.RawMessage) (json.RawMessage, error), changes []store.ChangeRecord) (int, error) {
			if _, err := mutate(json.RawMessage(`{}`)); err != nil {
				return 0, err
			}
			return currentVersion + 1, nil
		},
	}
	svc := newTestService(st)
	_, err := svc.UpdateProject(context.Background(), "p1", 0, []plan.Change{{Type: "explode"}}, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUpdateProjectPropagatesConflict(t *testing.T) {
	st := &fakeStore{
		applyProjectUpdateFn: func(ctx context.Context, projectID string, currentVersion int, device string,
			mutate func(json.RawMessage) (json.RawMessage, error), changes []store.ChangeRecord) (int, error) {
			return 0, &store.ConflictError{Latest: 9}
		},
	}
	svc := newTestService(st)
	_, err := svc.UpdateProject(context.Background(), "p1", 4, []plan.Change{{Type: plan.ChangeUpdateMemory}}, "dev1")
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) || conflict.Latest != 9 {
		t.Fatalf("err = %v, want ConflictError{9}", err)
	}
}

func TestAddEntryForcesWhite(t *testing.T) {
	var created store.Entry
	st := &fakeStore{
		createEntryFn: func(ctx context.Context, e store.Entry, device string) (store.Entry, error) {
			created = e
			e.ID = 7
			return e, nil
		},
	}
	svc := newTestService(st)
	_, err := svc.AddEntry(context.Background(), "p1", EntryInput{
		Title:     "New task",
		LocalPath: "3",
	}, "dev1")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if created.StatusColor != "white" {
		t.Fatalf("new entry color = %q, want white", created.StatusColor)
	}
	if created.EntryType != "memo" {
		t.Fatalf("default entry type = %q", created.EntryType)
	}
}

func TestAddEntryRequiresTitle(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.AddEntry(context.Background(), "p1", EntryInput{Title: "  "}, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestAddEntryAssignsLocalPath(t *testing.T) {
	var created store.Entry
	st := &fakeStore{
		listSiblingsFn: func(ctx context.Context, projectID string, parentID *int64) ([]store.Entry, error) {
			return []store.Entry{{ID: 1, LocalPath: "1"}, {ID: 2, LocalPath: "2"}}, nil
		},
		createEntryFn: func(ctx context.Context, e store.Entry, device string) (store.Entry, error) {
			created = e
			return e, nil
		},
	}
	svc := newTestService(st)
	if _, err := svc.AddEntry(context.Background(), "p1", EntryInput{Title: "x"}, "dev1"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if created.LocalPath != "3" {
		t.Fatalf("localPath = %q, want 3", created.LocalPath)
	}
}

func TestAddEntryLocalPathSkipsGaps(t *testing.T) {
	var created store.Entry
	st := &fakeStore{
		listSiblingsFn: func(ctx context.Context, projectID string, parentID *int64) ([]store.Entry, error) {
			return []store.Entry{
				{ID: 1, LocalPath: "1"},
				{ID: 3, LocalPath: "3"},
				{ID: 4, LocalPath: "intro"},
			}, nil
		},
		createEntryFn: func(ctx context.Context, e store.Entry, device string) (store.Entry, error) {
			created = e
			return e, nil
		},
	}
	svc := newTestService(st)
	if _, err := svc.AddEntry(context.Background(), "p1", EntryInput{Title: "x"}, "dev1"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if created.LocalPath != "4" {
		t.Fatalf("localPath = %q, want 4 (one past the highest numeric sibling)", created.LocalPath)
	}
}

func TestAddEntryValidatesEntryType(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.AddEntry(context.Background(), "p1", EntryInput{Title: "x", EntryType: "banana", LocalPath: "1"}, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	for _, entryType := range []string{"group", "memo", "check", "link", "complex:selector"} {
		input := EntryInput{Title: "x", EntryType: entryType, LocalPath: "1"}
		if _, err := svc.AddEntry(context.Background(), "p1", input, "dev1"); err != nil {
			t.Fatalf("AddEntry(%q): %v", entryType, err)
		}
	}
}

func TestUpdateEntryValidatesEntryType(t *testing.T) {
	st := &fakeStore{
		getEntryFn: func(ctx context.Context, projectID string, entryID int64) (store.Entry, error) {
			return store.Entry{ID: entryID, Title: "t", EntryType: "memo"}, nil
		},
	}
	svc := newTestService(st)
	_, err := svc.UpdateEntry(context.Background(), "p1", 1, EntryInput{EntryType: "banana"}, status.ActorUser, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUpdateEntryColorFollowsActor(t *testing.T) {
	var saved store.Entry
	st := &fakeStore{
		getEntryFn: func(ctx context.Context, projectID string, entryID int64) (store.Entry, error) {
			return store.Entry{ID: entryID, ProjectID: projectID, Title: "t", StatusColor: "gray"}, nil
		},
		updateEntryFn: func(ctx context.Context, e store.Entry, device string) (store.Entry, error) {
			saved = e
			return e, nil
		},
	}
	svc := newTestService(st)

	if _, err := svc.UpdateEntry(context.Background(), "p1", 1, EntryInput{Content: "edit"}, status.ActorUser, "dev1"); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if saved.StatusColor != "blue" {
		t.Fatalf("user edit color = %q, want blue", saved.StatusColor)
	}

	if _, err := svc.UpdateEntry(context.Background(), "p1", 1, EntryInput{Content: "edit"}, status.ActorAgent, "dev1"); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if saved.StatusColor != "orange" {
		t.Fatalf("agent edit color = %q, want orange", saved.StatusColor)
	}
}

func TestReviewEntryTransitions(t *testing.T) {
	var setColor, setChangeType string
	st := &fakeStore{
		getEntryFn: func(ctx context.Context, projectID string, entryID int64) (store.Entry, error) {
			return store.Entry{ID: entryID, StatusColor: "blue"}, nil
		},
		setEntryColorFn: func(ctx context.Context, projectID string, entryID int64, color, changeType, device string) (store.Entry, error) {
			setColor, setChangeType = color, changeType
			return store.Entry{ID: entryID, StatusColor: color}, nil
		},
	}
	svc := newTestService(st)

	if _, err := svc.ReviewEntry(context.Background(), "p1", 1, status.ActorAgent, "dev1"); err != nil {
		t.Fatalf("ReviewEntry: %v", err)
	}
	if setColor != "gray" || setChangeType != "entry_reviewed" {
		t.Fatalf("review set %q/%q", setColor, setChangeType)
	}
}

func TestReviewEntryWrongQueueIs422(t *testing.T) {
	st := &fakeStore{
		getEntryFn: func(ctx context.Context, projectID string, entryID int64) (store.Entry, error) {
			return store.Entry{ID: entryID, StatusColor: "white"}, nil
		},
	}
	svc := newTestService(st)
	_, err := svc.ReviewEntry(context.Background(), "p1", 1, status.ActorUser, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestSetEntryStatusRejectsWorkflowColors(t *testing.T) {
	svc := newTestService(&fakeStore{})
	for _, color := range []string{"blue", "orange", "green", "purple"} {
		_, err := svc.SetEntryStatus(context.Background(), "p1", 1, color, "dev1")
		wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	}
	if _, err := svc.SetEntryStatus(context.Background(), "p1", 1, "yellow", "dev1"); err != nil {
		t.Fatalf("yellow should be settable: %v", err)
	}
}

func TestMoveEntryCycleIs422(t *testing.T) {
	st := &fakeStore{
		moveEntryFn: func(ctx context.Context, projectID string, entryID int64, newParent *int64, device string) (store.Entry, error) {
			return store.Entry{}, store.ErrCycle
		},
	}
	svc := newTestService(st)
	parent := int64(5)
	_, err := svc.MoveEntry(context.Background(), "p1", 1, &parent, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestToggleEntryFlipsChecked(t *testing.T) {
	var wantChecked bool
	st := &fakeStore{
		getEntryFn: func(ctx context.Context, projectID string, entryID int64) (store.Entry, error) {
			return store.Entry{ID: entryID, Checked: true}, nil
		},
		setEntryCheckedFn: func(ctx context.Context, projectID string, entryID int64, checked bool, device string) (store.Entry, error) {
			wantChecked = checked
			return store.Entry{ID: entryID, Checked: checked}, nil
		},
	}
	svc := newTestService(st)
	if _, err := svc.ToggleEntry(context.Background(), "p1", 1, "dev1"); err != nil {
		t.Fatalf("ToggleEntry: %v", err)
	}
	if wantChecked {
		t.Fatal("checked entry should toggle to unchecked")
	}
}

func TestGetPendingUsesActorWatermark(t *testing.T) {
	var gotWatermark int
	st := &fakeStore{
		getProjectFn: func(ctx context.Context, projectID string) (store.Project, error) {
			return store.Project{ProjectID: projectID, Version: 12, VUser: 10, VAgent: 7}, nil
		},
		pendingEntriesFn: func(ctx context.Context, projectID string, watermark int) ([]store.Entry, error) {
			gotWatermark = watermark
			return []store.Entry{{ID: 1, Version: 11}, {ID: 2, Version: 12}}, nil
		},
	}
	svc := newTestService(st)

	payload, err := svc.GetPending(context.Background(), "p1", status.ActorAgent)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if gotWatermark != 7 {
		t.Fatalf("agent watermark = %d, want 7", gotWatermark)
	}
	if payload["pendingCount"] != 2 || payload["vActual"] != 12 || payload["vActor"] != 7 || payload["vOther"] != 10 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestGetTreeNewOnlyFilter(t *testing.T) {
	st := &fakeStore{
		getProjectFn: func(ctx context.Context, projectID string) (store.Project, error) {
			return store.Project{ProjectID: projectID, Version: 5, VUser: 3, VAgent: 1}, nil
		},
		listEntriesFn: func(ctx context.Context, projectID string) ([]store.Entry, error) {
			return []store.Entry{
				{ID: 1, LocalPath: "1", Title: "old", Version: 2},
				{ID: 2, LocalPath: "2", Title: "new", Version: 4},
			}, nil
		},
	}
	svc := newTestService(st)

	payload, err := svc.GetTree(context.Background(), "p1", TreeFilter{NewOnly: true, Actor: status.ActorUser})
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	flat := payload["flat"].([]*tree.Node)
	if len(flat) != 1 || flat[0].Title != "new" {
		t.Fatalf("flat = %+v", flat)
	}
	if payload["version"] != 5 || payload["vUser"] != 3 || payload["vAgent"] != 1 {
		t.Fatalf("version payload = %+v", payload)
	}
}

func TestGetTreeColorAndTextFilters(t *testing.T) {
	st := &fakeStore{
		listEntriesFn: func(ctx context.Context, projectID string) ([]store.Entry, error) {
			return []store.Entry{
				{ID: 1, LocalPath: "1", Title: "Deploy service", StatusColor: "yellow"},
				{ID: 2, LocalPath: "2", Title: "Write docs", StatusColor: "white"},
			}, nil
		},
	}
	svc := newTestService(st)

	payload, err := svc.GetTree(context.Background(), "p1", TreeFilter{Color: "yellow"})
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	flat := payload["flat"].([]*tree.Node)
	if len(flat) != 1 || flat[0].StatusColor != "yellow" {
		t.Fatalf("color filter = %+v", flat)
	}

	payload, err = svc.GetTree(context.Background(), "p1", TreeFilter{Search: "docs"})
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	flat = payload["flat"].([]*tree.Node)
	if len(flat) != 1 || flat[0].Title != "Write docs" {
		t.Fatalf("text filter = %+v", flat)
	}
}

func TestInteractReadOnlyIs422(t *testing.T) {
	st := &fakeStore{
		getEntryFn: func(ctx context.Context, projectID string, entryID int64) (store.Entry, error) {
			return store.Entry{ID: entryID, EntryType: "memo"}, nil
		},
	}
	svc := newTestService(st)
	_, err := svc.Interact(context.Background(), "p1", 1, complex.Event{Action: "select"}, status.ActorUser, "dev1")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestInteractAppliesMutations(t *testing.T) {
	var saved store.Entry
	st := &fakeStore{
		getEntryFn: func(ctx context.Context, projectID string, entryID int64) (store.Entry, error) {
			return store.Entry{
				ID:          entryID,
				EntryType:   "complex:selector",
				ContextData: `{"options":["a","b"]}`,
			}, nil
		},
		updateEntryFn: func(ctx context.Context, e store.Entry, device string) (store.Entry, error) {
			saved = e
			return e, nil
		},
	}
	svc := newTestService(st)

	payload, err := svc.Interact(context.Background(), "p1", 1, complex.Event{Action: "select", Option: "b"}, status.ActorAgent, "dev1")
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if saved.StatusColor != "orange" {
		t.Fatalf("interaction color = %q, want orange", saved.StatusColor)
	}
	var ctx map[string]any
	if err := json.Unmarshal([]byte(saved.ContextData), &ctx); err != nil {
		t.Fatalf("context data: %v", err)
	}
	if ctx["selected"] != "b" {
		t.Fatalf("selected = %v", ctx["selected"])
	}
	if payload["view"] == nil {
		t.Fatal("interaction should return a rendered view")
	}
}

func TestDeleteEntryDropsSearchDocument(t *testing.T) {
	st := &fakeStore{}
	searchFake := &fakeSearch{}
	svc := New(config.Config{}, st, &fakeViews{}, &fakeSnapshots{}, searchFake)

	if _, err := svc.DeleteEntry(context.Background(), "p1", 42, "dev1"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if len(searchFake.deleted) != 1 || searchFake.deleted[0] != "42" {
		t.Fatalf("deleted ids = %v", searchFake.deleted)
	}
}

func TestCreateSnapshotDefaultsName(t *testing.T) {
	st := &fakeStore{
		getProjectFn: func(ctx context.Context, projectID string) (store.Project, error) {
			return store.Project{ProjectID: projectID, Version: 3, Data: json.RawMessage(`{}`)}, nil
		},
	}
	snaps := &fakeSnapshots{}
	svc := New(config.Config{}, st, &fakeViews{}, snaps, &fakeSearch{})

	payload, err := svc.CreateSnapshot(context.Background(), "p1", "", "dev1")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	name := payload["name"].(string)
	if name == "" {
		t.Fatal("snapshot name should be generated")
	}
	if len(snaps.created) != 1 || snaps.created[0].Version != 3 {
		t.Fatalf("created = %+v", snaps.created)
	}
}

func TestParseActor(t *testing.T) {
	if actor, err := parseActor(""); err != nil || actor != status.ActorUser {
		t.Fatalf("empty actor = %q, %v", actor, err)
	}
	if actor, err := parseActor("agent"); err != nil || actor != status.ActorAgent {
		t.Fatalf("agent = %q, %v", actor, err)
	}
	_, err := parseActor("robot")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}
