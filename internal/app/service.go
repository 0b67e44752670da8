package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"pathman/api/internal/complex"
	"pathman/api/internal/config"
	"pathman/api/internal/export"
	"pathman/api/internal/gitrepo"
	"pathman/api/internal/plan"
	"pathman/api/internal/search"
	"pathman/api/internal/session"
	"pathman/api/internal/status"
	"pathman/api/internal/store"
	"pathman/api/internal/tree"
	"pathman/api/internal/util"
)

// dataStore is everything the service needs from persistence.
type dataStore interface {
	Ping(ctx context.Context) error
	ListProjects(ctx context.Context) ([]store.Project, error)
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	CreateProject(ctx context.Context, p store.Project, device string) (store.Project, error)
	ApplyProjectUpdate(ctx context.Context, projectID string, currentVersion int, device string,
		mutate func(data json.RawMessage) (json.RawMessage, error), changes []store.ChangeRecord) (int, error)
	History(ctx context.Context, projectID string, limit int) ([]store.HistoryEntry, error)
	ListEntries(ctx context.Context, projectID string) ([]store.Entry, error)
	GetEntry(ctx context.Context, projectID string, entryID int64) (store.Entry, error)
	ListSiblings(ctx context.Context, projectID string, parentID *int64) ([]store.Entry, error)
	CreateEntry(ctx context.Context, e store.Entry, device string) (store.Entry, error)
	UpdateEntry(ctx context.Context, e store.Entry, device string) (store.Entry, error)
	DeleteEntry(ctx context.Context, projectID string, entryID int64, device string) (int, error)
	MoveEntry(ctx context.Context, projectID string, entryID int64, newParent *int64, device string) (store.Entry, error)
	SetEntryChecked(ctx context.Context, projectID string, entryID int64, checked bool, device string) (store.Entry, error)
	SetEntryColor(ctx context.Context, projectID string, entryID int64, color, changeType, device string) (store.Entry, error)
	PendingEntries(ctx context.Context, projectID string, watermark int) ([]store.Entry, error)
	MarkReviewed(ctx context.Context, projectID, actor string) (store.Project, error)
	WorkingEntries(ctx context.Context, projectID string) ([]store.Entry, error)
}

// viewStore keeps per-actor navigation state.
type viewStore interface {
	GetViewState(ctx context.Context, projectID, actor string) (session.ViewState, error)
	SaveViewState(ctx context.Context, projectID, actor string, state session.ViewState) error
}

// snapshotStore is the git archive.
type snapshotStore interface {
	CreateSnapshot(projectID string, snap gitrepo.Snapshot, author, message string) (store.CommitInfo, error)
	ListSnapshots(projectID string, limit int) ([]store.CommitInfo, error)
	GetSnapshot(projectID, revision string) (gitrepo.Snapshot, error)
}

// searchIndex is the search facade. All index pushes are best effort.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexEntry(e search.EntryRecord)
	IndexProject(p search.ProjectRecord)
	DeleteEntry(id string)
	DeleteProject(id string)
	ReindexAllFromPG(ctx context.Context)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	views     viewStore
	snapshots snapshotStore
	search    searchIndex
	exporter  *export.Service
}

func New(cfg config.Config, dataStore dataStore, views viewStore, snapshots snapshotStore, searchService searchIndex) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		views:     views,
		snapshots: snapshots,
		search:    searchService,
		exporter:  export.NewService(dataStore),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap backfills the search index from Postgres.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// --- Projects ---

func (s *Service) ListProjects(ctx context.Context) (map[string]any, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		items = append(items, projectSummary(p))
	}
	return map[string]any{"projects": items}, nil
}

func (s *Service) CreateProject(ctx context.Context, name, device string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	projectID := slugify(name)
	if projectID == "" {
		projectID = util.NewID("proj")
	}
	if _, err := s.store.GetProject(ctx, projectID); err == nil {
		return nil, domainError(http.StatusConflict, "PROJECT_EXISTS", "A project with this name already exists", map[string]any{"projectId": projectID})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	initial, _ := json.Marshal(plan.Plan{Phases: []plan.Phase{}})
	created, err := s.store.CreateProject(ctx, store.Project{
		ProjectID: projectID,
		Name:      name,
		Data:      initial,
	}, device)
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{ID: created.ProjectID, Name: created.Name})
	}
	return map[string]any{"project": projectPayload(created)}, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"project": projectPayload(project)}, nil
}

// UpdateProject is the optimistic-concurrency gate over the structured
// payload. The store rejects stale versions; plan.Apply runs the ordered
// changes; one history row lands per change.
func (s *Service) UpdateProject(ctx context.Context, projectID string, currentVersion int, changes []plan.Change, device string) (map[string]any, error) {
	if currentVersion < 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "currentVersion is required", nil)
	}
	if len(changes) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "changes must not be empty", nil)
	}

	records := make([]store.ChangeRecord, 0, len(changes))
	for _, change := range changes {
		data, err := json.Marshal(change)
		if err != nil {
			return nil, fmt.Errorf("encode change: %w", err)
		}
		records = append(records, store.ChangeRecord{Type: change.Type, Data: data})
	}

	newVersion, err := s.store.ApplyProjectUpdate(ctx, projectID, currentVersion, device,
		func(data json.RawMessage) (json.RawMessage, error) {
			return plan.Apply(data, changes)
		}, records)
	if err != nil {
		var unknown *plan.UnknownChangeError
		if errors.As(err, &unknown) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", unknown.Error(), nil)
		}
		return nil, err
	}

	return map[string]any{
		"ok":      true,
		"version": newVersion,
		"applied": len(changes),
	}, nil
}

func (s *Service) GetHistory(ctx context.Context, projectID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	items, err := s.store.History(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	history := make([]map[string]any, 0, len(items))
	for _, h := range items {
		history = append(history, map[string]any{
			"version":    h.Version,
			"device":     h.Device,
			"changeType": h.ChangeType,
			"changeData": decodeRaw(h.ChangeData),
			"createdAt":  h.CreatedAt,
		})
	}
	return map[string]any{"history": history}, nil
}

// --- Tree ---

type TreeFilter struct {
	Search  string
	Color   string
	NewOnly bool
	Actor   status.Actor
}

func (s *Service) GetTree(ctx context.Context, projectID string, filter TreeFilter) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, projectID)
	if err != nil {
		return nil, err
	}

	built := tree.Build(entries)

	watermark := project.VUser
	if filter.Actor == status.ActorAgent {
		watermark = project.VAgent
	}
	flat := make([]*tree.Node, 0, len(built.Flat))
	for _, node := range built.Flat {
		if filter.Color != "" && node.StatusColor != filter.Color {
			continue
		}
		if filter.NewOnly && node.Version <= watermark {
			continue
		}
		if filter.Search != "" && !matchesText(node, filter.Search) {
			continue
		}
		flat = append(flat, node)
	}

	return map[string]any{
		"tree":     built.Roots,
		"flat":     flat,
		"warnings": built.Warnings,
		"version":  project.Version,
		"vUser":    project.VUser,
		"vAgent":   project.VAgent,
	}, nil
}

func (s *Service) GetSiblings(ctx context.Context, projectID string, parentID *int64) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	siblings, err := s.store.ListSiblings(ctx, projectID, parentID)
	if err != nil {
		return nil, err
	}
	sortNaturally(siblings)
	return map[string]any{"entries": siblings}, nil
}

// --- Entries ---

// entryTypes is the closed set of plain entry kinds. "complex:" prefixed
// types are valid too and resolve to interactive templates.
var entryTypes = map[string]struct{}{
	"group": {}, "memo": {}, "check": {}, "link": {},
}

func validEntryType(entryType string) bool {
	if complex.IsComplex(entryType) {
		return true
	}
	_, ok := entryTypes[entryType]
	return ok
}

type EntryInput struct {
	ParentID    *int64         `json:"parentId"`
	LocalPath   string         `json:"localPath"`
	EntryType   string         `json:"entryType"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	URL         string         `json:"url"`
	Context     map[string]any `json:"context"`
}

func (s *Service) AddEntry(ctx context.Context, projectID string, input EntryInput, device string) (map[string]any, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.EntryType == "" {
		input.EntryType = "memo"
	}
	if !validEntryType(input.EntryType) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"entryType must be one of group, memo, check, link or a complex: template", nil)
	}

	localPath := strings.TrimSpace(input.LocalPath)
	if localPath == "" {
		siblings, err := s.store.ListSiblings(ctx, projectID, input.ParentID)
		if err != nil {
			return nil, err
		}
		localPath = nextLocalPath(siblings)
	}

	contextData, err := encodeContext(input.Context)
	if err != nil {
		return nil, err
	}

	// Creation color is not negotiable: every new entry starts white.
	created, err := s.store.CreateEntry(ctx, store.Entry{
		ProjectID:   projectID,
		ParentID:    input.ParentID,
		LocalPath:   localPath,
		EntryType:   input.EntryType,
		Title:       input.Title,
		Content:     input.Content,
		URL:         input.URL,
		StatusColor: string(status.Initial()),
		ContextData: contextData,
	}, device)
	if err != nil {
		return nil, err
	}

	s.indexEntry(created)
	return map[string]any{"entry": created}, nil
}

func (s *Service) GetEntry(ctx context.Context, projectID string, entryID int64) (map[string]any, error) {
	entry, err := s.store.GetEntry(ctx, projectID, entryID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"entry": entry}
	if complex.IsComplex(entry.EntryType) {
		template := complex.ForType(entry.EntryType)
		payload["view"] = template.Render(toNode(entry), nil)
	}
	return payload, nil
}

func (s *Service) UpdateEntry(ctx context.Context, projectID string, entryID int64, input EntryInput, actor status.Actor, device string) (map[string]any, error) {
	entry, err := s.store.GetEntry(ctx, projectID, entryID)
	if err != nil {
		return nil, err
	}

	if title := strings.TrimSpace(input.Title); title != "" {
		entry.Title = title
	}
	entry.Content = input.Content
	entry.URL = input.URL
	if input.EntryType != "" {
		if !validEntryType(input.EntryType) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				"entryType must be one of group, memo, check, link or a complex: template", nil)
		}
		entry.EntryType = input.EntryType
	}
	if input.Context != nil {
		contextData, err := encodeContext(input.Context)
		if err != nil {
			return nil, err
		}
		entry.ContextData = contextData
	}
	// Edits always land in the other actor's review queue.
	entry.StatusColor = string(status.OnEdit(actor))

	updated, err := s.store.UpdateEntry(ctx, entry, device)
	if err != nil {
		return nil, err
	}
	s.indexEntry(updated)
	return map[string]any{"entry": updated}, nil
}

func (s *Service) DeleteEntry(ctx context.Context, projectID string, entryID int64, device string) (map[string]any, error) {
	deleted, err := s.store.DeleteEntry(ctx, projectID, entryID, device)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.DeleteEntry(strconv.FormatInt(entryID, 10))
	}
	return map[string]any{"ok": true, "deleted": deleted}, nil
}

func (s *Service) MoveEntry(ctx context.Context, projectID string, entryID int64, newParent *int64, device string) (map[string]any, error) {
	moved, err := s.store.MoveEntry(ctx, projectID, entryID, newParent, device)
	if err != nil {
		if errors.Is(err, store.ErrCycle) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "an entry cannot be moved under itself or its descendants", nil)
		}
		return nil, err
	}
	return map[string]any{"entry": moved}, nil
}

func (s *Service) ToggleEntry(ctx context.Context, projectID string, entryID int64, device string) (map[string]any, error) {
	entry, err := s.store.GetEntry(ctx, projectID, entryID)
	if err != nil {
		return nil, err
	}
	toggled, err := s.store.SetEntryChecked(ctx, projectID, entryID, !entry.Checked, device)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entry": toggled}, nil
}

// ReviewEntry consumes one item from the actor's review queue: the agent
// turns blue into gray, the user turns orange into green.
func (s *Service) ReviewEntry(ctx context.Context, projectID string, entryID int64, actor status.Actor, device string) (map[string]any, error) {
	entry, err := s.store.GetEntry(ctx, projectID, entryID)
	if err != nil {
		return nil, err
	}
	next, err := status.Review(actor, status.Color(entry.StatusColor))
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			fmt.Sprintf("entry is %s, not awaiting review by %s", entry.StatusColor, actor), nil)
	}
	updated, err := s.store.SetEntryColor(ctx, projectID, entryID, string(next), "entry_reviewed", device)
	if err != nil {
		return nil, err
	}
	s.indexEntry(updated)
	return map[string]any{"entry": updated}, nil
}

func (s *Service) SetEntryStatus(ctx context.Context, projectID string, entryID int64, color string, device string) (map[string]any, error) {
	if !status.DirectlySettable(status.Color(color)) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"statusColor must be one of white, yellow, gray, red", nil)
	}
	updated, err := s.store.SetEntryColor(ctx, projectID, entryID, color, "change_status", device)
	if err != nil {
		return nil, err
	}
	s.indexEntry(updated)
	return map[string]any{"entry": updated}, nil
}

// Interact routes a client event into the entry's complex template and
// persists whatever mutations it emits. Counts as an edit by the actor.
func (s *Service) Interact(ctx context.Context, projectID string, entryID int64, event complex.Event, actor status.Actor, device string) (map[string]any, error) {
	entry, err := s.store.GetEntry(ctx, projectID, entryID)
	if err != nil {
		return nil, err
	}
	template := complex.ForType(entry.EntryType)
	mutations, err := template.HandleInteraction(toNode(entry), event)
	if err != nil {
		if errors.Is(err, complex.ErrReadOnly) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "entry does not accept interactions", nil)
		}
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	for _, m := range mutations {
		switch m.Field {
		case "content":
			if content, ok := m.Value.(string); ok {
				entry.Content = content
			}
		case "checked":
			if checked, ok := m.Value.(bool); ok {
				entry.Checked = checked
			}
		case "context":
			if contextMap, ok := m.Value.(map[string]any); ok {
				contextData, err := encodeContext(contextMap)
				if err != nil {
					return nil, err
				}
				entry.ContextData = contextData
			}
		}
	}
	entry.StatusColor = string(status.OnEdit(actor))

	updated, err := s.store.UpdateEntry(ctx, entry, device)
	if err != nil {
		return nil, err
	}
	s.indexEntry(updated)

	view := template.Render(toNode(updated), nil)
	return map[string]any{"entry": updated, "view": view}, nil
}

// --- Review protocol ---

func (s *Service) GetPending(ctx context.Context, projectID string, actor status.Actor) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	watermark := project.VUser
	other := project.VAgent
	if actor == status.ActorAgent {
		watermark = project.VAgent
		other = project.VUser
	}
	entries, err := s.store.PendingEntries(ctx, projectID, watermark)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"entries":      entries,
		"pendingCount": len(entries),
		"vActual":      project.Version,
		"vActor":       watermark,
		"vOther":       other,
	}, nil
}

func (s *Service) MarkReviewed(ctx context.Context, projectID string, actor status.Actor) (map[string]any, error) {
	project, err := s.store.MarkReviewed(ctx, projectID, string(actor))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":      true,
		"version": project.Version,
		"vUser":   project.VUser,
		"vAgent":  project.VAgent,
	}, nil
}

func (s *Service) GetWorking(ctx context.Context, projectID string) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	entries, err := s.store.WorkingEntries(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": entries}, nil
}

// --- Search / export / snapshots / view state ---

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}

func (s *Service) CreateSnapshot(ctx context.Context, projectID, name, device string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode entries: %w", err)
	}

	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("v%d-%s", project.Version, util.NewID(""))
	}
	commit, err := s.snapshots.CreateSnapshot(projectID, gitrepo.Snapshot{
		Name:    name,
		Version: project.Version,
		Data:    project.Data,
		Entries: entriesJSON,
	}, device, fmt.Sprintf("Snapshot %s at v%d", name, project.Version))
	if err != nil {
		return nil, err
	}
	return map[string]any{"snapshot": commit, "name": name}, nil
}

func (s *Service) ListSnapshots(ctx context.Context, projectID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	snapshots, err := s.snapshots.ListSnapshots(projectID, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"snapshots": snapshots}, nil
}

func (s *Service) GetSnapshot(ctx context.Context, projectID, revision string) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	snap, err := s.snapshots.GetSnapshot(projectID, revision)
	if err != nil {
		if errors.Is(err, gitrepo.ErrSnapshotNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot not found", map[string]any{"revision": revision})
		}
		return nil, err
	}
	return map[string]any{
		"snapshot": map[string]any{
			"name":    snap.Name,
			"version": snap.Version,
			"data":    decodeRaw(snap.Data),
			"entries": decodeRaw(snap.Entries),
		},
	}, nil
}

func (s *Service) GetViewState(ctx context.Context, projectID string, actor status.Actor) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	state, err := s.views.GetViewState(ctx, projectID, string(actor))
	if err != nil {
		return nil, err
	}
	return map[string]any{"viewState": state}, nil
}

func (s *Service) SaveViewState(ctx context.Context, projectID string, actor status.Actor, state session.ViewState) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.views.SaveViewState(ctx, projectID, string(actor), state); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// --- helpers ---

func (s *Service) indexEntry(e store.Entry) {
	if s.search == nil {
		return
	}
	s.search.IndexEntry(search.EntryRecord{
		ID:        strconv.FormatInt(e.ID, 10),
		Title:     e.Title,
		Content:   e.Content,
		ProjectID: e.ProjectID,
		EntryType: e.EntryType,
		Color:     e.StatusColor,
	})
}

func projectSummary(p store.Project) map[string]any {
	return map[string]any{
		"projectId":    p.ProjectID,
		"name":         p.Name,
		"version":      p.Version,
		"modifiedBy":   p.ModifiedBy,
		"lastModified": p.LastModified,
	}
}

func projectPayload(p store.Project) map[string]any {
	payload := projectSummary(p)
	payload["vUser"] = p.VUser
	payload["vAgent"] = p.VAgent
	payload["createdAt"] = p.CreatedAt
	payload["data"] = decodeRaw(p.Data)
	return payload
}

func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		log.Printf("app: undecodable stored JSON: %v", err)
		return nil
	}
	return decoded
}

func encodeContext(context map[string]any) (string, error) {
	if context == nil {
		return "", nil
	}
	data, err := json.Marshal(context)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	return string(data), nil
}

func toNode(e store.Entry) complex.Node {
	node := complex.Node{
		ID:      e.ID,
		Title:   e.Title,
		Content: e.Content,
		Checked: e.Checked,
	}
	if e.ContextData != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(e.ContextData), &parsed); err == nil {
			node.Context = parsed
		}
	}
	return node
}

func matchesText(node *tree.Node, needle string) bool {
	needle = strings.ToLower(needle)
	return strings.Contains(strings.ToLower(node.Title), needle) ||
		strings.Contains(strings.ToLower(node.Content), needle)
}

// nextLocalPath picks one past the highest numeric sibling path. Counting
// siblings would collide after deletes leave the numbering sparse.
func nextLocalPath(siblings []store.Entry) string {
	highest := 0
	for _, sibling := range siblings {
		if n, err := strconv.Atoi(sibling.LocalPath); err == nil && n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}

func sortNaturally(entries []store.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return tree.Less(entries[i].LocalPath, entries[j].LocalPath)
	})
}

// slugify turns a display name into a stable project id.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func parseActor(value string) (status.Actor, error) {
	if value == "" {
		return status.ActorUser, nil
	}
	actor := status.Actor(value)
	if !status.ValidActor(actor) {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "actor must be user or agent", nil)
	}
	return actor, nil
}
