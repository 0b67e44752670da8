// Package gitrepo keeps an append-only git archive of project snapshots.
// Each project gets its own repository; a snapshot commits the project
// payload and the full entry set, and optionally tags the commit.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pathman/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is the material committed for one project state.
type Snapshot struct {
	Name    string          `json:"name"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
	Entries json.RawMessage `json:"entries"`
}

// ErrSnapshotNotFound is returned when a revision or tag does not resolve
// to an archived snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CreateSnapshot commits the snapshot on the project's main branch,
// initializing the repository on first use, and tags it by name.
func (s *Service) CreateSnapshot(projectID string, snap Snapshot, author, message string) (store.CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(projectID)
	if err != nil {
		return store.CommitInfo{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()

	projectPayload, err := json.MarshalIndent(map[string]any{
		"name":    snap.Name,
		"version": snap.Version,
		"data":    snap.Data,
	}, "", "  ")
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("marshal project payload: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, "project.json"), append(projectPayload, '\n'), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write project.json: %w", err)
	}

	entriesPayload := snap.Entries
	if len(entriesPayload) == 0 {
		entriesPayload = json.RawMessage(`[]`)
	}
	if err := os.WriteFile(filepath.Join(root, "entries.json"), append([]byte(entriesPayload), '\n'), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write entries.json: %w", err)
	}

	if _, err := worktree.Add("project.json"); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add project.json: %w", err)
	}
	if _, err := worktree.Add("entries.json"); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add entries.json: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@pathman.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}

	if snap.Name != "" {
		_, err = repo.CreateTag(snap.Name, hash, &git.CreateTagOptions{
			Tagger: &object.Signature{
				Name:  "Pathman",
				Email: "pathman@localhost",
				When:  time.Now(),
			},
			Message: snap.Name,
		})
		if err != nil && !errors.Is(err, git.ErrTagExists) {
			return store.CommitInfo{}, fmt.Errorf("tag snapshot: %w", err)
		}
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// ListSnapshots returns the snapshot history for a project, newest first.
// A project with no archive yet has an empty history.
func (s *Service) ListSnapshots(projectID string, limit int) ([]store.CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []store.CommitInfo{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetSnapshot reads the snapshot files back from a commit or tag name.
func (s *Service) GetSnapshot(projectID, revision string) (Snapshot, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := resolveHash(repo, revision)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, revision)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, revision)
	}

	var snap Snapshot
	projectBytes, err := readCommitFile(commitObj, "project.json")
	if err != nil {
		return Snapshot{}, err
	}
	var project struct {
		Name    string          `json:"name"`
		Version int             `json:"version"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(projectBytes, &project); err != nil {
		return Snapshot{}, fmt.Errorf("decode project.json: %w", err)
	}
	snap.Name = project.Name
	snap.Version = project.Version
	snap.Data = project.Data

	entriesBytes, err := readCommitFile(commitObj, "entries.json")
	if err != nil {
		return Snapshot{}, err
	}
	snap.Entries = json.RawMessage(entriesBytes)
	return snap, nil
}

func (s *Service) openOrInit(projectID string) (*git.Repository, error) {
	path := s.repoPath(projectID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[projectID] = lock
	return lock
}

func readCommitFile(commitObj *object.Commit, name string) ([]byte, error) {
	file, err := commitObj.File(name)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", name, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open %s reader: %w", name, err)
	}
	defer reader.Close()

	contents, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return contents, nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "device"
	}
	return string(runes)
}

func resolveHash(repo *git.Repository, revision string) (plumbing.Hash, error) {
	if len(revision) == 40 {
		return plumbing.NewHash(revision), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve revision %s: %w", revision, err)
	}
	return *resolved, nil
}
