package export

import (
	"context"
	"fmt"
	"time"

	"pathman/api/internal/store"
	"pathman/api/internal/tree"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	ListEntries(ctx context.Context, projectID string) ([]store.Entry, error)
}

// Service provides project export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	entries, err := s.store.ListEntries(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if req.FilterColor != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.StatusColor == req.FilterColor {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	built := tree.Build(entries)

	html, err := RenderProjectHTML(TemplateData{
		Name:        project.Name,
		Version:     project.Version,
		ModifiedBy:  project.ModifiedBy,
		GeneratedAt: time.Now(),
		Roots:       built.Roots,
		Warnings:    built.Warnings,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(project.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, project.Name)
	case FormatDOCX:
		return exportDOCX(html, project.Name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
