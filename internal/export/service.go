package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pairmood/api/internal/moods"
	"pairmood/api/internal/store"
)

// DataStore defines the data access the export service needs
type DataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	ListMoodsByUser(ctx context.Context, userID string, limit int) ([]store.MoodEntry, error)
}

// Service renders mood history reports
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(dataStore DataStore) *Service {
	return &Service{store: dataStore}
}

// Export generates a mood report in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	owner, err := s.store.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: load user: %v", ErrContentUnavailable, err)
	}

	entries, err := s.loadEntries(ctx, owner.DisplayName, owner.ID, req.Limit)
	if err != nil {
		return nil, err
	}

	partnerName := ""
	if req.IncludePartner && owner.PartnerID != "" {
		partner, err := s.store.GetUserByID(ctx, owner.PartnerID)
		if err != nil {
			return nil, fmt.Errorf("%w: load partner: %v", ErrContentUnavailable, err)
		}
		partnerName = partner.DisplayName

		partnerEntries, err := s.loadEntries(ctx, partner.DisplayName, partner.ID, req.Limit)
		if err != nil {
			return nil, err
		}
		entries = append(entries, partnerEntries...)
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		})
	}

	title := fmt.Sprintf("%s Mood Report", owner.DisplayName)

	switch req.Format {
	case FormatPDF:
		html, err := RenderReportHTML(TemplateData{
			Title:       title,
			OwnerName:   owner.DisplayName,
			PartnerName: partnerName,
			GeneratedAt: time.Now(),
			Entries:     entries,
		})
		if err != nil {
			return nil, fmt.Errorf("render report: %w", err)
		}
		return exportPDF(html, title)
	case FormatCSV:
		return exportCSV(entries, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func (s *Service) loadEntries(ctx context.Context, ownerName, userID string, limit int) ([]Entry, error) {
	records, err := s.store.ListMoodsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: load moods: %v", ErrContentUnavailable, err)
	}
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{
			Owner:     ownerName,
			Mood:      string(r.Mood),
			Intensity: r.Intensity,
			Note:      r.Note,
			Score:     moods.ChartValue(r.Mood, r.Intensity),
			CreatedAt: r.Timestamp,
		})
	}
	return entries, nil
}
