package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rate_change_notifier/internal/domain/matter"
	"rate_change_notifier/internal/domain/ratechange"

	"github.com/sirupsen/logrus"
)

// MatterSummary is one matter as shown in the year view.
type MatterSummary struct {
	ID                   string `json:"id"`
	DisplayNumber        string `json:"display_number"`
	Status               string `json:"status"`
	ResponsibleSolicitor string `json:"responsible_solicitor,omitempty"`
}

// ClientYearStatus is one client's row in the year view: their notification
// record for the year (or implicit pending) joined with their matters.
type ClientYearStatus struct {
	ClientID              string            `json:"client_id"`
	ClientName            string            `json:"client_name"`
	Status                ratechange.Status `json:"status"`
	SentDate              *string           `json:"sent_date,omitempty"`
	SentBy                *string           `json:"sent_by,omitempty"`
	NAReason              *string           `json:"na_reason,omitempty"`
	NANotes               *string           `json:"na_notes,omitempty"`
	EscalatedAt           *time.Time        `json:"escalated_at,omitempty"`
	EscalatedBy           *string           `json:"escalated_by,omitempty"`
	OpenMatters           []MatterSummary   `json:"open_matters"`
	ClosedMatters         []MatterSummary   `json:"closed_matters"`
	ResponsibleSolicitors []string          `json:"responsible_solicitors"`
}

// YearViewStats are aggregate counts over the filtered result.
type YearViewStats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Sent          int `json:"sent"`
	NotApplicable int `json:"not_applicable"`
}

type YearView struct {
	Stats   YearViewStats       `json:"stats"`
	Clients []*ClientYearStatus `json:"clients"`
}

// ViewService assembles the year view at read time by joining open matters
// from the practice database with the year's notification records. The two
// stores were populated independently, so client ids are normalized (trim +
// string coercion) before joining.
type ViewService struct {
	matters matter.Repository
	records ratechange.Repository
	log     *logrus.Entry
}

func NewViewService(matters matter.Repository, records ratechange.Repository, log *logrus.Entry) *ViewService {
	return &ViewService{matters: matters, records: records, log: log}
}

func normalizeClientID(id string) string {
	return strings.TrimSpace(id)
}

// GetYearView answers "what is each client's notification status for this
// year, and which matters justify it". Only clients with at least one open
// matter appear; their closed matters are included for context only.
func (s *ViewService) GetYearView(ctx context.Context, year int, statusFilter ratechange.Status, solicitorFilter []string) (*YearView, error) {
	openMatters, err := s.matters.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open matters: %w", err)
	}

	byClient := make(map[string]*ClientYearStatus)
	clientIDs := make([]string, 0)
	for _, m := range openMatters {
		id := normalizeClientID(m.ClientID)
		if id == "" {
			continue
		}
		entry, ok := byClient[id]
		if !ok {
			entry = &ClientYearStatus{
				ClientID:      id,
				ClientName:    m.ClientName,
				Status:        ratechange.StatusPending,
				OpenMatters:   []MatterSummary{},
				ClosedMatters: []MatterSummary{},
			}
			byClient[id] = entry
			clientIDs = append(clientIDs, id)
		}
		entry.OpenMatters = append(entry.OpenMatters, matterSummary(m))
		if m.ResponsibleSolicitor != "" && !contains(entry.ResponsibleSolicitors, m.ResponsibleSolicitor) {
			entry.ResponsibleSolicitors = append(entry.ResponsibleSolicitors, m.ResponsibleSolicitor)
		}
	}

	// Closed matters are context only; they never make a client eligible.
	allMatters, err := s.matters.ListByClientIDs(ctx, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list matters for open clients: %w", err)
	}
	for _, m := range allMatters {
		if m.Status == matter.StatusOpen {
			continue
		}
		if entry, ok := byClient[normalizeClientID(m.ClientID)]; ok {
			entry.ClosedMatters = append(entry.ClosedMatters, matterSummary(m))
		}
	}

	records, err := s.records.ListByYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification records for %d: %w", year, err)
	}
	for _, rec := range records {
		entry, ok := byClient[normalizeClientID(rec.ClientID)]
		if !ok {
			continue // record for a client with no open matters
		}
		entry.Status = rec.Status
		if rec.SentDate.Valid {
			v := rec.SentDate.Time.Format(dateLayout)
			entry.SentDate = &v
		}
		entry.SentBy = nullableString(rec.SentBy.Valid, rec.SentBy.String)
		entry.NAReason = nullableString(rec.NAReason.Valid, rec.NAReason.String)
		entry.NANotes = nullableString(rec.NANotes.Valid, rec.NANotes.String)
		if rec.EscalatedAt.Valid {
			t := rec.EscalatedAt.Time
			entry.EscalatedAt = &t
		}
		entry.EscalatedBy = nullableString(rec.EscalatedBy.Valid, rec.EscalatedBy.String)
	}

	clients := make([]*ClientYearStatus, 0, len(byClient))
	for _, id := range clientIDs {
		entry := byClient[id]
		if statusFilter != "" && entry.Status != statusFilter {
			continue
		}
		if len(solicitorFilter) > 0 && !anyOverlap(entry.ResponsibleSolicitors, solicitorFilter) {
			continue
		}
		clients = append(clients, entry)
	}

	// Stable two-key sort: alphabetical within each group, pending first.
	sort.SliceStable(clients, func(i, j int) bool {
		return clients[i].ClientName < clients[j].ClientName
	})
	sort.SliceStable(clients, func(i, j int) bool {
		return clients[i].Status == ratechange.StatusPending && clients[j].Status != ratechange.StatusPending
	})

	stats := YearViewStats{Total: len(clients)}
	for _, c := range clients {
		switch c.Status {
		case ratechange.StatusSent:
			stats.Sent++
		case ratechange.StatusNotApplicable:
			stats.NotApplicable++
		default:
			stats.Pending++
		}
	}

	return &YearView{Stats: stats, Clients: clients}, nil
}

func matterSummary(m *matter.Matter) MatterSummary {
	return MatterSummary{
		ID:                   m.ID,
		DisplayNumber:        m.DisplayNumber,
		Status:               m.Status,
		ResponsibleSolicitor: m.ResponsibleSolicitor,
	}
}

func nullableString(valid bool, s string) *string {
	if !valid {
		return nil
	}
	return &s
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func anyOverlap(values, filter []string) bool {
	for _, v := range values {
		if contains(filter, v) {
			return true
		}
	}
	return false
}
