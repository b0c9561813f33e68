package service

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/repository"
	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

// DashboardQuery captures the staff dashboard listing parameters as they
// arrive from the client.
type DashboardQuery struct {
	Partition repository.TicketPartition
	Page      int
	Limit     int
	Sort      string
	Assignee  string
	Priority  string
	Category  string
}

// FilterOption is one entry of a dashboard dropdown.
type FilterOption struct {
	Key   string `json:"key"`
	Text  string `json:"text"`
	Value string `json:"value"`
}

// FilterOptions bundles the dropdown contents for the dashboard filters.
type FilterOptions struct {
	AssigneeOptions []FilterOption `json:"assigneeOptions"`
	PriorityOptions []FilterOption `json:"priorityOptions"`
	CategoryOptions []FilterOption `json:"categoryOptions"`
}

// DashboardPage is one window of dashboard results.
type DashboardPage struct {
	Tickets       []domain.Ticket
	Total         int64
	FilterOptions FilterOptions
}

// ListDashboard validates the query, fetches one page and derives the
// filter dropdown options from that page.
func (s *TicketService) ListDashboard(ctx context.Context, query DashboardQuery) (DashboardPage, error) {
	filter, err := buildFilter(query)
	if err != nil {
		return DashboardPage{}, err
	}
	page, err := s.tickets.Query(ctx, filter)
	if err != nil {
		return DashboardPage{}, apperrors.MapError(err)
	}
	return DashboardPage{
		Tickets:       page.Items,
		Total:         page.Total,
		FilterOptions: BuildFilterOptions(page.Items),
	}, nil
}

func buildFilter(query DashboardQuery) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{
		Partition: query.Partition,
		Sort:      repository.SortByOpened,
	}
	if query.Sort != "" {
		key := repository.TicketSortKey(query.Sort)
		if !repository.ValidSortKey(key) {
			return filter, apperrors.NewValidationError("unknown sort key", map[string]any{"sort": query.Sort})
		}
		filter.Sort = key
	}
	if query.Assignee != "" {
		assignee := query.Assignee
		filter.Assignee = &assignee
	}
	if query.Priority != "" {
		priority := domain.TicketPriority(query.Priority)
		if !domain.ValidPriority(priority) {
			return filter, apperrors.NewValidationError("unknown priority filter", map[string]any{"priority": query.Priority})
		}
		filter.Priority = &priority
	}
	if query.Category != "" {
		category := query.Category
		filter.Category = &category
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 25
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	return filter, nil
}

// BuildFilterOptions derives the dropdown option lists from the currently
// fetched page only, deduplicated by key, sorted case-insensitively and
// prefixed with a synthetic Clear option.
func BuildFilterOptions(page []domain.Ticket) FilterOptions {
	assignees := map[string]struct{}{}
	priorities := map[string]struct{}{}
	categories := map[string]struct{}{}
	for i := range page {
		for _, assignee := range page[i].AssignedUUIDs {
			assignees[assignee] = struct{}{}
		}
		if page[i].Priority != "" {
			priorities[string(page[i].Priority)] = struct{}{}
		}
		if page[i].Category != "" {
			categories[page[i].Category] = struct{}{}
		}
	}
	return FilterOptions{
		AssigneeOptions: optionList(assignees),
		PriorityOptions: optionList(priorities),
		CategoryOptions: optionList(categories),
	}
}

func optionList(values map[string]struct{}) []FilterOption {
	options := make([]FilterOption, 0, len(values)+1)
	for value := range values {
		options = append(options, FilterOption{
			Key:   value,
			Text:  capitalizeFirst(value),
			Value: value,
		})
	}
	sort.Slice(options, func(i, j int) bool {
		return strings.ToLower(options[i].Text) < strings.ToLower(options[j].Text)
	})
	return append([]FilterOption{{Key: "", Text: "Clear", Value: ""}}, options...)
}

func capitalizeFirst(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
