package domain

import "callcenter-service/pkg/xerrors"

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
	Search   string
}

// Normalize fills defaults and rejects out-of-range values.
func (p PageRequest) Normalize() (PageRequest, error) {
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.Page < 1 {
		return p, xerrors.Invalid("page", "must be >= 1")
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return p, xerrors.Invalid("limit", "must be between 1 and 100")
	}
	return p, nil
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.PageSize }

type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
	PageSize   int   `json:"pageSize"`
}

func NewPagination(total int64, req PageRequest) Pagination {
	pages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	return Pagination{
		Total:      total,
		Page:       req.Page,
		TotalPages: pages,
		HasMore:    req.Page < pages,
		PageSize:   req.PageSize,
	}
}

type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func NewPage[T any](items []T, total int64, req PageRequest) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Pagination: NewPagination(total, req)}
}

type AssignmentFilter string

const (
	FilterAll        AssignmentFilter = "all"
	FilterAssigned   AssignmentFilter = "assigned"
	FilterUnassigned AssignmentFilter = "unassigned"
	FilterByAccount  AssignmentFilter = "byAccount"
)

func ParseAssignmentFilter(s string) (AssignmentFilter, bool) {
	switch AssignmentFilter(s) {
	case "", FilterAll:
		return FilterAll, true
	case FilterAssigned, FilterUnassigned, FilterByAccount:
		return AssignmentFilter(s), true
	}
	return "", false
}

type ContactQuery struct {
	PageRequest
	Filter    AssignmentFilter
	AccountID string
}
