package pagination

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 25
	MaxLimit     = 100
	// MaxPage keeps (Page-1)*MaxLimit inside int.
	MaxPage = math.MaxInt / MaxLimit
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Query is a validated page request. Sort is always one of the keys the
// resource allowed.
type Query struct {
	Page  int
	Limit int
	Sort  string
	Order Order
}

// Offset is never negative; pages past what int can address are clamped.
func (q Query) Offset() int {

	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}

	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt - math.MaxInt%q.Limit
	}

	return (q.Page - 1) * q.Limit

}

// Sorting lists the sortable keys of a resource and its default ordering.
type Sorting struct {
	Allowed      []string
	DefaultSort  string
	DefaultOrder Order
}

// Getter is satisfied by url.Values and by gin's c.Query via QueryFunc.
type Getter interface {
	Get(key string) string
}

type QueryFunc func(key string) string

func (f QueryFunc) Get(key string) string { return f(key) }

// Parse reads page, limit, sort and order. Invalid values fall back to
// defaults rather than failing the request.
func Parse(g Getter, s Sorting) Query {

	q := Query{
		Page:  DefaultPage,
		Limit: DefaultLimit,
		Sort:  s.DefaultSort,
		Order: s.DefaultOrder,
	}

	if q.Order == "" {
		q.Order = Asc
	}

	if v, err := strconv.Atoi(g.Get("page")); err == nil && v > 0 {
		q.Page = min(v, MaxPage)
	}

	if v, err := strconv.Atoi(g.Get("limit")); err == nil && v > 0 {
		q.Limit = min(v, MaxLimit)
	}

	if sort := g.Get("sort"); sort != "" {
		for _, allowed := range s.Allowed {
			if sort == allowed {
				q.Sort = sort
			}
		}
	}

	switch Order(strings.ToLower(g.Get("order"))) {
	case Asc:
		q.Order = Asc
	case Desc:
		q.Order = Desc
	}

	return q

}

type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type Page[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

func NewPage[T any](data []T, total int, q Query) Page[T] {

	if data == nil {
		data = []T{}
	}

	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}

	return Page[T]{
		Data: data,
		Meta: Meta{
			Total: total,
			Page:  q.Page,
			Limit: q.Limit,
			Pages: pages,
		},
	}

}
