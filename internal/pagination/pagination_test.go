package pagination

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

var eventSorting = Sorting{
	Allowed:      []string{"date", "title"},
	DefaultSort:  "date",
	DefaultOrder: Asc,
}

func TestParseDefaults(t *testing.T) {

	q := Parse(url.Values{}, eventSorting)

	assert.Equal(t, Query{Page: 1, Limit: 25, Sort: "date", Order: Asc}, q)
	assert.Equal(t, 0, q.Offset())

}

func TestParseOverrides(t *testing.T) {

	q := Parse(url.Values{
		"page":  {"3"},
		"limit": {"10"},
		"sort":  {"title"},
		"order": {"DESC"},
	}, eventSorting)

	assert.Equal(t, Query{Page: 3, Limit: 10, Sort: "title", Order: Desc}, q)
	assert.Equal(t, 20, q.Offset())

}

func TestParseRejectsBadInput(t *testing.T) {

	q := Parse(url.Values{
		"page":  {"-1"},
		"limit": {"5000"},
		"sort":  {"created_by; DROP TABLE events"},
		"order": {"sideways"},
	}, eventSorting)

	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxLimit, q.Limit)
	assert.Equal(t, "date", q.Sort)
	assert.Equal(t, Asc, q.Order)

}

func TestNewPage(t *testing.T) {

	p := NewPage([]string{"a", "b"}, 51, Query{Page: 2, Limit: 25})
	assert.Equal(t, Meta{Total: 51, Page: 2, Limit: 25, Pages: 3}, p.Meta)

	empty := NewPage[string](nil, 0, Query{Page: 1, Limit: 25})
	assert.NotNil(t, empty.Data)
	assert.Equal(t, 0, empty.Meta.Pages)

}

func TestParseBoundsHugePage(t *testing.T) {

	q := Parse(url.Values{
		"page":  {"9223372036854775807"},
		"limit": {"100"},
	}, eventSorting)

	assert.Equal(t, MaxPage, q.Page)
	assert.GreaterOrEqual(t, q.Offset(), 0)

	for _, limit := range []int{1, 7, 25, 100} {
		q := Query{Page: math.MaxInt, Limit: limit}
		assert.GreaterOrEqual(t, q.Offset(), 0, "limit %d", limit)
	}

	assert.Equal(t, 0, Query{Page: 0, Limit: 25}.Offset())

}
