package docstore

import (
	"sort"
	"strings"
)

// SortDocuments orders docs in place the way Query describes and applies the
// limit. Engines without native ordering use it.
func SortDocuments(docs []*Document, q Query) []*Document {
	sort.SliceStable(docs, func(i, j int) bool {
		if q.OrderBy != "" {
			c := CompareValues(GetPath(docs[i].Data, q.OrderBy), GetPath(docs[j].Data, q.OrderBy))
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
			return docs[i].ID < docs[j].ID
		}
		if q.Desc {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].ID < docs[j].ID
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

// CompareValues orders normalized values: null < bool < number < string <
// anything else.
func CompareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
