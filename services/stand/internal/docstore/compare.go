package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func lookup(data bson.M, path string) (any, bool) {
	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(bson.M)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// assign writes value at a dotted path. Every intermediate document must
// already exist.
func assign(data bson.M, path string, value any) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	segs := strings.Split(path, ".")
	cur := data
	for i, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok || next == nil {
			return fmt.Errorf("%s: %w", strings.Join(segs[:i+1], "."), ErrNotFound)
		}
		child, ok := next.(bson.M)
		if !ok {
			return ErrInvalidPath
		}
		cur = child
	}
	cur[segs[len(segs)-1]] = value
	return nil
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc.Lookup(f.Field)
		if !ok {
			if f.Value != nil {
				return false
			}
			continue
		}
		if compareValues(v, f.Value) != 0 {
			return false
		}
	}
	return true
}

func sortDocs(docs []Document, keys []OrderBy) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			a, _ := docs[i].Lookup(k.Field)
			b, _ := docs[j].Lookup(k.Field)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if k.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

// typeRank follows the BSON comparison order for the kinds stand stores.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int32, int64, float64:
		return 1
	case string:
		return 2
	case bson.M:
		return 3
	case bson.A:
		return 4
	case bool:
		return 5
	case primitive.DateTime, time.Time:
		return 6
	default:
		return 7
	}
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch av := a.(type) {
	case nil:
		return 0
	case string:
		return strings.Compare(av, b.(string))
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
	case primitive.DateTime, time.Time:
		return compareNumbers(float64(millis(a)), float64(millis(b)))
	case int, int32, int64, float64:
		return compareNumbers(toFloat(a), toFloat(b))
	default:
		if reflect.DeepEqual(a, b) {
			return 0
		}
		return strings.Compare(reflect.TypeOf(a).String(), reflect.TypeOf(b).String())
	}
}

func compareNumbers(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func millis(v any) int64 {
	switch t := v.(type) {
	case primitive.DateTime:
		return int64(t)
	case time.Time:
		return t.UnixMilli()
	}
	return 0
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

func cloneDocs(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Document{ID: d.ID, Data: cloneValue(d.Data).(bson.M)}
	}
	return out
}

func sameDocs(a, b []Document) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !reflect.DeepEqual(a[i].Data, b[i].Data) {
			return false
		}
	}
	return true
}
