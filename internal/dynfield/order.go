package dynfield

import (
	"sort"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func createdBefore(a, b string) bool {
	ta, okA := parseTimestamp(a)
	tb, okB := parseTimestamp(b)
	if okA && okB {
		return ta.Before(tb)
	}
	return a < b
}

// less порядок отображения: сущность, order_index (незаданные в конце),
// время создания
func less(a, b Definition) bool {
	if ra, rb := a.AppliesTo.rank(), b.AppliesTo.rank(); ra != rb {
		return ra < rb
	}
	if a.AppliesTo != b.AppliesTo {
		return a.AppliesTo < b.AppliesTo
	}
	if a.OrderIndex.Set != b.OrderIndex.Set {
		return a.OrderIndex.Set
	}
	if a.OrderIndex.Set && a.OrderIndex.Value != b.OrderIndex.Value {
		return a.OrderIndex.Value < b.OrderIndex.Value
	}
	return createdBefore(a.CreatedAt, b.CreatedAt)
}

// Sort упорядочивает определения для отображения. Сортировка устойчивая:
// полностью равные элементы сохраняют порядок поступления.
func Sort(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		return less(defs[i], defs[j])
	})
}

// Sorted возвращает упорядоченную копию
func Sorted(defs []Definition) []Definition {
	out := make([]Definition, len(defs))
	copy(out, defs)
	Sort(out)
	return out
}

// ForTarget возвращает определения указанной сущности с сохранением порядка
func ForTarget(defs []Definition, target Target) []Definition {
	var out []Definition
	for _, d := range defs {
		if d.AppliesTo == target {
			out = append(out, d)
		}
	}
	return out
}
