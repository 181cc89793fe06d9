package tgui

import "fmt"

// Page is one window of a paginated list. Index is 0-based.
type Page[T any] struct {
	Items   []T
	Index   int
	Count   int
	Total   int
	HasPrev bool
	HasNext bool
}

// Paginate returns page index of items, clamping index into range.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	count := max(1, (total+size-1)/size)
	index = min(max(index, 0), count-1)
	start := min(index*size, total)
	end := min(start+size, total)
	return Page[T]{
		Items:   items[start:end],
		Index:   index,
		Count:   count,
		Total:   total,
		HasPrev: index > 0,
		HasNext: end < total,
	}
}

// Label is a compact "Стр. 2/3" caption.
func (p Page[T]) Label() string {
	return fmt.Sprintf("Стр. %d/%d", p.Index+1, p.Count)
}
