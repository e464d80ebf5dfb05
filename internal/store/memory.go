package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sanzolab/colorsync/internal/palette"
)

// Memory is the in-process Provider. Reads copy out under a read lock so
// callers never share slices with the store.
type Memory struct {
	mu     sync.RWMutex
	combos map[string]palette.Combination
	colors map[string]palette.CanonicalColor
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		combos: make(map[string]palette.Combination),
		colors: make(map[string]palette.CanonicalColor),
	}
}

// UpsertCombinations replaces combinations by (source, id) and folds their
// colors into the color index. A named color wins over an unnamed duplicate.
func (m *Memory) UpsertCombinations(_ context.Context, combos []palette.Combination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, combo := range combos {
		if combo.ID == "" || len(combo.Colors) == 0 {
			return fmt.Errorf("combination %q: id and colors are required", combo.Name)
		}
		m.combos[comboKey(combo)] = cloneCombination(combo)
		for _, color := range combo.Colors {
			key := colorKey(color)
			if key == "" {
				continue
			}
			existing, ok := m.colors[key]
			if !ok || (existing.Name == "" && color.Name != "") {
				m.colors[key] = color
			}
		}
	}
	return nil
}

// ListColors returns one page of colors ordered by hex, plus the total
// matching the search filter.
func (m *Memory) ListColors(_ context.Context, q ColorQuery) ([]palette.CanonicalColor, int, error) {
	page, limit := normalizePage(q.Page, q.Limit)
	search := strings.ToLower(q.Search)

	m.mu.RLock()
	matched := make([]palette.CanonicalColor, 0, len(m.colors))
	for _, color := range m.colors {
		if search == "" ||
			strings.Contains(strings.ToLower(color.Name), search) ||
			strings.Contains(strings.ToLower(color.Hex), search) {
			matched = append(matched, color)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Hex != matched[j].Hex {
			return matched[i].Hex < matched[j].Hex
		}
		return matched[i].Name < matched[j].Name
	})
	total := len(matched)
	return pageOf(matched, page, limit), total, nil
}

// ListCombinations returns one page of combinations ordered by (source, id),
// plus the total matching the tag filters.
func (m *Memory) ListCombinations(_ context.Context, q CombinationQuery) ([]palette.Combination, int, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	m.mu.RLock()
	matched := make([]palette.Combination, 0, len(m.combos))
	for _, combo := range m.combos {
		if q.RoomType != "" && !containsFold(combo.RoomTypes, q.RoomType) {
			continue
		}
		if q.AgeGroup != "" && !containsFold(combo.AgeGroups, q.AgeGroup) {
			continue
		}
		matched = append(matched, cloneCombination(combo))
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Source != matched[j].Source {
			return matched[i].Source < matched[j].Source
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	return pageOf(matched, page, limit), total, nil
}

// GetColorByHex looks up one canonical color by its "#RRGGBB" value.
func (m *Memory) GetColorByHex(_ context.Context, hex string) (palette.CanonicalColor, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	color, ok := m.colors[strings.ToUpper(hex)]
	return color, ok, nil
}

// AllColors returns every stored color ordered by hex.
func (m *Memory) AllColors(context.Context) ([]palette.CanonicalColor, error) {
	m.mu.RLock()
	all := make([]palette.CanonicalColor, 0, len(m.colors))
	for _, color := range m.colors {
		all = append(all, color)
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].Hex < all[j].Hex })
	return all, nil
}

// CombinationCount reports how many combinations are stored.
func (m *Memory) CombinationCount(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.combos), nil
}

func comboKey(combo palette.Combination) string {
	return string(combo.Source) + ":" + combo.ID
}

// colorKey keys hex colors by their normalized hex and lab-only colors by
// their components.
func colorKey(color palette.CanonicalColor) string {
	if color.Hex != "" {
		return strings.ToUpper(color.Hex)
	}
	if color.Lab != nil {
		return fmt.Sprintf("lab(%g,%g,%g)", color.Lab.L, color.Lab.A, color.Lab.B)
	}
	return ""
}

func cloneCombination(combo palette.Combination) palette.Combination {
	clone := combo
	clone.Colors = append([]palette.CanonicalColor(nil), combo.Colors...)
	clone.RoomTypes = append([]string(nil), combo.RoomTypes...)
	clone.AgeGroups = append([]string(nil), combo.AgeGroups...)
	if combo.SanzoNumber != nil {
		n := *combo.SanzoNumber
		clone.SanzoNumber = &n
	}
	return clone
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func pageOf[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end:end]
}
