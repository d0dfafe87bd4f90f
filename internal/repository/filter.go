package repository

import (
	"strings"

	"github.com/Vr3n/crown-vitality-research/internal/model"
)

// FilterNotes narrows an already loaded listing. The search term matches
// title or content case-insensitively; tag and category must match a name
// exactly. Filters are applied in that order and blank ones are skipped.
// The input order is preserved.
func FilterNotes(notes []model.NoteDetail, f model.NoteFilter) []model.NoteDetail {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	tag := strings.TrimSpace(f.Tag)
	category := strings.TrimSpace(f.Category)

	out := make([]model.NoteDetail, 0, len(notes))
	for _, n := range notes {
		if search != "" && !containsFold(n, search) {
			continue
		}
		if tag != "" && !hasTag(n, tag) {
			continue
		}
		if category != "" && (n.CategoryName == nil || *n.CategoryName != category) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func containsFold(n model.NoteDetail, lowered string) bool {
	if strings.Contains(strings.ToLower(n.Title), lowered) {
		return true
	}
	return n.Content != nil && strings.Contains(strings.ToLower(*n.Content), lowered)
}

func hasTag(n model.NoteDetail, name string) bool {
	for _, t := range n.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}
