package planner

import (
	"github.com/shouni/go-comic-kit/pkg/domain"
)

// placeholders は pageStart から pageEnd までのページに count 枚の仮パネルを均等に配分します。
func (p *Planner) placeholders(pageStart, pageEnd, count int) domain.Panels {
	pages := pageEnd - pageStart + 1
	if pages < 1 {
		pages = 1
	}
	if count < 1 {
		count = 1
	}
	if count < pages {
		pages = count
	}

	panels := make(domain.Panels, 0, count)
	for i := 0; i < pages; i++ {
		n := count / pages
		if i < count%pages {
			n++
		}
		for order := 0; order < n; order++ {
			panels = append(panels, domain.Panel{
				ID:               p.newID(),
				PageNumber:       pageStart + i,
				OrderInPage:      order,
				SceneDescription: domain.PlaceholderDescription,
				Characters:       []string{},
				Balloons:         []domain.Balloon{},
				Status:           domain.PanelPending,
			})
		}
	}
	return panels
}
