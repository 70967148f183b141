package search

import (
	"sort"

	"github.com/hession/taskmem/internal/entry"
)

// topPatterns caps the task and tag pattern lists
const topPatterns = 10

// TaskPattern frequency of an exact task text
type TaskPattern struct {
	Task            string  `json:"task"`
	Count           int     `json:"count"`
	AverageDuration float64 `json:"averageDuration"`
}

// TimePattern activity in one hour of the day
type TimePattern struct {
	Hour        int     `json:"hour"` // 0-23
	Count       int     `json:"count"`
	SuccessRate float64 `json:"successRate"` // 0..1
}

// TagPattern frequency of a tag
type TagPattern struct {
	Tag             string  `json:"tag"`
	Count           int     `json:"count"`
	AverageDuration float64 `json:"averageDuration"`
}

// Patterns aggregated statistics over the working set
type Patterns struct {
	CommonTasks  []TaskPattern `json:"commonTasks"`
	TimePatterns []TimePattern `json:"timePatterns"`
	TagPatterns  []TagPattern  `json:"tagPatterns"`
}

type group struct {
	key       string
	count     int
	successes int
	duration  float64
}

// groupCounter accumulates groups while remembering first-seen order
type groupCounter struct {
	order  []*group
	byName map[string]*group
}

func newGroupCounter() *groupCounter {
	return &groupCounter{byName: make(map[string]*group)}
}

func (gc *groupCounter) add(key string, en *entry.Entry) {
	g, ok := gc.byName[key]
	if !ok {
		g = &group{key: key}
		gc.byName[key] = g
		gc.order = append(gc.order, g)
	}
	g.count++
	g.duration += en.Metadata.Duration
	if en.Metadata.Success {
		g.successes++
	}
}

// top returns groups by descending count, first-seen order on ties
func (gc *groupCounter) top(n int) []*group {
	groups := append([]*group(nil), gc.order...)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].count > groups[j].count
	})
	if len(groups) > n {
		groups = groups[:n]
	}
	return groups
}

// FindPatterns derives task, hour-of-day and tag frequencies
func (e *Engine) FindPatterns() Patterns {
	entries := e.Entries()

	tasks := newGroupCounter()
	tags := newGroupCounter()
	var hours [24]group

	for _, en := range entries {
		tasks.add(en.Task, en)
		for _, tag := range en.Metadata.Tags {
			tags.add(tag, en)
		}

		h := en.Time().In(e.loc).Hour()
		hours[h].count++
		if en.Metadata.Success {
			hours[h].successes++
		}
	}

	p := Patterns{
		CommonTasks:  []TaskPattern{},
		TimePatterns: []TimePattern{},
		TagPatterns:  []TagPattern{},
	}
	for _, g := range tasks.top(topPatterns) {
		p.CommonTasks = append(p.CommonTasks, TaskPattern{
			Task:            g.key,
			Count:           g.count,
			AverageDuration: g.duration / float64(g.count),
		})
	}
	for h, g := range hours {
		if g.count == 0 {
			continue
		}
		p.TimePatterns = append(p.TimePatterns, TimePattern{
			Hour:        h,
			Count:       g.count,
			SuccessRate: float64(g.successes) / float64(g.count),
		})
	}
	for _, g := range tags.top(topPatterns) {
		p.TagPatterns = append(p.TagPatterns, TagPattern{
			Tag:             g.key,
			Count:           g.count,
			AverageDuration: g.duration / float64(g.count),
		})
	}
	return p
}
