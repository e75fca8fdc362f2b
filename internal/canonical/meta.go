package canonical

import "github.com/cachebay/cachebay/internal/graph"

// Meta is the bookkeeping record kept alongside each infinite-mode
// canonical connection at `<canonicalKey>::meta` (spec §4.4). It is itself
// an ordinary graph.Record, so it dehydrates/hydrates and is swept by GC
// like any other record.
type Meta struct {
	Pages          []graph.RecordId
	Leader         graph.RecordId
	Hints          map[graph.RecordId]string // "before" | "after" | "leader"
	Origin         map[graph.RecordId]string // "cache" | "network"
	LastNetworkPage graph.RecordId
}

func newMeta() Meta {
	return Meta{Hints: map[graph.RecordId]string{}, Origin: map[graph.RecordId]string{}}
}

func (m Meta) toRecord() graph.Record {
	pages := make([]interface{}, len(m.Pages))
	for i, p := range m.Pages {
		pages[i] = p
	}
	hints := make(map[string]interface{}, len(m.Hints))
	for k, v := range m.Hints {
		hints[k] = v
	}
	origin := make(map[string]interface{}, len(m.Origin))
	for k, v := range m.Origin {
		origin[k] = v
	}
	rec := graph.Record{
		"pages":  pages,
		"hints":  hints,
		"origin": origin,
	}
	if m.Leader != "" {
		rec["leader"] = m.Leader
	}
	if m.LastNetworkPage != "" {
		rec["lastNetworkPage"] = m.LastNetworkPage
	}
	return rec
}

func metaFromRecord(rec graph.Record) Meta {
	m := newMeta()
	if rec == nil {
		return m
	}
	if raw, ok := rec["pages"].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				m.Pages = append(m.Pages, s)
			}
		}
	}
	if leader, ok := rec["leader"].(string); ok {
		m.Leader = leader
	}
	if last, ok := rec["lastNetworkPage"].(string); ok {
		m.LastNetworkPage = last
	}
	if raw, ok := rec["hints"].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				m.Hints[k] = s
			}
		}
	}
	if raw, ok := rec["origin"].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				m.Origin[k] = s
			}
		}
	}
	return m
}

func (m Meta) hasPage(id graph.RecordId) bool {
	for _, p := range m.Pages {
		if p == id {
			return true
		}
	}
	return false
}
