package homeassistant

import (
	"sort"
	"strings"

	"github.com/haasonsaas/orchestrator/pkg/models"
)

// Resolver answers scored entity searches against a Cache.
type Resolver struct {
	cache *Cache
}

// NewResolver builds a Resolver over cache.
func NewResolver(cache *Cache) *Resolver {
	return &Resolver{cache: cache}
}

// Search scores every known entity against query (optionally restricted
// to domain) and returns the matches sorted by score descending, then by
// friendly name ascending. An empty query with a domain set returns every
// entity in that domain at score 1, sorted by friendly name.
func (r *Resolver) Search(query, domain string) []models.SearchResult {
	candidates := r.cache.candidates()

	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		var out []models.SearchResult
		for _, id := range candidates {
			if domain != "" && domainOf(id) != domain {
				continue
			}
			snap := r.cache.snapshotFor(id)
			out = append(out, toResult(snap, 1))
		}
		sort.Slice(out, func(i, j int) bool {
			return sortKey(out[i]) < sortKey(out[j])
		})
		return out
	}

	lowerQuery := strings.ToLower(trimmedQuery)
	tokens := strings.Fields(lowerQuery)

	var out []models.SearchResult
	for _, id := range candidates {
		if domain != "" && domainOf(id) != domain {
			continue
		}
		snap := r.cache.snapshotFor(id)
		score := scoreEntity(snap, lowerQuery, tokens)
		if score > 0 {
			out = append(out, toResult(snap, score))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return sortKey(out[i]) < sortKey(out[j])
	})
	return out
}

func sortKey(r models.SearchResult) string {
	if r.FriendlyName != "" {
		return strings.ToLower(r.FriendlyName)
	}
	return strings.ToLower(r.EntityID)
}

func toResult(snap entitySnapshot, score int) models.SearchResult {
	res := models.SearchResult{
		EntityID:     snap.entityID,
		FriendlyName: snap.friendlyName,
		Domain:       snap.domain,
		Score:        score,
	}
	if snap.state != nil {
		state := snap.state.State
		res.State = &state
	}
	return res
}

// scoreEntity returns the maximum of the equals/contains/token-set
// scoring rules plus any applicable bonus points.
func scoreEntity(snap entitySnapshot, query string, tokens []string) int {
	entityID := strings.ToLower(snap.entityID)
	friendlyName := strings.ToLower(snap.friendlyName)
	registryName := strings.ToLower(snap.registryName)
	area := strings.ToLower(snap.area)
	deviceName := strings.ToLower(snap.deviceName)
	manufacturer := strings.ToLower(snap.manufacturer)
	model := strings.ToLower(snap.model)
	deviceClass := strings.ToLower(snap.deviceClass)
	slug := entitySlug(entityID)

	best := 0
	raise := func(score int) {
		if score > best {
			best = score
		}
	}

	if entityID == query {
		raise(100)
	}
	if friendlyName != "" && friendlyName == query {
		raise(90)
	}
	if registryName != "" && registryName == query {
		raise(88)
	}
	if slug == query {
		raise(80)
	}
	if area != "" && area == query {
		raise(85)
	}
	if deviceName != "" && deviceName == query {
		raise(83)
	}
	if manufacturer != "" && manufacturer == query {
		raise(75)
	}
	if model != "" && model == query {
		raise(72)
	}

	if strings.Contains(entityID, query) {
		raise(70)
	}
	if friendlyName != "" && strings.Contains(friendlyName, query) {
		raise(65)
	}
	if registryName != "" && strings.Contains(registryName, query) {
		raise(64)
	}
	if area != "" && strings.Contains(area, query) {
		raise(62)
	}
	if deviceClass != "" && strings.Contains(deviceClass, query) {
		raise(60)
	}
	if deviceName != "" && strings.Contains(deviceName, query) {
		raise(60)
	}
	if manufacturer != "" && strings.Contains(manufacturer, query) {
		raise(55)
	}
	if model != "" && strings.Contains(model, query) {
		raise(53)
	}

	if len(tokens) > 0 {
		words := entityWords(snap)
		matched := map[string]bool{}
		for _, tok := range tokens {
			for _, w := range words {
				if w == tok {
					matched[tok] = true
					break
				}
			}
		}
		if len(matched) > 0 {
			tokenScore := int((float64(len(matched)) / float64(len(tokens))) * 50)
			if tokenScore > 50 {
				tokenScore = 50
			}
			bonus := 0
			for tok := range matched {
				if friendlyName != "" && strings.Contains(friendlyName, tok) {
					bonus += 10
					break
				}
			}
			for tok := range matched {
				if area != "" && strings.Contains(area, tok) {
					bonus += 8
					break
				}
			}
			for tok := range matched {
				if deviceName != "" && strings.Contains(deviceName, tok) {
					bonus += 7
					break
				}
			}
			for tok := range matched {
				if strings.Contains(snap.domain, tok) {
					bonus += 5
					break
				}
			}
			raise(tokenScore + bonus)
		}

		for _, w := range words {
			if strings.Contains(w, query) {
				raise(20)
				break
			}
		}
		for _, tok := range tokens {
			found := false
			for _, w := range words {
				if strings.Contains(w, tok) {
					found = true
					break
				}
			}
			if found {
				raise(15)
				break
			}
		}
	}

	return best
}

func entitySlug(entityID string) string {
	if idx := strings.IndexByte(entityID, '.'); idx >= 0 {
		return entityID[idx+1:]
	}
	return entityID
}

// entityWords gathers the whitespace/underscore/dash-delimited words
// across every textual field of an entity, for the substring-of-word
// rules.
func entityWords(snap entitySnapshot) []string {
	fields := []string{
		entitySlug(strings.ToLower(snap.entityID)),
		strings.ToLower(snap.friendlyName),
		strings.ToLower(snap.registryName),
		strings.ToLower(snap.area),
		strings.ToLower(snap.deviceName),
		strings.ToLower(snap.manufacturer),
		strings.ToLower(snap.model),
	}
	var words []string
	for _, f := range fields {
		for _, w := range strings.FieldsFunc(f, func(r rune) bool {
			return r == '_' || r == '-' || r == ' ' || r == '.'
		}) {
			if w != "" {
				words = append(words, w)
			}
		}
	}
	return words
}
