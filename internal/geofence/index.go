package geofence

import (
	"sort"
	"sync"

	"github.com/tidwall/rtree"

	"minibus.schoolride.org/internal/geo"
)

// Match is a route whose corridor accepts a location.
type Match struct {
	RouteID int
	// DistanceKm is nil for unconstrained routes.
	DistanceKm *float64
}

// CorridorIndex answers "which routes serve this location" without running
// Validate against every route. The R-tree holds each corridor's bounding
// box; candidates found there are confirmed with Validate.
type CorridorIndex struct {
	mu            sync.RWMutex
	tree          rtree.RTreeG[int]
	fences        map[int]Geofence
	unconstrained map[int]struct{}
}

func NewCorridorIndex() *CorridorIndex {
	return &CorridorIndex{
		fences:        make(map[int]Geofence),
		unconstrained: make(map[int]struct{}),
	}
}

// Insert adds or replaces the corridor of routeID. A nil fence marks the
// route as unconstrained.
func (idx *CorridorIndex) Insert(routeID int, fence *Geofence) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, existed := idx.fences[routeID]
	delete(idx.fences, routeID)
	delete(idx.unconstrained, routeID)

	start, end, ok := fence.corridor()
	if !ok {
		idx.unconstrained[routeID] = struct{}{}
		if existed {
			idx.rebuild()
		}
		return
	}
	idx.fences[routeID] = *fence
	if existed {
		idx.rebuild()
		return
	}
	idx.insertBounds(routeID, geo.SegmentBounds(start, end, fence.RadiusKm))
}

// Remove drops routeID from the index.
func (idx *CorridorIndex) Remove(routeID int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.unconstrained, routeID)
	if _, ok := idx.fences[routeID]; ok {
		delete(idx.fences, routeID)
		idx.rebuild()
	}
}

// Len returns the number of indexed routes.
func (idx *CorridorIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.fences) + len(idx.unconstrained)
}

// RoutesFor returns every route accepting candidate, nearest first, with
// unconstrained routes last in ID order. An unparsable candidate matches nothing.
func (idx *CorridorIndex) RoutesFor(candidate string) []Match {
	point, ok := geo.ParseCoordinates(candidate)
	if !ok {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []Match
	at := [2]float64{point.Lng, point.Lat}
	idx.tree.Search(at, at, func(_, _ [2]float64, routeID int) bool {
		fence := idx.fences[routeID]
		if res := Validate(candidate, &fence); res.Accepted {
			matches = append(matches, Match{RouteID: routeID, DistanceKm: res.DistanceKm})
		}
		return true
	})
	sort.SliceStable(matches, func(i, j int) bool {
		if *matches[i].DistanceKm != *matches[j].DistanceKm {
			return *matches[i].DistanceKm < *matches[j].DistanceKm
		}
		return matches[i].RouteID < matches[j].RouteID
	})

	open := make([]int, 0, len(idx.unconstrained))
	for id := range idx.unconstrained {
		open = append(open, id)
	}
	sort.Ints(open)
	for _, id := range open {
		matches = append(matches, Match{RouteID: id})
	}
	return matches
}

func (idx *CorridorIndex) insertBounds(routeID int, b geo.Bounds) {
	idx.tree.Insert([2]float64{b.MinLng, b.MinLat}, [2]float64{b.MaxLng, b.MaxLat}, routeID)
}

// rebuild recreates the tree from fences; callers hold the write lock.
func (idx *CorridorIndex) rebuild() {
	idx.tree = rtree.RTreeG[int]{}
	for id, fence := range idx.fences {
		start, end, _ := fence.corridor()
		idx.insertBounds(id, geo.SegmentBounds(start, end, fence.RadiusKm))
	}
}
