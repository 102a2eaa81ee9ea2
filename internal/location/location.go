package location

import (
	"math"
	"time"

	"github.com/quocanhngo/tripzi/internal/model"
)

const (
	// DefaultMinInterval is the minimum time between two position writes
	DefaultMinInterval = 10 * time.Second
	// DefaultMinDistance is the minimum movement, in meters, between writes
	DefaultMinDistance = 20.0

	earthRadius = 6371000.0 // meters
)

// Distance returns the great-circle distance between two fixes in meters
func Distance(a, b model.Position) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Filter throttles a device's position stream. The first fix always passes;
// later fixes pass only once both the interval and the distance since the
// last accepted fix are reached.
type Filter struct {
	minInterval time.Duration
	minDistance float64
	last        *model.Position
}

func NewFilter(minInterval time.Duration, minDistance float64) *Filter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if minDistance <= 0 {
		minDistance = DefaultMinDistance
	}
	return &Filter{minInterval: minInterval, minDistance: minDistance}
}

// Accept reports whether p should be written, and remembers it if so
func (f *Filter) Accept(p model.Position) bool {
	if f.last != nil {
		if p.At.Sub(f.last.At) < f.minInterval || Distance(*f.last, p) < f.minDistance {
			return false
		}
	}
	f.last = &p
	return true
}

// Reset forgets the last accepted fix
func (f *Filter) Reset() {
	f.last = nil
}

// Action is what the local sharing state must do to agree with the store
type Action int

const (
	None Action = iota
	// StopLocal stops the device watcher because the remote share ended
	StopLocal
	// ResumeSilently restarts the device watcher for a share that is still
	// live remotely, without announcing it again
	ResumeSilently
)

func (a Action) String() string {
	switch a {
	case StopLocal:
		return "stop_local"
	case ResumeSilently:
		return "resume_silently"
	default:
		return "none"
	}
}

// Reconcile compares the user's own remote share with the local watcher.
// The remote document is the source of truth: an inactive or expired share
// stops the local watcher, and an active share without a local watcher is
// resumed only when location permission is already granted.
func Reconcile(remote *model.LiveShare, localActive, permissionGranted bool, now time.Time) Action {
	remoteActive := remote != nil && remote.IsActiveAt(now)
	switch {
	case localActive && !remoteActive:
		return StopLocal
	case !localActive && remoteActive && permissionGranted:
		return ResumeSilently
	default:
		return None
	}
}
