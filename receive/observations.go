package receive

import (
	"log/slog"
	"time"
)

const (
	windowLength   = 512
	windowDuration = 2 * time.Second

	// Deltas this far from the running skew estimate mean the sender
	// clock jumped rather than drifted.
	maxSkewDistance = time.Second
)

// observations estimates the clock skew between the sender's clock and
// ours from a sliding window of per-frame deltas, following Fober, Orlarey
// and Letz, "Real Time Clock Skew Estimation over Network Delays" (2005),
// the same algorithm GStreamer's rtpjitterbuffer uses.
//
// Owned by the capture goroutine, so no locking.
type observations struct {
	log *slog.Logger

	hasBase        bool
	baseRemoteTime time.Duration
	baseLocalTime  time.Duration

	deltas   []int64
	minDelta int64
	skew     int64
	filling  bool
}

func newObservations(log *slog.Logger) *observations {
	return &observations{
		log:     log,
		filling: true,
	}
}

func (o *observations) reset(remote, local time.Duration) {
	o.deltas = o.deltas[:0]
	o.minDelta = 0
	o.skew = 0
	o.filling = true

	o.log.Debug("initializing base time", "local", local, "remote", remote)
	o.hasBase = true
	o.baseRemoteTime = remote
	o.baseLocalTime = local
}

// process maps a remote timestamp onto the local timeline, compensating
// for skew between the two clocks. It reports whether the mapping was
// (re)initialized, which callers surface as a resync point.
func (o *observations) process(remote, local time.Duration, hasRemote bool) (time.Duration, bool) {
	if !hasRemote {
		return local, false
	}

	if !o.hasBase {
		o.reset(remote, local)
		return local, true
	}

	remoteDiff := remote - o.baseRemoteTime
	if remoteDiff < 0 {
		remoteDiff = 0
	}
	localDiff := local - o.baseLocalTime
	if localDiff < 0 {
		localDiff = 0
	}
	delta := int64(localDiff) - int64(remoteDiff)

	if remoteDiff > 0 && localDiff > 0 {
		slope := float64(localDiff) / float64(remoteDiff)
		if slope < 0.8 || slope >= 1.2 {
			o.log.Warn("slope out of range, resetting", "slope", slope)
			discont := len(o.deltas) != 0
			o.reset(remote, local)
			return local, discont
		}
	}

	if delta-o.skew > int64(maxSkewDistance) || o.skew-delta > int64(maxSkewDistance) {
		o.log.Warn("delta too far from skew, resetting", "delta", delta, "skew", o.skew)
		discont := len(o.deltas) != 0
		o.reset(remote, local)
		return local, discont
	}

	if o.filling {
		if len(o.deltas) == 0 || delta < o.minDelta {
			o.minDelta = delta
		}
		o.deltas = append(o.deltas, delta)

		if remoteDiff > windowDuration || len(o.deltas) == windowLength {
			o.skew = o.minDelta
			o.filling = false
		} else {
			percTime := int64(remoteDiff) * 100 / int64(windowDuration)
			percWindow := int64(len(o.deltas)) * 100 / windowLength
			perc := percTime
			if percWindow > perc {
				perc = percWindow
			}

			o.skew = (perc*o.minDelta + (10_000-perc)*o.skew) / 10_000
		}
	} else {
		old := o.deltas[0]
		o.deltas = append(o.deltas[1:], delta)

		if delta <= o.minDelta {
			o.minDelta = delta
		} else if old == o.minDelta {
			o.minDelta = o.deltas[0]
			for _, d := range o.deltas[1:] {
				if d < o.minDelta {
					o.minDelta = d
				}
			}
		}

		o.skew = (o.minDelta + 124*o.skew) / 125
	}

	out := o.baseLocalTime + remoteDiff + time.Duration(o.skew)
	if out < 0 {
		out = 0
	}
	return out, false
}
