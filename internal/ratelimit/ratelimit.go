// Package ratelimit builds the dispatcher's per-remote-IP connection
// rate limiter from configuration, keeping the
// github.com/joeycumines/go-catrate wiring in one place rather than
// scattering NewLimiter calls across cmd/dispatcherd.
package ratelimit

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// NewConnLimiter builds a sliding-window limiter charging one event per
// accepted connection per remote IP: perSecond events in any one-second
// window, burst events in any ten-second window. A non-positive
// perSecond disables rate limiting entirely (nil limiter; dispatcher.New
// treats that as "no limiter configured").
func NewConnLimiter(perSecond, burst int) *catrate.Limiter {
	if perSecond <= 0 {
		return nil
	}

	// catrate requires strictly increasing counts (and strictly
	// decreasing effective rates) as the window widens; a misconfigured
	// burst that isn't comfortably above perSecond would make
	// catrate.NewLimiter panic, so it's clamped here rather than at the
	// config layer.
	if burst <= perSecond {
		burst = perSecond + 1
	}

	return catrate.NewLimiter(map[time.Duration]int{
		time.Second:      perSecond,
		10 * time.Second: burst,
	})
}
