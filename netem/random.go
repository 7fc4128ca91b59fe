package netem

import (
	"hash/fnv"
	"math/rand"

	"github.com/iti/rngstream"
)

// RandomSource yields uniform values in [0, 1). Channels call it while
// holding their own lock, so implementations need not be goroutine safe.
type RandomSource interface {
	Float64() float64
}

// RandomFactory builds the random source for a named channel.
type RandomFactory func(channel string) RandomSource

// StreamSource returns an independent L'Ecuyer random stream named after the
// channel. Streams are allocated in creation order, so a process that builds
// its links in the same order replays the same loss and jitter rolls.
func StreamSource(channel string) RandomSource {
	return streamSource{s: rngstream.New(channel)}
}

type streamSource struct {
	s *rngstream.RngStream
}

func (s streamSource) Float64() float64 { return s.s.RandU01() }

// SeededSources returns a factory whose per-channel sources are seeded from
// seed and the channel name, independent of creation order.
func SeededSources(seed int64) RandomFactory {
	return func(channel string) RandomSource {
		h := fnv.New64a()
		_, _ = h.Write([]byte(channel))
		return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
	}
}
