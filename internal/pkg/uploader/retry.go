package uploader

import (
	"math/rand"
	"time"
)

// backoffParam mirrors the initial/multiplier/max shape used for
// backoff configuration elsewhere in the example pack, sized to the
// chunk-upload contract: a 20ms base interval with no further growth
// (the original uses a FixedInterval, not a growing one) and jitter
// multiplying each wait by a factor in [1.0, 10.0).
type backoffParam struct {
	initialDuration time.Duration
	jitterMin       float64
	jitterMax       float64
}

var chunkRetryBackoff = backoffParam{
	initialDuration: 20 * time.Millisecond,
	jitterMin:       1.0,
	jitterMax:       10.0,
}

func (b backoffParam) delay(rng *rand.Rand) time.Duration {
	factor := b.jitterMin + rng.Float64()*(b.jitterMax-b.jitterMin)
	return time.Duration(float64(b.initialDuration) * factor)
}

// retryChunk runs fn up to maxAttempts times, sleeping a jittered
// backoff between attempts. It does not sleep after the final attempt.
func retryChunk(maxAttempts int, fn func() error) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if attempt < maxAttempts {
				time.Sleep(chunkRetryBackoff.delay(rng))
			}
			continue
		}
		return nil
	}
	return lastErr
}
