// Package retry provides small retry combinators shared by callers that
// need to re-attempt a fallible operation a bounded number of times.
package retry

import (
	"errors"
	"time"
)

func Retry(attempts int, sleep time.Duration, fn func() error) error {
	return If(attempts, sleep, fn, func(err error) bool {
		return err != nil
	})
}

func IfErrorIs(attempts int, sleep time.Duration, fn func() error, target error) error {
	return If(attempts, sleep, fn, func(err error) bool {
		return errors.Is(err, target)
	})
}

func If(attempts int, sleep time.Duration, fn func() error, predicate func(error) bool) (err error) {
	for i := range attempts {
		if err = fn(); err == nil {
			return nil
		}
		if !predicate(err) || i >= attempts-1 {
			break
		}
		time.Sleep(sleep)
	}
	return err
}

// Backoff retries fn up to attempts times, doubling the sleep duration after
// each failure starting from base. Used for the health prober's own-request
// retry (§4.7: idempotent probes get exponential backoff, base 1s, factor
// 2, max 3 attempts), which needs a growing interval rather than If's
// constant one.
func Backoff(attempts int, base time.Duration, fn func() error) (err error) {
	sleep := base
	for i := range attempts {
		if err = fn(); err == nil {
			return nil
		}
		if i >= attempts-1 {
			break
		}
		time.Sleep(sleep)
		sleep *= 2
	}
	return err
}
