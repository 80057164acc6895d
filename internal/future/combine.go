package future

import (
	eventloop "github.com/joeycumines/go-eventloop"
)

// Settled is the outcome of one future as reported by [AllSettled].
type Settled[T any] struct {
	Value T
	Err   error
}

func promises[T any](fs []*Future[T]) []*eventloop.Promise {
	ps := make([]*eventloop.Promise, len(fs))
	for i, f := range fs {
		ps[i] = f.p
	}

	return ps
}

// All resolves with the values of fs in their original order once every
// future has resolved. It rejects with the first rejection it observes and
// ignores the outcome of the remaining futures.
func All[T any](js *eventloop.JS, fs []*Future[T]) *Future[[]T] {
	all := derived[[]any](js, js.All(promises(fs)...))

	return Map(all, func(values []any) ([]T, error) {
		out := make([]T, len(values))
		for i, v := range values {
			out[i] = valueOf[T](v)
		}

		return out, nil
	})
}

// AllSettled resolves once every future has settled, reporting each outcome
// in the original order. It never rejects.
func AllSettled[T any](js *eventloop.JS, fs []*Future[T]) *Future[[]Settled[T]] {
	all := derived[[]any](js, js.AllSettled(promises(fs)...))

	return Map(all, func(outcomes []any) ([]Settled[T], error) {
		out := make([]Settled[T], len(outcomes))
		for i, o := range outcomes {
			outcome, _ := o.(map[string]any)
			if outcome["status"] == "rejected" {
				out[i] = Settled[T]{Err: errorOf(outcome["reason"])}

				continue
			}
			out[i] = Settled[T]{Value: valueOf[T](outcome["value"])}
		}

		return out, nil
	})
}
