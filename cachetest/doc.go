// Package cachetest provides a reusable contract suite for producers backed by
// external sources.
//
// Source packages run it from their own tests against a seeded backend:
//
//	func TestSourceContract(t *testing.T) {
//		src := newSeededSource(t)
//		cachetest.RunProducerContract(t, cachetest.Options{
//			Present: src.Producer("user:1"),
//			Want:    []byte(`{"name":"Ada"}`),
//			Absent:  src.Producer("user:404"),
//		})
//	}
package cachetest
