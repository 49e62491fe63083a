// Package retry implements the Mapper's budget-bounded re-loop: an
// unresolved call site is modeled as a retry-counted entry, re-attempted
// with a promoted peek window on each pass of the loop, up to the
// queue's retry limit, and left for good once the loop budget is
// exhausted. Grounded on rohankatakam-coderisk's internal/dlq
// (dead-letter queue for failed commit processing), generalized here
// from commit SHAs to unresolved call-site sources.
package retry

import (
	"sort"

	"github.com/arvidnilsson/depscan/internal/models"
)

// Entry tracks one source file's retry history across re-loop passes.
type Entry struct {
	Src        string
	RetryCount int
	Unresolved []models.UnresolvedCallSite
}

// Queue holds the sources with remaining unresolved call sites between
// Mapper passes, keyed by source path.
type Queue struct {
	entries map[string]*Entry
	maxRetries int
}

// NewQueue returns a Queue that allows each source at most maxRetries
// extra Reader/Mapper passes before it is left unresolved for good.
func NewQueue(maxRetries int) *Queue {
	return &Queue{entries: make(map[string]*Entry), maxRetries: maxRetries}
}

// Enqueue records unresolved call sites for src, incrementing its
// retry count if it was already queued (mirrors the corpus's DLQ
// upsert-and-increment semantics, without the SQL).
func (q *Queue) Enqueue(src string, unresolved []models.UnresolvedCallSite) {
	e, ok := q.entries[src]
	if !ok {
		e = &Entry{Src: src}
		q.entries[src] = e
	} else {
		e.RetryCount++
	}
	e.Unresolved = unresolved
}

// Resolve removes src from the queue once a later pass resolves all of
// its call sites.
func (q *Queue) Resolve(src string) {
	delete(q.entries, src)
}

// PendingRetries returns the sources still under the retry budget,
// sorted lexicographically for deterministic re-loop ordering.
func (q *Queue) PendingRetries() []string {
	var out []string
	for src, e := range q.entries {
		if e.RetryCount < q.maxRetries {
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out
}

// Exhausted returns the sources that ran out of retries, with their
// final unresolved call sites — these feed the Writer's diagnostics
// unchanged.
func (q *Queue) Exhausted() []models.UnresolvedCallSite {
	var out []models.UnresolvedCallSite
	srcs := make([]string, 0, len(q.entries))
	for src, e := range q.entries {
		if e.RetryCount >= q.maxRetries {
			srcs = append(srcs, src)
		}
	}
	sort.Strings(srcs)
	for _, src := range srcs {
		out = append(out, q.entries[src].Unresolved...)
	}
	return out
}
