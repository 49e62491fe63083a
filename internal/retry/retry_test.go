package retry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arvidnilsson/depscan/internal/models"
)

func TestQueue_EnqueueTracksRetryCount(t *testing.T) {
	q := NewQueue(1)
	q.Enqueue("run.sh", []models.UnresolvedCallSite{{Src: "run.sh", RawTarget: "$X"}})

	pending := q.PendingRetries()
	assert.Equal(t, []string{"run.sh"}, pending)
	assert.Empty(t, q.Exhausted())

	q.Enqueue("run.sh", []models.UnresolvedCallSite{{Src: "run.sh", RawTarget: "$X"}})
	assert.Empty(t, q.PendingRetries(), "expected run.sh to have exhausted its single retry")
	assert.Len(t, q.Exhausted(), 1)
}

func TestQueue_ResolveRemovesEntry(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue("a.sh", []models.UnresolvedCallSite{{Src: "a.sh"}})
	q.Resolve("a.sh")
	assert.Empty(t, q.PendingRetries(), "expected a.sh removed after Resolve")
}

func TestQueue_PendingRetriesSortedLex(t *testing.T) {
	q := NewQueue(3)
	q.Enqueue("b.sh", nil)
	q.Enqueue("a.sh", nil)
	assert.Equal(t, []string{"a.sh", "b.sh"}, q.PendingRetries())
}
