package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordNode_AssignsMonotonicSequence(t *testing.T) {
	tr := NewExecutionTrace("req-1", 10)
	tr.RecordNode(NodeExecution{NodeID: "scan", Success: true})
	tr.RecordNode(NodeExecution{NodeID: "filter", Success: true})

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, uint64(1), snap[0].Seq)
	assert.Equal(t, uint64(2), snap[1].Seq)
}

func TestRecordNode_EvictsOldestWhenAtCapacity(t *testing.T) {
	tr := NewExecutionTrace("req-1", 2)
	tr.RecordNode(NodeExecution{NodeID: "a"})
	tr.RecordNode(NodeExecution{NodeID: "b"})
	tr.RecordNode(NodeExecution{NodeID: "c"})

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].NodeID)
	assert.Equal(t, "c", snap[1].NodeID)
	assert.Equal(t, 1, tr.Dropped())
}

func TestRecordNode_ConcurrentAppendsStayOrdered(t *testing.T) {
	tr := NewExecutionTrace("req-1", 1000)
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(i int) {
			tr.RecordNode(NodeExecution{NodeID: "n", Duration: time.Duration(i)})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	snap := tr.Snapshot()
	require.Len(t, snap, 50)
	seen := map[uint64]bool{}
	for _, n := range snap {
		assert.False(t, seen[n.Seq], "sequence numbers must be unique")
		seen[n.Seq] = true
	}
}
