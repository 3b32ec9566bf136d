package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeq(t *testing.T) {
	tests := []struct {
		name string
		seq  *Seq
		want []int64
	}{
		{name: "empty store", seq: ResumeSeq(0), want: []int64{1, 2, 3}},
		{name: "resumed", seq: ResumeSeq(41), want: []int64{42, 43}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				assert.Equal(t, want, tt.seq.Next())
			}
			assert.Equal(t, tt.want[len(tt.want)-1], tt.seq.Last())
		})
	}
}

func TestSeqConcurrentWritesGetDistinctNumbers(t *testing.T) {
	s := ResumeSeq(0)
	const writers, writes = 20, 50

	var wg sync.WaitGroup
	got := make(chan int64, writers*writes)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range writes {
				got <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(got)

	seen := make(map[int64]bool)
	for n := range got {
		assert.False(t, seen[n], "write number %d issued twice", n)
		seen[n] = true
	}
	assert.Equal(t, int64(writers*writes), s.Last())
}
