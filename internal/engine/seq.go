package engine

import "sync/atomic"

// Seq numbers store writes. Every saved model carries the next number, so
// store.Since and the dump command read changes back in write order no
// matter what Created and Modified say.
type Seq struct {
	last atomic.Int64
}

// ResumeSeq returns a Seq whose first number follows last, normally the
// store's MaxSeq.
func ResumeSeq(last int64) *Seq {
	s := &Seq{}
	s.last.Store(last)
	return s
}

// Next reserves the next write number.
func (s *Seq) Next() int64 { return s.last.Add(1) }

// Last is the most recently reserved number.
func (s *Seq) Last() int64 { return s.last.Load() }
