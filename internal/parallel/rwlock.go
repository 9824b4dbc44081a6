package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

const writerBit = int32(1) << 30

// ReaderWriterLock is a spinning reader/writer lock for short critical
// sections. A pending writer blocks new readers, so sustained read load
// cannot starve it.
type ReaderWriterLock struct {
	writer sync.Mutex
	state  atomic.Int32
}

func (l *ReaderWriterLock) EnterReadLock() {
	for {
		s := l.state.Load()
		if s&writerBit == 0 && l.state.CompareAndSwap(s, s+1) {
			return
		}
		runtime.Gosched()
	}
}

func (l *ReaderWriterLock) ExitReadLock() {
	l.state.Add(-1)
}

func (l *ReaderWriterLock) EnterWriteLock() {
	l.writer.Lock()
	for {
		s := l.state.Load()
		if l.state.CompareAndSwap(s, s|writerBit) {
			break
		}
	}
	for l.state.Load() != writerBit {
		runtime.Gosched()
	}
}

func (l *ReaderWriterLock) ExitWriteLock() {
	l.state.Add(-writerBit)
	l.writer.Unlock()
}
