package terminal

import (
	"bytes"
	"sync"
)

// logBuffer keeps the most recent log lines while the terminal is owned
// by the screen.
type logBuffer struct {
	mutex   sync.Mutex
	entries []string
	size    int
	index   int
	count   int
	partial []byte
}

func newLogBuffer(size int) *logBuffer {
	return &logBuffer{
		entries: make([]string, size),
		size:    size,
	}
}

func (lb *logBuffer) Write(p []byte) (int, error) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	data := append(lb.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		lb.add(string(data[:i]))
		data = data[i+1:]
	}
	lb.partial = append([]byte(nil), data...)

	return len(p), nil
}

func (lb *logBuffer) add(line string) {
	lb.entries[lb.index] = line
	lb.index = (lb.index + 1) % lb.size
	if lb.count < lb.size {
		lb.count++
	}
}

// lines returns the buffered lines, oldest first.
func (lb *logBuffer) lines() []string {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	result := make([]string, lb.count)
	start := (lb.index - lb.count + lb.size) % lb.size
	for i := range result {
		result[i] = lb.entries[(start+i)%lb.size]
	}
	return result
}
