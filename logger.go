package richardsonsim

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Logger accumulates messages during a Run and writes them to Output
// once flushed. Logf is safe to call from multiple worker goroutines
// and the progress monitor concurrently, unlike the buffered
// strings.Builder this is adapted from, which assumed a single
// calling goroutine.
type Logger struct {
	Output io.Writer
	mu     sync.Mutex
	buff   strings.Builder
}

// Logf formats a message into the logger. Messages are held in memory
// until flush; this is a rudimentary implementation, not meant for
// high-frequency per-substep tracing.
func (log *Logger) Logf(format string, a ...interface{}) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.buff.WriteString(fmt.Sprintf(format, a...))
}

// Progress reports a single worker's completion percentage directly to
// Output, bypassing the buffer: progress lines are status, not a
// record to replay at the end of a run.
func (log *Logger) Progress(method MethodID, t, tEnd float64) {
	if log.Output == nil {
		return
	}
	pct := 100 * t / tEnd
	if pct > 100 {
		pct = 100
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	fmt.Fprintf(log.Output, "%s: %.1f%% (t=%.6g)\n", method, pct, t)
}

// Flush writes and clears any messages accumulated via Logf.
func (log *Logger) Flush() {
	log.mu.Lock()
	defer log.mu.Unlock()
	if log.Output == nil {
		log.buff.Reset()
		return
	}
	log.Output.Write([]byte(log.buff.String()))
	log.buff.Reset()
}

func newLogger(w io.Writer) *Logger {
	return &Logger{Output: w}
}
