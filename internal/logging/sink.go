package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// The file sink persists log entries beyond the in-memory ring buffer.
// Files are named by date and a new one is opened at midnight, keeping log
// collection simple for long-running deployments.

var (
	sinkMu sync.RWMutex
	sink   *logrus.Logger
)

// InitFileSink routes all log entries to a dated file under dir, in
// addition to stdout. Call once at startup, after Init.
func InitFileSink(dir string, minLevel Level) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	lg := logrus.New()
	lg.SetLevel(logrusLevel(minLevel))
	lg.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lg.SetOutput(io.MultiWriter(os.Stdout, &dailyFile{dir: dir}))

	sinkMu.Lock()
	sink = lg
	sinkMu.Unlock()
	return nil
}

func sinkWrite(e Entry) {
	sinkMu.RLock()
	lg := sink
	sinkMu.RUnlock()
	if lg == nil {
		return
	}

	fields := logrus.Fields{"category": string(e.Category)}
	for k, v := range e.Data {
		fields[k] = v
	}
	lg.WithFields(fields).Log(logrusLevel(e.Level), e.Message)
}

func logrusLevel(l Level) logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// dailyFile is an io.Writer that appends to app-YYYY-MM-DD.log in dir,
// reopening when the date changes.
type dailyFile struct {
	mu  sync.Mutex
	dir string
	day string
	f   *os.File
}

func (w *dailyFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := time.Now().Format("2006-01-02")
	if w.f == nil || day != w.day {
		if w.f != nil {
			w.f.Close()
		}
		f, err := os.OpenFile(
			filepath.Join(w.dir, "app-"+day+".log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND,
			0o644,
		)
		if err != nil {
			return 0, err
		}
		w.f = f
		w.day = day
	}
	return w.f.Write(p)
}
