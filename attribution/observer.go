package attribution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/openfluke/attrib/saliency"
)

// ProgressEvent is published after every completed batch. Done never
// decreases within a run.
type ProgressEvent struct {
	RunID   string          `json:"run_id"`
	Method  saliency.Method `json:"method"`
	Batch   int             `json:"batch"`
	Done    int             `json:"done"`
	Total   int             `json:"total"`
	Elapsed time.Duration   `json:"elapsed"`
}

// Observer receives progress events. Observers cannot fail a run.
type Observer interface {
	OnProgress(event ProgressEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ProgressEvent)

func (f ObserverFunc) OnProgress(event ProgressEvent) { f(event) }

// Flusher is implemented by observers that deliver asynchronously. Run
// flushes them before returning.
type Flusher interface {
	Flush()
}

// notify delivers event to every observer, recovering from panics.
func notify(observers []Observer, event ProgressEvent) {
	each(observers, func(o Observer) { o.OnProgress(event) })
}

func flush(observers []Observer) {
	each(observers, func(o Observer) {
		if f, ok := o.(Flusher); ok {
			f.Flush()
		}
	})
}

func each(observers []Observer, fn func(Observer)) {
	for _, o := range observers {
		if o == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("attribution: progress observer %T panicked: %v", o, r)
				}
			}()
			fn(o)
		}()
	}
}

// ConsoleObserver prints progress to a writer, redrawing a single line
// when the writer is a terminal.
type ConsoleObserver struct {
	Out      io.Writer
	Terminal bool
}

// NewConsoleObserver writes to f and detects whether it is a terminal.
func NewConsoleObserver(f *os.File) *ConsoleObserver {
	fd := f.Fd()
	return &ConsoleObserver{
		Out:      f,
		Terminal: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

func (o *ConsoleObserver) OnProgress(event ProgressEvent) {
	rate := 0.0
	if s := event.Elapsed.Seconds(); s > 0 {
		rate = float64(event.Done) / s
	}
	line := fmt.Sprintf("%s: %s/%s sequences, batch %d, %s seq/s",
		event.Method, humanize.Comma(int64(event.Done)), humanize.Comma(int64(event.Total)),
		event.Batch, humanize.FormatFloat("#,###.#", rate))

	if !o.Terminal {
		fmt.Fprintln(o.Out, line)
		return
	}
	fmt.Fprintf(o.Out, "\r\033[K%s", line)
	if event.Done >= event.Total {
		fmt.Fprintln(o.Out)
	}
}

// maxPosts bounds the HTTPObserver posts in flight.
const maxPosts = 4

// HTTPObserver posts events as JSON. Delivery is fire and forget: events
// arriving while maxPosts posts are in flight are dropped. Flush waits for
// the posts in flight.
type HTTPObserver struct {
	URL    string
	client *http.Client
	slots  chan struct{}
	wg     sync.WaitGroup
}

func NewHTTPObserver(url string) *HTTPObserver {
	return &HTTPObserver{
		URL:    url,
		client: &http.Client{Timeout: 100 * time.Millisecond},
		slots:  make(chan struct{}, maxPosts),
	}
}

func (o *HTTPObserver) OnProgress(event ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case o.slots <- struct{}{}:
	default:
		return
	}

	o.wg.Add(1)
	go func() {
		defer func() {
			<-o.slots
			o.wg.Done()
		}()
		resp, err := o.client.Post(o.URL, "application/json", bytes.NewReader(data))
		if err == nil && resp != nil {
			resp.Body.Close()
		}
	}()
}

func (o *HTTPObserver) Flush() { o.wg.Wait() }

// ChannelObserver forwards events to a buffered channel, dropping them
// when it is full.
type ChannelObserver struct {
	Events chan ProgressEvent
}

func NewChannelObserver(bufferSize int) *ChannelObserver {
	return &ChannelObserver{
		Events: make(chan ProgressEvent, bufferSize),
	}
}

func (o *ChannelObserver) OnProgress(event ProgressEvent) {
	select {
	case o.Events <- event:
	default:
	}
}
