package ui

import (
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/spherical/verbatim/internal/domain"
)

// Tracker draws one unit bar per artifact from pipeline events.
type Tracker struct {
	progress *mpb.Progress
	bars     map[string]*mpb.Bar
	done     chan struct{}
}

// NewTracker creates a tracker. Bars are only drawn on a terminal; events are
// drained either way.
func NewTracker() *Tracker {
	t := &Tracker{bars: map[string]*mpb.Bar{}, done: make(chan struct{})}
	if IsTerminal() {
		t.progress = mpb.New(mpb.WithWidth(48), mpb.WithOutput(os.Stdout))
	}
	return t
}

// Consume reads events until ch is closed. Call it in its own goroutine.
func (t *Tracker) Consume(ch <-chan domain.StreamEvent) {
	defer close(t.done)
	for ev := range ch {
		t.handle(ev)
	}
}

// Wait blocks until Consume returned and every bar finished rendering.
func (t *Tracker) Wait() {
	<-t.done
	if t.progress == nil {
		return
	}
	for _, bar := range t.bars {
		if !bar.Completed() && !bar.Aborted() {
			bar.Abort(false)
		}
	}
	t.progress.Wait()
}

func (t *Tracker) handle(ev domain.StreamEvent) {
	if t.progress == nil {
		return
	}
	switch ev.Type {
	case domain.EventArtifactUnits:
		name := ev.ArtifactID
		t.bars[ev.ArtifactID] = t.progress.AddBar(int64(ev.Total),
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WC{W: 5}),
				decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}),
				decor.OnComplete(
					decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 12}),
					" done",
				),
			),
		)
	case domain.EventUnitCached, domain.EventUnitRecognized:
		if bar := t.bars[ev.ArtifactID]; bar != nil {
			bar.Increment()
		}
	case domain.EventArtifactComplete:
		if bar := t.bars[ev.ArtifactID]; bar != nil {
			bar.SetTotal(-1, true)
		}
	case domain.EventArtifactFailed:
		if bar := t.bars[ev.ArtifactID]; bar != nil {
			bar.Abort(false)
		}
	}
}

// DownloadProgress returns a byte counter bar for one download. It is safe to
// pass as a discovery.ProgressFunc.
func DownloadProgress() func(name string, total int64) io.Writer {
	return func(name string, total int64) io.Writer {
		if !IsTerminal() {
			return io.Discard
		}
		if total <= 0 {
			total = -1
		}
		return progressbar.NewOptions64(
			total,
			progressbar.OptionSetDescription(name),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSpinnerType(14),
		)
	}
}
