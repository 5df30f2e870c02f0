// Command meterview is a standalone VU-meter-style viewer: one
// progress bar per track/bus monitor, polled and redrawn on a timer.
// It is deliberately separate from any control-surface mapping UI
// (out of scope for the sequencing core) — it only ever reads
// monitor.Monitor.Value()/Count().
package main

import (
	"os"
	"strconv"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/gotk3/gotk3/glib"
	"github.com/gotk3/gotk3/gtk"

	"github.com/xuxin333/qtractor/monitor"
)

// Meter names one monitor for display.
type Meter struct {
	Label string
	Mon   *monitor.Monitor
}

// Run opens a window with one progress bar and one count label per
// meter, refreshed every refresh.
func Run(meters []Meter, refresh time.Duration) {
	logger := charmlog.NewWithOptions(os.Stdout, charmlog.Options{
		Level:  charmlog.InfoLevel,
		Prefix: "meterview",
	})
	logger.Info("start")

	gtk.Init(nil)

	win, err := gtk.WindowNew(gtk.WINDOW_TOPLEVEL)
	if err != nil {
		logger.Fatal(err)
	}
	win.SetTitle("meters")
	win.Connect("destroy", func() {
		gtk.MainQuit()
	})

	box, _ := gtk.BoxNew(gtk.ORIENTATION_VERTICAL, 4)
	win.Add(box)

	bars := make([]*gtk.ProgressBar, len(meters))
	counts := make([]*gtk.Label, len(meters))
	for i, m := range meters {
		row, _ := gtk.BoxNew(gtk.ORIENTATION_HORIZONTAL, 8)

		label, _ := gtk.LabelNew(m.Label)
		row.Add(label)

		bar, _ := gtk.ProgressBarNew()
		bar.SetHExpand(true)
		row.Add(bar)
		bars[i] = bar

		count, _ := gtk.LabelNew("0")
		row.Add(count)
		counts[i] = count

		box.Add(row)
	}

	glib.TimeoutAdd(uint(refresh.Milliseconds()), func() bool {
		for i, m := range meters {
			bars[i].SetFraction(float64(m.Mon.Value()))
			counts[i].SetLabel(strconv.Itoa(m.Mon.Count()))
		}
		return true
	})

	win.ShowAll()
	gtk.Main()
	logger.Info("stop")
}

func main() {
	Run(nil, 50*time.Millisecond)
}
