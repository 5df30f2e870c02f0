package engine

import (
	"os"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/xuxin333/qtractor/backend"
	"github.com/xuxin333/qtractor/midi"
	"github.com/xuxin333/qtractor/monitor"
)

// Engine is the Transport Facade: it owns a backend client/queue, the
// Output Thread and Input Thread goroutines, and the SyncController
// that keeps the queue's ticks slaved to the audio clock.
type Engine struct {
	log   *charmlog.Logger
	be    backend.Backend
	sess  Session
	audio AudioClock

	client backend.ClientID
	queue  backend.QueueID

	sync   SyncController
	cursor Cursor

	readAheadFrames uint64

	// mu serialises process/processSync/trackSync so the two threads
	// never race on the shared cursor and SyncController.
	mu sync.Mutex

	busesMu sync.RWMutex
	buses   []*BusEndpoint

	tracksMu sync.RWMutex
	tracks   []*Track

	// controlBusOut/controlBusIn are the active control-bus pointers,
	// live only between resetControlBus(true) (Activate) and
	// resetControlBus(false) (Deactivate); configuredControlBus*
	// remembers what SetControlBuses designated so Activate can restore
	// them.
	controlBusOut           *BusEndpoint
	controlBusIn            *BusEndpoint
	configuredControlBusOut *BusEndpoint
	configuredControlBusIn  *BusEndpoint
	mmcListener             MmcListener

	wake chan struct{}

	runMu   sync.Mutex
	running bool
	playing bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	activated bool
}

// New builds an Engine over be, sess and audio. readAheadFrames is the
// output window W: each Output Thread cycle schedules W frames, and a
// cycle is skipped once the MIDI cursor's frame time is more than W
// frames past the audio clock's, so scheduled events can reach up to
// 2W frames ahead of the audio position.
func New(be backend.Backend, sess Session, audio AudioClock, readAheadFrames uint64, log *charmlog.Logger) *Engine {
	if log == nil {
		log = charmlog.NewWithOptions(os.Stdout, charmlog.Options{
			Level:  charmlog.InfoLevel,
			Prefix: "engine",
		})
	}
	return &Engine{
		log:             log,
		be:              be,
		sess:            sess,
		audio:           audio,
		readAheadFrames: readAheadFrames,
		wake:            make(chan struct{}, 1),
	}
}

// Init opens the backend client and allocates its scheduling queue.
// Only a BackendOpen failure here is fatal; the caller is expected to
// treat any other error as advisory.
func (e *Engine) Init(clientName string) error {
	client, err := e.be.OpenClient(clientName)
	if err != nil {
		return &backend.Error{Kind: backend.BackendOpen, Op: "OpenClient", Err: err}
	}
	e.client = client

	queue, err := e.be.AllocQueue()
	if err != nil {
		return &backend.Error{Kind: backend.BackendOpen, Op: "AllocQueue", Err: err}
	}
	e.queue = queue
	e.log.Info("initialised", "client", e.client, "queue", e.queue)
	return nil
}

// AddBus opens a backend port for name and wraps it in a midi.Bus that
// dispatches through it.
func (e *Engine) AddBus(name string, caps backend.PortCaps) (*BusEndpoint, error) {
	port, err := e.be.CreatePort(name, caps)
	if err != nil {
		return nil, &backend.Error{Kind: backend.PortSubscribeFailed, Op: "CreatePort", Err: err}
	}
	if err := e.be.SetPortTimestamping(port, e.queue, true); err != nil {
		e.log.Warn("timestamping unavailable", "bus", name, "err", err)
	}
	bus := midi.NewBus(name, NewPortDispatcher(e.be, port))
	ep := &BusEndpoint{Bus: bus, Port: port}
	e.busesMu.Lock()
	e.buses = append(e.buses, ep)
	e.busesMu.Unlock()
	e.log.Debug("bus added", "name", name, "port", port)
	return ep, nil
}

// SetControlBuses designates the buses used for the MMC control
// channel. Either may be nil.
func (e *Engine) SetControlBuses(out, in *BusEndpoint) {
	e.configuredControlBusOut = out
	e.configuredControlBusIn = in
}

// SetMmcListener installs the observer notified of trapped MMC events.
func (e *Engine) SetMmcListener(l MmcListener) {
	e.mmcListener = l
}

// AddTrack registers a track with the engine so the Output/Input
// Threads route events to and from it.
func (e *Engine) AddTrack(t *Track) {
	e.tracksMu.Lock()
	e.tracks = append(e.tracks, t)
	e.tracksMu.Unlock()
}

func (e *Engine) tracksSnapshot() []*Track {
	e.tracksMu.RLock()
	defer e.tracksMu.RUnlock()
	out := make([]*Track, len(e.tracks))
	copy(out, e.tracks)
	return out
}

// Activate starts the Output Thread and Input Thread goroutines. It is
// idempotent: calling it twice without an intervening Deactivate is a
// no-op.
func (e *Engine) Activate() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.activated {
		return nil
	}
	e.stopCh = make(chan struct{})
	e.activated = true
	e.running = true

	e.wg.Add(2)
	go e.outputLoop()
	go e.inputLoop()

	e.resetControlBus(true)
	e.resetAllMonitors()
	e.log.Info("activated")
	return nil
}

// Start begins transport playback: it hard-aligns the MIDI cursor to
// the audio clock, resets the tempo and every monitor, and starts the
// backend queue.
func (e *Engine) Start() error {
	e.mu.Lock()
	e.sync.MidiCursorSync(&e.cursor, e.audio, e.readAheadFrames, true)
	e.mu.Unlock()

	e.resetTempo()
	e.resetAllMonitors()
	e.sync.Start(e.sess.TickFromFrame(e.cursor.Frame))

	if err := e.be.StartQueue(e.queue); err != nil {
		return &backend.Error{Kind: backend.BackendTransient, Op: "StartQueue", Err: err}
	}
	e.runMu.Lock()
	e.playing = true
	e.runMu.Unlock()

	e.mu.Lock()
	e.processLocked()
	e.mu.Unlock()

	e.log.Info("start")
	return nil
}

// Stop halts playback, drops in-flight I/O and silences every bus.
func (e *Engine) Stop() {
	e.runMu.Lock()
	e.playing = false
	e.runMu.Unlock()

	e.sync.Stop()
	if err := e.be.DropOutput(); err != nil {
		e.log.Warn("drop output", "err", err)
	}
	if err := e.be.DropInput(); err != nil {
		e.log.Warn("drop input", "err", err)
	}
	if err := e.be.StopQueue(e.queue); err != nil {
		e.log.Warn("stop queue", "err", err)
	}

	e.busesMu.RLock()
	buses := append([]*BusEndpoint(nil), e.buses...)
	e.busesMu.RUnlock()
	for _, ep := range buses {
		if err := ep.Bus.ShutOff(false); err != nil {
			e.log.Warn("shut off", "bus", ep.Bus.Name, "err", err)
		}
	}
	e.log.Info("stop")
}

// Deactivate stops the Output Thread and Input Thread goroutines: it
// flips the run state, wakes the Output Thread, sleeps a 100ms grace
// period and then waits for both goroutines to exit.
func (e *Engine) Deactivate() {
	e.runMu.Lock()
	if !e.activated {
		e.runMu.Unlock()
		return
	}
	e.activated = false
	e.running = false
	close(e.stopCh)
	e.runMu.Unlock()

	e.poke()
	time.Sleep(100 * time.Millisecond)
	e.wg.Wait()
	e.resetControlBus(false)
	e.log.Info("deactivated")
}

// Clean releases the backend entirely. Call after Deactivate.
func (e *Engine) Clean() error {
	if err := e.be.Close(); err != nil {
		return &backend.Error{Kind: backend.BackendTransient, Op: "Close", Err: err}
	}
	return nil
}

// Sync is the audio callback's per-cycle hook: it checks whether the
// MIDI cursor has run far enough ahead of the audio clock to back off,
// and if not, wakes the Output Thread for another cycle. It never
// blocks: if the Output Thread already holds e.mu for a process cycle,
// Sync drops this wake rather than stall the real-time audio thread
// behind it.
func (e *Engine) Sync() {
	if !e.mu.TryLock() {
		return
	}
	ok := e.sync.MidiCursorSync(&e.cursor, e.audio, e.readAheadFrames, false)
	e.mu.Unlock()
	if ok {
		e.poke()
	}
}

func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) isPlaying() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.playing
}

func (e *Engine) isRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// monitorSession adapts Engine's Session+AudioClock pair into the
// narrower monitor.Session every Monitor and monitor.SyncReset need.
type monitorSession struct {
	e *Engine
}

func (m monitorSession) PlayHead() uint64                  { return m.e.sess.PlayHead() }
func (m monitorSession) FrameTime() uint64                 { return m.e.audio.FrameTime() }
func (m monitorSession) TickFromFrame(frame uint64) uint64 { return m.e.sess.TickFromFrame(frame) }

// resetControlBus reassigns the input/output control-bus pointers per
// mode: duplex=true restores them from whatever SetControlBuses
// configured, duplex=false nulls both. This mirrors
// qtractorMidiEngine::resetControlBus(BusMode), called with Duplex on
// Activate and None on Deactivate.
func (e *Engine) resetControlBus(duplex bool) {
	if duplex {
		e.controlBusOut = e.configuredControlBusOut
		e.controlBusIn = e.configuredControlBusIn
		return
	}
	e.controlBusOut = nil
	e.controlBusIn = nil
}

func (e *Engine) resetControlBusMonitors() {
	if e.controlBusOut != nil && e.controlBusOut.Bus.OutMonitor != nil {
		e.controlBusOut.Bus.OutMonitor.Reset()
	}
	if e.controlBusIn != nil && e.controlBusIn.Bus.InMonitor != nil {
		e.controlBusIn.Bus.InMonitor.Reset()
	}
}

func (e *Engine) resetAllMonitors() {
	monitor.SyncReset(monitorSession{e}, e.readAheadFrames)
	for _, t := range e.tracksSnapshot() {
		if t.Monitor != nil {
			t.Monitor.Reset()
		}
	}
	e.busesMu.RLock()
	buses := append([]*BusEndpoint(nil), e.buses...)
	e.busesMu.RUnlock()
	for _, ep := range buses {
		if ep.Bus.InMonitor != nil {
			ep.Bus.InMonitor.Reset()
		}
		if ep.Bus.OutMonitor != nil {
			ep.Bus.OutMonitor.Reset()
		}
	}
	e.resetControlBusMonitors()
}

func (e *Engine) resetTempo() {
	micros := uint32(60000000.0 / e.sess.Tempo())
	if err := e.be.SetQueueTempo(e.queue, e.sess.TicksPerBeat(), micros); err != nil {
		e.log.Warn("set queue tempo", "err", err)
	}
}

func (e *Engine) trackForTag(tag uint8, channel uint8) *Track {
	for _, t := range e.tracksSnapshot() {
		if t.MidiTag == tag && t.Channel == channel {
			return t
		}
	}
	return nil
}
