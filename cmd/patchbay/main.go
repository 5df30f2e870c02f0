// Command patchbay is a config-driven MIDI patchbay: it opens the
// backend and buses engineconfig.Config describes and activates the
// transport against an empty session, so buses stay live for
// monitoring and MMC control-bus traffic without any clip/track data
// of their own. A host application embeds engine.Engine with a real
// Session instead of this one.
package main

import (
	"flag"
	"os"
	"os/signal"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/xuxin333/qtractor/engine"
	"github.com/xuxin333/qtractor/engineconfig"
)

// tickInterval is how often the free-running clock advances and pokes
// Engine.Sync, standing in for a real audio callback's period.
const tickInterval = 10 * time.Millisecond

func main() {
	cfgPath := flag.String("config", "patchbay.yaml", "path to the engine config file")
	flag.Parse()

	log := charmlog.NewWithOptions(os.Stdout, charmlog.Options{
		Level:  charmlog.InfoLevel,
		Prefix: "patchbay",
	})

	cfg, err := engineconfig.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	be, err := engineconfig.OpenBackend(cfg, log)
	if err != nil {
		log.Fatal(err)
	}

	sess := &emptySession{tempo: 120, ticksPerBeat: 480, sampleRate: 48000}
	clock := &freeRunningClock{}
	e := engine.New(be, sess, clock, cfg.ReadAheadFrames, log)

	if err := e.Init(cfg.ClientName); err != nil {
		log.Fatal(err)
	}

	var controlEP *engine.BusEndpoint
	for _, busCfg := range cfg.Buses {
		ep, err := e.AddBus(busCfg.Name, busCfg.PortCaps())
		if err != nil {
			log.Fatal("add bus", "name", busCfg.Name, "err", err)
		}
		if busCfg.Control {
			controlEP = ep
		}
	}
	if controlEP != nil {
		e.SetControlBuses(controlEP, controlEP)
	}

	if err := e.Activate(); err != nil {
		log.Fatal(err)
	}
	if err := e.Start(); err != nil {
		log.Fatal(err)
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	framesPerTick := uint64(sess.sampleRate) * uint64(tickInterval) / uint64(time.Second)

	log.Info("running", "config", *cfgPath, "buses", len(cfg.Buses))
	for {
		select {
		case <-stopCh:
			log.Info("interrupt, shutting down")
			e.Stop()
			e.Deactivate()
			if err := e.Clean(); err != nil {
				log.Warn("clean", "err", err)
			}
			return
		case <-ticker.C:
			clock.advance(framesPerTick)
			e.Sync()
		}
	}
}
