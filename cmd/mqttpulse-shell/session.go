package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/eventbus"
	"github.com/gsoultan/mqttpulse/pkg/filter"
	"github.com/gsoultan/mqttpulse/pkg/preset"
	"github.com/gsoultan/mqttpulse/pkg/rule"
	"github.com/gsoultan/mqttpulse/pkg/shelltransport"
	"github.com/gsoultan/mqttpulse/pkg/stats"
	"github.com/gsoultan/mqttpulse/pkg/tap"
)

// session holds every piece of shell-local state: the tap transport, the
// active ad-hoc filter, the stats/rule engines (driven by a private event
// bus fed from the mirrored tap stream, not by the daemon's own bus), and
// the preset/history stores backing the `filter`/`history` commands.
type session struct {
	transport shelltransport.Transport
	bus       *eventbus.Bus
	statsEng  *stats.Engine
	rules     *rule.Engine
	presets   *preset.Store
	history   *preset.History

	current      *filter.Filter
	format       string
	historyFile  string
	paused       atomic.Bool
	disconnected atomic.Bool
}

func newSession(transport shelltransport.Transport, format, historyFile string) *session {
	bus := eventbus.New()
	statsEng := stats.NewEngine(60, 1024, 500, 30*time.Second)
	statsEng.AttachBus(bus)

	s := &session{
		transport:   transport,
		bus:         bus,
		statsEng:    statsEng,
		rules:       rule.NewEngine(bus),
		presets:     preset.NewStore(),
		history:     preset.NewHistory(2000),
		format:      format,
		historyFile: historyFile,
	}
	s.rules.AttachBus(context.Background())
	return s
}

// pump drains the transport's frame channel for the lifetime of the
// process, reconstructing a mqttpulse.Message from each mirrored
// WireMessage, running it through the active ad-hoc filter, and — if it
// passes — recording it in history/stats and printing it per the active
// format. The channel closes when the transport's read loop ends, which
// is how a daemon-side disconnect is detected.
func (s *session) pump() {
	for f := range s.transport.Frames() {
		if f.Type != tap.FrameMessage || f.Message == nil {
			continue
		}
		msg := wireToMessage(*f.Message)
		if s.paused.Load() {
			continue
		}
		if s.current != nil {
			fctx := filter.BuildContext(msg)
			if !s.current.Match(fctx) {
				continue
			}
		}
		s.history.Add(msg)

		kind := eventbus.OnReceive
		if msg.Direction == mqttpulse.DirectionOutgoing {
			kind = eventbus.OnPublish
		}
		s.bus.Emit(eventbus.Event{Kind: kind, Message: msg, Pool: msg.Pool})

		fmt.Fprint(os.Stdout, "\r"+renderMessage(msg, s.format)+"\nmqttpulse> ")
	}
	s.disconnected.Store(true)
}

func wireToMessage(wm tap.WireMessage) *mqttpulse.Message {
	return mqttpulse.NewMessage(wm.Type, wm.Direction, wm.Topic, wm.QoS, wm.Payload,
		mqttpulse.WithRetain(wm.Retain),
		mqttpulse.WithDup(wm.Dup),
		mqttpulse.WithPool(wm.Pool),
		mqttpulse.WithTimestamp(wm.Timestamp),
	)
}
