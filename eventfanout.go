package agentdeck

import (
	"pkt.systems/agentdeck/core"
	"pkt.systems/agentdeck/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnUnifiedEvent(event schema.Event) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnUnifiedEvent(event)
	}
}
