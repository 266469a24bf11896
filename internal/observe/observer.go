package observe

import (
	"context"

	"github.com/parrotlabs/parrot/pkg/sim"
)

// SimObserver bridges session lifecycle callbacks onto the OTel instruments
// in [Metrics]. One instance can be shared across every simulated session.
type SimObserver struct {
	metrics *Metrics
}

var _ sim.Observer = (*SimObserver)(nil)

// NewSimObserver returns an observer recording into m. A nil m uses
// [DefaultMetrics].
func NewSimObserver(m *Metrics) *SimObserver {
	if m == nil {
		m = DefaultMetrics()
	}
	return &SimObserver{metrics: m}
}

func (o *SimObserver) SessionOpened() {
	o.metrics.ActiveSessions.Add(context.Background(), 1)
}

func (o *SimObserver) SessionClosed() {
	o.metrics.ActiveSessions.Add(context.Background(), -1)
}

func (o *SimObserver) TemplateSelected(key string) {
	o.metrics.RecordSelection(context.Background(), key)
}

func (o *SimObserver) ResponseCompleted(t sim.ResponseTiming, status string) {
	o.metrics.RecordResponse(context.Background(), t.TemplateKey, status, t.Duration)
}

func (o *SimObserver) EventSent(eventType string) {
	o.metrics.RecordEventSent(context.Background(), eventType)
}
