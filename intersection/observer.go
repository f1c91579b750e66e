package intersection

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-logr/logr"

	"crossroads/lane"
	"crossroads/logging"
	"crossroads/traffic"
)

// Observer is notified of simulation events. Implementations are called from
// several worker goroutines at once and must be safe for concurrent use.
type Observer interface {
	// OnArrive is called after a car has been pushed onto its lane.
	OnArrive(car traffic.Car)

	// OnCross is called once per car, in crossing order, while the car's
	// quadrant locks are held.
	OnCross(car traffic.Car, path traffic.QuadrantSet)

	// OnQuadrantContended is called when a crossing worker has to wait for
	// a quadrant held by another worker.
	OnQuadrantContended(q traffic.Quadrant)

	// OnLaneDrained is called when every expected car of a lane has crossed.
	OnLaneDrained(stats lane.Stats)
}

// BaseObserver provides no-op implementations of every Observer method.
type BaseObserver struct{}

func (BaseObserver) OnArrive(traffic.Car) {}

func (BaseObserver) OnCross(traffic.Car, traffic.QuadrantSet) {}

func (BaseObserver) OnQuadrantContended(traffic.Quadrant) {}

func (BaseObserver) OnLaneDrained(lane.Stats) {}

// observers fans events out to every registered observer.
type observers []Observer

func (obs observers) OnArrive(car traffic.Car) {
	for _, o := range obs {
		o.OnArrive(car)
	}
}

func (obs observers) OnCross(car traffic.Car, path traffic.QuadrantSet) {
	for _, o := range obs {
		o.OnCross(car, path)
	}
}

func (obs observers) OnQuadrantContended(q traffic.Quadrant) {
	for _, o := range obs {
		o.OnQuadrantContended(q)
	}
}

func (obs observers) OnLaneDrained(stats lane.Stats) {
	for _, o := range obs {
		o.OnLaneDrained(stats)
	}
}

// FormatRecord renders the crossing record of a car: entry ordinal, exit
// ordinal and id separated by single spaces.
func FormatRecord(car traffic.Car) string {
	return fmt.Sprintf("%d %d %d", int(car.Entry), int(car.Exit), car.ID)
}

// RecordWriter writes one crossing record per line.
type RecordWriter struct {
	BaseObserver

	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewRecordWriter returns an observer writing crossing records to w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: w}
}

func (r *RecordWriter) OnCross(car traffic.Car, _ traffic.QuadrantSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}
	_, r.err = io.WriteString(r.w, FormatRecord(car)+"\n")
}

// Err returns the first write error, if any.
func (r *RecordWriter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// traceObserver logs crossings and drained lanes.
type traceObserver struct {
	BaseObserver
	logger logr.Logger
}

func (o traceObserver) OnCross(car traffic.Car, path traffic.QuadrantSet) {
	o.logger.V(logging.TRACE).Info("Car crossed", "id", car.ID, "entry", car.Entry.String(),
		"exit", car.Exit.String(), "turn", car.Turn().String(), "quadrants", path.String())
}

func (o traceObserver) OnLaneDrained(stats lane.Stats) {
	o.logger.V(logging.DEBUG).Info("Lane drained", "lane", stats.Direction.String(),
		"passed", stats.Passed, "maxOccupancy", stats.MaxOccupancy,
		"pushWaits", stats.PushWaits, "popWaits", stats.PopWaits)
}
