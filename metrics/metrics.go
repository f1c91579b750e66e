// Package metrics exposes Prometheus collectors for the intersection.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"crossroads/lane"
	"crossroads/traffic"
)

const (
	Namespace             = "crossroads"
	IntersectionComponent = "intersection"
	LaneComponent         = "lane"
)

var (
	LaneLabels     = []string{"lane"}
	CrossingLabels = []string{"entry", "exit", "turn"}
	QuadrantLabels = []string{"quadrant"}
	WaitLabels     = []string{"lane", "side"}
)

// Observer records simulation events into Prometheus collectors. It satisfies
// intersection.Observer.
type Observer struct {
	arrivals     *prometheus.CounterVec
	crossings    *prometheus.CounterVec
	pathLength   prometheus.Histogram
	contention   *prometheus.CounterVec
	laneWaits    *prometheus.CounterVec
	maxOccupancy *prometheus.GaugeVec
}

// New creates the collectors; register them with MustRegister.
func New() *Observer {
	return &Observer{
		arrivals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: LaneComponent,
				Name:      "arrivals_total",
				Help:      "Counter of cars pushed onto each lane.",
			},
			LaneLabels,
		),
		crossings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: IntersectionComponent,
				Name:      "crossings_total",
				Help:      "Counter of cars that crossed, broken out by entry, exit and turn.",
			},
			CrossingLabels,
		),
		pathLength: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: IntersectionComponent,
				Name:      "path_quadrants",
				Help:      "Distribution of the number of quadrants locked per crossing.",
				Buckets:   []float64{1, 2, 3, 4},
			},
		),
		contention: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: IntersectionComponent,
				Name:      "quadrant_contended_total",
				Help:      "Counter of quadrant acquisitions that had to wait for another crossing.",
			},
			QuadrantLabels,
		),
		laneWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: LaneComponent,
				Name:      "waits_total",
				Help:      "Counter of pushes that found the lane full (side=arrival) and pops that found it empty (side=crossing).",
			},
			WaitLabels,
		),
		maxOccupancy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: LaneComponent,
				Name:      "max_occupancy",
				Help:      "Highest number of cars waiting in each lane at once.",
			},
			LaneLabels,
		),
	}
}

// Collectors returns every collector of the observer.
func (o *Observer) Collectors() []prometheus.Collector {
	return []prometheus.Collector{o.arrivals, o.crossings, o.pathLength, o.contention, o.laneWaits, o.maxOccupancy}
}

// MustRegister registers the collectors with r and panics on conflict.
func (o *Observer) MustRegister(r prometheus.Registerer) {
	r.MustRegister(o.Collectors()...)
}

func (o *Observer) OnArrive(car traffic.Car) {
	o.arrivals.WithLabelValues(car.Entry.String()).Inc()
}

func (o *Observer) OnCross(car traffic.Car, path traffic.QuadrantSet) {
	o.crossings.WithLabelValues(car.Entry.String(), car.Exit.String(), car.Turn().String()).Inc()
	o.pathLength.Observe(float64(path.Len()))
}

func (o *Observer) OnQuadrantContended(q traffic.Quadrant) {
	o.contention.WithLabelValues(strconv.Itoa(int(q))).Inc()
}

func (o *Observer) OnLaneDrained(stats lane.Stats) {
	d := stats.Direction.String()
	o.laneWaits.WithLabelValues(d, "arrival").Add(float64(stats.PushWaits))
	o.laneWaits.WithLabelValues(d, "crossing").Add(float64(stats.PopWaits))
	o.maxOccupancy.WithLabelValues(d).Set(float64(stats.MaxOccupancy))
}
