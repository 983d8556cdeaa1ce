// Package report collects the numeric outcomes of an analysis run and exports them.
package report

import (
	"math"
	"sort"
	"strconv"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Analysis names used in observations.
const (
	TaskTimes  = "task_times"
	Clustering = "clustering"
	Similarity = "similarity"
)

// Observation is one number produced by an analysis.
type Observation struct {
	Analysis   string
	Name       string
	Experiment string
	Checkpoint string
	Metric     string
	Split      string
	Iteration  int
	Value      float64
}

// Report is the set of observations of one run.
type Report struct {
	RunID        uuid.UUID
	RunName      string
	Observations []Observation
}

// New returns an empty report with a fresh run id and a readable run name.
func New() *Report {
	return &Report{
		RunID:   uuid.New(),
		RunName: petname.Generate(2, "-"),
	}
}

// Add records an observation. A nil report drops it.
func (r *Report) Add(o Observation) {
	if r == nil {
		return
	}
	r.Observations = append(r.Observations, o)
}

// Len is the number of observations.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Observations)
}

var labelNames = []string{"experiment", "checkpoint", "metric", "split", "iteration"}

// WriteTextfile writes the observations in the Prometheus text format, one gauge family per
// analysis and observation name.
func (r *Report) WriteTextfile(path string) error {
	reg, err := r.registry()
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", path)
	}
	return nil
}

func (r *Report) registry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskrank",
		Name:      "run_info",
		Help:      "Identifies the analysis run.",
	}, []string{"run_id", "run_name"})
	info.WithLabelValues(r.RunID.String(), r.RunName).Set(1)
	if err := reg.Register(info); err != nil {
		return nil, errors.Wrap(err, "registering run info")
	}

	gauges := make(map[string]*prometheus.GaugeVec)
	for _, o := range r.Observations {
		name := metricName(o.Analysis, o.Name)
		g, ok := gauges[name]
		if !ok {
			g = prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "taskrank",
				Name:      name,
				Help:      "Observed " + strings.ReplaceAll(name, "_", " ") + ".",
			}, labelNames)
			if err := reg.Register(g); err != nil {
				return nil, errors.Wrapf(err, "registering %s", name)
			}
			gauges[name] = g
		}
		g.WithLabelValues(
			o.Experiment, o.Checkpoint, o.Metric, o.Split, strconv.Itoa(o.Iteration),
		).Set(o.Value)
	}
	return reg, nil
}

// metricName joins and sanitizes parts into a Prometheus metric name.
func metricName(parts ...string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('_')
		}
		for _, c := range p {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
				b.WriteRune(c)
			default:
				b.WriteByte('_')
			}
		}
	}
	return b.String()
}

// Names returns the distinct observation names of an analysis, sorted.
func (r *Report) Names(analysis string) []string {
	seen := make(map[string]bool)
	for _, o := range r.Observations {
		if o.Analysis == analysis {
			seen[o.Name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Finite reports whether v can be stored as a number.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
