package checkpoint

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// MetricKind identifies which field of a Metric holds its value.
type MetricKind int

const (
	// KindNull is a metric that was recorded without a value, e.g. the solve time of an
	// unsolved task.
	KindNull MetricKind = iota
	// KindScalar is a single number.
	KindScalar
	// KindVector is a (possibly nested) numeric array, flattened in row-major order.
	KindVector
	// KindFrontier is a ranked list of solution candidates.
	KindFrontier
	// KindRaw is any other JSON value.
	KindRaw
)

func (k MetricKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindVector:
		return "vector"
	case KindFrontier:
		return "frontier"
	default:
		return "raw"
	}
}

// Metric is a single recognition metric value for a task.
type Metric struct {
	Kind     MetricKind
	Scalar   float64
	Vector   []float64
	Shape    []int
	Frontier *Frontier
	Raw      json.RawMessage
}

// TaskMetrics maps a metric name to its value for one task.
type TaskMetrics map[string]Metric

// Has reports whether the metric was recorded for the task, regardless of its value.
func (m TaskMetrics) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// IsNull reports whether the metric carries no value.
func (m Metric) IsNull() bool {
	return m.Kind == KindNull
}

// ScalarMetric returns a scalar metric.
func ScalarMetric(v float64) Metric {
	return Metric{Kind: KindScalar, Scalar: v}
}

// VectorMetric returns a one-dimensional vector metric.
func VectorMetric(v []float64) Metric {
	return Metric{Kind: KindVector, Vector: v, Shape: []int{len(v)}}
}

// FrontierMetric returns a frontier metric.
func FrontierMetric(f Frontier) Metric {
	return Metric{Kind: KindFrontier, Frontier: &f}
}

// AsVector returns the metric as a vector. Scalars become vectors of length one and frontiers
// are summarized by their expected production uses under g.
func (m Metric) AsVector(g Grammar) ([]float64, error) {
	switch m.Kind {
	case KindScalar:
		return []float64{m.Scalar}, nil
	case KindVector:
		return m.Vector, nil
	case KindFrontier:
		return m.Frontier.ExpectedProductionUses(g), nil
	default:
		return nil, errors.Errorf("%s metric cannot be used as a vector", m.Kind)
	}
}

// MarshalJSON implements json.Marshaler.
func (m Metric) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindScalar:
		return json.Marshal(m.Scalar)
	case KindVector:
		return json.Marshal(m.Vector)
	case KindFrontier:
		return json.Marshal(m.Frontier)
	default:
		return m.Raw, nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metric) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = Metric{Kind: KindNull}
		return nil
	}

	switch trimmed[0] {
	case '[':
		var nested any
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return err
		}
		values, shape, ok := flatten(nested)
		if !ok {
			*m = Metric{Kind: KindRaw, Raw: append(json.RawMessage(nil), trimmed...)}
			return nil
		}
		*m = Metric{Kind: KindVector, Vector: values, Shape: shape}
		return nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return err
		}
		if _, ok := probe["entries"]; ok {
			var f Frontier
			if err := json.Unmarshal(trimmed, &f); err != nil {
				return errors.Wrap(err, "decoding frontier")
			}
			*m = Metric{Kind: KindFrontier, Frontier: &f}
			return nil
		}
	default:
		var v float64
		if err := json.Unmarshal(trimmed, &v); err == nil {
			*m = Metric{Kind: KindScalar, Scalar: v}
			return nil
		}
	}

	*m = Metric{Kind: KindRaw, Raw: append(json.RawMessage(nil), trimmed...)}
	return nil
}

// flatten turns a rectangular nested numeric array into a flat slice and its shape.
func flatten(v any) ([]float64, []int, bool) {
	switch t := v.(type) {
	case float64:
		return []float64{t}, nil, true
	case []any:
		var (
			out   []float64
			inner []int
		)
		for i, e := range t {
			vals, shape, ok := flatten(e)
			if !ok {
				return nil, nil, false
			}
			if i == 0 {
				inner = shape
			} else if !equalShape(inner, shape) {
				return nil, nil, false
			}
			out = append(out, vals...)
		}
		if out == nil {
			out = []float64{}
		}
		return out, append([]int{len(t)}, inner...), true
	default:
		return nil, nil, false
	}
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
