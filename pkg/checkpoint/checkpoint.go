package checkpoint

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// ErrNoTaskMetrics is returned when a checkpoint carries no recognitionTaskMetrics mapping.
var ErrNoTaskMetrics = errors.New("no recognitionTaskMetrics found")

// EnumerationTimeoutParam is the training parameter that bounds a task's solve time.
const EnumerationTimeoutParam = "enumerationTimeout"

// Task describes a synthesis task as recorded by the training run.
type Task struct {
	Type     string            `json:"type"`
	Examples []json.RawMessage `json:"examples"`
}

// Checkpoint is a snapshot of a training run. It is never mutated after decoding.
type Checkpoint struct {
	Domain                 string                 `json:"domain,omitempty"`
	Iterations             *int                   `json:"iterations,omitempty"`
	Parameters             map[string]any         `json:"parameters,omitempty"`
	RecognitionTaskMetrics map[string]TaskMetrics `json:"recognitionTaskMetrics"`
	TaskSolutions          map[string]Frontier    `json:"taskSolutions,omitempty"`
	Grammars               []Grammar              `json:"grammars,omitempty"`
	Tasks                  map[string]Task        `json:"tasks,omitempty"`
}

// Decode reads a checkpoint document. Gzip-compressed documents are detected by their magic
// bytes.
func Decode(r io.Reader) (*Checkpoint, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "reading checkpoint header")
	}

	var src io.Reader = br
	if bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "opening gzip checkpoint")
		}
		defer func() {
			_ = gz.Close()
		}()
		src = gz
	}

	var ckpt Checkpoint
	if err := json.NewDecoder(src).Decode(&ckpt); err != nil {
		return nil, errors.Wrap(err, "decoding checkpoint")
	}
	if ckpt.RecognitionTaskMetrics == nil {
		return nil, ErrNoTaskMetrics
	}
	return &ckpt, nil
}

// EnumerationTimeout returns the enumeration timeout the run was trained with.
func (c *Checkpoint) EnumerationTimeout() (float64, bool) {
	v, ok := c.Parameters[EnumerationTimeoutParam]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// LastGrammar returns the most recent grammar, or an empty grammar if none was recorded.
func (c *Checkpoint) LastGrammar() Grammar {
	if len(c.Grammars) == 0 {
		return Grammar{}
	}
	return c.Grammars[len(c.Grammars)-1]
}

// SortedTasks returns the task names of the metrics mapping sorted by display name.
func (c *Checkpoint) SortedTasks() []string {
	return SortTasks(maps.Keys(c.RecognitionTaskMetrics))
}

// SolvedTrainingTasks returns the training tasks with at least one solution.
func (c *Checkpoint) SolvedTrainingTasks() []string {
	var solved []string
	for name, f := range c.TaskSolutions {
		if !f.Empty() {
			solved = append(solved, name)
		}
	}
	return SortTasks(solved)
}

// SortTasks sorts task names by their display name, in place, and returns them.
func SortTasks(names []string) []string {
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(FormattedName(a), FormattedName(b))
	})
	return names
}

// MetricValues collects the non-null values of a metric in display order. Tasks that never
// recorded the metric, or recorded it without a value, are skipped.
func (c *Checkpoint) MetricValues(metric string) (names []string, values []Metric) {
	for _, task := range c.SortedTasks() {
		m, ok := c.RecognitionTaskMetrics[task][metric]
		if !ok || m.IsNull() {
			continue
		}
		names = append(names, task)
		values = append(values, m)
	}
	return names, values
}
