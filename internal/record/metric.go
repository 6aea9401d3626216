package record

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Metric is a user metric attached to a run or test case. Exactly one field
// of Measurements is expected to be set.
type Metric struct {
	Measurements   Measurements `json:"measurements"`
	Directionality string       `json:"directionality,omitempty"`
	Type           string       `json:"type,omitempty"`
}

// Measurements holds the metric value. On the wire an empty list stays an
// empty list, and non-finite doubles are the strings "NaN", "Infinity" and
// "-Infinity" as in protojson.
type Measurements struct {
	SingleString  *string   `json:"single_string,omitempty"`
	SingleInt     *int64    `json:"single_int,omitempty"`
	SingleDouble  *float64  `json:"single_double,omitempty"`
	StringValues  []string  `json:"string_values,omitempty"`
	NumericValues []int64   `json:"numeric_values,omitempty"`
	DoubleValues  []float64 `json:"double_values,omitempty"`
}

type measurementsJSON struct {
	SingleString  *string   `json:"single_string,omitempty"`
	SingleInt     *int64    `json:"single_int,omitempty"`
	SingleDouble  *double   `json:"single_double,omitempty"`
	StringValues  *[]string `json:"string_values,omitempty"`
	NumericValues *[]int64  `json:"numeric_values,omitempty"`
	DoubleValues  *[]double `json:"double_values,omitempty"`
}

func (ms Measurements) MarshalJSON() ([]byte, error) {
	out := measurementsJSON{
		SingleString: ms.SingleString,
		SingleInt:    ms.SingleInt,
	}
	if ms.SingleDouble != nil {
		d := double(*ms.SingleDouble)
		out.SingleDouble = &d
	}
	if ms.StringValues != nil {
		out.StringValues = &ms.StringValues
	}
	if ms.NumericValues != nil {
		out.NumericValues = &ms.NumericValues
	}
	if ms.DoubleValues != nil {
		ds := make([]double, len(ms.DoubleValues))
		for i, v := range ms.DoubleValues {
			ds[i] = double(v)
		}
		out.DoubleValues = &ds
	}
	return json.Marshal(out)
}

func (ms *Measurements) UnmarshalJSON(data []byte) error {
	var in measurementsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*ms = Measurements{
		SingleString: in.SingleString,
		SingleInt:    in.SingleInt,
	}
	if in.SingleDouble != nil {
		v := float64(*in.SingleDouble)
		ms.SingleDouble = &v
	}
	if in.StringValues != nil {
		ms.StringValues = *in.StringValues
	}
	if in.NumericValues != nil {
		ms.NumericValues = *in.NumericValues
	}
	if in.DoubleValues != nil {
		ms.DoubleValues = make([]float64, len(*in.DoubleValues))
		for i, v := range *in.DoubleValues {
			ms.DoubleValues[i] = float64(v)
		}
	}
	return nil
}

// double is a float64 whose JSON form can carry NaN and infinities.
type double float64

func (d double) MarshalJSON() ([]byte, error) {
	f := float64(d)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(f)
}

func (d *double) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || data[0] != '"' {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*d = double(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "NaN":
		*d = double(math.NaN())
	case "Infinity":
		*d = double(math.Inf(1))
	case "-Infinity":
		*d = double(math.Inf(-1))
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid double %q", s)
		}
		*d = double(f)
	}
	return nil
}

// IntMetric returns a metric holding a single integer.
func IntMetric(v int64) Metric {
	return Metric{Measurements: Measurements{SingleInt: &v}}
}

// DoubleMetric returns a metric holding a single floating point value.
func DoubleMetric(v float64) Metric {
	return Metric{Measurements: Measurements{SingleDouble: &v}}
}

// StringMetric returns a metric holding a single string.
func StringMetric(v string) Metric {
	return Metric{Measurements: Measurements{SingleString: &v}}
}

// NewMetric converts a decoded YAML/JSON value into a Metric.
// Integral floats are kept as doubles; lists must be homogeneous.
func NewMetric(v any) (Metric, error) {
	switch val := v.(type) {
	case Metric:
		return val.Clone(), nil
	case int:
		return IntMetric(int64(val)), nil
	case int64:
		return IntMetric(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Metric{}, fmt.Errorf("metric value %d overflows int64", val)
		}
		return IntMetric(int64(val)), nil
	case float64:
		return DoubleMetric(val), nil
	case string:
		return StringMetric(val), nil
	case bool:
		return StringMetric(fmt.Sprintf("%t", val)), nil
	case []any:
		return listMetric(val)
	case nil:
		return Metric{}, fmt.Errorf("metric value is null")
	default:
		return Metric{}, fmt.Errorf("unsupported metric value type %T", v)
	}
}

func listMetric(values []any) (Metric, error) {
	if len(values) == 0 {
		return Metric{Measurements: Measurements{NumericValues: []int64{}}}, nil
	}
	switch values[0].(type) {
	case int, int64:
		out := make([]int64, 0, len(values))
		for _, v := range values {
			switch n := v.(type) {
			case int:
				out = append(out, int64(n))
			case int64:
				out = append(out, n)
			default:
				return Metric{}, fmt.Errorf("mixed metric list: %T among integers", v)
			}
		}
		return Metric{Measurements: Measurements{NumericValues: out}}, nil
	case float64:
		out := make([]float64, 0, len(values))
		for _, v := range values {
			f, ok := v.(float64)
			if !ok {
				return Metric{}, fmt.Errorf("mixed metric list: %T among doubles", v)
			}
			out = append(out, f)
		}
		return Metric{Measurements: Measurements{DoubleValues: out}}, nil
	case string:
		out := make([]string, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return Metric{}, fmt.Errorf("mixed metric list: %T among strings", v)
			}
			out = append(out, s)
		}
		return Metric{Measurements: Measurements{StringValues: out}}, nil
	default:
		return Metric{}, fmt.Errorf("unsupported metric list element type %T", values[0])
	}
}

// NewMetrics converts a map of decoded values with NewMetric.
func NewMetrics(values map[string]any) (map[string]Metric, error) {
	out := make(map[string]Metric, len(values))
	for k, v := range values {
		m, err := NewMetric(v)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", k, err)
		}
		out[k] = m
	}
	return out, nil
}

// Value returns the populated measurement as a plain Go value.
func (m Metric) Value() any {
	ms := m.Measurements
	switch {
	case ms.SingleInt != nil:
		return *ms.SingleInt
	case ms.SingleDouble != nil:
		return *ms.SingleDouble
	case ms.SingleString != nil:
		return *ms.SingleString
	case ms.NumericValues != nil:
		return ms.NumericValues
	case ms.DoubleValues != nil:
		return ms.DoubleValues
	case ms.StringValues != nil:
		return ms.StringValues
	}
	return nil
}

// String formats the metric value for display.
func (m Metric) String() string {
	v := m.Value()
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Clone returns a deep copy of m.
func (m Metric) Clone() Metric {
	c := m
	ms := m.Measurements
	if ms.SingleString != nil {
		v := *ms.SingleString
		c.Measurements.SingleString = &v
	}
	if ms.SingleInt != nil {
		v := *ms.SingleInt
		c.Measurements.SingleInt = &v
	}
	if ms.SingleDouble != nil {
		v := *ms.SingleDouble
		c.Measurements.SingleDouble = &v
	}
	c.Measurements.StringValues = slices.Clone(ms.StringValues)
	c.Measurements.NumericValues = slices.Clone(ms.NumericValues)
	c.Measurements.DoubleValues = slices.Clone(ms.DoubleValues)
	return c
}
