package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValueKind tags which payload of a Value is set.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

// Value is an answer as submitted by a learner or declared by a quiz author.
// Only the field selected by Kind is meaningful.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

func ListValue(items ...string) Value {
	list := make([]string, len(items))
	copy(list, items)
	return Value{Kind: KindList, List: list}
}

// IsNone reports whether no answer was given.
func (v Value) IsNone() bool { return v.Kind == KindNone }

// Text returns the canonical string form of a scalar value. Lists are joined with commas.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return formatNumber(v.Num)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, ",")
	default:
		return ""
	}
}

// Items returns the value as a list; scalars become a one-element list.
func (v Value) Items() []string {
	switch v.Kind {
	case KindNone:
		return nil
	case KindList:
		return v.List
	default:
		return []string{v.Text()}
	}
}

// Interface converts the value back to plain Go types for encoding.
func (v Value) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		if v.List == nil {
			return []string{}
		}
		return v.List
	default:
		return nil
	}
}

// ValueOf builds a Value from decoded JSON/YAML data. Unsupported shapes (objects,
// nested lists) become KindNone so they grade as "no answer".
func ValueOf(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case uint64:
		return NumberValue(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return NumberValue(f)
		}
		return StringValue(t.String())
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return StringValue(t.Format(time.DateOnly))
		}
		return StringValue(t.Format(time.RFC3339))
	case []string:
		return ListValue(t...)
	case []any:
		items := make([]string, 0, len(t))
		for _, e := range t {
			item := ValueOf(e)
			switch item.Kind {
			case KindNone, KindList:
				continue
			}
			items = append(items, item.Text())
		}
		return Value{Kind: KindList, List: items}
	default:
		return Value{}
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindNumber && (math.IsNaN(v.Num) || math.IsInf(v.Num, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
