package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"time"

	"github.com/pkg/errors"
)

// Values having no native JSON representation are encoded as single-key
// objects tagged by one of these keys.
const (
	bytesTag = "$bytes" // Base64 of a []byte, which SQLite binds as BLOB.
	timeTag  = "$time"  // RFC3339Nano of a time.Time.
)

// EncodeArgs encodes positional arguments for transmission. An empty argument
// list encodes as nil. []byte and time.Time arguments are encoded in their
// tagged form (see EncodeValue).
func EncodeArgs(args ...interface{}) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	var b, err = json.Marshal(EncodeValue(args))
	if err != nil {
		return nil, errors.WithMessage(err, "encoding arguments")
	}
	return b, nil
}

// DecodeArgs decodes positional arguments previously encoded by EncodeArgs.
// Values are normalized by NormalizeValue.
func DecodeArgs(raw json.RawMessage) ([]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var args []interface{}
	if err := DecodeValue(raw, &args); err != nil {
		return nil, errors.WithMessage(err, "decoding arguments")
	}
	for i := range args {
		args[i] = NormalizeValue(args[i])
	}
	return args, nil
}

// DecodeValue unmarshals |raw| into |out|, preserving numbers as json.Number
// where |out| holds untyped values.
func DecodeValue(raw json.RawMessage, out interface{}) error {
	var dec = json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// EncodeValue maps |v| into a form which encodes to JSON without loss:
// []byte becomes {"$bytes": "<base64>"} and time.Time becomes
// {"$time": "<RFC3339Nano>"}. Maps with string keys and slices are walked
// and copied. Other values, including json.Marshalers and structs, are
// returned as-is.
func EncodeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case nil:
		return nil
	case []byte:
		return map[string]interface{}{bytesTag: base64.StdEncoding.EncodeToString(vv)}
	case time.Time:
		return map[string]interface{}{timeTag: vv.Format(time.RFC3339Nano)}
	case json.Marshaler:
		return v
	}

	var rv = reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return v
		}
		var out = make(map[string]interface{}, rv.Len())
		for it := rv.MapRange(); it.Next(); {
			out[it.Key().String()] = EncodeValue(it.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		var out = make([]interface{}, rv.Len())
		for i := range out {
			out[i] = EncodeValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// NormalizeValue converts json.Number instances of a decoded value into
// int64 (when integral) or float64, and restores tagged values produced
// by EncodeValue, recursing through slices and maps. SQLite binds all of
// these natively.
func NormalizeValue(v interface{}) interface{} {
	return restoreValue(v, true)
}

func restoreValue(v interface{}, numbers bool) interface{} {
	switch vv := v.(type) {
	case json.Number:
		if !numbers {
			return vv
		} else if i, err := vv.Int64(); err == nil {
			return i
		} else if f, err := vv.Float64(); err == nil {
			return f
		}
		return vv.String()
	case []interface{}:
		for i := range vv {
			vv[i] = restoreValue(vv[i], numbers)
		}
		return vv
	case map[string]interface{}:
		if tagged, ok := restoreTagged(vv); ok {
			return tagged
		}
		for k := range vv {
			vv[k] = restoreValue(vv[k], numbers)
		}
		return vv
	default:
		return v
	}
}

// restoreTagged returns the value of a single-key tagged object, or false
// if |m| is not one.
func restoreTagged(m map[string]interface{}) (interface{}, bool) {
	if len(m) != 1 {
		return nil, false
	}
	if s, ok := m[bytesTag].(string); ok {
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return b, true
		}
	} else if s, ok := m[timeTag].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
	}
	return nil, false
}

// hasTags is a cheap test of whether |raw| may hold tagged values.
func hasTags(raw json.RawMessage) bool {
	return bytes.Contains(raw, []byte(`"`+bytesTag+`"`)) || bytes.Contains(raw, []byte(`"`+timeTag+`"`))
}

// convertUntyped returns |v|, a NormalizeValue'd decoding, as a value of type
// |t|. Only untyped targets are supported: interface{}, and maps with string
// keys or slices whose elements are themselves untyped targets (such as
// map[string]interface{} or a named type thereof). False is returned for
// other targets, or if |v| has an incompatible shape.
func convertUntyped(v interface{}, t reflect.Type) (reflect.Value, bool) {
	switch {
	case t.Kind() == reflect.Interface && t.NumMethod() == 0:
		if v == nil {
			return reflect.Zero(t), true
		}
		return reflect.ValueOf(v), true
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		if v == nil {
			return reflect.Zero(t), true
		}
		var m, ok = v.(map[string]interface{})
		if !ok {
			return reflect.Value{}, false
		}
		var out = reflect.MakeMapWithSize(t, len(m))
		for k, vv := range m {
			var ev, ok = convertUntyped(vv, t.Elem())
			if !ok {
				return reflect.Value{}, false
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		return out, true
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8:
		if v == nil {
			return reflect.Zero(t), true
		}
		var s, ok = v.([]interface{})
		if !ok {
			return reflect.Value{}, false
		}
		var out = reflect.MakeSlice(t, len(s), len(s))
		for i := range s {
			var ev, ok = convertUntyped(s[i], t.Elem())
			if !ok {
				return reflect.Value{}, false
			}
			out.Index(i).Set(ev)
		}
		return out, true
	}
	return reflect.Value{}, false
}
