package model

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
	"gitlab.com/grcflow/grcflow/common/logx"
)

// ErrVarNotFound signifies that a process variable is absent or has the wrong type.
var ErrVarNotFound = errors.New("variable not found")

// Vars manages the opaque process variables blob as a map of key-value pairs.
// The engine stores and transports it without interpreting its contents.
type Vars struct {
	Vals map[string]any
}

// NewVars creates and returns a new instance of Vars.
func NewVars() *Vars {
	return &Vars{
		Vals: make(map[string]any),
	}
}

// Get takes the desired return type as parameter and safely searches the map and returns the value
// if it is found and is of the desired type.
func Get[V any](vars *Vars, key string) (V, error) { //nolint:ireturn
	var v V

	if vars.Vals[key] == nil {
		return v, fmt.Errorf("process var %s found nil", key)
	}

	v, ok := vars.Vals[key].(V)
	if !ok {
		return v, fmt.Errorf("process var %s not present: %w", key, ErrVarNotFound)
	}

	return v, nil
}

// GetString validates that a key has an underlying string value
// and safely returns the result.
func (vars *Vars) GetString(key string) (string, error) {
	v, err := Get[string](vars, key)
	if err != nil {
		return "", fmt.Errorf("getString: %w", err)
	}
	return v, nil
}

// GetInt64 validates that a key has an underlying integer value
// and safely returns the result.
func (vars *Vars) GetInt64(key string) (int64, error) {
	xt, ok := vars.Vals[key]
	if !ok {
		return 0, fmt.Errorf("process var %s not present: %w", key, ErrVarNotFound)
	}
	switch ut := xt.(type) {
	case int8:
		return int64(ut), nil
	case int16:
		return int64(ut), nil
	case int32:
		return int64(ut), nil
	case int64:
		return ut, nil
	case int:
		return int64(ut), nil
	case uint8:
		return int64(ut), nil
	case uint16:
		return int64(ut), nil
	case uint32:
		return int64(ut), nil
	default:
		return 0, fmt.Errorf("process var %s is %s not int64: %w", key, reflect.TypeOf(xt).Name(), ErrVarNotFound)
	}
}

// GetBool validates that a key has an underlying boolean value
// and safely returns the result.
func (vars *Vars) GetBool(key string) (bool, error) {
	v, err := Get[bool](vars, key)
	if err != nil {
		return false, fmt.Errorf("getBool: %w", err)
	}
	return v, nil
}

// GetFloat64 validates that a key has an underlying float value
// and safely returns the result.
func (vars *Vars) GetFloat64(key string) (float64, error) {
	return Get[float64](vars, key)
}

// SetString sets a string value for the specified key in the Vars map.
func (vars *Vars) SetString(key string, value string) {
	vars.Vals[key] = value
}

// SetInt64 sets an int64 value for the specified key in the Vars map.
func (vars *Vars) SetInt64(key string, value int64) {
	vars.Vals[key] = value
}

// SetFloat64 sets a float64 value for the specified key in the Vars map.
func (vars *Vars) SetFloat64(key string, value float64) {
	vars.Vals[key] = value
}

// SetBool sets a boolean value for the specified key in the Vars map.
func (vars *Vars) SetBool(key string, value bool) {
	vars.Vals[key] = value
}

// Encode encodes the map of process variables into a binary blob to be stored or sent across the wire.
func (vars *Vars) Encode(ctx context.Context) ([]byte, error) {
	b, err := msgpack.Marshal(vars.Vals)
	if err != nil {
		return nil, logx.Err(ctx, "encode vars", err, slog.Any("vars", vars))
	}
	return b, nil
}

// Decode decodes a binary blob containing process variables.
func (vars *Vars) Decode(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if err := msgpack.Unmarshal(b, &vars.Vals); err != nil {
		return logx.Err(ctx, "decode vars", err, slog.Any("vars", vars))
	}
	return nil
}

// Keys returns a sequence of all keys present in the Vars map.
func (vars *Vars) Keys() iter.Seq[string] {
	return maps.Keys(vars.Vals)
}

// Len returns the number of key-value pairs in the Vals map.
func (vars *Vars) Len() int {
	return len(vars.Vals)
}
