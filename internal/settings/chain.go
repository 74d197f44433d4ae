package settings

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Chain is the fixed scope chain for one step, ordered most specific
// first. Resolution walks the chain and returns the first defined value;
// a child scope fully replaces a parent value, lists included - compound
// settings are overridden by repeating the whole value, never patched.
//
// The chain is assembled once per step at plan-build time and is read-only
// afterwards.
type Chain struct {
	layers []*Layer
}

// NewChain builds a chain from most specific to least specific layer.
// Nil layers are skipped so callers can pass optional scopes directly.
func NewChain(layers ...*Layer) *Chain {
	c := &Chain{}
	for _, l := range layers {
		if l != nil {
			c.layers = append(c.layers, l)
		}
	}
	return c
}

// Lookup returns the first definition of key in chain order.
func (c *Chain) Lookup(key string) (Value, bool) {
	for _, layer := range c.layers {
		if v, ok := layer.Lookup(key); ok {
			return v, true
		}
	}
	return Value{}, false
}

// Resolve produces the concrete value for key, evaluating a formula value
// against bindings. A key defined in no scope yields *MissingSettingError.
func (c *Chain) Resolve(key string, bindings map[string]cty.Value) (cty.Value, error) {
	v, ok := c.Lookup(key)
	if !ok {
		return cty.NilVal, &MissingSettingError{Key: key, Scopes: c.scopeNames()}
	}
	return v.Resolve(bindings)
}

// ResolveAll resolves every key defined anywhere in the chain, most
// specific definition winning, and returns the concrete parameter set
// handed to the measurement collaborator.
func (c *Chain) ResolveAll(bindings map[string]cty.Value) (map[string]cty.Value, error) {
	resolved := make(map[string]cty.Value)
	for _, key := range c.Keys() {
		val, err := c.Resolve(key, bindings)
		if err != nil {
			return nil, err
		}
		resolved[key] = val
	}
	return resolved, nil
}

// Keys returns the union of keys across all scopes, sorted for
// deterministic resolution and logging order.
func (c *Chain) Keys() []string {
	seen := make(map[string]struct{})
	for _, layer := range c.layers {
		for key := range layer.values {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Number resolves key and converts it to a float64.
func (c *Chain) Number(key string, bindings map[string]cty.Value) (float64, error) {
	val, err := c.Resolve(key, bindings)
	if err != nil {
		return 0, err
	}
	num, convErr := convert.Convert(val, cty.Number)
	if convErr != nil {
		return 0, &TypeError{Key: key, Want: "number", Detail: convErr.Error()}
	}
	f, _ := num.AsBigFloat().Float64()
	return f, nil
}

// Int resolves key as a whole number.
func (c *Chain) Int(key string, bindings map[string]cty.Value) (int, error) {
	f, err := c.Number(key, bindings)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Bool resolves key and converts it to a boolean.
func (c *Chain) Bool(key string, bindings map[string]cty.Value) (bool, error) {
	val, err := c.Resolve(key, bindings)
	if err != nil {
		return false, err
	}
	b, convErr := convert.Convert(val, cty.Bool)
	if convErr != nil {
		return false, &TypeError{Key: key, Want: "bool", Detail: convErr.Error()}
	}
	return b.True(), nil
}

func (c *Chain) scopeNames() []string {
	names := make([]string, 0, len(c.layers))
	for _, layer := range c.layers {
		names = append(names, layer.name)
	}
	return names
}
