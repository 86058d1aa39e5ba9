// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

// ServiceMap is an immutable, type-indexed association from capability keys
// to values, used to thread dependencies through computations without
// explicit parameter passing.
//
// Adding a binding produces a new map sharing structure with the original
// (O(1) amortized); the original is never mutated, so a ServiceMap may be
// read concurrently without locking. The newest binding for a key wins.
type ServiceMap struct {
	layer *serviceLayer
}

// serviceLayer is one node of the persistent layer chain. A layer holds
// either a single binding (key/value) or a flattened table built when the
// chain grows past flattenDepth.
type serviceLayer struct {
	parent *serviceLayer
	key    any
	value  any
	table  map[any]any
	depth  int
}

const flattenDepth = 8

// NewServiceMap returns an empty ServiceMap. The zero value is also valid.
func NewServiceMap() ServiceMap { return ServiceMap{} }

func (sm ServiceMap) lookup(key any) (any, bool) {
	for l := sm.layer; l != nil; l = l.parent {
		if l.table != nil {
			if v, ok := l.table[key]; ok {
				return v, true
			}
			continue
		}
		if l.key == key {
			return l.value, true
		}
	}
	return nil, false
}

func (sm ServiceMap) add(key, value any) ServiceMap {
	depth := 0
	if sm.layer != nil {
		depth = sm.layer.depth + 1
	}
	if depth < flattenDepth {
		return ServiceMap{layer: &serviceLayer{
			parent: sm.layer,
			key:    key,
			value:  value,
			depth:  depth,
		}}
	}
	// Flatten: walk newest-first keeping the newest binding per key, then
	// apply the incoming binding, which wins unconditionally.
	table := make(map[any]any, depth+1)
	for l := sm.layer; l != nil; l = l.parent {
		if l.table != nil {
			for k, v := range l.table {
				if _, ok := table[k]; !ok {
					table[k] = v
				}
			}
			continue
		}
		if _, ok := table[l.key]; !ok {
			table[l.key] = l.value
		}
	}
	table[key] = value
	return ServiceMap{layer: &serviceLayer{table: table}}
}

// Key identifies a service of type S within a [ServiceMap]. Keys compare by
// identity: two keys created with the same name are distinct.
//
// A Key created via [NewRef] additionally carries a default-value factory,
// so lookups for it never defect.
type Key[S any] struct {
	name      string
	defaultFn func() S
}

// NewKey creates a service key with the given diagnostic name.
func NewKey[S any](name string) *Key[S] {
	if name == "" {
		panic("efx: NewKey requires a non-empty name")
	}
	return &Key[S]{name: name}
}

// NewRef creates a service key carrying a default-value factory. Lookups
// through a Ref key fall back to the factory instead of defecting when the
// key is absent.
func NewRef[S any](name string, defaultFn func() S) *Key[S] {
	if name == "" {
		panic("efx: NewRef requires a non-empty name")
	}
	if defaultFn == nil {
		panic("efx: NewRef requires a default factory")
	}
	return &Key[S]{name: name, defaultFn: defaultFn}
}

// Name returns the key's diagnostic name.
func (k *Key[S]) Name() string { return k.name }

// AddService returns a new map with the binding added. The receiver map is
// unchanged; the newest binding for a key shadows older ones.
func AddService[S any](sm ServiceMap, k *Key[S], value S) ServiceMap {
	return sm.add(k, value)
}

// LookupService returns the bound value and true, or the zero value and
// false when the key is absent and carries no default factory.
func LookupService[S any](sm ServiceMap, k *Key[S]) (S, bool) {
	if v, ok := sm.lookup(k); ok {
		return v.(S), true
	}
	if k.defaultFn != nil {
		return k.defaultFn(), true
	}
	var zero S
	return zero, false
}

// GetService returns the bound value. A missing required key is a defect
// (programming error), not a recoverable failure: GetService panics, and
// the fiber interpreter converts the panic into a Die cause. Keys created
// via [NewRef] fall back to their default factory instead.
func GetService[S any](sm ServiceMap, k *Key[S]) S {
	if v, ok := sm.lookup(k); ok {
		return v.(S)
	}
	if k.defaultFn != nil {
		return k.defaultFn()
	}
	panic("efx: missing service " + k.name)
}
