package fit

import (
	"sort"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optics"
)

type param struct {
	name       string
	def        float64
	hasDefault bool
}

type kind struct {
	params []param
	build  func(v []float64) optics.Element
}

// catalog declares constructor parameters in the order of the optics
// constructors.
var catalog = map[string]kind{
	"FreeSpace": {
		params: []param{{name: "d"}, {name: "n", def: 1, hasDefault: true}},
		build:  func(v []float64) optics.Element { return optics.FreeSpace(v[0], v[1]) },
	},
	"ThinLens": {
		params: []param{{name: "f"}},
		build:  func(v []float64) optics.Element { return optics.ThinLens(v[0]) },
	},
	"FlatInterface": {
		params: []param{{name: "n1"}, {name: "n2"}},
		build:  func(v []float64) optics.Element { return optics.FlatInterface(v[0], v[1]) },
	},
	"CurvedInterface": {
		params: []param{{name: "n1"}, {name: "n2"}, {name: "R"}},
		build:  func(v []float64) optics.Element { return optics.CurvedInterface(v[0], v[1], v[2]) },
	},
	"ThickLens": {
		params: []param{{name: "R1"}, {name: "n"}, {name: "R2"}, {name: "d"}},
		build:  func(v []float64) optics.Element { return optics.ThickLens(v[0], v[1], v[2], v[3]) },
	},
	"PlanoConvexLens": {
		params: []param{{name: "R"}, {name: "d"}, {name: "n"}},
		build:  func(v []float64) optics.Element { return optics.PlanoConvexLens(v[0], v[1], v[2]) },
	},
}

// Kinds lists the catalog element types.
func Kinds() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Template returns a slot for a catalog element type. Parameters present in
// fixed are held at their value; required parameters that are not fixed
// become free, in declaration order. Parameters with a default (the medium
// index of FreeSpace) are never free.
func Template(kindName string, fixed map[string]float64) (*Slot, error) {
	k, ok := catalog[kindName]
	if !ok {
		return nil, errors.Errorf(errors.KindInvalidElementType, "unknown element type %q", kindName).
			WithComponent(component).WithOperation("Template")
	}

	declared := make(map[string]bool, len(k.params))
	for _, p := range k.params {
		declared[p.name] = true
	}
	for name := range fixed {
		if !declared[name] {
			return nil, errors.Errorf(errors.KindConfiguration, "%s has no parameter %q", kindName, name).
				WithComponent(component).WithOperation("Template")
		}
	}

	values := make([]float64, len(k.params))
	var free []string
	var slots []int
	for i, p := range k.params {
		if v, ok := fixed[p.name]; ok {
			values[i] = v
			continue
		}
		if p.hasDefault {
			values[i] = p.def
			continue
		}
		free = append(free, p.name)
		slots = append(slots, i)
	}

	return NewSlot(kindName, free, func(params []float64) (optics.Element, error) {
		v := append([]float64(nil), values...)
		for i, idx := range slots {
			v[idx] = params[i]
		}
		return k.build(v), nil
	}), nil
}

// BuildElement constructs a fully specified catalog element.
func BuildElement(kindName string, params map[string]float64) (optics.Element, error) {
	slot, err := Template(kindName, params)
	if err != nil {
		return nil, err
	}
	if slot.Arity() != 0 {
		return nil, errors.Errorf(errors.KindConfiguration, "%s is missing parameters %v", kindName, slot.Params).
			WithComponent(component).WithOperation("BuildElement")
	}
	return slot.Build(nil)
}

func mustTemplate(kindName string) *Slot {
	s, err := Template(kindName, nil)
	if err != nil {
		panic(err)
	}
	return s
}

// FreeSpace is a slot with a free length.
func FreeSpace() *Slot { return mustTemplate("FreeSpace") }

// ThinLens is a slot with a free focal length.
func ThinLens() *Slot { return mustTemplate("ThinLens") }

// FlatInterface is a slot with free indices n1 and n2.
func FlatInterface() *Slot { return mustTemplate("FlatInterface") }

// CurvedInterface is a slot with free n1, n2 and R.
func CurvedInterface() *Slot { return mustTemplate("CurvedInterface") }

// ThickLens is a slot with free R1, n, R2 and d.
func ThickLens() *Slot { return mustTemplate("ThickLens") }

// PlanoConvexLens is a slot with free R, d and n.
func PlanoConvexLens() *Slot { return mustTemplate("PlanoConvexLens") }
