package fitdb

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

// Schema declares the resource kinds stored in a database and the edges that
// connect them. Declarations happen at package init time; a schema is frozen
// once a database is opened with it.
type Schema struct {
	resources       []*ResourceInfo
	resourcesByName map[string]*ResourceInfo
	edges           []*EdgeInfo
	edgesByName     map[string]*EdgeInfo
	frozen          atomic.Bool
}

func NewSchema() *Schema {
	return &Schema{
		resourcesByName: make(map[string]*ResourceInfo),
		edgesByName:     make(map[string]*EdgeInfo),
	}
}

type ResourceInfo struct {
	Name      string
	KeyType   reflect.Type
	ValueType reflect.Type
}

type EdgeKind int

const (
	RelationEdgeKind EdgeKind = iota
	IndexEdgeKind
)

func (k EdgeKind) String() string {
	switch k {
	case RelationEdgeKind:
		return "relation"
	case IndexEdgeKind:
		return "index"
	default:
		return fmt.Sprintf("edge(%d)", int(k))
	}
}

// EdgeInfo describes a declared edge. Its region is named after it:
// "<local>/<foreign>".
type EdgeInfo struct {
	Name    string
	Kind    EdgeKind
	Local   *ResourceInfo
	Foreign *ResourceInfo
}

func (scm *Schema) Resources() []*ResourceInfo {
	return append([]*ResourceInfo(nil), scm.resources...)
}

func (scm *Schema) Edges() []*EdgeInfo {
	return append([]*EdgeInfo(nil), scm.edges...)
}

func (scm *Schema) ResourceNamed(name string) *ResourceInfo {
	return scm.resourcesByName[name]
}

func (scm *Schema) EdgeNamed(name string) *EdgeInfo {
	return scm.edgesByName[name]
}

func (scm *Schema) regionNames() []string {
	names := make([]string, 0, len(scm.resources)+len(scm.edges))
	for _, r := range scm.resources {
		names = append(names, r.Name)
	}
	for _, e := range scm.edges {
		names = append(names, e.Name)
	}
	return names
}

func (scm *Schema) freeze() {
	scm.frozen.Store(true)
}

func (scm *Schema) mustBeOpen(what string) {
	if scm.frozen.Load() {
		panic(fmt.Errorf("%s: schema is already in use by an open database", what))
	}
}

// Resource is a declared resource kind: a named collection with key type K
// and value type V.
type Resource[K Key[K], V any] struct {
	scm  *Schema
	info *ResourceInfo
}

func (res *Resource[K, V]) Name() string { return res.info.Name }

func (res *Resource[K, V]) String() string { return res.info.Name }

// AddResource declares a resource kind. It panics if the name is empty,
// contains a slash or is already taken.
func AddResource[K Key[K], V any](scm *Schema, name string) *Resource[K, V] {
	scm.mustBeOpen(name)
	if name == "" || strings.Contains(name, "/") {
		panic(fmt.Errorf("invalid resource name %q", name))
	}
	if scm.resourcesByName[name] != nil {
		panic(fmt.Errorf("resource %s already declared", name))
	}
	info := &ResourceInfo{
		Name:      name,
		KeyType:   reflect.TypeOf((*K)(nil)).Elem(),
		ValueType: reflect.TypeOf((*V)(nil)).Elem(),
	}
	scm.resources = append(scm.resources, info)
	scm.resourcesByName[name] = info
	return &Resource[K, V]{scm: scm, info: info}
}

func addEdge(scm *Schema, kind EdgeKind, local, foreign *ResourceInfo, foreignScm *Schema) *EdgeInfo {
	name := edgeName(local.Name, foreign.Name)
	scm.mustBeOpen(name)
	if scm != foreignScm {
		panic(fmt.Errorf("%s: resources belong to different schemas", name))
	}
	if scm.edgesByName[name] != nil {
		panic(fmt.Errorf("edge %s already declared", name))
	}
	e := &EdgeInfo{Name: name, Kind: kind, Local: local, Foreign: foreign}
	scm.edges = append(scm.edges, e)
	scm.edgesByName[name] = e
	return e
}

// RelationEdge declares that entries of the local kind belong to entries of
// the foreign kind through a Relation.
type RelationEdge[K Key[K], V any, F Key[F], FV any] struct {
	local   *Resource[K, V]
	foreign *Resource[F, FV]
	info    *EdgeInfo
}

func (e *RelationEdge[K, V, F, FV]) Name() string { return e.info.Name }

func AddRelationEdge[K Key[K], V any, F Key[F], FV any](local *Resource[K, V], foreign *Resource[F, FV]) *RelationEdge[K, V, F, FV] {
	info := addEdge(local.scm, RelationEdgeKind, local.info, foreign.info, foreign.scm)
	return &RelationEdge[K, V, F, FV]{local: local, foreign: foreign, info: info}
}

// IndexEdge declares that entries of the local kind may link to entries of
// the foreign kind through an Index.
type IndexEdge[K Key[K], V any, F Key[F], FV any] struct {
	local   *Resource[K, V]
	foreign *Resource[F, FV]
	info    *EdgeInfo
}

func (e *IndexEdge[K, V, F, FV]) Name() string { return e.info.Name }

func AddIndexEdge[K Key[K], V any, F Key[F], FV any](local *Resource[K, V], foreign *Resource[F, FV]) *IndexEdge[K, V, F, FV] {
	info := addEdge(local.scm, IndexEdgeKind, local.info, foreign.info, foreign.scm)
	return &IndexEdge[K, V, F, FV]{local: local, foreign: foreign, info: info}
}
