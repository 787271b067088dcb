package fitdb

import "fmt"

// Root is positioned at a resource kind and exposes its collection.
type Root[K Key[K], V any] struct {
	*Collection[K, V]
	res *Resource[K, V]
}

func (r *Root[K, V]) Resource() *Resource[K, V] { return r.res }

// RelationRoot is positioned at the local kind of a relation edge.
type RelationRoot[K Key[K], V any, F Key[F], FV any] struct {
	*Relation[K, V, F, FV]
	edge *RelationEdge[K, V, F, FV]
}

func (r *RelationRoot[K, V, F, FV]) Edge() *RelationEdge[K, V, F, FV] { return r.edge }

// IndexRoot exposes the index of an index edge.
type IndexRoot[K Key[K], V any, F Key[F], FV any] struct {
	*Index[K, F, FV]
	local *Collection[K, V]
	edge  *IndexEdge[K, V, F, FV]
}

func (r *IndexRoot[K, V, F, FV]) Edge() *IndexEdge[K, V, F, FV] { return r.edge }

func (r *IndexRoot[K, V, F, FV]) Local() *Collection[K, V] { return r.local }

func checkDeclared(db *DB, scm *Schema, name string) error {
	if db.schema != scm {
		return fmt.Errorf("fitdb: %s: %w", name, ErrUndeclared)
	}
	return nil
}

// OpenRoot opens the collection of res.
func OpenRoot[K Key[K], V any](db *DB, res *Resource[K, V]) (*Root[K, V], error) {
	if err := checkDeclared(db, res.scm, res.info.Name); err != nil {
		return nil, err
	}
	coll, err := OpenCollection[K, V](db, res.info.Name)
	if err != nil {
		return nil, err
	}
	return &Root[K, V]{Collection: coll, res: res}, nil
}

// Traverse moves from the foreign (owner) kind of edge to its local kind and
// opens the relation between them.
func Traverse[K Key[K], V any, F Key[F], FV any](root *Root[F, FV], edge *RelationEdge[K, V, F, FV]) (*RelationRoot[K, V, F, FV], error) {
	if root.res != edge.foreign {
		return nil, fmt.Errorf("fitdb: %s: traversal from %s: %w", edge.info.Name, root.res.info.Name, ErrUndeclared)
	}
	return openRelationRoot(root.db, root.Collection, edge)
}

// TraverseAt moves along edge from a relation root, starting at key. key must
// currently be visible in root, otherwise ErrForeignKeyConstraint is returned.
func TraverseAt[K Key[K], V any, F Key[F], FV any, B Key[B], BV any](root *RelationRoot[F, FV, B, BV], key F, edge *RelationEdge[K, V, F, FV]) (*RelationRoot[K, V, F, FV], error) {
	if root.edge.local != edge.foreign {
		return nil, fmt.Errorf("fitdb: %s: traversal from %s: %w", edge.info.Name, root.edge.info.Name, ErrUndeclared)
	}
	if err := traversable(root.Relation, key, edge.info.Name); err != nil {
		return nil, err
	}
	return openRelationRoot(root.local.db, root.local, edge)
}

func traversable[K Key[K], V any, F Key[F], FV any](rel *Relation[K, V, F, FV], key K, target string) error {
	ok, err := rel.ContainsKey(key)
	if err != nil {
		return err
	}
	if !ok {
		return collErrf(rel.local.name, rel.index.name, key.AsKey(), ErrForeignKeyConstraint, "cannot traverse to %s", target)
	}
	return nil
}

func openRelationRoot[K Key[K], V any, F Key[F], FV any](db *DB, foreign *Collection[F, FV], edge *RelationEdge[K, V, F, FV]) (*RelationRoot[K, V, F, FV], error) {
	if err := checkDeclared(db, edge.local.scm, edge.info.Name); err != nil {
		return nil, err
	}
	local, err := OpenCollection[K, V](db, edge.local.info.Name)
	if err != nil {
		return nil, err
	}
	rel, err := OpenRelation(db, local, foreign)
	if err != nil {
		return nil, err
	}
	return &RelationRoot[K, V, F, FV]{Relation: rel, edge: edge}, nil
}

// TraverseIndex opens the index of edge from the root of its local kind.
func TraverseIndex[K Key[K], V any, F Key[F], FV any](root *Root[K, V], edge *IndexEdge[K, V, F, FV]) (*IndexRoot[K, V, F, FV], error) {
	if root.res != edge.local {
		return nil, fmt.Errorf("fitdb: %s: traversal from %s: %w", edge.info.Name, root.res.info.Name, ErrUndeclared)
	}
	return openIndexRoot(root.db, root.Collection, edge)
}

// TraverseIndexAt opens the index of edge from a relation root positioned at
// its local kind. key must currently be visible in root.
func TraverseIndexAt[K Key[K], V any, F Key[F], FV any, B Key[B], BV any](root *RelationRoot[K, V, B, BV], key K, edge *IndexEdge[K, V, F, FV]) (*IndexRoot[K, V, F, FV], error) {
	if root.edge.local != edge.local {
		return nil, fmt.Errorf("fitdb: %s: traversal from %s: %w", edge.info.Name, root.edge.info.Name, ErrUndeclared)
	}
	if err := traversable(root.Relation, key, edge.info.Name); err != nil {
		return nil, err
	}
	return openIndexRoot(root.local.db, root.local, edge)
}

func openIndexRoot[K Key[K], V any, F Key[F], FV any](db *DB, local *Collection[K, V], edge *IndexEdge[K, V, F, FV]) (*IndexRoot[K, V, F, FV], error) {
	if err := checkDeclared(db, edge.local.scm, edge.info.Name); err != nil {
		return nil, err
	}
	foreign, err := OpenCollection[F, FV](db, edge.foreign.info.Name)
	if err != nil {
		return nil, err
	}
	idx, err := OpenIndex[K](db, local.name, foreign)
	if err != nil {
		return nil, err
	}
	return &IndexRoot[K, V, F, FV]{Index: idx, local: local, edge: edge}, nil
}
