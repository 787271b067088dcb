/*
Package fitdb implements typed collections, secondary indices and relations on
top of an ordered key-value store (Bolt by default, LevelDB or memory
optionally).

We implement:

1. Collections, named mappings from typed keys to values marshaled with msgpack.

2. Indices, mapping a local key to the key of an entry in a foreign collection.
An index entry is only visible while the foreign entry exists.

3. Relations, a collection plus an index over the same keys. Inserting requires
a live foreign key; reading requires one too.

4. A schema graph of resources and edges, with typed roots that can only move
along declared edges.

# Technical Details

**Regions.**
Every collection and index lives in its own named region. Bolt stores regions
as top-level buckets. LevelDB has no buckets, so each stored key is prefixed
with the length-prefixed region name. Index regions are named
"<local>/<foreign>".

**Owner prefixes.**
Keys of owned entities start with the key of their owner, so all entities of
one owner sort together. Range scans over an owner use the owner's prefix as
the inclusive lower bound and UpperBound(prefix) as the exclusive upper bound.

**Foreign keys.**
Foreign keys are checked when written and never maintained afterwards.
Removing an owner leaves dependent entries in place; they become invisible
through indices and relations. Relation.PurgeOrphans deletes them on request,
handing each raw entry to Options.Archiver first (see package journal).

## Binary encoding

**Key**: whatever Key.AsKey returns; the layout must stay stable for existing
data to remain readable.

**Value**: flags (uvarint), then the payload.

**Flags**: format version in bits 0-3, compression in bits 4-6 (none, snappy,
zstd, lz4), JSON instead of msgpack in bit 7.

**Index entry**: the local key maps to the raw foreign key.
*/
package fitdb
