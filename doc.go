/*
Package colshm stores columnar tables in a named shared-memory region so that
several processes can read them without copying or re-parsing.

A table is a set of equal-length typed columns plus a label. Three column
types are supported: Int64, Float64 and Utf8.

We implement:

1. A codec that serializes a table into a single self-describing byte buffer
and decodes it back, fully, partially (first n rows) or selectively (only some
columns).

2. In-place mutation of numeric columns inside an encoded buffer.

3. Regions: a fixed-capacity arena file, mapped shared by every process that
opens it, with a bump allocator and a persisted directory of table offsets.

4. Group-by-sum over two decoded columns, via a pluggable Aggregator.

# Binary format

All integers are little-endian.

	string  = length:uint32 bytes
	table   = label:string column_count:uint32 block*
	block   = name:string dtype:uint8 count:uint32 element*count
	element = int64 | float64 | string

Int64 and Float64 elements occupy exactly 8 bytes, so a numeric column's values
can be rewritten in place. Utf8 elements are length-prefixed and variable
size. Tags are 0 for Int64, 1 for Float64 and 2 for Utf8.

Readers walk the blocks once to build a Layout: the offset of every block, its
count field and its element data. Nothing else needs to know the byte distance
between a column name and its count.

# Regions

A region called NAME lives in Options.Dir (by default /dev/shm) as three files:

	NAME       the arena, Capacity bytes, zero-filled on creation
	NAME.lock  advisory lock held while creating the arena or adding a table
	NAME.dir   the directory: table names, offsets, and the allocation cursor

Tables are immutable in shape once added. Their numeric values can still be
changed through Region.MapNumericColumn, and those changes are visible to every
attached process.
*/
package colshm
