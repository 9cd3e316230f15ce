// Package qpack implements the qpack binary serialization format.
//
// Every value starts with a single tag byte. Small integers, short raw
// strings, the doubles -1.0, 0.0 and 1.0 and containers of up to five
// items are described by the tag alone. Everything else carries a
// little-endian payload after the tag.
//
// Ownership boundary:
// - Packer owns its buffer until Take hands it to a new owner.
// - Unpacker either borrows the caller's bytes or owns a private copy.
// - Objects returned by Unpacker.Next borrow from the unpacker source and
//   are overwritten by the following Next call; use CopyNext or Clone to
//   keep one.
package qpack
