// Package uploader signs, tags, and uploads archive artifacts to the
// content-addressed storage network, grounded on uploader.rs's
// Uploader::upload_crawl_files/upload_to_bundlr.
package uploader

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
)

// renderWithID is the constant renderer identifier every upload is
// tagged with, identifying the bundling service that produced the item.
const renderWithID = "m2s7Wam0E6PGuKcLHRkFQXo9ou4ASsEtdutlFKqbge8"

// Tag is one key/value pair attached to a data item.
type Tag struct {
	Name  string
	Value string
}

// DataItem is the signed, tagged payload uploaded to the storage
// network. There is no Arweave/Bundlr SDK anywhere in the example pack
// to construct a real signed data item, so the "signature" here is a
// content-addressed digest of the serialized envelope: deterministic,
// computable before any byte is sent over the wire (preserving the
// "identifier computed before any chunk is sent" requirement), but not a
// real cryptographic signature over a wallet key. See DESIGN.md.
type DataItem struct {
	Payload []byte
	Tags    []Tag
}

// Serialize renders the data item as a length-prefixed tag block
// followed by the raw payload. The exact envelope format is this
// worker's own concern, not part of the storage network's wire
// contract; it only needs to be stable and to report a size for the
// small/chunked path decision.
func (d DataItem) Serialize() []byte {
	var buf bytes.Buffer

	var tagCount [4]byte
	binary.BigEndian.PutUint32(tagCount[:], uint32(len(d.Tags)))
	buf.Write(tagCount[:])

	for _, t := range d.Tags {
		writeLengthPrefixed(&buf, []byte(t.Name))
		writeLengthPrefixed(&buf, []byte(t.Value))
	}

	writeLengthPrefixed(&buf, d.Payload)

	return buf.Bytes()
}

func writeLengthPrefixed(buf *bytes.Buffer, b []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	buf.Write(length[:])
	buf.Write(b)
}

// Identifier returns the base64url-encoded SHA-256 digest of the item's
// serialized form — this implementation's stand-in for "a hash of its
// signature".
func (d DataItem) Identifier() string {
	sum := sha256.Sum256(d.Serialize())
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:])
}
