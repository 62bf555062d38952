package badger

import (
	"bytes"
	"fmt"
)

// Key prefixes for different data types
const (
	collectionKey = "vcol"
	vectorPrefix  = "vec"
)

// makeNamespacePrefix returns the prefix shared by every vector key of ns.
// The namespace length is part of the prefix so that no namespace is a
// prefix of another.
// Format: vec:len:ns:
func makeNamespacePrefix(namespace string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:", vectorPrefix, len(namespace), namespace))
}

// makeVectorKey generates a key for a vector by namespace and ID.
// Format: vec:len:ns:id
func makeVectorKey(namespace, id string) []byte {
	prefix := makeNamespacePrefix(namespace)
	buf := make([]byte, len(prefix)+len(id))
	offset := copy(buf, prefix)
	copy(buf[offset:], id)
	return buf
}

// vectorIDFromKey strips the namespace prefix from key.
func vectorIDFromKey(key, nsPrefix []byte) string {
	return string(bytes.TrimPrefix(key, nsPrefix))
}
