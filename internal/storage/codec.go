package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/LuKks/protobee/internal/core/domain"
)

// Key layout:
//
//	m/header          header block, committed at ts 1
//	m/version         last published version
//	d/<ns 0x00><key>  current node, committed at ts seq+1
//	h/<seq be64>      history entry, committed at ts seq+1
const (
	dataPrefix    = "d/"
	historyPrefix = "h/"
	headerKey     = "m/header"
	versionKey    = "m/version"

	nsSeparator = "\x00"
)

const (
	recordPut byte = 1
	recordDel byte = 2
)

var errCorruptRecord = errors.New("storage: corrupt record")

var nullValue = json.RawMessage("null")

func nsPrefix(ns string) string {
	if ns == "" {
		return ""
	}
	return ns + nsSeparator
}

// userKey joins a namespace and a key into the stored key.
func userKey(ns, key string) string {
	return nsPrefix(ns) + key
}

func dataKey(ukey string) []byte {
	return []byte(dataPrefix + ukey)
}

func historyKey(seq uint64) []byte {
	b := make([]byte, len(historyPrefix)+8)
	copy(b, historyPrefix)
	binary.BigEndian.PutUint64(b[len(historyPrefix):], seq)
	return b
}

func historySeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(historyPrefix):])
}

// encodeNode stores seq followed by the raw value.
func encodeNode(seq uint64, value []byte) []byte {
	b := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(b, seq)
	copy(b[8:], value)
	return b
}

func decodeNode(key string, rec []byte) (*domain.Node, error) {
	if len(rec) < 8 {
		return nil, errCorruptRecord
	}
	return &domain.Node{
		Seq:   binary.BigEndian.Uint64(rec),
		Key:   key,
		Value: json.RawMessage(bytes.Clone(rec[8:])),
	}, nil
}

// encodeHistory stores type, key length, key and value.
func encodeHistory(typ byte, ukey string, value []byte) []byte {
	b := make([]byte, 0, 1+binary.MaxVarintLen64+len(ukey)+len(value))
	b = append(b, typ)
	b = binary.AppendUvarint(b, uint64(len(ukey)))
	b = append(b, ukey...)
	return append(b, value...)
}

func decodeHistory(seq uint64, rec []byte) (typ byte, ukey string, value []byte, err error) {
	if len(rec) < 2 {
		return 0, "", nil, errCorruptRecord
	}
	typ = rec[0]
	n, w := binary.Uvarint(rec[1:])
	if w <= 0 || uint64(len(rec)-1-w) < n {
		return 0, "", nil, fmt.Errorf("%w: history seq %d", errCorruptRecord, seq)
	}
	start := 1 + w
	ukey = string(rec[start : start+int(n)])
	value = bytes.Clone(rec[start+int(n):])
	return typ, ukey, value, nil
}

// stripNamespace returns the key inside ns, or false when ukey belongs elsewhere.
func stripNamespace(ns, ukey string) (string, bool) {
	if ns == "" {
		return ukey, true
	}
	p := nsPrefix(ns)
	if !strings.HasPrefix(ukey, p) {
		return "", false
	}
	return ukey[len(p):], true
}

// normalizeValue turns an absent value into JSON null and rejects invalid JSON.
func normalizeValue(value json.RawMessage) (json.RawMessage, error) {
	if len(value) == 0 {
		return nullValue, nil
	}
	if !json.Valid(value) {
		return nil, domain.ErrInvalidRequest.WithDetails("value is not valid JSON")
	}
	return value, nil
}

// sameValue reports structural equality of two JSON documents.
func sameValue(a, b json.RawMessage) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return cmp.Equal(va, vb)
}
