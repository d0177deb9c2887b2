package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// GenesisHash anchors the first entry of the audit chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ChainHash computes an entry's logHash over its identifying fields plus the
// previous entry's hash. The payload is canonical JSON with sorted keys so the
// hash is stable across serializations.
func ChainHash(e AuditEntry) string {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeKV(buf, "action", string(e.Action), false)
	writeKV(buf, "actor_id", e.ActorID, false)
	writeKV(buf, "log_id", e.ID, false)
	writeKV(buf, "prev_log_hash", e.PreviousLogHash, false)
	writeKV(buf, "resource_ref", e.ResourceRef(), false)
	writeKV(buf, "timestamp", e.CreatedAt.UTC().Format(time.RFC3339Nano), true)
	buf.WriteByte('}')
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeKV(buf *bytes.Buffer, key, value string, last bool) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	writeJSONString(buf, value)
	if !last {
		buf.WriteByte(',')
	}
}

func writeJSONString(buf *bytes.Buffer, value string) {
	buf.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

var hexLower = []byte("0123456789abcdef")
