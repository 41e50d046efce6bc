// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webchat

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// requestIDKey is the BLAKE3 key for request IDs: the ASCII domain
// name, zero-padded to 32 bytes.
var requestIDKey = [32]byte{
	'l', 'l', 'm', 'c', 'h', 'a', 't', '.', 'w', 'e', 'b', 'c', 'h', 'a', 't', '.',
	'r', 'e', 'q', 'u', 'e', 's', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// requestID derives a 16-hex-digit ID correlating the log records of
// one chat request. The server keeps no sessions, so the ID is a
// keyed hash of what identifies the request: arrival time, a
// per-handler sequence number, the history length, and the message.
func requestID(now time.Time, sequence uint64, historyLength int, message string) string {
	hasher, err := blake3.NewKeyed(requestIDKey[:])
	if err != nil {
		// Only returned for a key that is not 32 bytes.
		panic("webchat: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var header [24]byte
	binary.BigEndian.PutUint64(header[0:8], uint64(now.UnixNano()))
	binary.BigEndian.PutUint64(header[8:16], sequence)
	binary.BigEndian.PutUint64(header[16:24], uint64(historyLength))
	hasher.Write(header[:])
	hasher.WriteString(message)

	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
