// Copyright 2023 The sparrowmq Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sniffer classifies the first bytes of a freshly accepted, not yet
// decoded connection as MQTT or not. The check runs before any codec is
// installed on the connection, so it must work from a short fixed prefix and
// must not require a full packet parse.
package sniffer

// PrefixLen is the number of bytes a caller must buffer before calling
// IsMQTT. Shorter input is indeterminate, not a rejection: the caller keeps
// reading until PrefixLen bytes are available.
const PrefixLen = 8

const (
	// connectHeader is the fixed-header byte of an MQTT CONNECT packet:
	// packet type 1 in the high nibble, all flags zero.
	connectHeader = 0x10

	// continuationBit marks a remaining-length byte that is followed by
	// another length byte. The field is at most 4 bytes long, so at least
	// one of the first 4 length bytes must have this bit clear.
	continuationBit = 0x80
)

// Protocol-name lengths of the two accepted spellings: "MQTT" (3.1.1) and
// "MQIsdp" (3.1). Both start with 'M'.
const (
	nameLen311 = 4
	nameLen31  = 6
	nameFirst  = 'M'
)

// IsMQTT reports whether prefix starts an MQTT CONNECT packet. The protocol
// name is not the first thing on the wire in MQTT: it sits behind the fixed
// header and a variable-length remaining-length field, so the check matches
// the header byte, validates that the remaining-length encoding terminates,
// and then inspects the UTF-8 length prefix and first character of the
// protocol name. prefix must hold at least PrefixLen bytes.
//
// The function is a pure predicate: it consumes nothing and has no side
// effects.
func IsMQTT(prefix []byte) bool {
	if len(prefix) < PrefixLen {
		return false
	}
	if prefix[0] != connectHeader {
		return false
	}

	// Scan the remaining-length field. Each byte with the continuation bit
	// set is followed by another length byte, up to 4 bytes total. If all
	// 4 have the bit set the encoding is malformed and the prefix is too
	// ambiguous to classify.
	i := 1
	terminated := false
	for ; i <= 4; i++ {
		if prefix[i]&continuationBit == 0 {
			terminated = true
			i++
			break
		}
	}
	if !terminated {
		return false
	}

	// UTF-8 length prefix of the protocol name. The MSB is always zero
	// (the name never exceeds 255 bytes); the LSB must match one of the
	// two known spellings.
	if prefix[i] != 0 {
		return false
	}
	i++
	if prefix[i] != nameLen311 && prefix[i] != nameLen31 {
		return false
	}
	i++
	return prefix[i] == nameFirst
}
