// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical data always
// produces identical bytes, which is what lets a signature over
// manifest bytes be reproduced by any writer.
var encMode cbor.EncMode

// decMode is the CBOR decoder. Unknown fields are ignored so newer
// writers can add metadata, but duplicate map keys are rejected: two
// readers must never disagree about which value a key carries.
var decMode cbor.DecMode

func init() {
	var err error

	// Fixed-size byte arrays (digests, key ids) encode as CBOR byte
	// strings. TextMarshaler is deliberately left at its default so a
	// digest is 32 raw bytes on the wire, not 64 hex characters.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.ByteArray = cbor.ByteArrayToByteSlice
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Metadata maps decode into map[string]any so they can be
		// re-rendered as JSON by the CLI.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
		IndefLength:    cbor.IndefLengthForbidden,
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Trailing bytes after the first
// data item are an error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value. Type alias so consumers
// import only lib/codec, not fxamacker/cbor directly.
type RawMessage = cbor.RawMessage

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for the
// entire contents of data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
