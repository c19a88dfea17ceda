// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds symmetric container keys, master secrets, and
// passphrases outside the Go heap for the duration of one wrap or
// verify call.
//
// [Buffer] memory comes from an anonymous mmap region. The region is
// locked into RAM with mlock when the process is allowed to lock
// memory, marked MADV_DONTDUMP so it never lands in a core dump, and
// zeroed before it is unmapped by [Buffer.Close]. The garbage collector
// never sees the region, so it cannot leave copies behind.
//
// Constructors:
//
//   - [New] allocates a zeroed buffer
//   - [NewFromBytes] moves caller bytes in and zeroes the source
//   - [ReadFromPath] reads a file (or stdin for "-"), trimming whitespace
//
// Any access after Close panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix.
package secret
