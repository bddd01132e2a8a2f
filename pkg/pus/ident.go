// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import "fmt"

// Ident is the identity of one application process: its APID and the
// sequence counter stamped on the packets it emits
type Ident struct {
	apid     uint16
	seqCount uint16
}

// NewIdent creates an identity for the given APID
func NewIdent(apid uint16) (*Ident, error) {
	if apid > MaxAPID {
		return nil, fmt.Errorf("%w: APID %d (max %d)", ErrInvalidPacket, apid, MaxAPID)
	}
	return &Ident{apid: apid}, nil
}

// APID returns the application process identifier
func (i *Ident) APID() uint16 {
	return i.apid
}

// NextSeqCount returns the current sequence count and advances the counter,
// wrapping from 16383 back to 0
func (i *Ident) NextSeqCount() uint16 {
	count := i.seqCount
	i.seqCount = (i.seqCount + 1) % SeqCountRange
	return count
}
