// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import "github.com/sigurn/crc16"

// CRC-16/CCITT-FALSE: poly 0x1021, init 0xFFFF, no reflection, no final XOR
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the packet error control checksum for the given data
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// ChecksumValid reports whether data ends with a matching checksum.
// A packet including its trailing PEC field always checksums to zero.
func ChecksumValid(data []byte) bool {
	return Checksum(data) == 0
}
