// Package pio
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package pio

import "testing"

func TestBigEndian(t *testing.T) {
	b := make([]byte, 8)

	PutU32BE(b, 0x11223344)
	if b[0] != 0x11 || b[1] != 0x22 || b[2] != 0x33 || b[3] != 0x44 {
		t.FailNow()
	}
	if U32BE(b) != 0x11223344 {
		t.FailNow()
	}

	PutU24BE(b, 0xabcdef)
	if U24BE(b) != 0xabcdef {
		t.FailNow()
	}
	PutU24BE(b, 0xfffffe)
	if I24BE(b) != -2 {
		t.Logf("%d\n", I24BE(b))
		t.FailNow()
	}

	PutI16BE(b, -300)
	if I16BE(b) != -300 || U16BE(b) != 0xfed4 {
		t.FailNow()
	}

	PutU64BE(b, 0x0102030405060708)
	if U64BE(b) != 0x0102030405060708 || b[7] != 0x08 {
		t.FailNow()
	}

	PutI32BE(b, -1)
	if I32BE(b) != -1 || U32BE(b) != 0xffffffff {
		t.FailNow()
	}
}
