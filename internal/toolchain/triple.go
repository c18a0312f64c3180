package toolchain

import "strings"

// Triple is a target platform published by python-build-standalone.
type Triple string

const (
	AArch64AppleDarwin         Triple = "aarch64-apple-darwin"
	X86_64AppleDarwin          Triple = "x86_64-apple-darwin"
	AArch64UnknownLinuxGNU     Triple = "aarch64-unknown-linux-gnu"
	X86_64PCWindowsMSVC        Triple = "x86_64-pc-windows-msvc"
	X86_64V2UnknownLinuxGNU    Triple = "x86_64_v2-unknown-linux-gnu"
	X86_64V2UnknownLinuxMusl   Triple = "x86_64_v2-unknown-linux-musl"
	X86_64V3UnknownLinuxGNU    Triple = "x86_64_v3-unknown-linux-gnu"
	X86_64V3UnknownLinuxMusl   Triple = "x86_64_v3-unknown-linux-musl"
	X86_64V4UnknownLinuxGNU    Triple = "x86_64_v4-unknown-linux-gnu"
	X86_64V4UnknownLinuxMusl   Triple = "x86_64_v4-unknown-linux-musl"
	ARMv7UnknownLinuxGNUEABI   Triple = "armv7-unknown-linux-gnueabi"
	ARMv7UnknownLinuxGNUEABIHF Triple = "armv7-unknown-linux-gnueabihf"
)

// Triples lists every supported platform in upstream order.
var Triples = []Triple{
	AArch64AppleDarwin,
	X86_64AppleDarwin,
	AArch64UnknownLinuxGNU,
	X86_64PCWindowsMSVC,
	X86_64V2UnknownLinuxGNU,
	X86_64V2UnknownLinuxMusl,
	X86_64V3UnknownLinuxGNU,
	X86_64V3UnknownLinuxMusl,
	X86_64V4UnknownLinuxGNU,
	X86_64V4UnknownLinuxMusl,
	ARMv7UnknownLinuxGNUEABI,
	ARMv7UnknownLinuxGNUEABIHF,
}

// Valid reports whether t is one of Triples.
func (t Triple) Valid() bool {
	for _, known := range Triples {
		if t == known {
			return true
		}
	}
	return false
}

// Windows reports whether the triple targets Windows.
func (t Triple) Windows() bool {
	return strings.Contains(string(t), "-windows-")
}

func (t Triple) String() string { return string(t) }
