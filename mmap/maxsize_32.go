//go:build 386 || arm || ppc || mips || mipsle

package mmap

// MaxSize is the largest arena this package will create or attach.
const MaxSize = 0x7FFFFFFF // 2GB
