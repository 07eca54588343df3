// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package memory contains a Size type for human-friendly byte counts.
package memory

import (
	"errors"
	"strconv"
	"strings"
)

// Size implements flag.Value for collecting memory size in bytes.
type Size int64

// different sizes.
const (
	B Size = 1 << (10 * iota)
	KiB
	MiB
	GiB
	TiB

	KB Size = 1e3
	MB Size = 1e6
	GB Size = 1e9
	TB Size = 1e12
)

// Int returns bytes size as int.
func (size Size) Int() int { return int(size) }

// Int64 returns bytes size as int64.
func (size Size) Int64() int64 { return int64(size) }

// Float64 returns bytes size as float64.
func (size Size) Float64() float64 { return float64(size) }

// KiB returns size in kibibytes.
func (size Size) KiB() float64 { return size.Float64() / KiB.Float64() }

// MiB returns size in mebibytes.
func (size Size) MiB() float64 { return size.Float64() / MiB.Float64() }

// GiB returns size in gibibytes.
func (size Size) GiB() float64 { return size.Float64() / GiB.Float64() }

// KB returns size in kilobytes.
func (size Size) KB() float64 { return size.Float64() / KB.Float64() }

// MB returns size in megabytes.
func (size Size) MB() float64 { return size.Float64() / MB.Float64() }

// GB returns size in gigabytes.
func (size Size) GB() float64 { return size.Float64() / GB.Float64() }

// String converts size to a string using base-2 prefixes, unless the number
// is an exact multiple of a base-10 prefix.
func (size Size) String() string {
	if size == 0 {
		return "0 B"
	}
	if size%KB == 0 && size%KiB != 0 {
		return size.Base10String()
	}
	return size.Base2String()
}

// Base2String converts size to a string using base-2 prefixes.
func (size Size) Base2String() string {
	switch {
	case size >= TiB:
		return formatSize(size.Float64()/TiB.Float64(), "TiB")
	case size >= GiB:
		return formatSize(size.GiB(), "GiB")
	case size >= MiB:
		return formatSize(size.MiB(), "MiB")
	case size >= KiB:
		return formatSize(size.KiB(), "KiB")
	}
	return strconv.FormatInt(size.Int64(), 10) + " B"
}

// Base10String converts size to a string using base-10 prefixes.
func (size Size) Base10String() string {
	switch {
	case size >= TB:
		return formatSize(size.Float64()/TB.Float64(), "TB")
	case size >= GB:
		return formatSize(size.GB(), "GB")
	case size >= MB:
		return formatSize(size.MB(), "MB")
	case size >= KB:
		return formatSize(size.KB(), "KB")
	}
	return strconv.FormatInt(size.Int64(), 10) + " B"
}

func formatSize(value float64, unit string) string {
	result := strconv.FormatFloat(value, 'f', 2, 64)
	result = strings.TrimSuffix(result, "0")
	result = strings.TrimSuffix(result, "0")
	result = strings.TrimSuffix(result, ".")
	return result + " " + unit
}

func isLetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// Set updates value from string.
func (size *Size) Set(s string) error {
	if s == "" {
		return errors.New("empty size")
	}

	p := len(s)
	for p > 0 && isLetter(s[p-1]) {
		p--
	}
	if p == 0 {
		return errors.New("size " + strconv.Quote(s) + " has no value")
	}

	value, suffix := s[:p], s[p:]
	suffix = strings.ToUpper(suffix)
	if suffix == "" || suffix[len(suffix)-1] != 'B' {
		suffix += "B"
	}

	value = strings.TrimSpace(value)
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}

	switch suffix {
	case "TIB":
		*size = Size(v * TiB.Float64())
	case "GIB":
		*size = Size(v * GiB.Float64())
	case "MIB":
		*size = Size(v * MiB.Float64())
	case "KIB":
		*size = Size(v * KiB.Float64())
	case "TB":
		*size = Size(v * TB.Float64())
	case "GB":
		*size = Size(v * GB.Float64())
	case "MB":
		*size = Size(v * MB.Float64())
	case "KB":
		*size = Size(v * KB.Float64())
	case "B", "":
		*size = Size(v)
	default:
		return errors.New("unknown size suffix " + strconv.Quote(suffix))
	}

	return nil
}

// Type implements pflag.Value.
func (Size) Type() string { return "memory.Size" }
