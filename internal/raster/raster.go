// Package raster reads the little slice of geotiff metadata this tool needs:
// acquisition datetime and image dimensions. It walks the first TIFF IFD
// directly instead of decoding rasters, which keeps huge scene images cheap
// to inspect. Pixel access stays with the external optimization core.
package raster

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TIFF tags of interest.
const (
	tagImageWidth  = 256
	tagImageLength = 257
	tagDateTime    = 306
)

// TIFF field types.
const (
	typeShort = 3
	typeLong  = 4
	typeASCII = 2
)

// tiffDateLayout is the TIFFTAG_DATETIME format.
const tiffDateLayout = "2006:01:02 15:04:05"

// fnameDateLayout matches identifiers like 20210314_093000_..., the naming
// scheme used by SkySat deliveries.
const fnameDateLayout = "20060102_150405"

type ifdField struct {
	typ   uint16
	count uint32
	raw   [4]byte
}

// readIFD parses the first image file directory of a TIFF file into a
// tag -> field map.
func readIFD(r io.ReadSeeker) (map[uint16]ifdField, binary.ByteOrder, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, eris.Wrap(err, "raster: read tiff header")
	}

	var order binary.ByteOrder
	switch {
	case header[0] == 'I' && header[1] == 'I':
		order = binary.LittleEndian
	case header[0] == 'M' && header[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, nil, eris.New("raster: not a tiff file")
	}
	if order.Uint16(header[2:4]) != 42 {
		return nil, nil, eris.New("raster: bad tiff magic")
	}

	ifdOffset := order.Uint32(header[4:8])
	if _, err := r.Seek(int64(ifdOffset), io.SeekStart); err != nil {
		return nil, nil, eris.Wrap(err, "raster: seek ifd")
	}

	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, nil, eris.Wrap(err, "raster: read ifd entry count")
	}
	n := order.Uint16(countBuf[:])

	fields := make(map[uint16]ifdField, n)
	entry := make([]byte, 12)
	for i := 0; i < int(n); i++ {
		if _, err := io.ReadFull(r, entry); err != nil {
			return nil, nil, eris.Wrap(err, "raster: read ifd entry")
		}
		f := ifdField{
			typ:   order.Uint16(entry[2:4]),
			count: order.Uint32(entry[4:8]),
		}
		copy(f.raw[:], entry[8:12])
		fields[order.Uint16(entry[0:2])] = f
	}
	return fields, order, nil
}

func (f ifdField) intValue(order binary.ByteOrder) (int, bool) {
	switch f.typ {
	case typeShort:
		return int(order.Uint16(f.raw[:2])), true
	case typeLong:
		return int(order.Uint32(f.raw[:])), true
	}
	return 0, false
}

func (f ifdField) stringValue(r io.ReadSeeker, order binary.ByteOrder) (string, error) {
	if f.typ != typeASCII {
		return "", eris.New("raster: field is not ascii")
	}
	var raw []byte
	if f.count <= 4 {
		raw = f.raw[:f.count]
	} else {
		if _, err := r.Seek(int64(order.Uint32(f.raw[:])), io.SeekStart); err != nil {
			return "", eris.Wrap(err, "raster: seek string field")
		}
		raw = make([]byte, f.count)
		if _, err := io.ReadFull(r, raw); err != nil {
			return "", eris.Wrap(err, "raster: read string field")
		}
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

// Size reads image width and height from the TIFF directory without decoding
// any pixel data.
func Size(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "raster: open %s", path)
	}
	defer f.Close()

	fields, order, err := readIFD(f)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "raster: %s", path)
	}
	w, okW := fields[tagImageWidth].intValue(order)
	h, okH := fields[tagImageLength].intValue(order)
	if !okW || !okH {
		return 0, 0, eris.Errorf("raster: %s has no image dimensions", path)
	}
	return w, h, nil
}

// AcquisitionDate returns the acquisition timestamp of a geotiff. It prefers
// the TIFFTAG_DATETIME tag and falls back to the YYYYMMDD_HHMMSS prefix of
// the file identifier when the tag is absent.
func AcquisitionDate(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "raster: open %s", path)
	}
	defer f.Close()

	fields, order, err := readIFD(f)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "raster: %s", path)
	}

	if field, ok := fields[tagDateTime]; ok {
		s, err := field.stringValue(f, order)
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "raster: %s", path)
		}
		dt, err := time.Parse(tiffDateLayout, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "raster: %s has malformed datetime tag", path)
		}
		return dt, nil
	}

	return DateFromIdentifier(ID(path))
}

// DateFromIdentifier parses an acquisition timestamp from the leading
// YYYYMMDD_HHMMSS of an image identifier.
func DateFromIdentifier(id string) (time.Time, error) {
	if len(id) < len(fnameDateLayout) {
		return time.Time{}, eris.Errorf("raster: identifier %q carries no acquisition date", id)
	}
	dt, err := time.Parse(fnameDateLayout, id[:len(fnameDateLayout)])
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "raster: identifier %q carries no acquisition date", id)
	}
	return dt, nil
}

// ID returns the image identifier of a path: the base name without extension.
func ID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
