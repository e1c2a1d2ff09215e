package raster

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTIFF builds a minimal single-IFD TIFF carrying width, height and an
// optional DateTime tag.
func writeTIFF(t *testing.T, path string, width, height int, datetime string) {
	t.Helper()

	entries := 2
	if datetime != "" {
		entries = 3
	}
	// header(8) + count(2) + entries(12 each) + next-ifd offset(4)
	dateOffset := 8 + 2 + entries*12 + 4

	buf := make([]byte, 0, dateOffset+len(datetime)+1)
	le := binary.LittleEndian

	buf = append(buf, 'I', 'I')
	buf = le.AppendUint16(buf, 42)
	buf = le.AppendUint32(buf, 8)

	buf = le.AppendUint16(buf, uint16(entries))

	// width as SHORT
	buf = le.AppendUint16(buf, tagImageWidth)
	buf = le.AppendUint16(buf, typeShort)
	buf = le.AppendUint32(buf, 1)
	buf = le.AppendUint16(buf, uint16(width))
	buf = le.AppendUint16(buf, 0)

	// height as LONG
	buf = le.AppendUint16(buf, tagImageLength)
	buf = le.AppendUint16(buf, typeLong)
	buf = le.AppendUint32(buf, 1)
	buf = le.AppendUint32(buf, uint32(height))

	if datetime != "" {
		buf = le.AppendUint16(buf, tagDateTime)
		buf = le.AppendUint16(buf, typeASCII)
		buf = le.AppendUint32(buf, uint32(len(datetime)+1))
		buf = le.AppendUint32(buf, uint32(dateOffset))
	}

	// next IFD offset
	buf = le.AppendUint32(buf, 0)

	if datetime != "" {
		buf = append(buf, datetime...)
		buf = append(buf, 0)
	}

	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.tif")
	writeTIFF(t, path, 640, 480, "")

	w, h, err := Size(path)
	require.NoError(t, err)

	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestAcquisitionDateFromTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.tif")
	writeTIFF(t, path, 10, 10, "2021:03:14 09:26:53")

	dt, err := AcquisitionDate(path)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC), dt)
}

func TestAcquisitionDateFallbackToIdentifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "20210314_092653_ssc1_0001.tif")
	writeTIFF(t, path, 10, 10, "")

	dt, err := AcquisitionDate(path)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC), dt)
}

func TestAcquisitionDateNoSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.tif")
	writeTIFF(t, path, 10, 10, "")

	_, err := AcquisitionDate(path)

	assert.Error(t, err)
}

func TestAcquisitionDateNotTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tif")
	require.NoError(t, os.WriteFile(path, []byte("not a tiff"), 0o644))

	_, err := AcquisitionDate(path)

	assert.Error(t, err)
}

func TestID(t *testing.T) {
	assert.Equal(t, "20210314_092653_ssc1", ID("/data/scene/20210314_092653_ssc1.tif"))
	assert.Equal(t, "img", ID("img.JP2"))
}

func TestDateFromIdentifier(t *testing.T) {
	dt, err := DateFromIdentifier("20200405_120000_whatever")
	require.NoError(t, err)
	assert.Equal(t, 2020, dt.Year())

	_, err = DateFromIdentifier("short")
	assert.Error(t, err)
}
