package raster

import (
	"io"
	"math"
	"os"

	"github.com/rotisserie/eris"
)

// tagRPCCoefficient is the GDAL/STDI-0002 RPC00B coefficient tag: 92 doubles
// laid out as err_bias, err_rand, the five offsets, the five scales and the
// four 20-term coefficient blocks.
const tagRPCCoefficient = 50844

const (
	typeDouble  = 12
	rpcTagCount = 92
)

// RPCCoefficients extracts the embedded RPC00B coefficient block from a
// geotiff. The returned slice has 92 entries in tag order.
func RPCCoefficients(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer f.Close()

	fields, order, err := readIFD(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: %s", path)
	}
	field, ok := fields[tagRPCCoefficient]
	if !ok {
		return nil, eris.Errorf("raster: %s carries no embedded rpc", path)
	}
	if field.typ != typeDouble || field.count != rpcTagCount {
		return nil, eris.Errorf("raster: %s has a malformed rpc tag", path)
	}

	// 92 doubles never fit inline, so raw always holds an offset.
	if _, err := f.Seek(int64(order.Uint32(field.raw[:])), io.SeekStart); err != nil {
		return nil, eris.Wrapf(err, "raster: seek rpc tag in %s", path)
	}
	buf := make([]byte, 8*rpcTagCount)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, eris.Wrapf(err, "raster: read rpc tag in %s", path)
	}

	vals := make([]float64, rpcTagCount)
	for i := range vals {
		vals[i] = math.Float64frombits(order.Uint64(buf[8*i : 8*i+8]))
	}
	return vals, nil
}
