package server

import (
	"errors"
	"fmt"

	"github.com/danmuck/qpnet/internal/qpack"
)

var ErrInsertShape = errors.New("server: invalid insert data")

// CountPoints walks an insert payload {series: [[ts, value], ...], ...}
// and returns the number of series and points. Timestamps are integers;
// values are integers, doubles or raw strings.
func CountPoints(data []byte) (series, points int, err error) {
	u := qpack.NewUnpacker(data)
	k := u.Next()
	if !qpack.IsMap(k) {
		return 0, 0, shapeErr(u, "expecting a map, got %s", k)
	}
	n, fixed := k.FixedSize()
	for i := 0; !fixed || i < n; i++ {
		kk := u.Next()
		if !fixed && (kk == qpack.KindMapClose || kk == qpack.KindEnd) {
			break
		}
		if kk != qpack.KindRaw {
			return 0, 0, shapeErr(u, "expecting a series name, got %s", kk)
		}
		name := u.Object().Str()
		count, err := countSeries(u, name)
		if err != nil {
			return 0, 0, err
		}
		series++
		points += count
	}
	if points == 0 {
		return series, 0, fmt.Errorf("%w: no points", ErrInsertShape)
	}
	return series, points, nil
}

func countSeries(u *qpack.Unpacker, name string) (int, error) {
	k := u.Next()
	if !qpack.IsArray(k) {
		return 0, shapeErr(u, "series %q: expecting an array of points, got %s", name, k)
	}
	n, fixed := k.FixedSize()
	count := 0
	for i := 0; !fixed || i < n; i++ {
		pk := u.Next()
		if !fixed && (pk == qpack.KindArrayClose || pk == qpack.KindEnd) {
			break
		}
		if pk != qpack.KindArray2 {
			return 0, shapeErr(u, "series %q: expecting [timestamp, value], got %s", name, pk)
		}
		if ts := u.Next(); ts != qpack.KindInt64 {
			return 0, shapeErr(u, "series %q: expecting an integer timestamp, got %s", name, ts)
		}
		switch v := u.Next(); v {
		case qpack.KindInt64, qpack.KindDouble, qpack.KindRaw:
		default:
			return 0, shapeErr(u, "series %q: unsupported value %s", name, v)
		}
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: series %q has no points", ErrInsertShape, name)
	}
	return count, nil
}

func shapeErr(u *qpack.Unpacker, format string, args ...any) error {
	if err := u.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInsertShape, err)
	}
	return fmt.Errorf("%w: %s", ErrInsertShape, fmt.Sprintf(format, args...))
}
