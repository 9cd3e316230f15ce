package qpack

import (
	"fmt"
	"math"
	"sort"
)

// Marshal packs a Go value; see Packer.Add for the supported types.
func Marshal(v any) ([]byte, error) {
	p := NewPacker(defaultAllocSize)
	if err := p.Add(v); err != nil {
		return nil, err
	}
	return p.Bytes(), nil
}

// Unmarshal decodes every top-level value in data. A single value is
// returned as is, several values as []any.
func Unmarshal(data []byte) (any, error) {
	u := NewUnpacker(data)
	var out []any
	for u.Remaining() > 0 {
		v, err := u.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

// Add packs v. Supported: nil, bool, signed and unsigned integers,
// float32, float64, string, []byte, []any, []string, map[string]any and
// Object. Containers with more than five items use open/close markers.
func (p *Packer) Add(v any) error {
	switch t := v.(type) {
	case nil:
		p.AddNull()
	case bool:
		p.AddBool(t)
	case int:
		p.AddInt64(int64(t))
	case int8:
		p.AddInt64(int64(t))
	case int16:
		p.AddInt64(int64(t))
	case int32:
		p.AddInt64(int64(t))
	case int64:
		p.AddInt64(t)
	case uint:
		return p.addUint(uint64(t))
	case uint8:
		p.AddInt64(int64(t))
	case uint16:
		p.AddInt64(int64(t))
	case uint32:
		p.AddInt64(int64(t))
	case uint64:
		return p.addUint(t)
	case float32:
		p.AddDouble(float64(t))
	case float64:
		p.AddDouble(t)
	case string:
		p.AddString(t)
	case []byte:
		p.AddRaw(t)
	case []string:
		p.openArray(len(t))
		for _, s := range t {
			p.AddString(s)
		}
		p.closeArray(len(t))
	case []any:
		p.openArray(len(t))
		for _, item := range t {
			if err := p.Add(item); err != nil {
				return err
			}
		}
		p.closeArray(len(t))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		p.openMap(len(keys))
		for _, k := range keys {
			p.AddString(k)
			if err := p.Add(t[k]); err != nil {
				return err
			}
		}
		p.closeMap(len(keys))
	case Object:
		return p.addObject(&t)
	case *Object:
		return p.addObject(t)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
	return nil
}

func (p *Packer) addUint(u uint64) error {
	if u > math.MaxInt64 {
		return ErrOverflow
	}
	p.AddInt64(int64(u))
	return nil
}

func (p *Packer) addObject(o *Object) error {
	switch o.Kind {
	case KindRaw:
		p.AddRaw(o.raw)
	case KindInt64:
		p.AddInt64(o.Int64)
	case KindDouble:
		p.AddDouble(o.Double)
	case KindTrue:
		p.AddTrue()
	case KindFalse:
		p.AddFalse()
	case KindNull:
		p.AddNull()
	case KindArrayOpen:
		p.ArrayOpen()
	case KindArrayClose:
		p.ArrayClose()
	case KindMapOpen:
		p.MapOpen()
	case KindMapClose:
		p.MapClose()
	default:
		if n, ok := o.Kind.FixedSize(); ok {
			if IsArray(o.Kind) {
				return p.AddArray(n)
			}
			return p.AddMap(n)
		}
		return fmt.Errorf("%w: %s", ErrUnexpected, o.Kind)
	}
	return nil
}

func (p *Packer) openArray(n int) {
	if n <= maxFixedContainer {
		p.writeByte(tagArray0 + byte(n))
		return
	}
	p.ArrayOpen()
}

func (p *Packer) closeArray(n int) {
	if n > maxFixedContainer {
		p.ArrayClose()
	}
}

func (p *Packer) openMap(n int) {
	if n <= maxFixedContainer {
		p.writeByte(tagMap0 + byte(n))
		return
	}
	p.MapOpen()
}

func (p *Packer) closeMap(n int) {
	if n > maxFixedContainer {
		p.MapClose()
	}
}

// Value decodes one complete value, containers included. Raw bytes become
// strings, maps become map[string]any with non-raw keys formatted by
// fmt.Sprint. The end of the buffer closes any open container.
func (u *Unpacker) Value() (any, error) {
	k := u.Next()
	switch k {
	case KindEnd:
		return nil, fmt.Errorf("%w: end of data", ErrUnexpected)
	case KindErr:
		return nil, u.err
	case KindArrayClose, KindMapClose:
		return nil, fmt.Errorf("%w: %s at offset %d", ErrUnexpected, k, u.pos-1)
	}
	return u.valueOf(k)
}

func (u *Unpacker) valueOf(k Kind) (any, error) {
	if IsArray(k) || IsMap(k) {
		if err := u.enter(); err != nil {
			return nil, err
		}
		defer u.leave()
	}
	switch k {
	case KindRaw:
		return string(u.obj.raw), nil
	case KindInt64:
		return u.obj.Int64, nil
	case KindDouble:
		return u.obj.Double, nil
	case KindTrue:
		return true, nil
	case KindFalse:
		return false, nil
	case KindNull:
		return nil, nil
	case KindArrayOpen:
		out := []any{}
		for {
			next := u.Next()
			switch next {
			case KindArrayClose, KindEnd:
				return out, nil
			case KindErr:
				return nil, u.err
			case KindMapClose:
				return nil, fmt.Errorf("%w: %s inside array", ErrUnexpected, next)
			}
			v, err := u.valueOf(next)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	case KindMapOpen:
		out := map[string]any{}
		for {
			next := u.Next()
			switch next {
			case KindMapClose, KindEnd:
				return out, nil
			case KindErr:
				return nil, u.err
			case KindArrayClose:
				return nil, fmt.Errorf("%w: %s inside map", ErrUnexpected, next)
			}
			key, err := u.valueOf(next)
			if err != nil {
				return nil, err
			}
			val, err := u.Value()
			if err != nil {
				return nil, err
			}
			out[mapKey(key)] = val
		}
	}
	n, _ := k.FixedSize()
	if IsArray(k) {
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := u.Value()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		key, err := u.Value()
		if err != nil {
			return nil, err
		}
		val, err := u.Value()
		if err != nil {
			return nil, err
		}
		out[mapKey(key)] = val
	}
	return out, nil
}

func mapKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Skip steps over one complete value and returns the kind of its first
// object.
func (u *Unpacker) Skip() (Kind, error) {
	k := u.Next()
	switch k {
	case KindErr:
		return k, u.err
	case KindEnd:
		return k, nil
	}
	return k, u.skipBody(k)
}

func (u *Unpacker) skipBody(k Kind) error {
	if IsArray(k) || IsMap(k) {
		if err := u.enter(); err != nil {
			return err
		}
		defer u.leave()
	}
	var closer Kind
	switch k {
	case KindArrayOpen:
		closer = KindArrayClose
	case KindMapOpen:
		closer = KindMapClose
	default:
		n, ok := k.FixedSize()
		if !ok {
			return nil
		}
		if IsMap(k) {
			n *= 2
		}
		for i := 0; i < n; i++ {
			next, err := u.Skip()
			if err != nil {
				return err
			}
			if next == KindEnd || next == KindArrayClose || next == KindMapClose {
				return fmt.Errorf("%w: %s inside fixed %s", ErrUnexpected, next, k)
			}
		}
		return nil
	}
	for {
		next := u.Next()
		switch next {
		case KindErr:
			return u.err
		case KindEnd, closer:
			return nil
		}
		if err := u.skipBody(next); err != nil {
			return err
		}
	}
}
