package artifact

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ConvertArg converts a plan value (as decoded from YAML or JSON) into the Go
// type go-ethereum's ABI packer expects for t. Values that already have the
// expected type are returned unchanged.
func ConvertArg(t abi.Type, v any) (any, error) {
	if v != nil && reflect.TypeOf(v) == t.GetType() {
		return v, nil
	}

	switch t.T {
	case abi.AddressTy:
		switch x := v.(type) {
		case common.Address:
			return x, nil
		case string:
			if !common.IsHexAddress(x) {
				return nil, fmt.Errorf("invalid address %q", x)
			}
			return common.HexToAddress(x), nil
		}

	case abi.IntTy, abi.UintTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return fitInteger(t, n)

	case abi.BoolTy:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("invalid bool %q", x)
			}
			return b, nil
		}

	case abi.StringTy:
		switch x := v.(type) {
		case string:
			return x, nil
		case fmt.Stringer:
			return x.String(), nil
		}
		return fmt.Sprint(v), nil

	case abi.BytesTy:
		if s, ok := v.(string); ok {
			return decodeHex(s)
		}

	case abi.FixedBytesTy, abi.HashTy:
		s, ok := v.(string)
		if !ok {
			break
		}
		raw, err := decodeHex(s)
		if err != nil {
			return nil, err
		}
		if len(raw) > t.Size {
			return nil, fmt.Errorf("value is %d bytes, bytes%d expected", len(raw), t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(raw))
		return arr.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			break
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("array of %d elements expected, got %d", t.Size, len(items))
		}
		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			out = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			conv, err := ConvertArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(conv))
		}
		return out.Interface(), nil
	}

	return nil, fmt.Errorf("cannot use %T as %s", v, t.String())
}

func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		return new(big.Int).Set(x), nil
	case int:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case int32:
		return big.NewInt(int64(x)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), nil
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("non-integer number %v", x)
		}
		return big.NewInt(int64(x)), nil
	case string:
		n, ok := new(big.Int).SetString(x, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", x)
		}
		return n, nil
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

// fitInteger range-checks n against t and returns it as the Go type the
// packer wants: native ints up to 64 bits, *big.Int above.
func fitInteger(t abi.Type, n *big.Int) (any, error) {
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s for %s", n, t.String())
	}
	bits := n.BitLen()
	if t.T == abi.IntTy {
		if n.Sign() < 0 {
			// two's complement: -2^(k-1) fits in k bits
			bits = new(big.Int).Sub(new(big.Int).Neg(n), big.NewInt(1)).BitLen()
		}
		bits++
	}
	if bits > t.Size {
		return nil, fmt.Errorf("value %s overflows %s", n, t.String())
	}

	rt := t.GetType()
	if rt == reflect.TypeOf(&big.Int{}) {
		return n, nil
	}
	out := reflect.New(rt).Elem()
	if t.T == abi.UintTy {
		out.SetUint(n.Uint64())
	} else {
		out.SetInt(n.Int64())
	}
	return out.Interface(), nil
}
