package stage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

const (
	defaultLuaTimeout       = 500 * time.Millisecond
	defaultLuaRegistryLimit = 4096
)

// ErrDeriveTimeout is returned when a derive script exceeds its time budget.
var ErrDeriveTimeout = errors.New("derive script timeout")

// DeriveInput is what a derive script sees: the globals info, params and
// subpath.
type DeriveInput struct {
	Tool    string
	Subpath string
	Info    map[string]string
	Params  map[string]string
}

// RunDerive executes a Lua derive script in a sandbox with only the base,
// string, table and math libraries. math.random is seeded from tool and
// subpath so repeated runs agree. The script returns a table whose scalar
// entries become extra params; nil results in no params.
func RunDerive(code string, in DeriveInput, timeout time.Duration) (map[string]string, error) {
	if timeout <= 0 {
		timeout = defaultLuaTimeout
	}
	L := newSandboxLuaState(in.Tool, in.Subpath)
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	L.SetContext(ctx)

	L.SetGlobal("info", stringTable(L, in.Info))
	L.SetGlobal("params", stringTable(L, in.Params))
	L.SetGlobal("subpath", lua.LString(in.Subpath))

	fn, err := L.LoadString(code)
	if err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		if isTimeoutError(err) {
			return nil, ErrDeriveTimeout
		}
		return nil, fmt.Errorf("derive: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return derivedParams(fromLValue(ret))
}

func newSandboxLuaState(tool, subpath string) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:     true,
		RegistrySize:     256,
		RegistryMaxSize:  defaultLuaRegistryLimit,
		RegistryGrowStep: 0,
	})
	openLib := func(name string, f lua.LGFunction) {
		L.Push(L.NewFunction(f))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}
	openLib(lua.BaseLibName, lua.OpenBase)
	openLib(lua.StringLibName, lua.OpenString)
	openLib(lua.TabLibName, lua.OpenTable)
	openLib(lua.MathLibName, lua.OpenMath)
	// base exposes file access; derive scripts only compute.
	for _, name := range []string{"dofile", "loadfile", "load", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	installDeterministicRandom(L, deterministicSeed(tool, subpath))
	return L
}

func deterministicSeed(tool, subpath string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tool))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(subpath))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

func installDeterministicRandom(L *lua.LState, seed int64) {
	mathTbl, ok := L.GetGlobal("math").(*lua.LTable)
	if !ok || mathTbl == nil {
		return
	}
	rng := rand.New(rand.NewSource(seed))
	mathTbl.RawSetString("random", L.NewFunction(func(L *lua.LState) int {
		switch L.GetTop() {
		case 0:
			L.Push(lua.LNumber(rng.Float64()))
			return 1
		case 1:
			hi := L.CheckInt(1)
			if hi < 1 {
				L.ArgError(1, "interval is empty")
				return 0
			}
			L.Push(lua.LNumber(rng.Intn(hi) + 1))
			return 1
		default:
			lo := L.CheckInt(1)
			hi := L.CheckInt(2)
			if hi < lo {
				L.ArgError(2, "interval is empty")
				return 0
			}
			L.Push(lua.LNumber(rng.Intn(hi-lo+1) + lo))
			return 1
		}
	}))
	mathTbl.RawSetString("randomseed", L.NewFunction(func(L *lua.LState) int { return 0 }))
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadline") || strings.Contains(msg, "context canceled")
}

// derivedParams flattens a script result into string params. Only string
// keyed scalar entries are accepted.
func derivedParams(v any) (map[string]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]string, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s, ok := scalarText(x[k])
			if !ok {
				return nil, fmt.Errorf("derive: value of %q is not a scalar", k)
			}
			out[k] = s
		}
		return out, nil
	case []any:
		if len(x) == 0 {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("derive: script must return a table of params, got %T", v)
}

func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}
