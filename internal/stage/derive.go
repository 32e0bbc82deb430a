package stage

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Keys written by Derive.
const (
	WidthKey   = "width"
	HeightKey  = "height"
	MipmapsKey = "mipmaps"
	RatioKey   = "ratio"
)

var errNoDimensions = errors.New("width and height not found in diagnostic info")

// Derive returns a copy of info with width and height scaled by ratio and
// mipmaps recomputed as ceil(log2(min(width, height))) + 1, floored at 1.
// Dimension keys are found case-insensitively and rewritten in place. info is
// never modified. On error the unmodified copy is returned.
func Derive(info map[string]string, ratio float64) (map[string]string, error) {
	out := maps.Clone(info)
	if out == nil {
		out = map[string]string{}
	}
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return out, fmt.Errorf("invalid ratio %v", ratio)
	}
	wKey, w, okW := numberField(out, WidthKey)
	hKey, h, okH := numberField(out, HeightKey)
	if !okW || !okH {
		return out, errNoDimensions
	}
	width := int(w * ratio)
	height := int(h * ratio)
	out[wKey] = strconv.Itoa(width)
	out[hKey] = strconv.Itoa(height)
	out[MipmapsKey] = strconv.Itoa(MipCount(width, height))
	return out, nil
}

// MipCount is the number of mip levels of a width x height texture.
func MipCount(width, height int) int {
	m := min(width, height)
	if m <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(m)))) + 1
}

// ParseRatio parses a ratio value; the empty string means no ratio.
func ParseRatio(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid ratio %q", s)
	}
	if r <= 0 {
		return 0, false, fmt.Errorf("invalid ratio %q: must be > 0", s)
	}
	return r, true, nil
}

func numberField(m map[string]string, name string) (string, float64, bool) {
	key := name
	raw, ok := m[name]
	if !ok {
		for k, v := range m {
			if strings.EqualFold(k, name) {
				key, raw, ok = k, v, true
				break
			}
		}
	}
	if !ok {
		return "", 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", 0, false
	}
	return key, f, true
}
