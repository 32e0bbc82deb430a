package subst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	ctx := map[string]string{"width": "512", "height": "256", "name": "tex"}
	cases := []struct {
		name string
		tpl  string
		want string
	}{
		{"plain", "texconv -y", "texconv -y"},
		{"bare", "-w $width -h $height", "-w 512 -h 256"},
		{"braced", "${name}_out.dds", "tex_out.dds"},
		{"unknown bare kept", "-m $mipmaps", "-m $mipmaps"},
		{"unknown braced kept", "-m ${mipmaps}", "-m ${mipmaps}"},
		{"escape", "cost $$5", "cost $5"},
		{"lone dollar", "a $ b", "a $ b"},
		{"trailing dollar", "a$", "a$"},
		{"unterminated brace", "${width", "${width"},
		{"invalid braced name", "${1a} $width", "${1a} 512"},
		{"adjacent", "$width$height", "512256"},
		{"name boundary", "$width_px", "$width_px"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Substitute(tc.tpl, ctx))
		})
	}
}

func TestSubstitute_NilContextKeepsEverything(t *testing.T) {
	assert.Equal(t, "$a ${b}", Substitute("$a ${b}", nil))
}

func TestSubstitute_TwoPassResolvesNestedNames(t *testing.T) {
	first := Substitute("convert $options", map[string]string{"options": "-resize $ratio"})
	assert.Equal(t, "convert -resize $ratio", first)
	assert.Equal(t, "convert -resize 0.5", Substitute(first, map[string]string{"ratio": "0.5"}))
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check("$a ${b} $$ $ {c}"))
	require.NoError(t, Check("${unknown_name}"))
	require.Error(t, Check("texconv ${options"))
	require.Error(t, Check("${bad-name}"))
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Names("$a ${b} $$x $a ${c}"))
	assert.Empty(t, Names("no placeholders"))
}
