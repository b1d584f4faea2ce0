package bytesize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"0", 0, false},
		{"4096", 4096, false},
		{"4096B", 4096, false},
		{"64Ki", 64 * KiB, false},
		{"64KiB", 64 * KiB, false},
		{"16Mi", 16 * MiB, false},
		{"16mib", 16 * MiB, false},
		{"1Gi", GiB, false},
		{"1K", 1000, false},
		{"2MB", 2 * MB, false},
		{" 8 Ki ", 8 * KiB, false},
		{"1.5Ki", 1536, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
		{"12XB", 0, true},
		{"99999999999999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, size := range []ByteSize{0, 1, 1023, KiB, 65535, 16 * MiB, 2 * GiB} {
		text, err := size.MarshalText()
		require.NoError(t, err)

		var back ByteSize
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, size, back, "text %q", text)
	}
	assert.Equal(t, "16Mi", (16 * MiB).String())
}

func TestClamping(t *testing.T) {
	assert.Equal(t, uint32(math.MaxUint32), (8 * GiB).Uint32())
	assert.Equal(t, uint32(65536), (64 * KiB).Uint32())
	assert.Equal(t, 1024, KiB.Int())
}
