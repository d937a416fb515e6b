package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindValid(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("").Valid())
	assert.False(t, Kind("speed").Valid())
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    RGB
		wantErr bool
	}{
		{"#FF0000", RGB{R: 255}, false},
		{"00ff7f", RGB{G: 255, B: 127}, false},
		{" #0a0b0c ", RGB{R: 10, G: 11, B: 12}, false},
		{"#FFF", RGB{}, true},
		{"#GG0000", RGB{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRGBList(t *testing.T) {
	got, err := ParseRGBList("255, 0,10")
	require.NoError(t, err)
	assert.Equal(t, RGB{R: 255, B: 10}, got)

	_, err = ParseRGBList("1,2")
	assert.Error(t, err)
	_, err = ParseRGBList("1,2,256")
	assert.Error(t, err)
}

func TestRGBHexRoundTrip(t *testing.T) {
	c := RGB{R: 0x12, G: 0xAB, B: 0x09}
	assert.Equal(t, "#12AB09", c.Hex())
	back, err := ParseHex(c.Hex())
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestLightCommandString(t *testing.T) {
	assert.Equal(t, "{}", LightCommand{}.String())
	assert.True(t, LightCommand{}.IsEmpty())
	assert.Equal(t, "{on=false}", PowerCommand(false).String())
	assert.Equal(t, "{bri=50}", BrightnessCommand(50).String())
	assert.Equal(t, "{bri=200 color=#FF0000}", ColorCommand(RGB{R: 255}, 200).String())
}

func TestCommandConstructorsCopyArguments(t *testing.T) {
	on := true
	cmd := PowerCommand(on)
	on = false
	require.NotNil(t, cmd.On)
	assert.True(t, *cmd.On)
}
