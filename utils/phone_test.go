package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"national with trunk prefix", "05551234567", "905551234567"},
		{"formatted national", "0 (555) 123-45-67", "905551234567"},
		{"international plus", "+90 555 123 45 67", "905551234567"},
		{"international double zero", "0090 555 123 45 67", "905551234567"},
		{"already normalized", "905551234567", "905551234567"},
		{"without trunk prefix", "5551234567", "905551234567"},
		{"empty", "", ""},
		{"letters only", "n/a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.raw, ""))
		})
	}
}

func TestNormalizePhone_CustomCountryCode(t *testing.T) {
	assert.Equal(t, "4915112345678", NormalizePhone("015112345678", "49"))
}

func TestSwitchboardSet(t *testing.T) {
	set := NewSwitchboardSet([]string{"444 0 000", "0212 222 00 00", ""})
	assert.Equal(t, 2, set.Len())

	t.Run("exact match", func(t *testing.T) {
		assert.True(t, set.Contains("4440000"))
	})

	t.Run("suffix match on normalized number", func(t *testing.T) {
		assert.True(t, set.Contains(NormalizePhone("444 00 00", "")))
		assert.True(t, set.Contains(NormalizePhone("0212 222 00 00", "")))
	})

	t.Run("personal number", func(t *testing.T) {
		assert.False(t, set.Contains("905551234567"))
	})

	t.Run("empty number", func(t *testing.T) {
		assert.False(t, set.Contains(""))
	})

	t.Run("nil set", func(t *testing.T) {
		var empty *SwitchboardSet
		assert.False(t, empty.Contains("4440000"))
	})
}

func TestStripHonorifics(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dr. Ayşe Yılmaz", "Ayşe Yılmaz"},
		{"Uzm. Psk.  Mehmet   Demir", "Mehmet Demir"},
		{"Prof. Dr. Can Öz", "Can Öz"},
		{"Dr.Ayşe Yılmaz", "Ayşe Yılmaz"},
		{"DR Ali Kaya", "Ali Kaya"},
		{"Elif Şahin", "Elif Şahin"},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHonorifics(tt.in))
		})
	}
}
