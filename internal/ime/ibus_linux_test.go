//go:build linux

package ime

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestTextOf(t *testing.T) {
	tests := []struct {
		name string
		in   dbus.Variant
		want string
		ok   bool
	}{
		{"plain string", dbus.MakeVariant("abc"), "abc", true},
		{"ibus text", newIBusText("héllo"), "héllo", true},
		{"decoded struct", dbus.MakeVariant([]interface{}{"IBusText", map[string]dbus.Variant{}, "xyz", dbus.MakeVariant(int32(0))}), "xyz", true},
		{"short struct", dbus.MakeVariant([]interface{}{"IBusText"}), "", false},
		{"number", dbus.MakeVariant(uint32(7)), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := textOf(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIBusTextSignature(t *testing.T) {
	v := newIBusText("x")
	assert.Equal(t, "(sa{sv}sv)", v.Signature().String())
}

func TestCreateEngineRejectsUnknownName(t *testing.T) {
	s := NewServer(nil, "snippetd", nil)
	_, err := s.createEngine("other")
	if assert.NotNil(t, err) {
		assert.Equal(t, "org.freedesktop.IBus.NoEngine", err.Name)
	}
	assert.Equal(t, 0, s.Engines())
}
