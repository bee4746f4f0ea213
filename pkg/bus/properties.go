package bus

import (
	"github.com/godbus/dbus/v5/prop"

	"github.com/core-tools/hsu-sysmock/pkg/unit"
)

// unitProperty is one read-only property of org.freedesktop.systemd1.Unit.
type unitProperty struct {
	name  string
	emit  prop.EmitType
	value func(info unit.StateInfo) interface{}
}

// unitProperties is the fixed set exported on every unit object.
var unitProperties = []unitProperty{
	{
		name:  "Id",
		emit:  prop.EmitConst,
		value: func(info unit.StateInfo) interface{} { return info.Name },
	},
	{
		name:  "ActiveState",
		emit:  prop.EmitTrue,
		value: func(info unit.StateInfo) interface{} { return info.ActiveState.String() },
	},
	{
		name:  "PartOf",
		emit:  prop.EmitConst,
		value: func(info unit.StateInfo) interface{} { return []string{} },
	},
}

func unitPropertyMap(info unit.StateInfo) prop.Map {
	props := make(map[string]*prop.Prop, len(unitProperties))
	for _, p := range unitProperties {
		props[p.name] = &prop.Prop{
			Value:    p.value(info),
			Writable: false,
			Emit:     p.emit,
		}
	}
	return prop.Map{UnitInterface: props}
}

func loginManagerPropertyMap(state string) prop.Map {
	return prop.Map{
		LoginManagerInterface: {
			"MockState": {
				Value:    state,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
		},
	}
}
