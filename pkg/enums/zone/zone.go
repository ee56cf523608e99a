package zone

import "strings"

// Zone is a seating area an order is delivered to.
type Zone struct {
	Name string
}

func (z Zone) Code() string {
	return z.Name
}

func (z Zone) Label() string {
	if len(z.Name) == 0 {
		return ""
	}
	return strings.ToUpper(z.Name[:1]) + z.Name[1:]
}

type Enum struct {
	Inside  Zone
	Outside Zone
	Bar     Zone
	Takeout Zone
}

var Zones = Enum{
	Inside:  Zone{Name: "inside"},
	Outside: Zone{Name: "outside"},
	Bar:     Zone{Name: "bar"},
	Takeout: Zone{Name: "takeout"},
}

var All = []Zone{
	Zones.Inside,
	Zones.Outside,
	Zones.Bar,
	Zones.Takeout,
}

// ByName returns the zone for a given name, or nil if not found
func ByName(name string) *Zone {
	for _, z := range All {
		if z.Name == name {
			return &z
		}
	}
	return nil
}

// Valid reports whether name is empty (no zone) or a known zone.
func Valid(name string) bool {
	return name == "" || ByName(name) != nil
}
