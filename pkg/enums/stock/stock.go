package stock

import "strings"

// Level tells the cashier how much of an item is left.
type Level struct {
	Name string
}

func (l Level) Code() string {
	return l.Name
}

func (l Level) Label() string {
	if len(l.Name) == 0 {
		return ""
	}
	return strings.ToUpper(l.Name[:1]) + l.Name[1:]
}

// Available reports whether the item can still be sold.
func (l Level) Available() bool {
	return l.Name != Levels.None.Name
}

type Enum struct {
	High Level
	Low  Level
	None Level
}

var Levels = Enum{
	High: Level{Name: "high"},
	Low:  Level{Name: "low"},
	None: Level{Name: "none"},
}

var All = []Level{
	Levels.High,
	Levels.Low,
	Levels.None,
}

// ByName returns the level for a given name, or nil if not found
func ByName(name string) *Level {
	for _, l := range All {
		if l.Name == name {
			return &l
		}
	}
	return nil
}
