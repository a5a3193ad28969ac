package files

import (
	"fmt"
	"strings"
)

// Family of a file, selected by its extension
type Family uint8

// File families
const (
	Generic Family = iota
	CacheFamily
	ConfigFamily
	ProtectedFamily
)

var extensions = map[Family]string{
	CacheFamily:     ".cache",
	ConfigFamily:    ".config",
	ProtectedFamily: ".ptxt",
}

// FamilyOf returns the family of a file name
func FamilyOf(name string) Family {
	for f, ext := range extensions {
		if len(name) > len(ext) && strings.HasSuffix(name, ext) {
			return f
		}
	}
	return Generic
}

// Ext is the extension of the family, empty for generic files
func (f Family) Ext() string {
	return extensions[f]
}

func (f Family) String() string {
	switch f {
	case Generic:
		return "generic"
	case CacheFamily:
		return "cache"
	case ConfigFamily:
		return "config"
	case ProtectedFamily:
		return "protected"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// Caps are capabilities granted to a caller
type Caps uint32

// Capabilities
const (
	// CapList allows listing the whole file system
	CapList Caps = 1 << iota
)

// Has tells if all capabilities in c are granted
func (c Caps) Has(want Caps) bool {
	return c&want == want
}

const (
	// SystemPrefix starts the names of system files, hidden from listings
	SystemPrefix = "#"

	folderPrefix = SystemPrefix + "dir/"
	attachPrefix = SystemPrefix + "att/"
)

// IsSystem tells if name is a system file
func IsSystem(name string) bool {
	return strings.HasPrefix(name, SystemPrefix)
}

func reserved(name string) bool {
	return strings.HasPrefix(name, folderPrefix) || strings.HasPrefix(name, attachPrefix)
}
