// wad_parser.go - WAD container parsing for music lumps

package musdoom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// WAD layout constants.
const (
	WAD_HEADER_SIZE    = 12
	WAD_DIR_ENTRY_SIZE = 16
	WAD_LUMP_NAME_LEN  = 8
)

// WADLump is one directory entry with its data. The data slice references
// the parsed WAD bytes.
type WADLump struct {
	Name string
	Data []byte
}

// WADFile is a parsed WAD directory.
type WADFile struct {
	Type  string // "IWAD" or "PWAD"
	Lumps []WADLump
}

// ParseWAD reads a WAD directory and resolves every lump's data slice.
func ParseWAD(data []byte) (*WADFile, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParam
	}
	if len(data) < WAD_HEADER_SIZE {
		return nil, fmt.Errorf("wad: %d bytes, need %d: %w", len(data), WAD_HEADER_SIZE, ErrInvalidData)
	}

	ident := string(data[0:4])
	if ident != "IWAD" && ident != "PWAD" {
		return nil, fmt.Errorf("wad: bad ident %q: %w", ident, ErrInvalidData)
	}

	numLumps := int(int32(binary.LittleEndian.Uint32(data[4:8])))
	dirOffset := int(int32(binary.LittleEndian.Uint32(data[8:12])))
	if numLumps < 0 || dirOffset < 0 || dirOffset+numLumps*WAD_DIR_ENTRY_SIZE > len(data) {
		return nil, fmt.Errorf("wad: directory out of bounds: %w", ErrInvalidData)
	}

	f := &WADFile{Type: ident, Lumps: make([]WADLump, 0, numLumps)}
	for i := 0; i < numLumps; i++ {
		entry := data[dirOffset+i*WAD_DIR_ENTRY_SIZE:][:WAD_DIR_ENTRY_SIZE]
		filePos := int(int32(binary.LittleEndian.Uint32(entry[0:4])))
		size := int(int32(binary.LittleEndian.Uint32(entry[4:8])))
		name := lumpName(entry[8:16])

		if filePos < 0 || size < 0 || filePos+size > len(data) {
			return nil, fmt.Errorf("wad: lump %s out of bounds: %w", name, ErrInvalidData)
		}
		f.Lumps = append(f.Lumps, WADLump{Name: name, Data: data[filePos : filePos+size]})
	}
	return f, nil
}

// Lump finds a lump by case-insensitive name, the way Doom's own lump
// lookup worked.
func (f *WADFile) Lump(name string) ([]byte, bool) {
	for i := range f.Lumps {
		if strings.EqualFold(f.Lumps[i].Name, name) {
			return f.Lumps[i].Data, true
		}
	}
	return nil, false
}

// lumpName trims a fixed 8-byte lump name at the first NUL.
func lumpName(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}
