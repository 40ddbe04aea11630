package fitdecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/tormoder/fit/dyncrc16"
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	compressedTimeMask         = 0x1F
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14

	fieldTimestamp uint8 = 253
)

// ErrCRCMismatch is returned by Decode when the header or file CRC does not match.
var ErrCRCMismatch = errors.New("fit crc mismatch")

type baseType uint8

const (
	baseEnum    baseType = 0x00
	baseSint8   baseType = 0x01
	baseUint8   baseType = 0x02
	baseSint16  baseType = 0x83
	baseUint16  baseType = 0x84
	baseSint32  baseType = 0x85
	baseUint32  baseType = 0x86
	baseString  baseType = 0x07
	baseFloat32 baseType = 0x88
	baseFloat64 baseType = 0x89
	baseUint8z  baseType = 0x0A
	baseUint16z baseType = 0x8B
	baseUint32z baseType = 0x8C
	baseByte    baseType = 0x0D
	baseSint64  baseType = 0x8E
	baseUint64  baseType = 0x8F
	baseUint64z baseType = 0x90
)

type baseSpec struct {
	name string
	size int
}

var baseSpecs = map[baseType]baseSpec{
	baseEnum:    {name: "enum", size: 1},
	baseSint8:   {name: "sint8", size: 1},
	baseUint8:   {name: "uint8", size: 1},
	baseSint16:  {name: "sint16", size: 2},
	baseUint16:  {name: "uint16", size: 2},
	baseSint32:  {name: "sint32", size: 4},
	baseUint32:  {name: "uint32", size: 4},
	baseString:  {name: "string", size: 1},
	baseFloat32: {name: "float32", size: 4},
	baseFloat64: {name: "float64", size: 8},
	baseUint8z:  {name: "uint8z", size: 1},
	baseUint16z: {name: "uint16z", size: 2},
	baseUint32z: {name: "uint32z", size: 4},
	baseByte:    {name: "byte", size: 1},
	baseSint64:  {name: "sint64", size: 8},
	baseUint64:  {name: "uint64", size: 8},
	baseUint64z: {name: "uint64z", size: 8},
}

type fieldDef struct {
	num  uint8
	size uint8
	base baseType
}

type localDef struct {
	global    uint16
	arch      binary.ByteOrder
	fields    []fieldDef
	devSizes  []uint8
	devFields int
}

type decoder struct {
	dataOffset     int
	data           []byte
	defs           map[uint8]localDef
	lastTimestamp  uint32
	lastTimeOffset int32
	definitions    int
	messages       []Message
}

// Parse decodes raw FIT bytes. Structural problems (short input, truncation,
// missing definitions, bad architecture bytes) are errors; CRC results are
// reported on the returned File and left to the caller.
func Parse(data []byte) (*File, error) {
	if len(data) < headerSizeNoCRC+2 {
		return nil, fmt.Errorf("fit file too short: %d bytes", len(data))
	}

	header, headerCRC, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	dataStart := int(header.Size)
	dataEnd := dataStart + int(header.DataSize)

	required := dataEnd + 2
	if len(data) < required {
		return nil, fmt.Errorf("fit file truncated: have %d bytes, need at least %d", len(data), required)
	}

	stored := binary.LittleEndian.Uint16(data[dataEnd:required])
	computed := dyncrc16.Checksum(data[:dataEnd])
	fileCRC := CRCCheck{
		Present:  true,
		Stored:   stored,
		Computed: computed,
		Valid:    stored == computed,
	}

	d := &decoder{
		dataOffset: dataStart,
		data:       data[dataStart:dataEnd],
		defs:       make(map[uint8]localDef),
	}
	if err := d.run(); err != nil {
		return nil, err
	}

	return &File{
		Header:          header,
		HeaderCRC:       headerCRC,
		FileCRC:         fileCRC,
		Messages:        d.messages,
		DefinitionCount: d.definitions,
		LeftoverBytes:   int64(len(data) - required),
	}, nil
}

// Decode is Parse plus CRC enforcement.
func Decode(data []byte) (*File, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if !f.HeaderCRC.Valid {
		return nil, fmt.Errorf("%w: header stored 0x%04X computed 0x%04X", ErrCRCMismatch, f.HeaderCRC.Stored, f.HeaderCRC.Computed)
	}
	if !f.FileCRC.Valid {
		return nil, fmt.Errorf("%w: file stored 0x%04X computed 0x%04X", ErrCRCMismatch, f.FileCRC.Stored, f.FileCRC.Computed)
	}
	return f, nil
}

func parseHeader(data []byte) (HeaderInfo, CRCCheck, error) {
	size := data[0]
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return HeaderInfo{}, CRCCheck{}, fmt.Errorf("invalid fit header size: %d", size)
	}
	if len(data) < int(size) {
		return HeaderInfo{}, CRCCheck{}, fmt.Errorf("truncated fit header: need %d bytes", size)
	}

	h := HeaderInfo{
		Size:            size,
		ProtocolVersion: data[1],
		ProfileVersion:  binary.LittleEndian.Uint16(data[2:4]),
		DataSize:        binary.LittleEndian.Uint32(data[4:8]),
		DataType:        string(data[8:12]),
	}
	if h.DataType != ".FIT" {
		return HeaderInfo{}, CRCCheck{}, fmt.Errorf("invalid fit data type in header: %q", h.DataType)
	}

	crc := CRCCheck{Present: size == headerSizeCRC, Valid: true}
	if size == headerSizeCRC {
		crc.Stored = binary.LittleEndian.Uint16(data[12:14])
		// A zero header CRC means the writer skipped it.
		if crc.Stored != 0 {
			crc.Computed = dyncrc16.Checksum(data[:12])
			crc.Valid = crc.Stored == crc.Computed
		}
	}
	return h, crc, nil
}

func (d *decoder) run() error {
	pos := 0
	index := 0
	for pos < len(d.data) {
		index++
		start := pos
		headerByte := d.data[pos]
		pos++

		var err error
		switch {
		case headerByte&compressedHeaderMask == compressedHeaderMask:
			local := (headerByte & compressedLocalMesgNumMask) >> 5
			def, ok := d.defs[local]
			if !ok {
				return fmt.Errorf("missing definition for compressed data message local=%d record=%d", local, index)
			}
			pos, err = d.readData(index, start, pos, headerByte, local, def, true)
		case headerByte&mesgDefinitionMask == mesgDefinitionMask:
			pos, err = d.readDefinition(index, start, pos, headerByte)
		default:
			local := headerByte & localMesgNumMask
			def, ok := d.defs[local]
			if !ok {
				return fmt.Errorf("missing definition for data message local=%d record=%d", local, index)
			}
			pos, err = d.readData(index, start, pos, headerByte, local, def, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) readDefinition(index, start, pos int, headerByte uint8) (int, error) {
	read := func(n int) ([]byte, error) {
		if pos+n > len(d.data) {
			return nil, fmt.Errorf("definition record truncated at byte %d", d.dataOffset+start)
		}
		out := d.data[pos : pos+n]
		pos += n
		return out, nil
	}

	fixed, err := read(5) // reserved, architecture, global (2), field count
	if err != nil {
		return 0, err
	}
	var arch binary.ByteOrder
	switch fixed[1] {
	case 0:
		arch = binary.LittleEndian
	case 1:
		arch = binary.BigEndian
	default:
		return 0, fmt.Errorf("invalid architecture byte %d at record %d", fixed[1], index)
	}

	def := localDef{
		global: arch.Uint16(fixed[2:4]),
		arch:   arch,
		fields: make([]fieldDef, 0, int(fixed[4])),
	}
	for i := 0; i < int(fixed[4]); i++ {
		raw, err := read(3)
		if err != nil {
			return 0, err
		}
		def.fields = append(def.fields, fieldDef{num: raw[0], size: raw[1], base: decompressBaseType(raw[2])})
	}

	if headerByte&devDataMask == devDataMask {
		countRaw, err := read(1)
		if err != nil {
			return 0, err
		}
		for i := 0; i < int(countRaw[0]); i++ {
			raw, err := read(3)
			if err != nil {
				return 0, err
			}
			def.devSizes = append(def.devSizes, raw[1])
		}
		def.devFields = len(def.devSizes)
	}

	d.defs[headerByte&localMesgNumMask] = def
	d.definitions++
	return pos, nil
}

func (d *decoder) readData(index, start, pos int, headerByte, local uint8, def localDef, compressed bool) (int, error) {
	read := func(n int) ([]byte, error) {
		if pos+n > len(d.data) {
			return nil, fmt.Errorf("data record truncated at byte %d", d.dataOffset+start)
		}
		out := d.data[pos : pos+n]
		pos += n
		return out, nil
	}

	msg := Message{
		Index:           index,
		Offset:          int64(d.dataOffset + start),
		Local:           local,
		Global:          def.global,
		Compressed:      compressed,
		Fields:          make([]Field, 0, len(def.fields)+1),
		DeveloperFields: def.devFields,
	}

	var compressedTS uint32
	if compressed && d.lastTimestamp != 0 {
		offset := int32(headerByte & compressedTimeMask)
		d.lastTimestamp += uint32((offset - d.lastTimeOffset) & compressedTimeMask)
		d.lastTimeOffset = offset
		compressedTS = d.lastTimestamp
	}

	hasTimestamp := false
	for _, fd := range def.fields {
		raw, err := read(int(fd.size))
		if err != nil {
			return 0, err
		}
		field := decodeField(raw, fd, def.arch)
		sem := semanticFor(def.global, fd.num)
		field.Name, field.Units = sem.name, sem.units
		if fd.num == fieldTimestamp {
			if ts, ok := field.Value.(uint32); ok && !field.Invalid {
				d.lastTimestamp = ts
				d.lastTimeOffset = int32(ts & compressedTimeMask)
				hasTimestamp = true
			}
		}
		msg.Fields = append(msg.Fields, field)
	}

	for _, size := range def.devSizes {
		if _, err := read(int(size)); err != nil {
			return 0, err
		}
	}

	if compressedTS != 0 && !hasTimestamp {
		sem := semanticFor(def.global, fieldTimestamp)
		msg.Fields = append([]Field{{
			Num:   fieldTimestamp,
			Name:  sem.name,
			Units: sem.units,
			Base:  baseSpecs[baseUint32].name,
			Value: compressedTS,
		}}, msg.Fields...)
	}

	d.messages = append(d.messages, msg)
	return pos, nil
}

func decodeField(raw []byte, fd fieldDef, arch binary.ByteOrder) Field {
	spec, ok := baseSpecs[fd.base]
	if !ok {
		return Field{
			Num:   fd.num,
			Base:  fmt.Sprintf("unknown_0x%02X", uint8(fd.base)),
			Value: bytesToInts(raw),
		}
	}

	field := Field{Num: fd.num, Base: spec.name}
	switch {
	case fd.base == baseString:
		str := decodeNullTerminatedString(raw)
		field.Value = str
		field.Invalid = len(str) == 0
		return field
	case fd.base == baseByte:
		field.Value = bytesToInts(raw)
		field.Invalid = allBytes(raw, 0xFF)
		return field
	case len(raw)%spec.size != 0:
		field.Value = bytesToInts(raw)
		field.Invalid = true
		return field
	}

	count := len(raw) / spec.size
	values := make([]any, 0, count)
	invalid := 0
	for i := 0; i < count; i++ {
		v, bad := decodeSingleValue(raw[i*spec.size:(i+1)*spec.size], fd.base, arch)
		values = append(values, v)
		if bad {
			invalid++
		}
	}
	field.Invalid = invalid == count
	if count == 1 {
		field.Value = values[0]
	} else {
		field.Value = values
	}
	return field
}

func decodeSingleValue(raw []byte, bt baseType, arch binary.ByteOrder) (any, bool) {
	switch bt {
	case baseEnum:
		v := raw[0]
		return v, v == 0xFF
	case baseSint8:
		v := int8(raw[0])
		return v, v == int8(0x7F)
	case baseUint8:
		v := raw[0]
		return v, v == 0xFF
	case baseSint16:
		v := int16(arch.Uint16(raw))
		return v, v == int16(0x7FFF)
	case baseUint16:
		v := arch.Uint16(raw)
		return v, v == 0xFFFF
	case baseSint32:
		v := int32(arch.Uint32(raw))
		return v, v == int32(0x7FFFFFFF)
	case baseUint32:
		v := arch.Uint32(raw)
		return v, v == 0xFFFFFFFF
	case baseFloat32:
		bits := arch.Uint32(raw)
		return float64(math.Float32frombits(bits)), bits == 0xFFFFFFFF
	case baseFloat64:
		bits := arch.Uint64(raw)
		return math.Float64frombits(bits), bits == 0xFFFFFFFFFFFFFFFF
	case baseUint8z:
		v := raw[0]
		return v, v == 0x00
	case baseUint16z:
		v := arch.Uint16(raw)
		return v, v == 0x0000
	case baseUint32z:
		v := arch.Uint32(raw)
		return v, v == 0x00000000
	case baseSint64:
		v := int64(arch.Uint64(raw))
		return v, v == int64(0x7FFFFFFFFFFFFFFF)
	case baseUint64:
		v := arch.Uint64(raw)
		return v, v == 0xFFFFFFFFFFFFFFFF
	case baseUint64z:
		v := arch.Uint64(raw)
		return v, v == 0
	default:
		return bytesToInts(raw), false
	}
}

func decodeNullTerminatedString(raw []byte) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == 0x00 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

func allBytes(raw []byte, value byte) bool {
	if len(raw) == 0 {
		return false
	}
	for _, b := range raw {
		if b != value {
			return false
		}
	}
	return true
}

func decompressBaseType(b byte) baseType {
	switch b & 0x1F {
	case 0x03:
		return baseSint16
	case 0x04:
		return baseUint16
	case 0x05:
		return baseSint32
	case 0x06:
		return baseUint32
	case 0x08:
		return baseFloat32
	case 0x09:
		return baseFloat64
	case 0x0B:
		return baseUint16z
	case 0x0C:
		return baseUint32z
	case 0x0E:
		return baseSint64
	case 0x0F:
		return baseUint64
	case 0x10:
		return baseUint64z
	default:
		return baseType(b & 0x1F)
	}
}

func bytesToInts(raw []byte) []int {
	out := make([]int, len(raw))
	for i := range raw {
		out[i] = int(raw[i])
	}
	return out
}
