package fitdecode

// Global message numbers used by the session pipeline.
const (
	MesgFileID  uint16 = 0
	MesgSession uint16 = 18
	MesgLap     uint16 = 19
	MesgRecord  uint16 = 20
	MesgEvent   uint16 = 21
)

// HeaderInfo stores parsed FIT header values.
type HeaderInfo struct {
	Size            uint8  `json:"size"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ProfileVersion  uint16 `json:"profile_version"`
	DataSize        uint32 `json:"data_size"`
	DataType        string `json:"data_type"`
}

// CRCCheck describes one CRC validation result.
type CRCCheck struct {
	Present  bool   `json:"present"`
	Stored   uint16 `json:"stored"`
	Computed uint16 `json:"computed"`
	Valid    bool   `json:"valid"`
}

// Field is one decoded field of a data message. Value holds the raw decoded
// base-type value (a scalar, a []any for arrays, or a string).
type Field struct {
	Num     uint8  `json:"num"`
	Name    string `json:"name"`
	Units   string `json:"units,omitempty"`
	Base    string `json:"base_type"`
	Value   any    `json:"value"`
	Invalid bool   `json:"invalid,omitempty"`
}

// Message is one decoded data message. Messages keep file order.
type Message struct {
	Index      int     `json:"index"`
	Offset     int64   `json:"offset"`
	Local      uint8   `json:"local"`
	Global     uint16  `json:"global"`
	Compressed bool    `json:"compressed_timestamp,omitempty"`
	Fields     []Field `json:"fields"`

	// DeveloperFields counts developer-data fields that were skipped.
	DeveloperFields int `json:"developer_fields,omitempty"`
}

// File is an in-memory decoded FIT stream.
type File struct {
	Header          HeaderInfo `json:"header"`
	HeaderCRC       CRCCheck   `json:"header_crc"`
	FileCRC         CRCCheck   `json:"file_crc"`
	Messages        []Message  `json:"-"`
	DefinitionCount int        `json:"definition_count"`
	LeftoverBytes   int64      `json:"leftover_bytes"`
}

// Intact reports whether both the header CRC and the file CRC match.
func (f *File) Intact() bool {
	return f.HeaderCRC.Valid && f.FileCRC.Valid
}

// Select returns the messages with the given global number, in file order.
func (f *File) Select(global uint16) []Message {
	out := make([]Message, 0)
	for _, m := range f.Messages {
		if m.Global == global {
			out = append(out, m)
		}
	}
	return out
}
