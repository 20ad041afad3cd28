package gosampler

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
)

var parserDebug = debuggo.Debug("gosampler:parser")

// SfzData is a parsed instrument definition file
type SfzData struct {
	Control *SfzSection
	Global  *SfzSection
	Groups  []*SfzSection
	Regions []*SfzSection
}

// SfzSection is one header block and its opcodes
type SfzSection struct {
	Type        string            // "control", "global", "group" or "region"
	Opcodes     map[string]string // opcode name -> value
	ParentGroup *SfzSection
	GlobalRef   *SfzSection
}

// ParseSfzFile parses an instrument definition from disk
func ParseSfzFile(filePath string) (*SfzData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SFZ file: %w", err)
	}
	defer file.Close()
	return ParseSfz(file, filePath)
}

// ParseSfz parses an instrument definition. Only the opcodes needed to
// build key-mapped zones are kept; anything else is logged and dropped.
func ParseSfz(r io.Reader, name string) (*SfzData, error) {
	parserDebug("Starting to parse SFZ: %s", name)

	sfzData := &SfzData{
		Groups:  make([]*SfzSection, 0),
		Regions: make([]*SfzSection, 0),
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	var currentSection *SfzSection
	var currentGroup *SfzSection

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "//"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		// A header may share its line with opcodes: "<region> sample=a.wav key=60"
		for strings.HasPrefix(line, "<") {
			end := strings.Index(line, ">")
			if end < 0 {
				return nil, fmt.Errorf("%s:%d: unterminated header", name, lineNum)
			}
			sectionType := strings.ToLower(strings.TrimSpace(line[1:end]))
			line = strings.TrimSpace(line[end+1:])

			currentSection = &SfzSection{
				Type:      sectionType,
				Opcodes:   make(map[string]string),
				GlobalRef: sfzData.Global,
			}

			switch sectionType {
			case "control":
				sfzData.Control = currentSection
			case "global":
				sfzData.Global = currentSection
				currentSection.GlobalRef = nil
			case "group":
				sfzData.Groups = append(sfzData.Groups, currentSection)
				currentGroup = currentSection
			case "region":
				currentSection.ParentGroup = currentGroup
				sfzData.Regions = append(sfzData.Regions, currentSection)
			default:
				parserDebug("Warning: Unknown section type: %s", sectionType)
			}
		}
		if line == "" {
			continue
		}

		if currentSection == nil {
			parserDebug("Warning: Opcode found outside of section at line %d: %s", lineNum, line)
			continue
		}
		parseOpcodes(line, currentSection, lineNum)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SFZ file: %w", err)
	}

	parserDebug("Parsing complete. Found %d regions, %d groups", len(sfzData.Regions), len(sfzData.Groups))
	return sfzData, nil
}

// parseOpcodes reads key=value pairs. Sample paths may contain spaces, so a
// value runs until the next token that looks like an opcode.
func parseOpcodes(line string, section *SfzSection, lineNum int) {
	parts := strings.Fields(line)
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		eq := strings.Index(part, "=")
		if eq <= 0 {
			continue
		}

		opcode := strings.ToLower(part[:eq])
		value := part[eq+1:]
		for i+1 < len(parts) && !strings.Contains(parts[i+1], "=") {
			i++
			value += " " + parts[i]
		}

		if isKnownOpcode(opcode) {
			section.Opcodes[opcode] = value
			parserDebug("Parsed opcode: %s = %s", opcode, value)
		} else {
			parserDebug("Warning: Unknown opcode '%s' at line %d", opcode, lineNum)
		}
	}
}

func isKnownOpcode(opcode string) bool {
	switch opcode {
	case "sample", "default_path", "global_label",
		"lokey", "hikey", "key", "pitch_keycenter", "transpose":
		return true
	}
	return false
}

// GetStringOpcode returns an opcode value, or "" if not set
func (s *SfzSection) GetStringOpcode(opcode string) string {
	if s == nil || s.Opcodes == nil {
		return ""
	}
	return s.Opcodes[opcode]
}

// GetInheritedStringOpcode looks the opcode up in the region, then its
// group, then the global section.
func (s *SfzSection) GetInheritedStringOpcode(opcode string) string {
	for _, section := range []*SfzSection{s, s.parentGroup(), s.globalRef()} {
		if v := section.GetStringOpcode(opcode); v != "" {
			return v
		}
	}
	return ""
}

// GetInheritedIntOpcode parses an inherited integer opcode
func (s *SfzSection) GetInheritedIntOpcode(opcode string, defaultValue int) int {
	value := s.GetInheritedStringOpcode(opcode)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimPrefix(value, "+"))
	if err != nil {
		parserDebug("Warning: Invalid integer value for opcode %s: %s", opcode, value)
		return defaultValue
	}
	return n
}

// GetInheritedNoteOpcode parses an inherited note opcode given as a MIDI
// number or a note name such as c4, f#3 or eb2.
func (s *SfzSection) GetInheritedNoteOpcode(opcode string, defaultValue int) int {
	value := s.GetInheritedStringOpcode(opcode)
	if value == "" {
		return defaultValue
	}
	note, err := ParseNote(value)
	if err != nil {
		parserDebug("Warning: Invalid note for opcode %s: %s", opcode, value)
		return defaultValue
	}
	return note
}

func (s *SfzSection) parentGroup() *SfzSection {
	if s == nil {
		return nil
	}
	return s.ParentGroup
}

func (s *SfzSection) globalRef() *SfzSection {
	if s == nil {
		return nil
	}
	return s.GlobalRef
}

var noteOffsets = map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}

// ParseNote converts a MIDI note number or name to 0..127. Names use
// c4 = 60.
func ParseNote(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty note")
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 127 {
			return 0, fmt.Errorf("note %d out of range 0-127", n)
		}
		return n, nil
	}

	offset, ok := noteOffsets[s[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note name %q", s)
	}
	rest := s[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		offset++
		rest = rest[1:]
	case strings.HasPrefix(rest, "b") && len(rest) > 1:
		offset--
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid note name %q", s)
	}
	n := (octave+1)*12 + offset
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("note %q out of range 0-127", s)
	}
	return n, nil
}

// Zone is one resolved region: which file plays over which notes
type Zone struct {
	Sample   string
	RootNote uint8
	MinNote  uint8
	MaxNote  uint8
}

// InstrumentDef is an instrument ready to be loaded
type InstrumentDef struct {
	Name  string
	Zones []Zone
}

// Definition resolves every region into a zone. Regions without a sample
// or with an impossible range are skipped.
func (d *SfzData) Definition(fallbackName string) *InstrumentDef {
	def := &InstrumentDef{Name: fallbackName}
	if label := d.Global.GetStringOpcode("global_label"); label != "" {
		def.Name = label
	}
	defaultPath := d.Control.GetStringOpcode("default_path")

	for i, region := range d.Regions {
		sample := region.GetInheritedStringOpcode("sample")
		if sample == "" {
			parserDebug("Skipping region %d: no sample", i)
			continue
		}
		sample = path.Join(defaultPath, strings.ReplaceAll(sample, "\\", "/"))

		key := region.GetInheritedNoteOpcode("key", -1)
		lo := region.GetInheritedNoteOpcode("lokey", key)
		hi := region.GetInheritedNoteOpcode("hikey", key)
		if lo < 0 {
			lo = 0
		}
		if hi < 0 {
			hi = 127
		}
		root := region.GetInheritedNoteOpcode("pitch_keycenter", key)
		if root < 0 {
			root = 60
		}
		root -= region.GetInheritedIntOpcode("transpose", 0)

		if lo > hi || root < 0 || root > 127 {
			parserDebug("Skipping region %d (%s): range %d-%d root %d", i, sample, lo, hi, root)
			continue
		}

		def.Zones = append(def.Zones, Zone{
			Sample:   sample,
			RootNote: uint8(root),
			MinNote:  uint8(lo),
			MaxNote:  uint8(hi),
		})
	}
	return def
}

// Files lists the distinct sample files the definition needs
func (def *InstrumentDef) Files() []string {
	seen := make(map[string]bool, len(def.Zones))
	var files []string
	for _, z := range def.Zones {
		if !seen[z.Sample] {
			seen[z.Sample] = true
			files = append(files, z.Sample)
		}
	}
	return files
}
