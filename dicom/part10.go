// Package dicom handles DICOM Part 10 files: the 128 byte preamble, the
// "DICM" prefix and the File Meta Information group that wrap a data set on
// disk. Data sets themselves are treated as opaque bytes.
package dicom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	preambleLength = 128
	headerLength   = preambleLength + 4
	metaGroup      = 0x0002
)

// File Meta Information tags used when reading and writing Part 10 files.
const (
	tagGroupLength             = 0x0000
	tagFileMetaVersion         = 0x0001
	tagMediaStorageSOPClass    = 0x0002
	tagMediaStorageSOPInstance = 0x0003
	tagTransferSyntax          = 0x0010
	tagImplementationClass     = 0x0012
	tagImplementationVersion   = 0x0013
	tagSourceAETitle           = 0x0016
)

// ErrNotPart10 is returned for data without the preamble and "DICM" prefix.
var ErrNotPart10 = errors.New("dicom: not a Part 10 file")

// FileMeta is the subset of the File Meta Information needed to send or
// store a data set.
type FileMeta struct {
	MediaStorageSOPClassUID    string
	MediaStorageSOPInstanceUID string
	TransferSyntaxUID          string
	ImplementationClassUID     string
	ImplementationVersionName  string
	SourceAETitle              string
}

// File is a parsed Part 10 file.
type File struct {
	Meta    FileMeta
	Dataset []byte
}

// HasPart10Header reports whether data starts with the preamble and "DICM".
func HasPart10Header(data []byte) bool {
	return len(data) >= headerLength && string(data[preambleLength:headerLength]) == "DICM"
}

// ReadPart10 splits a Part 10 file into its File Meta Information and the
// data set that follows it. The returned data set aliases data.
func ReadPart10(data []byte) (*File, error) {
	if len(data) < headerLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrNotPart10, headerLength, len(data))
	}
	if !HasPart10Header(data) {
		return nil, fmt.Errorf("%w: missing DICM prefix at offset %d", ErrNotPart10, preambleLength)
	}

	f := &File{}
	offset := headerLength
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset:])
		if group != metaGroup {
			break
		}
		element := binary.LittleEndian.Uint16(data[offset+2:])
		vr := string(data[offset+4 : offset+6])

		var length int
		if hasLongLength(vr) {
			if offset+12 > len(data) {
				return nil, fmt.Errorf("dicom: truncated element (0002,%04X)", element)
			}
			length = int(binary.LittleEndian.Uint32(data[offset+8:]))
			offset += 12
		} else {
			length = int(binary.LittleEndian.Uint16(data[offset+6:]))
			offset += 8
		}
		if length < 0 || offset+length > len(data) {
			return nil, fmt.Errorf("dicom: element (0002,%04X) overruns file", element)
		}
		value := strings.TrimRight(string(data[offset:offset+length]), "\x00 ")
		offset += length

		switch element {
		case tagMediaStorageSOPClass:
			f.Meta.MediaStorageSOPClassUID = value
		case tagMediaStorageSOPInstance:
			f.Meta.MediaStorageSOPInstanceUID = value
		case tagTransferSyntax:
			f.Meta.TransferSyntaxUID = value
		case tagImplementationClass:
			f.Meta.ImplementationClassUID = value
		case tagImplementationVersion:
			f.Meta.ImplementationVersionName = value
		case tagSourceAETitle:
			f.Meta.SourceAETitle = value
		}
	}

	if offset >= len(data) {
		return nil, errors.New("dicom: no data set after File Meta Information")
	}
	if f.Meta.TransferSyntaxUID == "" {
		return nil, errors.New("dicom: File Meta Information has no Transfer Syntax UID")
	}
	f.Dataset = data[offset:]
	return f, nil
}

// WritePart10 writes dataset to w as a Part 10 file described by meta.
func WritePart10(w io.Writer, meta FileMeta, dataset []byte) error {
	if meta.MediaStorageSOPClassUID == "" || meta.MediaStorageSOPInstanceUID == "" || meta.TransferSyntaxUID == "" {
		return errors.New("dicom: SOP class, SOP instance and transfer syntax are required")
	}

	var group bytes.Buffer
	writeElement(&group, tagFileMetaVersion, "OB", []byte{0x00, 0x01})
	writeElement(&group, tagMediaStorageSOPClass, "UI", uidValue(meta.MediaStorageSOPClassUID))
	writeElement(&group, tagMediaStorageSOPInstance, "UI", uidValue(meta.MediaStorageSOPInstanceUID))
	writeElement(&group, tagTransferSyntax, "UI", uidValue(meta.TransferSyntaxUID))
	if meta.ImplementationClassUID != "" {
		writeElement(&group, tagImplementationClass, "UI", uidValue(meta.ImplementationClassUID))
	}
	if meta.ImplementationVersionName != "" {
		writeElement(&group, tagImplementationVersion, "SH", textValue(meta.ImplementationVersionName))
	}
	if meta.SourceAETitle != "" {
		writeElement(&group, tagSourceAETitle, "AE", textValue(meta.SourceAETitle))
	}

	var out bytes.Buffer
	out.Write(make([]byte, preambleLength))
	out.WriteString("DICM")
	groupLength := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLength, uint32(group.Len()))
	writeElement(&out, tagGroupLength, "UL", groupLength)
	out.Write(group.Bytes())

	if _, err := w.Write(out.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(dataset)
	return err
}

func hasLongLength(vr string) bool {
	switch vr {
	case "OB", "OW", "OF", "SQ", "UN", "UT":
		return true
	}
	return false
}

func writeElement(buf *bytes.Buffer, element uint16, vr string, value []byte) {
	header := make([]byte, 4, 12)
	binary.LittleEndian.PutUint16(header[0:], metaGroup)
	binary.LittleEndian.PutUint16(header[2:], element)
	header = append(header, vr...)
	if hasLongLength(vr) {
		header = append(header, 0, 0)
		header = binary.LittleEndian.AppendUint32(header, uint32(len(value)))
	} else {
		header = binary.LittleEndian.AppendUint16(header, uint16(len(value)))
	}
	buf.Write(header)
	buf.Write(value)
}

// uidValue pads a UID to even length with NUL.
func uidValue(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 == 1 {
		b = append(b, 0x00)
	}
	return b
}

// textValue pads text to even length with a space.
func textValue(s string) []byte {
	b := []byte(s)
	if len(b)%2 == 1 {
		b = append(b, ' ')
	}
	return b
}
