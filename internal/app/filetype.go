package app

import (
	"archive/zip"
	"bytes"
	"strings"
	"unicode/utf16"
)

// fileType is a container format recognized from its leading bytes.
type fileType struct {
	Ext  string
	MIME string
}

func (t fileType) isImage() bool {
	return strings.HasPrefix(t.MIME, "image/")
}

var (
	typePNG  = fileType{"png", "image/png"}
	typeJPEG = fileType{"jpg", "image/jpeg"}
	typeGIF  = fileType{"gif", "image/gif"}
	typeWEBP = fileType{"webp", "image/webp"}
	typeBMP  = fileType{"bmp", "image/bmp"}
	typeTIFF = fileType{"tif", "image/tiff"}
	typeICO  = fileType{"ico", "image/x-icon"}
	typePDF  = fileType{"pdf", "application/pdf"}
	typeCFB  = fileType{"cfb", "application/x-cfb"}
	typeDOC  = fileType{"doc", "application/msword"}
	typePPT  = fileType{"ppt", "application/vnd.ms-powerpoint"}
	typeZIP  = fileType{"zip", "application/zip"}
	typeDOCX = fileType{"docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
	typePPTX = fileType{"pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation"}
	typeXLSX = fileType{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
	typeGZIP = fileType{"gz", "application/gzip"}
	typeEXE  = fileType{"exe", "application/x-msdownload"}
)

type signature struct {
	offset int
	magic  []byte
}

type fileSignature struct {
	typ fileType
	// all parts must match.
	parts []signature
	// refine narrows a generic container to a concrete type.
	refine func(b []byte) fileType
}

var fileSignatures = []fileSignature{
	{typ: typePNG, parts: []signature{{0, []byte("\x89PNG\r\n\x1a\n")}}},
	{typ: typeJPEG, parts: []signature{{0, []byte{0xFF, 0xD8, 0xFF}}}},
	{typ: typeGIF, parts: []signature{{0, []byte("GIF87a")}}},
	{typ: typeGIF, parts: []signature{{0, []byte("GIF89a")}}},
	{typ: typeWEBP, parts: []signature{{0, []byte("RIFF")}, {8, []byte("WEBP")}}},
	{typ: typeTIFF, parts: []signature{{0, []byte("II*\x00")}}},
	{typ: typeTIFF, parts: []signature{{0, []byte("MM\x00*")}}},
	{typ: typeICO, parts: []signature{{0, []byte{0x00, 0x00, 0x01, 0x00}}}},
	{typ: typePDF, parts: []signature{{0, []byte("%PDF-")}}},
	{typ: typeCFB, parts: []signature{{0, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}}}, refine: refineCFB},
	{typ: typeZIP, parts: []signature{{0, []byte("PK\x03\x04")}}, refine: refineZIP},
	{typ: typeGZIP, parts: []signature{{0, []byte{0x1F, 0x8B, 0x08}}}},
	{typ: typeBMP, parts: []signature{{0, []byte("BM")}}},
	{typ: typeEXE, parts: []signature{{0, []byte("MZ")}}},
}

// detectType identifies b from its magic bytes alone.
func detectType(b []byte) (fileType, bool) {
	for _, sig := range fileSignatures {
		if !sig.matches(b) {
			continue
		}
		if sig.refine != nil {
			return sig.refine(b), true
		}
		return sig.typ, true
	}
	return fileType{}, false
}

func (s fileSignature) matches(b []byte) bool {
	for _, p := range s.parts {
		end := p.offset + len(p.magic)
		if end > len(b) || !bytes.Equal(b[p.offset:end], p.magic) {
			return false
		}
	}
	return true
}

var (
	cfbWordStream       = utf16le("WordDocument")
	cfbPowerPointStream = utf16le("PowerPoint Document")
)

// refineCFB tells legacy Word and PowerPoint files apart by the stream names
// in the compound file directory.
func refineCFB(b []byte) fileType {
	switch {
	case bytes.Contains(b, cfbWordStream):
		return typeDOC
	case bytes.Contains(b, cfbPowerPointStream):
		return typePPT
	default:
		return typeCFB
	}
}

// refineZIP reads the archive's central directory to recognize OOXML
// packages. Entry contents are never decompressed.
func refineZIP(b []byte) fileType {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return typeZIP
	}

	var contentTypes bool
	var found fileType
	for _, f := range zr.File {
		switch {
		case f.Name == "[Content_Types].xml":
			contentTypes = true
		case found == (fileType{}) && strings.HasPrefix(f.Name, "word/"):
			found = typeDOCX
		case found == (fileType{}) && strings.HasPrefix(f.Name, "ppt/"):
			found = typePPTX
		case found == (fileType{}) && strings.HasPrefix(f.Name, "xl/"):
			found = typeXLSX
		}
	}
	if !contentTypes || found == (fileType{}) {
		return typeZIP
	}
	return found
}

func utf16le(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}
